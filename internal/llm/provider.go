package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout bounds a single provider call when the config leaves it unset.
const DefaultTimeout = 8 * time.Second

// chatCompleter is the minimal surface of an OpenAI-compatible chat backend.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ProviderConfig describes one configured LLM backend. Providers speak the
// OpenAI chat-completions protocol; BaseURL points non-OpenAI backends at
// their compatible endpoint.
type ProviderConfig struct {
	Name      string
	Model     string
	APIKey    string
	BaseURL   string
	RateLimit int // max requests per sliding 60s window; 0 disables the limit
	Timeout   time.Duration
}

// provider pairs a configured backend with its health record.
type provider struct {
	name      string
	model     string
	rateLimit int
	timeout   time.Duration
	chat      chatCompleter
	health    health
}

func newProvider(cfg ProviderConfig) (*provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: API key is required", cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider %s: model is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &provider{
		name:      cfg.Name,
		model:     cfg.Model,
		rateLimit: cfg.RateLimit,
		timeout:   timeout,
		chat:      &client.Chat.Completions,
		health:    newHealth(),
	}, nil
}

// ProviderStatus is a read-only view of one provider's health, reported by
// the health/metrics surface.
type ProviderStatus struct {
	Name                 string        `json:"name"`
	Model                string        `json:"model"`
	Available            bool          `json:"available"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	CooldownRemaining    time.Duration `json:"cooldown_remaining"`
	RequestsInLastMinute int           `json:"requests_in_last_minute"`
}
