package llm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/openai/openai-go"
)

// Error variables for pool-level failures.
var (
	// ErrNoProviderAvailable is returned when every configured provider is
	// in cooldown, rate-limited, or disabled.
	ErrNoProviderAvailable = errors.New("no LLM provider available")
	// ErrNoChoicesReturned indicates the backend replied without any choices.
	ErrNoChoicesReturned = errors.New("no choices returned from provider")
	// ErrNoProvidersConfigured indicates the pool was built with an empty
	// provider list.
	ErrNoProvidersConfigured = errors.New("no LLM providers configured")
)

// Opts holds pool configuration assembled by functional options.
type Opts struct {
	Providers []ProviderConfig
}

// Option configures the pool.
type Option func(*Opts)

// WithProvider appends one backend to the priority order. The first provider
// added is the primary; the rest are fallback in insertion order.
func WithProvider(cfg ProviderConfig) Option {
	return func(o *Opts) { o.Providers = append(o.Providers, cfg) }
}

// Pool selects and invokes one of several interchangeable LLM backends in a
// fixed priority order, skipping unhealthy ones and recording outcomes.
type Pool struct {
	mu        sync.Mutex
	providers []*provider
}

// NewPool builds a pool over the configured providers in priority order.
func NewPool(options ...Option) (*Pool, error) {
	var opts Opts
	for _, opt := range options {
		opt(&opts)
	}
	if len(opts.Providers) == 0 {
		return nil, ErrNoProvidersConfigured
	}
	pool := &Pool{}
	for _, cfg := range opts.Providers {
		p, err := newProvider(cfg)
		if err != nil {
			return nil, err
		}
		pool.providers = append(pool.providers, p)
	}
	slog.Info("LLM pool initialized", "providers", len(pool.providers), "primary", pool.providers[0].name)
	return pool, nil
}

// selectProvider returns the first provider in priority order that may be
// called right now, or nil when all are exhausted.
func (p *Pool) selectProvider(now time.Time) *provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, prov := range p.providers {
		if prov.health.canCall(now, prov.rateLimit) {
			return prov
		}
	}
	return nil
}

func (p *Pool) recordSuccess(prov *provider, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prov.health.recordSuccess(now)
}

func (p *Pool) recordFailure(prov *provider, now time.Time, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prov.health.recordFailure(now, err)
	slog.Warn("LLM provider failure",
		"provider", prov.name,
		"quota", isQuotaError(err),
		"consecutiveFailures", prov.health.consecutiveFailures,
		"cooldownUntil", prov.health.cooldownUntil,
		"error", err)
}

// Generate walks the priority order: pick the next available provider, attempt
// the call under that provider's timeout, record the outcome, and fall through
// to the next provider on failure. Returns ErrNoProviderAvailable only once
// every provider is exhausted.
func (p *Pool) Generate(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	for {
		prov := p.selectProvider(time.Now())
		if prov == nil {
			return "", ErrNoProviderAvailable
		}

		callCtx, cancel := context.WithTimeout(ctx, prov.timeout)
		resp, err := prov.chat.New(callCtx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(prov.model),
			Messages: messages,
		})
		cancel()

		if err != nil {
			p.recordFailure(prov, time.Now(), err)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if len(resp.Choices) == 0 {
			p.recordFailure(prov, time.Now(), ErrNoChoicesReturned)
			continue
		}

		p.recordSuccess(prov, time.Now())
		slog.Debug("LLM call succeeded", "provider", prov.name, "model", prov.model)
		return resp.Choices[0].Message.Content, nil
	}
}

// GeneratePrompt is a convenience wrapper for a single system+user exchange.
func (p *Pool) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return p.Generate(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	})
}

// Snapshot reports per-provider availability for the health surface.
func (p *Pool) Snapshot() []ProviderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	statuses := make([]ProviderStatus, 0, len(p.providers))
	for _, prov := range p.providers {
		statuses = append(statuses, ProviderStatus{
			Name:                 prov.name,
			Model:                prov.model,
			Available:            prov.health.available && prov.health.cooldownRemaining(now) == 0,
			ConsecutiveFailures:  prov.health.consecutiveFailures,
			CooldownRemaining:    prov.health.cooldownRemaining(now),
			RequestsInLastMinute: prov.health.requestsInWindow(now),
		})
	}
	return statuses
}

// Generator is the surface the analyzer and extractor depend on; satisfied by
// *Pool and by test fakes.
type Generator interface {
	Generate(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
