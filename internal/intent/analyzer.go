// Package intent classifies inbound messages into the closed intent set,
// with a keyword tier beneath the model-backed path.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/llm"
	"github.com/PalcoLivre/StageLink/internal/models"

	"github.com/openai/openai-go"
)

const analysisSystemPrompt = `Você classifica mensagens de artistas em um fluxo de agendamento de shows via WhatsApp.
Responda APENAS com um objeto JSON:
{"intent": "", "secondary_intent": "", "entities": {"name": "", "city": "", "genre": "", "instagram": "", "youtube": "", "spotify": ""}, "sentiment": "positive|neutral|negative", "urgency": "low|normal|high", "confidence": 0.0, "keywords": [], "needs_human": false, "summary": ""}
Valores possíveis de intent: initial_registration, registration_followup, schedule_inquiry, update_data, venue_info, greeting, farewell, general_question, feedback, confirm_booking, cancel, unknown.
Extraia em entities apenas o que estiver explícito na mensagem.`

// Analyzer produces an AnalysisResult per inbound message.
type Analyzer struct {
	gen llm.Generator
}

// NewAnalyzer builds an analyzer over the given generator.
func NewAnalyzer(gen llm.Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Analyze classifies the message given the rolling history, the fields already
// collected, and whether a persisted profile exists. Never returns an error:
// total provider exhaustion yields the documented safe default, upgraded with
// the keyword tier's intent when it finds one.
func (a *Analyzer) Analyze(ctx context.Context, message string, history []models.MessageLine, collected map[string]string, hasProfile bool) models.AnalysisResult {
	reply, err := a.gen.Generate(ctx, a.buildMessages(message, history, collected, hasProfile))
	if err != nil {
		slog.Warn("Analyzer: provider pool exhausted, using keyword tier", "error", err)
		return a.fallback(message)
	}

	result, perr := parseAnalysis(reply)
	if perr != nil {
		slog.Warn("Analyzer: unparseable model output, using keyword tier", "error", perr)
		return a.fallback(message)
	}

	postProcess(&result, message)
	slog.Debug("Analyzer classified message", "intent", result.Intent, "confidence", result.Confidence)
	return result
}

// fallback is the no-LLM tier: keyword classification over the safe default.
func (a *Analyzer) fallback(message string) models.AnalysisResult {
	result := models.SafeDefaultAnalysis(message)
	if kw := KeywordClassify(message); kw != models.IntentUnknown {
		result.Intent = kw
		result.Confidence = models.DefaultConfidence(kw)
		result.NeedsHuman = false
		result.Summary = models.SummaryFor(kw, message)
	}
	return result
}

func (a *Analyzer) buildMessages(message string, history []models.MessageLine, collected map[string]string, hasProfile bool) []openai.ChatCompletionMessageParamUnion {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(analysisSystemPrompt),
	}
	if ctxBlock := contextBlock(history, collected, hasProfile); ctxBlock != "" {
		msgs = append(msgs, openai.SystemMessage(ctxBlock))
	}
	return append(msgs, openai.UserMessage(message))
}

// contextBlock renders the last few history entries plus the known fields.
func contextBlock(history []models.MessageLine, collected map[string]string, hasProfile bool) string {
	var b strings.Builder
	b.WriteString("Contexto:\n")
	fmt.Fprintf(&b, "- cadastro existente: %t\n", hasProfile)
	if len(collected) > 0 {
		keys := make([]string, 0, len(collected))
		for k := range collected {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("- dados já coletados: ")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, collected[k])
		}
		b.WriteString("\n")
	}
	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}
	for _, line := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", line.Role, line.Text)
	}
	return b.String()
}

// parseAnalysis decodes the model reply, tolerating code fences and
// surrounding prose.
func parseAnalysis(reply string) (models.AnalysisResult, error) {
	var raw struct {
		Intent          string                 `json:"intent"`
		SecondaryIntent string                 `json:"secondary_intent"`
		Entities        models.ExtractedFields `json:"entities"`
		Sentiment       string                 `json:"sentiment"`
		Urgency         string                 `json:"urgency"`
		Confidence      float64                `json:"confidence"`
		Keywords        []string               `json:"keywords"`
		NeedsHuman      bool                   `json:"needs_human"`
		Summary         string                 `json:"summary"`
	}
	cleaned := strings.TrimSpace(reply)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return models.AnalysisResult{}, err
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
			return models.AnalysisResult{}, err
		}
	}
	result := models.AnalysisResult{
		Intent:     models.ParseIntent(raw.Intent),
		Entities:   raw.Entities,
		Sentiment:  raw.Sentiment,
		Urgency:    raw.Urgency,
		Confidence: raw.Confidence,
		Keywords:   raw.Keywords,
		NeedsHuman: raw.NeedsHuman,
		Summary:    raw.Summary,
	}
	if raw.SecondaryIntent != "" {
		result.SecondaryIntent = models.ParseIntent(raw.SecondaryIntent)
	}
	return result, nil
}

// postProcess applies the fixed classification rules: unknown forces zero
// confidence and a human flag; missing confidence is backfilled by intent
// category; a missing summary is synthesized from intent + message prefix.
func postProcess(result *models.AnalysisResult, message string) {
	if result.Intent == models.IntentUnknown {
		result.Confidence = 0.0
		result.NeedsHuman = true
	}
	if result.Confidence == 0 && result.Intent != models.IntentUnknown {
		result.Confidence = models.DefaultConfidence(result.Intent)
	}
	if result.Sentiment == "" {
		result.Sentiment = "neutral"
	}
	if result.Urgency == "" {
		result.Urgency = "normal"
	}
	if result.Summary == "" {
		result.Summary = models.SummaryFor(result.Intent, message)
	}
}
