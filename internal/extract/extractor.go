package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/llm"
	"github.com/PalcoLivre/StageLink/internal/models"

	"github.com/openai/openai-go"
)

const extractionSystemPrompt = `Você extrai dados de perfil de artistas a partir de mensagens de WhatsApp.
Responda APENAS com um objeto JSON com os campos (omita os ausentes):
{"name": "", "city": "", "genre": "", "instagram": "", "youtube": "", "spotify": "", "soundcloud": "", "bandcamp": "", "bio": "", "years_experience": 0}
Regras:
- Extraia somente o que estiver explícito na mensagem do usuário.
- NUNCA use "Luna" ou o nome do assistente como nome do artista.
- Links sociais podem ser @handle ou URL; copie como estiverem.
- genre é texto livre (ex: "rock", "samba").`

// Extractor pulls partial profile fields from a single message, delegating to
// the provider pool and degrading to the regex heuristic tier on any failure.
type Extractor struct {
	gen llm.Generator
}

// NewExtractor builds an extractor over the given generator.
func NewExtractor(gen llm.Generator) *Extractor {
	return &Extractor{gen: gen}
}

// Result carries the extracted fields plus the heuristic confidence score
// (non-empty fields / 3, capped at 1.0).
type Result struct {
	Fields     models.ExtractedFields
	Confidence float64
}

// Extract returns whatever fields the message yields. History is passed only
// as disambiguating context, never mined for data. Never returns an error:
// total failure yields an all-empty result.
func (e *Extractor) Extract(ctx context.Context, message string, history []models.MessageLine) Result {
	fields, ok := e.modelExtract(ctx, message, history)
	if !ok {
		fields = heuristicExtract(message)
	}
	if isExcludedName(fields.Name) {
		fields.Name = ""
	}
	normalizeExtracted(&fields)
	return Result{Fields: fields, Confidence: confidence(fields)}
}

// modelExtract runs the pool-backed extraction and parses the reply. The
// second return is false when the pool is exhausted or the reply is not
// usable as the expected structure.
func (e *Extractor) modelExtract(ctx context.Context, message string, history []models.MessageLine) (models.ExtractedFields, bool) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(extractionSystemPrompt),
	}
	if ctxBlock := historyContext(history); ctxBlock != "" {
		messages = append(messages, openai.SystemMessage("Contexto (apenas para desambiguar, NÃO extraia dados daqui):\n"+ctxBlock))
	}
	messages = append(messages, openai.UserMessage(message))

	reply, err := e.gen.Generate(ctx, messages)
	if err != nil {
		slog.Warn("Extractor: provider pool exhausted, using heuristic tier", "error", err)
		return models.ExtractedFields{}, false
	}

	fields, err := parseFields(reply)
	if err != nil {
		slog.Warn("Extractor: unparseable model output, using heuristic tier", "error", err)
		return models.ExtractedFields{}, false
	}
	return fields, true
}

// parseFields decodes the model reply as the expected JSON structure,
// tolerating code fences and surrounding prose (best-effort brace slice).
func parseFields(reply string) (models.ExtractedFields, error) {
	var fields models.ExtractedFields
	cleaned := stripCodeFence(reply)
	if err := json.Unmarshal([]byte(cleaned), &fields); err == nil {
		return fields, nil
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &fields); err == nil {
			return fields, nil
		}
	}
	return fields, json.Unmarshal([]byte(cleaned), &fields)
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// historyContext renders the last few history lines as a plain context block.
func historyContext(history []models.MessageLine) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}
	var b strings.Builder
	for _, line := range history[start:] {
		b.WriteString(line.Role)
		b.WriteString(": ")
		b.WriteString(line.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// confidence scores an extraction as fields/3, capped at 1.0.
func confidence(fields models.ExtractedFields) float64 {
	c := float64(fields.CountNonEmpty()) / 3.0
	if c > 1.0 {
		c = 1.0
	}
	return c
}
