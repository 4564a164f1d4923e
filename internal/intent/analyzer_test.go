package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/PalcoLivre/StageLink/internal/models"

	"github.com/openai/openai-go"
)

// mockGenerator implements llm.Generator for testing.
type mockGenerator struct {
	reply string
	err   error
}

func (m *mockGenerator) Generate(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return m.reply, m.err
}

func (m *mockGenerator) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.reply, m.err
}

func TestAnalyze_ModelPath(t *testing.T) {
	gen := &mockGenerator{reply: `{"intent": "schedule_inquiry", "sentiment": "positive", "urgency": "normal", "confidence": 0.95, "summary": "quer marcar show"}`}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "tem data em março?", nil, nil, true)
	if res.Intent != models.IntentScheduleInquiry {
		t.Errorf("expected schedule_inquiry, got %s", res.Intent)
	}
	if res.Confidence != 0.95 {
		t.Errorf("expected model confidence kept, got %f", res.Confidence)
	}
}

func TestAnalyze_UnknownForcesZeroConfidence(t *testing.T) {
	gen := &mockGenerator{reply: `{"intent": "unknown", "confidence": 0.8}`}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "???", nil, nil, false)
	if res.Confidence != 0 {
		t.Errorf("unknown must force confidence to 0, got %f", res.Confidence)
	}
	if !res.NeedsHuman {
		t.Error("unknown must set needs_human")
	}
}

func TestAnalyze_ConfidenceBackfill(t *testing.T) {
	gen := &mockGenerator{reply: `{"intent": "greeting"}`}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "oi!", nil, nil, false)
	if res.Confidence != 0.9 {
		t.Errorf("greeting backfill should be 0.9, got %f", res.Confidence)
	}
	if res.Sentiment != "neutral" || res.Urgency != "normal" {
		t.Errorf("missing sentiment/urgency should default, got %s/%s", res.Sentiment, res.Urgency)
	}
	if res.Summary == "" {
		t.Error("missing summary should be synthesized")
	}
}

func TestAnalyze_InvalidIntentMapsToUnknown(t *testing.T) {
	gen := &mockGenerator{reply: `{"intent": "world_domination", "confidence": 0.99}`}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "hmm", nil, nil, false)
	if res.Intent != models.IntentUnknown {
		t.Errorf("out-of-enum intent must map to unknown, got %s", res.Intent)
	}
	if res.Confidence != 0 || !res.NeedsHuman {
		t.Errorf("unknown post-processing not applied: %+v", res)
	}
}

func TestAnalyze_PoolExhaustedUsesKeywordTier(t *testing.T) {
	gen := &mockGenerator{err: errors.New("no LLM provider available")}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "quero marcar um show, tem datas?", nil, nil, false)
	if res.Intent != models.IntentScheduleInquiry {
		t.Errorf("keyword tier should classify schedule inquiry, got %s", res.Intent)
	}
	if res.NeedsHuman {
		t.Error("keyword hit should clear needs_human")
	}
}

func TestAnalyze_PoolExhaustedNoKeywordsSafeDefault(t *testing.T) {
	gen := &mockGenerator{err: errors.New("down")}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "xyzzy", nil, nil, false)
	if res.Intent != models.IntentUnknown || !res.NeedsHuman || res.Confidence != 0 {
		t.Errorf("expected safe default, got %+v", res)
	}
	if res.Sentiment != "neutral" {
		t.Errorf("expected neutral sentiment, got %s", res.Sentiment)
	}
}

func TestAnalyze_MalformedOutputFallsBack(t *testing.T) {
	gen := &mockGenerator{reply: "not json at all"}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "oi, bom dia", nil, nil, false)
	if res.Intent != models.IntentGreeting {
		t.Errorf("keyword tier should classify greeting, got %s", res.Intent)
	}
}

func TestAnalyze_EntitiesCarried(t *testing.T) {
	gen := &mockGenerator{reply: `{"intent": "initial_registration", "entities": {"name": "Banda X", "genre": "rock"}, "confidence": 0.9}`}
	a := NewAnalyzer(gen)

	res := a.Analyze(context.Background(), "somos a Banda X, tocamos rock", nil, nil, false)
	if res.Entities.Name != "Banda X" || res.Entities.Genre != "rock" {
		t.Errorf("entities not carried: %+v", res.Entities)
	}
}

func TestKeywordClassify(t *testing.T) {
	cases := map[string]models.Intent{
		"oi, bom dia":                    models.IntentGreeting,
		"quero cadastrar minha banda":    models.IntentInitialRegistration,
		"tem datas disponíveis?":         models.IntentScheduleInquiry,
		"preciso atualizar meu telefone": models.IntentUpdateData,
		"onde fica a casa?":              models.IntentVenueInfo,
		"confirmo o show, fechado":       models.IntentConfirmBooking,
		"quero cancelar":                 models.IntentCancel,
		"valeu, tchau!":                  models.IntentFarewell,
		"xyzzy":                          models.IntentUnknown,
	}
	for in, want := range cases {
		if got := KeywordClassify(in); got != want {
			t.Errorf("KeywordClassify(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestKeywordClassify_ShortTokenBoundaries(t *testing.T) {
	// "oi" must not match inside "noite".
	if got := KeywordClassify("boa noite"); got != models.IntentGreeting {
		t.Errorf("expected greeting via 'boa noite', got %s", got)
	}
	if got := KeywordClassify("aproveitei bastante"); got != models.IntentUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
}
