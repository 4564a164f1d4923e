package extract

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

func TestNormalizeLink_HandleStripsAt(t *testing.T) {
	got := NormalizeLink(models.PlatformInstagram, "@bandax")
	if got != "https://instagram.com/bandax" {
		t.Errorf("expected https://instagram.com/bandax, got %q", got)
	}
}

func TestNormalizeLink_PlatformConventions(t *testing.T) {
	cases := []struct {
		platform models.SocialPlatform
		in, want string
	}{
		{models.PlatformYouTube, "bandax", "https://youtube.com/@bandax"},
		{models.PlatformSpotify, "@bandax", "https://open.spotify.com/artist/bandax"},
		{models.PlatformSoundCloud, "bandax", "https://soundcloud.com/bandax"},
		{models.PlatformBandcamp, "bandax", "https://bandax.bandcamp.com"},
		{models.PlatformInstagram, "https://instagram.com/x", "https://instagram.com/x"},
		{models.PlatformInstagram, "mais.co/rocktotal", "https://mais.co/rocktotal"},
		{models.PlatformInstagram, "", ""},
	}
	for _, c := range cases {
		if got := NormalizeLink(c.platform, c.in); got != c.want {
			t.Errorf("NormalizeLink(%s, %q) = %q, want %q", c.platform, c.in, got, c.want)
		}
	}
}

func TestSniffPlatform(t *testing.T) {
	cases := map[string]models.SocialPlatform{
		"https://youtube.com/@x":     models.PlatformYouTube,
		"https://open.spotify.com/x": models.PlatformSpotify,
		"soundcloud.com/x":           models.PlatformSoundCloud,
		"x.bandcamp.com":             models.PlatformBandcamp,
		"mais.co/rocktotal":          models.PlatformInstagram,
	}
	for in, want := range cases {
		if got := SniffPlatform(in); got != want {
			t.Errorf("SniffPlatform(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestExtract_ModelPath(t *testing.T) {
	gen := &mockGenerator{reply: `{"name": "Banda X", "genre": "rock", "instagram": "@bandax"}`}
	ex := NewExtractor(gen)

	res := ex.Extract(context.Background(), "somos a banda x", nil)
	if res.Fields.Name != "Banda X" {
		t.Errorf("expected name from model, got %q", res.Fields.Name)
	}
	if res.Fields.Instagram != "https://instagram.com/bandax" {
		t.Errorf("expected normalized instagram URL, got %q", res.Fields.Instagram)
	}
	if res.Confidence != 1.0 {
		t.Errorf("3 fields should score 1.0, got %f", res.Confidence)
	}
}

func TestExtract_CodeFencedReply(t *testing.T) {
	gen := &mockGenerator{reply: "```json\n{\"name\": \"Banda X\"}\n```"}
	ex := NewExtractor(gen)
	res := ex.Extract(context.Background(), "somos a banda x", nil)
	if res.Fields.Name != "Banda X" {
		t.Errorf("expected fenced JSON to parse, got %+v", res.Fields)
	}
}

func TestExtract_PersonaNeverExtracted(t *testing.T) {
	gen := &mockGenerator{reply: `{"name": "Luna"}`}
	ex := NewExtractor(gen)
	res := ex.Extract(context.Background(), "oi luna", nil)
	if res.Fields.Name != "" {
		t.Errorf("persona name must be excluded, got %q", res.Fields.Name)
	}
}

func TestExtract_HeuristicFallbackOnPoolExhaustion(t *testing.T) {
	gen := &mockGenerator{err: errors.New("no LLM provider available")}
	ex := NewExtractor(gen)

	res := ex.Extract(context.Background(), "Oi! Somos a Banda Furacão de Bragança, tocamos rock. instagram: @furacao", nil)
	if res.Fields.Name == "" {
		t.Error("heuristic pass should find the band name")
	}
	if res.Fields.Genre != "rock" {
		t.Errorf("heuristic pass should find genre, got %q", res.Fields.Genre)
	}
	if res.Fields.Instagram != "https://instagram.com/furacao" {
		t.Errorf("expected normalized instagram, got %q", res.Fields.Instagram)
	}
}

func TestExtract_HeuristicFallbackOnMalformedOutput(t *testing.T) {
	gen := &mockGenerator{reply: "sorry, I cannot produce JSON today"}
	ex := NewExtractor(gen)

	res := ex.Extract(context.Background(), "my name is Rock Total", nil)
	if res.Fields.Name != "Rock Total" {
		t.Errorf("expected heuristic name, got %q", res.Fields.Name)
	}
}

func TestExtract_NothingFoundReturnsEmpty(t *testing.T) {
	gen := &mockGenerator{err: errors.New("down")}
	ex := NewExtractor(gen)

	res := ex.Extract(context.Background(), "ok", nil)
	if !res.Fields.IsEmpty() {
		t.Errorf("expected empty result, got %+v", res.Fields)
	}
	if res.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", res.Confidence)
	}
}

func TestHeuristic_FirstMessageScenario(t *testing.T) {
	fields := heuristicExtract("Hi, I'm Rock Total from São Paulo, we play rock, check mais.co/rocktotal on Instagram")
	if fields.Name != "Rock Total" {
		t.Errorf("expected name 'Rock Total', got %q", fields.Name)
	}
	if fields.City != "São Paulo" {
		t.Errorf("expected city 'São Paulo', got %q", fields.City)
	}
	if fields.Genre != "rock" {
		t.Errorf("expected genre 'rock', got %q", fields.Genre)
	}
	if fields.Instagram != "mais.co/rocktotal" {
		t.Errorf("expected raw instagram URL, got %q", fields.Instagram)
	}
}

func TestHeuristic_PortugueseIntroduction(t *testing.T) {
	fields := heuristicExtract("meu nome é João Silva e tocamos sertanejo")
	if fields.Name != "João Silva" {
		t.Errorf("expected 'João Silva', got %q", fields.Name)
	}
	if fields.Genre != "sertanejo" {
		t.Errorf("expected 'sertanejo', got %q", fields.Genre)
	}
}

func TestHeuristic_BareHandle(t *testing.T) {
	fields := heuristicExtract("segue a gente @bandax")
	if fields.Instagram != "bandax" {
		t.Errorf("expected bare handle captured, got %q", fields.Instagram)
	}
}

func TestConfidenceCapped(t *testing.T) {
	f := models.ExtractedFields{
		Name: "a", City: "b", Genre: "c", Instagram: "d", YouTube: "e",
	}
	if c := confidence(f); c != 1.0 {
		t.Errorf("confidence should cap at 1.0, got %f", c)
	}
	if c := confidence(models.ExtractedFields{Name: "a"}); c <= 0.3 || c >= 0.34 {
		t.Errorf("one field should score 1/3, got %f", c)
	}
}
