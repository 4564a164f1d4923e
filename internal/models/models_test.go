package models

import (
	"testing"
	"time"
)

func TestParseGenre_DirectMatch(t *testing.T) {
	if g := ParseGenre("rock"); g != GenreRock {
		t.Errorf("expected ROCK, got %s", g)
	}
	if g := ParseGenre("  MPB  "); g != GenreMPB {
		t.Errorf("expected MPB, got %s", g)
	}
}

func TestParseGenre_Synonyms(t *testing.T) {
	cases := map[string]Genre{
		"samba":      GenreMPB,
		"pagode":     GenreMPB,
		"bossa nova": GenreMPB,
		"hip hop":    GenreRap,
		"country":    GenreSertanejo,
		"techno":     GenreEletronica,
	}
	for in, want := range cases {
		if got := ParseGenre(in); got != want {
			t.Errorf("ParseGenre(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseGenre_Containment(t *testing.T) {
	if g := ParseGenre("rock alternativo"); g != GenreRock {
		t.Errorf("expected ROCK, got %s", g)
	}
}

func TestParseGenre_UnknownFallsToOther(t *testing.T) {
	if g := ParseGenre("polka futurista"); g != GenreOther {
		t.Errorf("expected OTHER, got %s", g)
	}
	if g := ParseGenre(""); g != GenreOther {
		t.Errorf("expected OTHER for empty input, got %s", g)
	}
}

func validProfile() *Profile {
	return &Profile{
		ID:    "p1",
		Name:  "Banda X",
		Genre: GenreRock,
		SocialLinks: SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []ContactChannel{
			{Kind: "whatsapp", Value: "+5511999990000", Primary: true},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func TestProfileValidate(t *testing.T) {
	p := validProfile()
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid profile, got %v", err)
	}

	p = validProfile()
	p.Name = ""
	if err := p.Validate(); err != ErrProfileNameMissing {
		t.Errorf("expected ErrProfileNameMissing, got %v", err)
	}

	p = validProfile()
	p.Name = "X"
	if err := p.Validate(); err != ErrProfileNameTooShort {
		t.Errorf("expected ErrProfileNameTooShort, got %v", err)
	}

	p = validProfile()
	p.Genre = ""
	if err := p.Validate(); err != ErrProfileGenreMissing {
		t.Errorf("expected ErrProfileGenreMissing, got %v", err)
	}

	p = validProfile()
	p.YearsExperience = 99
	if err := p.Validate(); err != ErrYearsOutOfRange {
		t.Errorf("expected ErrYearsOutOfRange, got %v", err)
	}

	p = validProfile()
	p.ContactChannels = nil
	if err := p.Validate(); err != ErrNoContactChannel {
		t.Errorf("expected ErrNoContactChannel, got %v", err)
	}
}

func TestProfileIsMinimumViable(t *testing.T) {
	p := validProfile()
	if !p.IsMinimumViable() {
		t.Error("expected profile with name+genre+link to be viable")
	}
	p.SocialLinks = SocialLinks{}
	p.City = "São Paulo"
	if p.IsMinimumViable() {
		t.Error("city must not substitute for a social link in the persistence gate")
	}
}

func TestProfileJSONRoundTrip(t *testing.T) {
	p := validProfile()
	s, err := p.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	var back Profile
	if err := back.FromJSON(s); err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if back.Name != p.Name || back.Genre != p.Genre || back.SocialLinks.Instagram != p.SocialLinks.Instagram {
		t.Errorf("round-trip mismatch: %+v", back)
	}
}

func TestConversationStateHistoryEviction(t *testing.T) {
	c := NewConversationState("+5511999990000")
	for i := 0; i < MaxRecentMessages+5; i++ {
		c.AppendMessage("user", "msg")
	}
	if len(c.RecentMessages) != MaxRecentMessages {
		t.Errorf("expected history capped at %d, got %d", MaxRecentMessages, len(c.RecentMessages))
	}
}

func TestConversationStateProgress(t *testing.T) {
	c := NewConversationState("+5511999990000")
	if c.Progress() != 0 {
		t.Errorf("expected 0 progress, got %f", c.Progress())
	}
	c.SetField(FieldName, "Banda X")
	c.SetField(FieldGenre, "rock")
	if c.Progress() != 0.5 {
		t.Errorf("expected 0.5 progress, got %f", c.Progress())
	}
	c.SetField(FieldCity, "Bragança")
	c.SetField(FieldInstagram, "https://instagram.com/bandax")
	if c.Progress() != 1.0 {
		t.Errorf("expected full progress, got %f", c.Progress())
	}
}

func TestParseIntent(t *testing.T) {
	if ParseIntent("GREETING") != IntentGreeting {
		t.Error("expected case-insensitive intent parse")
	}
	if ParseIntent("something else") != IntentUnknown {
		t.Error("expected unknown fallback")
	}
}

func TestDefaultConfidence(t *testing.T) {
	if DefaultConfidence(IntentGreeting) != 0.9 {
		t.Error("greeting should backfill 0.9")
	}
	if DefaultConfidence(IntentInitialRegistration) != 0.8 {
		t.Error("registration should backfill 0.8")
	}
	if DefaultConfidence(IntentGeneralQuestion) != 0.7 {
		t.Error("general should backfill 0.7")
	}
	if DefaultConfidence(IntentUnknown) != 0.0 {
		t.Error("unknown should backfill 0.0")
	}
}

func TestSafeDefaultAnalysis(t *testing.T) {
	res := SafeDefaultAnalysis("help me")
	if res.Intent != IntentUnknown || !res.NeedsHuman || res.Confidence != 0 {
		t.Errorf("unexpected safe default: %+v", res)
	}
	if res.Sentiment != "neutral" {
		t.Errorf("expected neutral sentiment, got %s", res.Sentiment)
	}
}

func TestExtractedFieldsCount(t *testing.T) {
	e := ExtractedFields{Name: "Banda X", Genre: "rock", Instagram: "https://instagram.com/bandax"}
	if e.CountNonEmpty() != 3 {
		t.Errorf("expected 3, got %d", e.CountNonEmpty())
	}
	if (ExtractedFields{}).CountNonEmpty() != 0 {
		t.Error("empty struct should count 0")
	}
}
