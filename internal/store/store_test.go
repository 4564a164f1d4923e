package store

import (
	"testing"
	"time"

	"github.com/PalcoLivre/StageLink/internal/models"
)

func TestInMemoryStore_StateNotFoundIsNilNil(t *testing.T) {
	s := NewInMemoryStore()
	state, err := s.LoadState("+5511999990000")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if state != nil {
		t.Errorf("expected nil for missing state, got %+v", state)
	}
}

func TestInMemoryStore_StateRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	state := models.NewConversationState("+5511999990000")
	state.Stage = models.StateCollectingGenre
	state.SetField(models.FieldName, "Banda X")

	if err := s.SaveState(state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	got, err := s.LoadState("+5511999990000")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got == nil || got.Stage != models.StateCollectingGenre || got.Field(models.FieldName) != "Banda X" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestInMemoryStore_SaveStateIsUpsert(t *testing.T) {
	s := NewInMemoryStore()
	state := models.NewConversationState("+5511999990000")
	if err := s.SaveState(state); err != nil {
		t.Fatal(err)
	}
	state.Stage = models.StateMainMenu
	if err := s.SaveState(state); err != nil {
		t.Fatal(err)
	}
	got, _ := s.LoadState("+5511999990000")
	if got.Stage != models.StateMainMenu {
		t.Errorf("expected upserted stage, got %s", got.Stage)
	}
}

func TestInMemoryStore_DeleteStateIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.DeleteState("+5511999990000"); err != nil {
		t.Fatalf("delete of missing state should not fail: %v", err)
	}
	state := models.NewConversationState("+5511999990000")
	_ = s.SaveState(state)
	if err := s.DeleteState("+5511999990000"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteState("+5511999990000"); err != nil {
		t.Fatalf("double delete should not fail: %v", err)
	}
	got, _ := s.LoadState("+5511999990000")
	if got != nil {
		t.Error("state should be gone after delete")
	}
}

func TestInMemoryStore_ProfileRoundTripByContact(t *testing.T) {
	s := NewInMemoryStore()
	p := &models.Profile{
		Name:  "Banda X",
		Genre: models.GenreRock,
		SocialLinks: models.SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []models.ContactChannel{
			{Kind: "whatsapp", Value: "+5511999990000", Primary: true},
		},
	}
	if err := s.CreateProfile(p); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if p.ID == "" {
		t.Fatal("CreateProfile should assign an ID")
	}

	got, err := s.GetProfileByContact("+5511999990000")
	if err != nil {
		t.Fatalf("GetProfileByContact failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.Name != "Banda X" || got.Genre != models.GenreRock || got.SocialLinks.Instagram != "https://instagram.com/bandax" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestInMemoryStore_ProfileNotFoundIsNilNil(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.GetProfileByContact("+5500000000000")
	if err != nil || got != nil {
		t.Errorf("expected nil,nil, got %+v, %v", got, err)
	}
	got, err = s.GetProfile("nope")
	if err != nil || got != nil {
		t.Errorf("expected nil,nil, got %+v, %v", got, err)
	}
}

func TestInMemoryStore_UpdateProfile(t *testing.T) {
	s := NewInMemoryStore()
	p := &models.Profile{
		Name:            "Banda X",
		Genre:           models.GenreRock,
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: "+5511", Primary: true}},
	}
	_ = s.CreateProfile(p)
	p.City = "Bragança"
	if err := s.UpdateProfile(p); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetProfile(p.ID)
	if got.City != "Bragança" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestInMemoryStore_InteractionCounts(t *testing.T) {
	s := NewInMemoryStore()
	for i := 0; i < 3; i++ {
		if err := s.AddInteraction(models.Interaction{
			SubjectID: "+5511",
			Direction: models.DirectionInbound,
			Text:      "oi",
		}); err != nil {
			t.Fatal(err)
		}
	}
	count, err := s.CountInteractionsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected 3 interactions, got %d", count)
	}
	count, _ = s.CountInteractionsSince(time.Now().Add(time.Hour))
	if count != 0 {
		t.Errorf("expected 0 future interactions, got %d", count)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":          "postgres",
		"postgresql://u:p@localhost/db":        "postgres",
		"host=localhost dbname=stage user=app": "postgres",
		"/var/lib/stagelink/state.db":          "sqlite3",
		"state.db":                             "sqlite3",
	}
	for in, want := range cases {
		if got := DetectDSNType(in); got != want {
			t.Errorf("DetectDSNType(%q) = %s, want %s", in, got, want)
		}
	}
}
