package flow

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/PalcoLivre/StageLink/internal/extract"
	"github.com/PalcoLivre/StageLink/internal/models"
	"github.com/PalcoLivre/StageLink/internal/store"
)

type scriptedAnalyzer struct {
	results []models.AnalysisResult
	calls   int
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, message string, history []models.MessageLine, collected map[string]string, hasProfile bool) models.AnalysisResult {
	if a.calls < len(a.results) {
		r := a.results[a.calls]
		a.calls++
		return r
	}
	a.calls++
	return models.SafeDefaultAnalysis(message)
}

type scriptedExtractor struct {
	results []extract.Result
	calls   int
}

func (e *scriptedExtractor) Extract(ctx context.Context, message string, history []models.MessageLine) extract.Result {
	if e.calls < len(e.results) {
		r := e.results[e.calls]
		e.calls++
		return r
	}
	e.calls++
	return extract.Result{}
}

// failingStore wraps the in-memory store and fails profile creation on demand.
type failingStore struct {
	*store.InMemoryStore
	failCreate bool
}

func (s *failingStore) CreateProfile(p *models.Profile) error {
	if s.failCreate {
		return errors.New("disk full")
	}
	return s.InMemoryStore.CreateProfile(p)
}

func testEngine(t *testing.T, st store.Store, analyzer Analyzer, extractor Extractor, options ...EngineOption) *Engine {
	t.Helper()
	options = append(options, WithRand(rand.New(rand.NewSource(42))))
	eng, err := NewEngine(NewStoreBasedStateManager(st), st, analyzer, extractor, options...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func mustProcess(t *testing.T, e *Engine, subject, message string) string {
	t.Helper()
	reply, err := e.Process(context.Background(), subject, message)
	if err != nil {
		t.Fatalf("Process(%q): %v", message, err)
	}
	return reply
}

func TestEngineRegistrationRoundTrip(t *testing.T) {
	st := store.NewInMemoryStore()
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})
	subject := "+5511999990001"

	reply := mustProcess(t, e, subject, "oi")
	if reply != msgWelcome {
		t.Fatalf("first reply = %q, want welcome", reply)
	}

	if reply = mustProcess(t, e, subject, "Banda X"); reply != msgAskGenre {
		t.Fatalf("after name reply = %q, want genre prompt", reply)
	}
	if reply = mustProcess(t, e, subject, "rock"); reply != msgAskCity {
		t.Fatalf("after genre reply = %q, want city prompt", reply)
	}
	if reply = mustProcess(t, e, subject, "Bragança Paulista"); reply != msgAskLinks {
		t.Fatalf("after city reply = %q, want links prompt", reply)
	}

	reply = mustProcess(t, e, subject, "@bandax")
	if !strings.Contains(reply, "Cadastro salvo") {
		t.Fatalf("after link reply = %q, want confirmation", reply)
	}

	p, err := st.GetProfileByContact(subject)
	if err != nil || p == nil {
		t.Fatalf("GetProfileByContact: %v, %v", p, err)
	}
	if p.Name != "Banda X" {
		t.Errorf("Name = %q, want Banda X", p.Name)
	}
	if p.Genre != models.GenreRock {
		t.Errorf("Genre = %q, want %q", p.Genre, models.GenreRock)
	}
	if p.City != "Bragança Paulista" {
		t.Errorf("City = %q", p.City)
	}
	if p.SocialLinks.Instagram != "https://instagram.com/bandax" {
		t.Errorf("Instagram = %q", p.SocialLinks.Instagram)
	}

	state, err := st.LoadState(subject)
	if err != nil || state == nil {
		t.Fatalf("LoadState: %v, %v", state, err)
	}
	if state.Stage != models.StateMainMenu {
		t.Errorf("stage after registration = %q, want main_menu", state.Stage)
	}
	if state.LinkedProfileID != p.ID {
		t.Errorf("LinkedProfileID = %q, want %q", state.LinkedProfileID, p.ID)
	}
}

func TestEngineFirstMessageExtractionSkipsPrompts(t *testing.T) {
	st := store.NewInMemoryStore()
	ex := &scriptedExtractor{results: []extract.Result{{
		Fields: models.ExtractedFields{
			Name:      "Rock Total",
			City:      "São Paulo",
			Genre:     "rock",
			Instagram: "https://instagram.com/rocktotal",
		},
		Confidence: 1.0,
	}}}
	e := testEngine(t, st, &scriptedAnalyzer{}, ex)
	subject := "+5511999990002"

	reply := mustProcess(t, e, subject, "Oi, somos a Rock Total de São Paulo, tocamos rock, insta @rocktotal")
	if !strings.Contains(reply, "Cadastro salvo") {
		t.Fatalf("reply = %q, want immediate confirmation", reply)
	}

	p, _ := st.GetProfileByContact(subject)
	if p == nil || p.Name != "Rock Total" || p.Genre != models.GenreRock {
		t.Fatalf("profile = %+v", p)
	}
}

func TestEnginePartialExtractionAsksOnlyGaps(t *testing.T) {
	st := store.NewInMemoryStore()
	ex := &scriptedExtractor{results: []extract.Result{{
		Fields: models.ExtractedFields{Name: "Banda Furacão", Genre: "forró"},
	}}}
	e := testEngine(t, st, &scriptedAnalyzer{}, ex)

	reply := mustProcess(t, e, "+5511999990003", "somos a Banda Furacão, tocamos forró")
	if !strings.Contains(reply, msgAskCity) {
		t.Fatalf("reply = %q, want city prompt (name and genre already known)", reply)
	}
}

func TestEngineExistingProfileGetsMenu(t *testing.T) {
	st := store.NewInMemoryStore()
	subject := "+5511999990004"
	if err := st.CreateProfile(&models.Profile{
		Name:  "Banda X",
		Genre: models.GenreRock,
		SocialLinks: models.SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: subject, Primary: true}},
	}); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})

	reply := mustProcess(t, e, subject, "oi")
	if !strings.Contains(reply, "Banda X") || !strings.Contains(reply, "1️⃣") {
		t.Fatalf("reply = %q, want personalized menu", reply)
	}
}

func TestEngineIncompleteProfileAsksForGaps(t *testing.T) {
	st := store.NewInMemoryStore()
	subject := "+5511999990005"
	if err := st.CreateProfile(&models.Profile{
		Name:            "Banda Y",
		Genre:           models.GenrePop,
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: subject, Primary: true}},
	}); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})

	reply := mustProcess(t, e, subject, "oi")
	if !strings.Contains(reply, "faltam alguns dados") || !strings.Contains(reply, "rede social") {
		t.Fatalf("reply = %q, want complete-your-profile prompt naming the link gap", reply)
	}

	// City comes before links in the fixed collection order.
	state, _ := st.LoadState(subject)
	if state.Stage != models.StateCollectingCity {
		t.Errorf("stage = %q, want collecting_city", state.Stage)
	}
	// Name must not be re-asked: it was prefilled.
	if state.Field(models.FieldName) != "Banda Y" {
		t.Errorf("prefilled name = %q", state.Field(models.FieldName))
	}
}

func TestEngineCollectionLoopGuard(t *testing.T) {
	st := store.NewInMemoryStore()
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})
	subject := "+5511999990006"

	mustProcess(t, e, subject, "oi") // welcome, now collecting name

	var reply string
	for i := 0; i < MaxCollectionAttempts; i++ {
		reply = mustProcess(t, e, subject, "x") // always too short
		if reply != msgNameTooShort {
			t.Fatalf("attempt %d reply = %q, want name-too-short", i+1, reply)
		}
	}

	reply = mustProcess(t, e, subject, "x")
	if reply != msgCeilingApology {
		t.Fatalf("reply past ceiling = %q, want ceiling apology", reply)
	}
	state, _ := st.LoadState(subject)
	if state.Stage != models.StateError {
		t.Errorf("stage = %q, want error", state.Stage)
	}
}

func TestEngineResetCommand(t *testing.T) {
	st := store.NewInMemoryStore()
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})
	subject := "+5511999990007"

	mustProcess(t, e, subject, "oi")
	mustProcess(t, e, subject, "Banda X")

	reply := mustProcess(t, e, subject, "/reiniciar")
	if reply != msgResetDone {
		t.Fatalf("reset reply = %q", reply)
	}
	state, _ := st.LoadState(subject)
	if state.Stage != models.StateCollectingName {
		t.Errorf("stage after reset = %q, want collecting_name", state.Stage)
	}
	if len(state.CollectedFields) != 0 {
		t.Errorf("collected fields survived reset: %v", state.CollectedFields)
	}

	// Reset is idempotent.
	if reply = mustProcess(t, e, subject, "/reiniciar"); reply != msgResetDone {
		t.Fatalf("second reset reply = %q", reply)
	}
}

func TestEngineStatusCommand(t *testing.T) {
	st := store.NewInMemoryStore()
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})
	subject := "+5511999990008"

	mustProcess(t, e, subject, "oi")
	mustProcess(t, e, subject, "Banda X")

	reply := mustProcess(t, e, subject, "/status")
	if !strings.Contains(reply, "Status do cadastro") || !strings.Contains(reply, "25%") {
		t.Fatalf("status reply = %q, want report with 25%% progress", reply)
	}
}

func TestEnginePersistFailureRetries(t *testing.T) {
	fs := &failingStore{InMemoryStore: store.NewInMemoryStore(), failCreate: true}
	e := testEngine(t, fs, &scriptedAnalyzer{}, &scriptedExtractor{})
	subject := "+5511999990009"

	mustProcess(t, e, subject, "oi")
	mustProcess(t, e, subject, "Banda X")
	mustProcess(t, e, subject, "rock")
	mustProcess(t, e, subject, "São Paulo")

	reply := mustProcess(t, e, subject, "@bandax")
	if reply != msgPersistApology {
		t.Fatalf("reply with failing store = %q, want persist apology", reply)
	}
	state, _ := fs.LoadState(subject)
	if state.Stage != models.StatePersisting {
		t.Fatalf("stage = %q, want persisting (retry position)", state.Stage)
	}

	// Collected data must survive the failure so the retry needs no re-entry.
	fs.failCreate = false
	reply = mustProcess(t, e, subject, "e agora?")
	if !strings.Contains(reply, "Cadastro salvo") {
		t.Fatalf("retry reply = %q, want confirmation", reply)
	}
	if p, _ := fs.GetProfileByContact(subject); p == nil || p.Name != "Banda X" {
		t.Fatalf("profile after retry = %+v", p)
	}
}

func TestEngineScheduleInquiryAndBookingConfirm(t *testing.T) {
	st := store.NewInMemoryStore()
	subject := "+5511999990010"
	if err := st.CreateProfile(&models.Profile{
		Name:  "Banda X",
		Genre: models.GenreRock,
		City:  "São Paulo",
		SocialLinks: models.SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: subject, Primary: true}},
	}); err != nil {
		t.Fatal(err)
	}
	an := &scriptedAnalyzer{results: []models.AnalysisResult{
		{Intent: models.IntentScheduleInquiry, Confidence: 0.9, Sentiment: "neutral", Urgency: "normal"},
		{Intent: models.IntentConfirmBooking, Confidence: 0.9, Sentiment: "positive", Urgency: "normal"},
	}}
	e := testEngine(t, st, an, &scriptedExtractor{})

	mustProcess(t, e, subject, "oi") // menu
	reply := mustProcess(t, e, subject, "tem data pra show?")
	if !strings.Contains(reply, "datas") && !strings.Contains(reply, "parceiras") {
		t.Fatalf("inquiry reply = %q, want dates or referral", reply)
	}

	reply = mustProcess(t, e, subject, "fechado, pode confirmar!")
	if !strings.Contains(reply, "Fechado!") {
		t.Fatalf("confirm reply = %q", reply)
	}

	leads := st.BookingLeads()
	if len(leads) != 1 {
		t.Fatalf("leads = %d, want 1", len(leads))
	}
	if leads[0].Origin != "direct" && leads[0].Origin != "referral" {
		t.Errorf("lead origin = %q", leads[0].Origin)
	}
	if leads[0].SubjectID != subject {
		t.Errorf("lead subject = %q", leads[0].SubjectID)
	}

	state, _ := st.LoadState(subject)
	if state.Stage != models.StateCompleted {
		t.Errorf("stage = %q, want completed", state.Stage)
	}
}

func TestEngineReferralOfferFromCompletedStage(t *testing.T) {
	st := store.NewInMemoryStore()
	subject := "+5511999990014"
	if err := st.CreateProfile(&models.Profile{
		Name:  "Banda X",
		Genre: models.GenreRock,
		City:  "São Paulo",
		SocialLinks: models.SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: subject, Primary: true}},
	}); err != nil {
		t.Fatal(err)
	}
	an := &scriptedAnalyzer{results: []models.AnalysisResult{
		{Intent: models.IntentFarewell, Confidence: 0.9, Sentiment: "positive", Urgency: "low"},
		{Intent: models.IntentConfirmBooking, Confidence: 0.9, Sentiment: "positive", Urgency: "normal"},
	}}
	e := testEngine(t, st, an, &scriptedExtractor{})

	mustProcess(t, e, subject, "oi")     // menu
	mustProcess(t, e, subject, "valeu!") // farewell, conversation completed

	// Full agenda: the referral offer must move the stage off completed so
	// the follow-up "sim" lands on the open offer instead of the menu.
	state, err := e.states.GetOrCreate(context.Background(), subject)
	if err != nil {
		t.Fatal(err)
	}
	if state.Stage != models.StateCompleted {
		t.Fatalf("stage before offer = %q, want completed", state.Stage)
	}
	reply := e.handlePartnerReferral(context.Background(), state)
	if !strings.Contains(reply, "parceiras") {
		t.Fatalf("referral reply = %q", reply)
	}
	if state.Stage != models.StatePartnerReferral {
		t.Fatalf("stage after offer = %q, want partner_referral", state.Stage)
	}

	reply = mustProcess(t, e, subject, "sim, pode indicar!")
	if !strings.Contains(reply, "Fechado") {
		t.Fatalf("confirm reply = %q", reply)
	}
	leads := st.BookingLeads()
	if len(leads) != 1 || leads[0].Origin != "referral" {
		t.Fatalf("leads = %+v, want one referral lead", leads)
	}
}

func TestEngineUnknownIntentEscalates(t *testing.T) {
	st := store.NewInMemoryStore()
	subject := "+5511999990011"
	if err := st.CreateProfile(&models.Profile{
		Name:  "Banda X",
		Genre: models.GenreRock,
		SocialLinks: models.SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: subject, Primary: true}},
	}); err != nil {
		t.Fatal(err)
	}
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})

	mustProcess(t, e, subject, "oi")
	reply := mustProcess(t, e, subject, "xyzzy plugh")
	if reply != msgNeedsHuman {
		t.Fatalf("reply = %q, want needs-human copy", reply)
	}
}

func TestEngineFarewell(t *testing.T) {
	st := store.NewInMemoryStore()
	subject := "+5511999990012"
	if err := st.CreateProfile(&models.Profile{
		Name:  "Banda X",
		Genre: models.GenreRock,
		SocialLinks: models.SocialLinks{
			Instagram: "https://instagram.com/bandax",
		},
		ContactChannels: []models.ContactChannel{{Kind: "whatsapp", Value: subject, Primary: true}},
	}); err != nil {
		t.Fatal(err)
	}
	an := &scriptedAnalyzer{results: []models.AnalysisResult{
		{Intent: models.IntentFarewell, Confidence: 0.9, Sentiment: "positive", Urgency: "low"},
	}}
	e := testEngine(t, st, an, &scriptedExtractor{})

	mustProcess(t, e, subject, "oi")
	reply := mustProcess(t, e, subject, "valeu, até mais!")
	if reply != msgFarewellWithProfile {
		t.Fatalf("farewell reply = %q", reply)
	}
	state, _ := st.LoadState(subject)
	if state.Stage != models.StateCompleted {
		t.Errorf("stage = %q, want completed", state.Stage)
	}
}

func TestEngineInteractionLog(t *testing.T) {
	st := store.NewInMemoryStore()
	e := testEngine(t, st, &scriptedAnalyzer{}, &scriptedExtractor{})

	mustProcess(t, e, "+5511999990013", "oi")

	n, err := st.CountInteractionsSince(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 { // inbound + outbound
		t.Errorf("interactions = %d, want 2", n)
	}
}
