package flow

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/PalcoLivre/StageLink/internal/extract"
	"github.com/PalcoLivre/StageLink/internal/models"
	"github.com/PalcoLivre/StageLink/internal/store"
	"github.com/PalcoLivre/StageLink/internal/util"
)

// Loop-guard ceilings. The simple collection path tolerates more passes than
// the LLM-driven router before forcing a terminal response.
const (
	MaxCollectionAttempts = 10
	MaxRouterAttempts     = 3
)

// Slash commands recognized before any flow dispatch.
const (
	CommandReset  = "/reiniciar"
	CommandStatus = "/status"
)

// Analyzer classifies one inbound message. Implemented by intent.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, message string, history []models.MessageLine, collected map[string]string, hasProfile bool) models.AnalysisResult
}

// Extractor pulls partial profile fields from one message. Implemented by
// extract.Extractor.
type Extractor interface {
	Extract(ctx context.Context, message string, history []models.MessageLine) extract.Result
}

// Engine drives the conversation state machine: it routes each inbound
// message by the subject's current stage, calls the analyzer and extractor as
// needed, mutates the conversation state, and produces the outbound reply.
type Engine struct {
	states    StateManager
	store     store.Store
	analyzer  Analyzer
	extractor Extractor
	venues    []Venue
	rng       *rand.Rand
	tenantID  string
}

// EngineOpts holds optional engine configuration.
type EngineOpts struct {
	Venues   []Venue
	Rand     *rand.Rand
	TenantID string
}

// EngineOption configures the engine.
type EngineOption func(*EngineOpts)

// WithPartnerVenues replaces the default partner directory.
func WithPartnerVenues(venues []Venue) EngineOption {
	return func(o *EngineOpts) { o.Venues = venues }
}

// WithRand injects the random source used by the mocked availability query.
func WithRand(rng *rand.Rand) EngineOption {
	return func(o *EngineOpts) { o.Rand = rng }
}

// WithTenantID stamps created profiles with a tenant.
func WithTenantID(id string) EngineOption {
	return func(o *EngineOpts) { o.TenantID = id }
}

// NewEngine builds the flow engine. Process-scoped mutable state (the state
// cache, the provider pool behind the analyzer/extractor) is injected, never
// global.
func NewEngine(states StateManager, st store.Store, analyzer Analyzer, extractor Extractor, options ...EngineOption) (*Engine, error) {
	if err := ValidateTransitions(); err != nil {
		return nil, err
	}
	opts := EngineOpts{
		Venues: defaultPartnerVenues,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range options {
		opt(&opts)
	}
	return &Engine{
		states:    states,
		store:     st,
		analyzer:  analyzer,
		extractor: extractor,
		venues:    opts.Venues,
		rng:       opts.Rand,
		tenantID:  opts.TenantID,
	}, nil
}

// Process runs the full pipeline for one inbound message and returns the
// outbound reply text. Recoverable failures produce user-facing fallback
// copy; the error return is for logging only and never carries raw provider
// or store errors into the reply.
func (e *Engine) Process(ctx context.Context, subjectID, message string) (string, error) {
	state, err := e.states.GetOrCreate(ctx, subjectID)
	if err != nil {
		slog.Error("Engine failed to load state", "error", err, "subjectID", subjectID)
		return msgTechnicalDifficulty, err
	}

	trimmed := strings.TrimSpace(message)
	if strings.HasPrefix(trimmed, "/") {
		return e.handleCommand(ctx, state, trimmed)
	}

	e.logInteraction(state, models.DirectionInbound, message)
	state.AppendMessage("user", message)

	reply := e.route(ctx, state, trimmed)

	state.AppendMessage("assistant", reply)
	if err := e.states.Save(ctx, state); err != nil {
		// The reply already reflects the mutation; losing the write is
		// logged, the next message re-derives from the durable copy.
		slog.Error("Engine failed to persist state", "error", err, "subjectID", subjectID)
	}
	e.logInteraction(state, models.DirectionOutbound, reply)

	slog.Debug("Engine processed message", "subjectID", subjectID, "stage", state.Stage)
	return Humanize(reply), nil
}

// route dispatches by the current stage.
func (e *Engine) route(ctx context.Context, state *models.ConversationState, message string) string {
	switch state.Stage {
	case models.StateStart:
		return e.handleStart(ctx, state, message)
	case models.StateCollectingName, models.StateCollectingGenre,
		models.StateCollectingCity, models.StateCollectingLinks:
		return e.handleCollection(ctx, state, message)
	case models.StateValidating, models.StatePersisting:
		return e.validateAndPersist(ctx, state)
	case models.StateError:
		// The error stage absorbs one message and re-enters the flow.
		e.transition(state, models.StateStart)
		return e.handleStart(ctx, state, message)
	default:
		return e.routeByIntent(ctx, state, message)
	}
}

// handleCommand services /reiniciar and /status before any flow dispatch.
func (e *Engine) handleCommand(ctx context.Context, state *models.ConversationState, command string) (string, error) {
	switch strings.ToLower(strings.Fields(command)[0]) {
	case CommandReset:
		fresh, err := e.states.Reset(ctx, state.SubjectID)
		if err != nil {
			slog.Error("Engine reset failed", "error", err, "subjectID", state.SubjectID)
			return msgTechnicalDifficulty, err
		}
		e.transition(fresh, models.StateCollectingName)
		if err := e.states.Save(ctx, fresh); err != nil {
			slog.Error("Engine failed to save reset state", "error", err, "subjectID", state.SubjectID)
		}
		return msgResetDone, nil
	case CommandStatus:
		return statusReport(state), nil
	default:
		return msgNeedsHuman, nil
	}
}

// handleStart services the first message of a conversation: an existing
// viable profile goes straight to the menu, an incomplete one to the
// complete-your-profile sub-flow, and a new subject through an extraction
// pass that may skip redundant collection prompts.
func (e *Engine) handleStart(ctx context.Context, state *models.ConversationState, message string) string {
	profile, err := e.store.GetProfileByContact(state.SubjectID)
	if err != nil {
		slog.Error("Engine profile lookup failed", "error", err, "subjectID", state.SubjectID)
		return msgTechnicalDifficulty
	}

	if profile != nil {
		e.prefillFromProfile(state, profile)
		state.LinkedProfileID = profile.ID
		if profile.IsMinimumViable() {
			e.transition(state, models.StateMainMenu)
			return menuFor(profile.Name)
		}
		missing := missingFieldNames(state)
		next := nextMissingStage(state)
		e.transition(state, next)
		return missingFieldsPrompt(profile.Name, missing) + "\n\n" + askFor(next)
	}

	// New subject: run the first message through the extractor before the
	// welcome, so a rich introduction skips already-answered prompts.
	res := e.extractor.Extract(ctx, message, nil)
	mergeExtracted(state, res.Fields)

	if !state.HasField(models.FieldName) {
		e.transition(state, models.StateCollectingName)
		return msgWelcome
	}

	next := nextMissingStage(state)
	if next == "" {
		return e.validateAndPersist(ctx, state)
	}
	e.transition(state, next)
	return "Que bom te conhecer, " + state.Field(models.FieldName) + "! 🎵 " + askFor(next)
}

// handleCollection services the simple per-field states: direct assignment
// with light trimming and validation, no LLM call.
func (e *Engine) handleCollection(ctx context.Context, state *models.ConversationState, message string) string {
	state.CollectionAttempts++
	if state.CollectionAttempts > MaxCollectionAttempts {
		return e.forceTerminal(ctx, state)
	}

	switch state.Stage {
	case models.StateCollectingName:
		name := strings.TrimSpace(message)
		if len([]rune(name)) < models.MinProfileNameLength {
			return msgNameTooShort
		}
		state.SetField(models.FieldName, util.TitleCase(name))
	case models.StateCollectingGenre:
		state.SetField(models.FieldGenre, strings.ToLower(strings.TrimSpace(message)))
	case models.StateCollectingCity:
		state.SetField(models.FieldCity, util.TitleCase(strings.TrimSpace(message)))
	case models.StateCollectingLinks:
		platform, url, ok := parseLinkInput(message)
		if !ok {
			return msgLinkInvalid
		}
		state.SetField(platformField(platform), url)
	}

	next := nextMissingStage(state)
	if next == "" {
		return e.validateAndPersist(ctx, state)
	}
	e.transition(state, next)
	return askFor(next)
}

// forceTerminal is the loop-guard exit: validate whatever exists, or stop
// with the fixed apology.
func (e *Engine) forceTerminal(ctx context.Context, state *models.ConversationState) string {
	if buildProfile(state, e.tenantID).IsMinimumViable() {
		return e.validateAndPersist(ctx, state)
	}
	e.transition(state, models.StateError)
	return msgCeilingApology
}

// transition moves to the target stage when the edge is declared, logging
// and refusing otherwise so the stage invariant holds.
func (e *Engine) transition(state *models.ConversationState, to models.StateType) {
	if !canTransition(state.Stage, to) {
		slog.Warn("Engine refused undeclared transition", "from", state.Stage, "to", to, "subjectID", state.SubjectID)
		return
	}
	state.Stage = to
	state.UpdatedAt = time.Now()
}

// logInteraction appends to the interaction log; failures are non-fatal.
func (e *Engine) logInteraction(state *models.ConversationState, dir models.InteractionDirection, text string) {
	err := e.store.AddInteraction(models.Interaction{
		SubjectID: state.SubjectID,
		ProfileID: state.LinkedProfileID,
		Direction: dir,
		Text:      text,
	})
	if err != nil {
		slog.Warn("Engine failed to log interaction", "error", err, "subjectID", state.SubjectID)
	}
}

// prefillFromProfile seeds collected fields from a persisted profile so the
// complete-your-profile sub-flow only asks for the gaps.
func (e *Engine) prefillFromProfile(state *models.ConversationState, p *models.Profile) {
	state.SetField(models.FieldName, p.Name)
	state.SetField(models.FieldCity, p.City)
	if p.Genre != "" {
		state.SetField(models.FieldGenre, strings.ToLower(string(p.Genre)))
	}
	state.SetField(models.FieldInstagram, p.SocialLinks.Instagram)
	state.SetField(models.FieldYouTube, p.SocialLinks.YouTube)
	state.SetField(models.FieldSpotify, p.SocialLinks.Spotify)
	state.SetField(models.FieldSoundCloud, p.SocialLinks.SoundCloud)
	state.SetField(models.FieldBandcamp, p.SocialLinks.Bandcamp)
}

// mergeExtracted folds extracted entities into the collected fields with the
// fixed normalization: genre lower-cased and trimmed, name and city
// title-cased and trimmed, links as produced by the extractor.
func mergeExtracted(state *models.ConversationState, fields models.ExtractedFields) {
	if fields.Name != "" {
		state.SetField(models.FieldName, util.TitleCase(strings.TrimSpace(fields.Name)))
	}
	if fields.City != "" {
		state.SetField(models.FieldCity, util.TitleCase(strings.TrimSpace(fields.City)))
	}
	if fields.Genre != "" {
		state.SetField(models.FieldGenre, strings.ToLower(strings.TrimSpace(fields.Genre)))
	}
	state.SetField(models.FieldInstagram, fields.Instagram)
	state.SetField(models.FieldYouTube, fields.YouTube)
	state.SetField(models.FieldSpotify, fields.Spotify)
	state.SetField(models.FieldSoundCloud, fields.SoundCloud)
	state.SetField(models.FieldBandcamp, fields.Bandcamp)
	if fields.Bio != "" {
		state.SetField(models.FieldBio, strings.TrimSpace(fields.Bio))
	}
}

// nextMissingStage returns the collection stage for the first gap in the
// fixed priority order name -> genre -> city -> links, or "" when all are
// satisfied.
func nextMissingStage(state *models.ConversationState) models.StateType {
	switch {
	case !state.HasField(models.FieldName):
		return models.StateCollectingName
	case !state.HasField(models.FieldGenre):
		return models.StateCollectingGenre
	case !state.HasField(models.FieldCity):
		return models.StateCollectingCity
	case !state.HasAnyLink():
		return models.StateCollectingLinks
	default:
		return ""
	}
}

// missingFieldNames lists human-readable names of the gaps, for the
// complete-your-profile prompt.
func missingFieldNames(state *models.ConversationState) []string {
	var missing []string
	if !state.HasField(models.FieldName) {
		missing = append(missing, "nome")
	}
	if !state.HasField(models.FieldGenre) {
		missing = append(missing, "estilo musical")
	}
	if !state.HasField(models.FieldCity) {
		missing = append(missing, "cidade")
	}
	if !state.HasAnyLink() {
		missing = append(missing, "rede social")
	}
	return missing
}

// askFor returns the collection prompt for a stage.
func askFor(stage models.StateType) string {
	switch stage {
	case models.StateCollectingName:
		return msgAskName
	case models.StateCollectingGenre:
		return msgAskGenre
	case models.StateCollectingCity:
		return msgAskCity
	case models.StateCollectingLinks:
		return msgAskLinks
	default:
		return ""
	}
}

// parseLinkInput interprets the links-step message: @handle goes to
// Instagram, a platform keyword synthesizes that platform's URL, and a bare
// URL is sniffed by domain (defaulting to Instagram).
func parseLinkInput(message string) (models.SocialPlatform, string, bool) {
	lower := strings.ToLower(message)

	for _, tok := range strings.Fields(message) {
		tok = strings.Trim(tok, ",.!?()")
		if strings.HasPrefix(tok, "@") {
			return models.PlatformInstagram, extract.NormalizeLink(models.PlatformInstagram, tok), true
		}
		if strings.Contains(tok, ".") && len(tok) > 3 {
			platform := extract.SniffPlatform(tok)
			return platform, extract.NormalizeLink(platform, tok), true
		}
	}

	// "youtube: minhabanda" style with a bare handle after the keyword.
	for _, entry := range []struct {
		keyword  string
		platform models.SocialPlatform
	}{
		{"youtube", models.PlatformYouTube},
		{"spotify", models.PlatformSpotify},
		{"soundcloud", models.PlatformSoundCloud},
		{"instagram", models.PlatformInstagram},
		{"insta", models.PlatformInstagram},
	} {
		idx := strings.Index(lower, entry.keyword)
		if idx < 0 {
			continue
		}
		rest := strings.Trim(message[idx+len(entry.keyword):], " :-")
		if parts := strings.Fields(rest); len(parts) > 0 {
			handle := strings.Trim(parts[0], ",.!?")
			if handle != "" {
				return entry.platform, extract.NormalizeLink(entry.platform, handle), true
			}
		}
	}

	return "", "", false
}

// platformField maps a platform to its collected-field key.
func platformField(p models.SocialPlatform) string {
	switch p {
	case models.PlatformYouTube:
		return models.FieldYouTube
	case models.PlatformSpotify:
		return models.FieldSpotify
	case models.PlatformSoundCloud:
		return models.FieldSoundCloud
	case models.PlatformBandcamp:
		return models.FieldBandcamp
	default:
		return models.FieldInstagram
	}
}
