package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
	"github.com/PalcoLivre/StageLink/internal/util"
)

// buildProfile constructs a Profile from the collected fields: genre mapped
// onto the closed enum, contact channel built from the originating number.
func buildProfile(state *models.ConversationState, tenantID string) *models.Profile {
	p := &models.Profile{
		ID:       state.LinkedProfileID,
		Name:     util.TitleCase(strings.TrimSpace(state.Field(models.FieldName))),
		City:     util.TitleCase(strings.TrimSpace(state.Field(models.FieldCity))),
		Genre:    models.ParseGenre(state.Field(models.FieldGenre)),
		Bio:      state.Field(models.FieldBio),
		TenantID: tenantID,
		ContactChannels: []models.ContactChannel{
			{Kind: "whatsapp", Value: state.SubjectID, Primary: true},
		},
	}
	if state.Field(models.FieldGenre) == "" {
		p.Genre = ""
	}
	p.SocialLinks = models.SocialLinks{
		Instagram:  state.Field(models.FieldInstagram),
		YouTube:    state.Field(models.FieldYouTube),
		Spotify:    state.Field(models.FieldSpotify),
		SoundCloud: state.Field(models.FieldSoundCloud),
		Bandcamp:   state.Field(models.FieldBandcamp),
	}
	return p
}

// validateAndPersist drives validating -> persisting. Validation failures
// route back to the correctable collection stage; persistence failures leave
// the stage at persisting so the next message naturally retries the insert
// instead of re-collecting data.
func (e *Engine) validateAndPersist(ctx context.Context, state *models.ConversationState) string {
	e.transition(state, models.StateValidating)

	p := buildProfile(state, e.tenantID)
	if !p.IsMinimumViable() {
		next := nextMissingStage(state)
		if next == "" {
			next = models.StateCollectingLinks
		}
		e.transition(state, next)
		return "Ainda faltam alguns dados (" + strings.Join(missingFieldNames(state), ", ") + "). " + askFor(next)
	}
	if err := p.Validate(); err != nil {
		slog.Warn("Engine profile validation failed", "error", err, "subjectID", state.SubjectID)
		e.transition(state, correctableStage(err))
		return clarifyMessage(err)
	}

	e.transition(state, models.StatePersisting)

	var err error
	if state.LinkedProfileID != "" {
		err = e.store.UpdateProfile(p)
	} else {
		err = e.store.CreateProfile(p)
	}
	if err != nil {
		// Stage stays at persisting: the identical next message retries.
		slog.Error("Engine persistence failed", "error", err, "subjectID", state.SubjectID)
		return msgPersistApology
	}

	state.LinkedProfileID = p.ID
	state.CollectionAttempts = 0
	e.transition(state, models.StateMainMenu)
	slog.Info("Engine persisted profile", "subjectID", state.SubjectID, "profileID", p.ID, "genre", p.Genre)
	return confirmationSummary(p)
}

// correctableStage maps a validation error back to the collection stage that
// can fix it.
func correctableStage(err error) models.StateType {
	switch err {
	case models.ErrProfileNameMissing, models.ErrProfileNameTooShort, models.ErrProfileNameTooLong:
		return models.StateCollectingName
	case models.ErrProfileGenreMissing:
		return models.StateCollectingGenre
	default:
		return models.StateCollectingLinks
	}
}
