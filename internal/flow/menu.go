package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// Scratch keys for the menu-driven sub-flows, kept in collected fields so the
// booking origin survives process restarts.
const (
	fieldBookingOrigin = "booking_origin"
	fieldBookingVenue  = "booking_venue"
)

// routeByIntent is the LLM-driven router used for the menu and auxiliary
// states: one analyzer pass per message, entity merge regardless of stage,
// then dispatch by intent. Tolerates out-of-order field delivery because the
// merge happens before any routing.
func (e *Engine) routeByIntent(ctx context.Context, state *models.ConversationState, message string) string {
	analysis := e.analyzer.Analyze(ctx, message, state.RecentMessages, state.CollectedFields, state.LinkedProfileID != "")
	mergeExtracted(state, analysis.Entities)
	slog.Debug("Engine routed by intent", "subjectID", state.SubjectID, "intent", analysis.Intent, "confidence", analysis.Confidence)

	// Loop guard for the LLM-driven registration path only; navigating the
	// menu after registration is not an unproductive loop.
	if state.LinkedProfileID == "" {
		state.CollectionAttempts++
		if state.CollectionAttempts > MaxRouterAttempts {
			return e.forceTerminal(ctx, state)
		}
	}

	// A confirmation arriving while an offer is open closes the booking
	// regardless of how the classifier labels the phrasing.
	if state.Stage == models.StateScheduleInquiry || state.Stage == models.StatePartnerReferral {
		if analysis.Intent == models.IntentConfirmBooking {
			return e.handleBookingConfirm(ctx, state)
		}
		if analysis.Intent == models.IntentCancel {
			e.transition(state, models.StateMainMenu)
			return msgCancelled + "\n\n" + menuFor(state.Field(models.FieldName))
		}
	}

	switch analysis.Intent {
	case models.IntentGreeting:
		e.transition(state, models.StateMainMenu)
		return menuFor(state.Field(models.FieldName))

	case models.IntentScheduleInquiry, models.IntentConfirmBooking:
		if analysis.Intent == models.IntentConfirmBooking {
			return e.handleBookingConfirm(ctx, state)
		}
		return e.handleScheduleInquiry(ctx, state)

	case models.IntentInitialRegistration, models.IntentRegistrationFollowup:
		next := nextMissingStage(state)
		if next == "" {
			return e.validateAndPersist(ctx, state)
		}
		e.transition(state, models.StateMainMenu)
		return askFor(next)

	case models.IntentUpdateData:
		return e.handleUpdateData(ctx, state, analysis.Entities)

	case models.IntentVenueInfo, models.IntentGeneralQuestion:
		e.transition(state, models.StateInfo)
		return msgVenueInfo

	case models.IntentFarewell:
		e.transition(state, models.StateCompleted)
		if state.LinkedProfileID != "" {
			return msgFarewellWithProfile
		}
		return msgFarewellNoProfile

	case models.IntentFeedback:
		return msgFeedbackThanks

	case models.IntentCancel:
		e.transition(state, models.StateCompleted)
		return msgCancelled

	default:
		if analysis.NeedsHuman {
			return msgNeedsHuman
		}
		e.transition(state, models.StateMainMenu)
		return menuFor(state.Field(models.FieldName))
	}
}

// handleScheduleInquiry returns mocked available dates; with none available
// it routes to the partner referral step instead of a dead end.
func (e *Engine) handleScheduleInquiry(ctx context.Context, state *models.ConversationState) string {
	dates := mockAvailability(e.rng)
	if len(dates) > 0 {
		e.transition(state, models.StateScheduleInquiry)
		state.SetField(fieldBookingOrigin, "direct")
		var b strings.Builder
		b.WriteString("Tenho essas datas abertas por aqui: 🗓️\n\n")
		for _, d := range dates {
			fmt.Fprintf(&b, "• %s\n", d)
		}
		b.WriteString("\nAlguma funciona pra vocês? É só confirmar!")
		return b.String()
	}
	return e.handlePartnerReferral(ctx, state)
}

// handlePartnerReferral filters the partner directory by genre overlap then
// city and offers the referral.
func (e *Engine) handlePartnerReferral(ctx context.Context, state *models.ConversationState) string {
	e.transition(state, models.StatePartnerReferral)
	state.SetField(fieldBookingOrigin, "referral")

	genre := models.ParseGenre(state.Field(models.FieldGenre))
	matches := matchVenues(e.venues, genre, state.Field(models.FieldCity), e.rng, 3)
	if len(matches) > 0 {
		state.SetField(fieldBookingVenue, matches[0].Name)
	}

	var b strings.Builder
	b.WriteString("Nossa agenda tá fechada no momento. 😔 Mas tenho casas parceiras que combinam com o som de vocês:\n\n")
	for _, v := range matches {
		fmt.Fprintf(&b, "• %s (%s)\n", v.Name, v.City)
	}
	b.WriteString("\nQuer que eu indique vocês pra alguma delas?")
	return b.String()
}

// handleBookingConfirm logs the lead and closes with copy tailored to how
// the subject arrived: direct availability or partner referral.
func (e *Engine) handleBookingConfirm(ctx context.Context, state *models.ConversationState) string {
	origin := state.Field(fieldBookingOrigin)
	if origin == "" {
		origin = "direct"
	}
	e.transition(state, models.StateBookingConfirm)

	lead := models.BookingLead{
		ProfileID: state.LinkedProfileID,
		SubjectID: state.SubjectID,
		Venue:     state.Field(fieldBookingVenue),
		Origin:    origin,
	}
	if err := e.store.AddBookingLead(lead); err != nil {
		slog.Error("Engine failed to record booking lead", "error", err, "subjectID", state.SubjectID)
	}

	e.transition(state, models.StateCompleted)
	if origin == "referral" {
		return "Fechado! 🎉 Vou passar o contato de vocês pra casa parceira e eles falam direto com você. Boa sorte no show!"
	}
	return "Fechado! 🎉 Reservei a data por aqui e a produção entra em contato pra acertar os detalhes. Até o show! 🤘"
}

// handleUpdateData merges the entities the update mentions into the linked
// profile and persists.
func (e *Engine) handleUpdateData(ctx context.Context, state *models.ConversationState, entities models.ExtractedFields) string {
	if entities.IsEmpty() {
		e.transition(state, models.StateMainMenu)
		return "Claro! Me fala o que você quer atualizar: nome, estilo, cidade ou links?"
	}
	if state.LinkedProfileID == "" {
		next := nextMissingStage(state)
		if next == "" {
			return e.validateAndPersist(ctx, state)
		}
		e.transition(state, models.StateMainMenu)
		return askFor(next)
	}

	p := buildProfile(state, e.tenantID)
	if err := e.store.UpdateProfile(p); err != nil {
		slog.Error("Engine profile update failed", "error", err, "subjectID", state.SubjectID)
		return msgPersistApology
	}
	e.transition(state, models.StateMainMenu)
	return "Atualizado! ✅\n\n" + confirmationSummary(p)
}
