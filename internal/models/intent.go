// Package models defines intent classification types shared across modules.
package models

import "strings"

// Intent is the closed set of message intents the analyzer can produce.
type Intent string

const (
	IntentInitialRegistration  Intent = "initial_registration"
	IntentRegistrationFollowup Intent = "registration_followup"
	IntentScheduleInquiry      Intent = "schedule_inquiry"
	IntentUpdateData           Intent = "update_data"
	IntentVenueInfo            Intent = "venue_info"
	IntentGreeting             Intent = "greeting"
	IntentFarewell             Intent = "farewell"
	IntentGeneralQuestion      Intent = "general_question"
	IntentFeedback             Intent = "feedback"
	IntentConfirmBooking       Intent = "confirm_booking"
	IntentCancel               Intent = "cancel"
	IntentUnknown              Intent = "unknown"
)

// IsValidIntent checks if the given intent is a member of the closed set.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentInitialRegistration, IntentRegistrationFollowup, IntentScheduleInquiry,
		IntentUpdateData, IntentVenueInfo, IntentGreeting, IntentFarewell,
		IntentGeneralQuestion, IntentFeedback, IntentConfirmBooking, IntentCancel,
		IntentUnknown:
		return true
	default:
		return false
	}
}

// ParseIntent maps a raw string (typically from an LLM reply) onto the closed
// set, defaulting to IntentUnknown.
func ParseIntent(raw string) Intent {
	i := Intent(strings.ToLower(strings.TrimSpace(raw)))
	if IsValidIntent(i) {
		return i
	}
	return IntentUnknown
}

// DefaultConfidence backfills a heuristic confidence when the model leaves it
// unset, keyed by intent category.
func DefaultConfidence(i Intent) float64 {
	switch i {
	case IntentGreeting, IntentFarewell:
		return 0.9
	case IntentInitialRegistration, IntentRegistrationFollowup, IntentScheduleInquiry:
		return 0.8
	case IntentUnknown:
		return 0.0
	default:
		return 0.7
	}
}

// ExtractedFields holds partial profile-shaped fields pulled from a message.
// Zero values mean "not present in this message".
type ExtractedFields struct {
	Name            string `json:"name,omitempty"`
	City            string `json:"city,omitempty"`
	Genre           string `json:"genre,omitempty"` // free text, mapped to the enum at validation
	Instagram       string `json:"instagram,omitempty"`
	YouTube         string `json:"youtube,omitempty"`
	Spotify         string `json:"spotify,omitempty"`
	SoundCloud      string `json:"soundcloud,omitempty"`
	Bandcamp        string `json:"bandcamp,omitempty"`
	Bio             string `json:"bio,omitempty"`
	YearsExperience int    `json:"years_experience,omitempty"`
}

// IsEmpty reports whether no field was extracted.
func (e ExtractedFields) IsEmpty() bool {
	return e == ExtractedFields{}
}

// CountNonEmpty returns the number of populated fields; used for the
// extraction confidence score.
func (e ExtractedFields) CountNonEmpty() int {
	n := 0
	for _, s := range []string{
		e.Name, e.City, e.Genre, e.Instagram, e.YouTube,
		e.Spotify, e.SoundCloud, e.Bandcamp, e.Bio,
	} {
		if s != "" {
			n++
		}
	}
	if e.YearsExperience > 0 {
		n++
	}
	return n
}

// AnalysisResult is the structured classification produced per inbound
// message. It is ephemeral: consumed within the same flow invocation,
// never persisted.
type AnalysisResult struct {
	Intent          Intent          `json:"intent"`
	SecondaryIntent Intent          `json:"secondary_intent,omitempty"`
	Entities        ExtractedFields `json:"entities"`
	Sentiment       string          `json:"sentiment"` // "positive", "neutral", "negative"
	Urgency         string          `json:"urgency"`   // "low", "normal", "high"
	Confidence      float64         `json:"confidence"`
	Keywords        []string        `json:"keywords,omitempty"`
	NeedsHuman      bool            `json:"needs_human"`
	Summary         string          `json:"summary,omitempty"`
}

// SafeDefaultAnalysis is the result returned when every provider is exhausted:
// unknown intent, neutral sentiment, flagged for a human, zero confidence.
func SafeDefaultAnalysis(message string) AnalysisResult {
	return AnalysisResult{
		Intent:     IntentUnknown,
		Sentiment:  "neutral",
		Urgency:    "normal",
		Confidence: 0.0,
		NeedsHuman: true,
		Summary:    summarize(IntentUnknown, message),
	}
}

// summarize synthesizes a short summary from intent plus a message prefix.
func summarize(i Intent, message string) string {
	prefix := strings.TrimSpace(message)
	r := []rune(prefix)
	if len(r) > 60 {
		prefix = string(r[:60]) + "..."
	}
	return string(i) + ": " + prefix
}

// SummaryFor exposes the summary synthesis for analyzers backfilling a
// missing model-provided summary.
func SummaryFor(i Intent, message string) string {
	return summarize(i, message)
}
