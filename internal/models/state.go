// Package models defines conversation state structures for StageLink flows.
package models

import (
	"encoding/json"
	"time"
)

// StateType represents a named position in the flow engine's state set.
type StateType string

// State constants for the intake flow. The transition table in internal/flow
// is defined over exactly this set.
const (
	StateStart           StateType = "start"
	StateCollectingName  StateType = "collecting_name"
	StateCollectingGenre StateType = "collecting_genre"
	StateCollectingCity  StateType = "collecting_city"
	StateCollectingLinks StateType = "collecting_links"
	StateValidating      StateType = "validating"
	StatePersisting      StateType = "persisting"
	StateMainMenu        StateType = "main_menu"
	StateScheduleInquiry StateType = "schedule_inquiry"
	StatePartnerReferral StateType = "partner_referral"
	StateInfo            StateType = "info"
	StateBookingConfirm  StateType = "booking_confirm"
	StateCompleted       StateType = "completed"
	StateError           StateType = "error"
)

// IsValidState checks membership in the declared step set.
func IsValidState(s StateType) bool {
	switch s {
	case StateStart, StateCollectingName, StateCollectingGenre, StateCollectingCity,
		StateCollectingLinks, StateValidating, StatePersisting, StateMainMenu,
		StateScheduleInquiry, StatePartnerReferral, StateInfo, StateBookingConfirm,
		StateCompleted, StateError:
		return true
	default:
		return false
	}
}

// Collected field keys. CollectedFields values are always scalar strings,
// never nested structures.
const (
	FieldName            = "name"
	FieldCity            = "city"
	FieldGenre           = "genre"
	FieldBio             = "bio"
	FieldYearsExperience = "years_experience"
	FieldInstagram       = "instagram"
	FieldYouTube         = "youtube"
	FieldSpotify         = "spotify"
	FieldSoundCloud      = "soundcloud"
	FieldBandcamp        = "bandcamp"
)

// MaxRecentMessages bounds the rolling history kept as LLM context.
const MaxRecentMessages = 12

// MessageLine is one exchanged line in the rolling history.
type MessageLine struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per-subject record of accumulated profile fields,
// current stage, retry counters, and short rolling message history.
type ConversationState struct {
	SubjectID          string            `json:"subject_id"`
	Stage              StateType         `json:"stage"`
	CollectedFields    map[string]string `json:"collected_fields"`
	CollectionAttempts int               `json:"collection_attempts"`
	RecentMessages     []MessageLine     `json:"recent_messages,omitempty"`
	LinkedProfileID    string            `json:"linked_profile_id,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// NewConversationState returns a fresh state at the start stage.
func NewConversationState(subjectID string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		SubjectID:       subjectID,
		Stage:           StateStart,
		CollectedFields: make(map[string]string),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SetField records a collected field value, dropping empty values.
func (c *ConversationState) SetField(key, value string) {
	if value == "" {
		return
	}
	if c.CollectedFields == nil {
		c.CollectedFields = make(map[string]string)
	}
	c.CollectedFields[key] = value
	c.UpdatedAt = time.Now()
}

// Field returns the collected value for key, or "" when absent.
func (c *ConversationState) Field(key string) string {
	return c.CollectedFields[key]
}

// HasField reports whether a non-empty value was collected for key.
func (c *ConversationState) HasField(key string) bool {
	return c.CollectedFields[key] != ""
}

// HasAnyLink reports whether at least one social link field is set.
func (c *ConversationState) HasAnyLink() bool {
	for _, k := range []string{FieldInstagram, FieldYouTube, FieldSpotify, FieldSoundCloud, FieldBandcamp} {
		if c.HasField(k) {
			return true
		}
	}
	return false
}

// AppendMessage pushes one line onto the rolling history, evicting the oldest
// entries past MaxRecentMessages.
func (c *ConversationState) AppendMessage(role, text string) {
	c.RecentMessages = append(c.RecentMessages, MessageLine{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
	if len(c.RecentMessages) > MaxRecentMessages {
		c.RecentMessages = c.RecentMessages[len(c.RecentMessages)-MaxRecentMessages:]
	}
	c.UpdatedAt = time.Now()
}

// Progress reports registration completion as a fraction of the four core
// fields (name, genre, city, at least one link).
func (c *ConversationState) Progress() float64 {
	filled := 0
	if c.HasField(FieldName) {
		filled++
	}
	if c.HasField(FieldGenre) {
		filled++
	}
	if c.HasField(FieldCity) {
		filled++
	}
	if c.HasAnyLink() {
		filled++
	}
	return float64(filled) / 4.0
}

// ToJSON serializes the state for durable storage.
func (c *ConversationState) ToJSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes a stored state.
func (c *ConversationState) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), c)
}
