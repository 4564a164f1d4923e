// Package models defines the core data structures for StageLink.
//
// It includes types for artist profiles, conversation state, and intent
// analysis results, which are shared across modules.
package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Genre is the closed set of musical genres an artist profile can carry.
type Genre string

const (
	GenreRock       Genre = "ROCK"
	GenrePop        Genre = "POP"
	GenreMPB        Genre = "MPB"
	GenreSertanejo  Genre = "SERTANEJO"
	GenreForro      Genre = "FORRO"
	GenreRap        Genre = "RAP"
	GenreFunk       Genre = "FUNK"
	GenreEletronica Genre = "ELETRONICA"
	GenreGospel     Genre = "GOSPEL"
	GenreReggae     Genre = "REGGAE"
	GenreJazz       Genre = "JAZZ"
	// GenreOther is the catch-all bucket for anything the synonym table misses.
	GenreOther Genre = "OTHER"
)

// DefaultGenreSynonyms maps free-text genre strings onto the closed Genre set.
// The table is configuration data: callers may extend or replace it, the flow
// engine only guarantees that the result of mapping is a member of the enum.
var DefaultGenreSynonyms = map[string]Genre{
	"samba":      GenreMPB,
	"pagode":     GenreMPB,
	"bossa nova": GenreMPB,
	"bossa":      GenreMPB,
	"hip hop":    GenreRap,
	"hip-hop":    GenreRap,
	"trap":       GenreRap,
	"country":    GenreSertanejo,
	"techno":     GenreEletronica,
	"house":      GenreEletronica,
	"edm":        GenreEletronica,
	"eletronico": GenreEletronica,
	"eletrônico": GenreEletronica,
	"eletrônica": GenreEletronica,
	"forró":      GenreForro,
	"indie":      GenreRock,
	"metal":      GenreRock,
	"axe":        GenrePop,
	"axé":        GenrePop,
}

// ParseGenre maps a free-text genre string to the closed enum.
// Matching order: direct enum value match, then the synonym table,
// then GenreOther. The result is never empty.
func ParseGenre(raw string) Genre {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return GenreOther
	}
	for _, g := range []Genre{
		GenreRock, GenrePop, GenreMPB, GenreSertanejo, GenreForro,
		GenreRap, GenreFunk, GenreEletronica, GenreGospel, GenreReggae, GenreJazz,
	} {
		if s == strings.ToLower(string(g)) {
			return g
		}
	}
	if g, ok := DefaultGenreSynonyms[s]; ok {
		return g
	}
	// Loose containment covers inputs like "rock alternativo" or "funk carioca".
	for syn, g := range DefaultGenreSynonyms {
		if strings.Contains(s, syn) {
			return g
		}
	}
	for _, g := range []Genre{
		GenreRock, GenrePop, GenreMPB, GenreSertanejo, GenreForro,
		GenreRap, GenreFunk, GenreEletronica, GenreGospel, GenreReggae, GenreJazz,
	} {
		if strings.Contains(s, strings.ToLower(string(g))) {
			return g
		}
	}
	return GenreOther
}

// Validation constants for profile fields.
const (
	// MinProfileNameLength defines the minimum allowed length for an artist name
	MinProfileNameLength = 2
	// MaxProfileNameLength defines the maximum allowed length for an artist name
	MaxProfileNameLength = 100
	// MaxProfileBioLength defines the maximum allowed length for a bio
	MaxProfileBioLength = 500
	// MaxYearsExperience defines the upper bound for the years_experience field
	MaxYearsExperience = 50
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrEmptyMessageBody    = errors.New("message body cannot be empty")
	ErrProfileNameMissing  = errors.New("profile name is required")
	ErrProfileNameTooShort = errors.New("profile name is too short")
	ErrProfileNameTooLong  = errors.New("profile name exceeds maximum length")
	ErrProfileGenreMissing = errors.New("profile genre is required")
	ErrProfileBioTooLong   = errors.New("profile bio exceeds maximum length")
	ErrYearsOutOfRange     = errors.New("years of experience out of range")
	ErrNoContactChannel    = errors.New("profile requires at least one contact channel")
	ErrProfileNotViable    = errors.New("profile is missing minimum-viable fields")
)

// SocialPlatform identifies one of the supported social link platforms.
type SocialPlatform string

const (
	PlatformInstagram  SocialPlatform = "instagram"
	PlatformYouTube    SocialPlatform = "youtube"
	PlatformSpotify    SocialPlatform = "spotify"
	PlatformSoundCloud SocialPlatform = "soundcloud"
	PlatformBandcamp   SocialPlatform = "bandcamp"
)

// SocialLinks holds the normalized absolute URLs for each platform.
// Empty string means the platform was never collected.
type SocialLinks struct {
	Instagram  string `json:"instagram,omitempty"`
	YouTube    string `json:"youtube,omitempty"`
	Spotify    string `json:"spotify,omitempty"`
	SoundCloud string `json:"soundcloud,omitempty"`
	Bandcamp   string `json:"bandcamp,omitempty"`
}

// HasAny reports whether at least one platform URL is set.
func (s SocialLinks) HasAny() bool {
	return s.Instagram != "" || s.YouTube != "" || s.Spotify != "" ||
		s.SoundCloud != "" || s.Bandcamp != ""
}

// Set assigns a URL to the named platform. Unknown platforms are ignored.
func (s *SocialLinks) Set(platform SocialPlatform, url string) {
	switch platform {
	case PlatformInstagram:
		s.Instagram = url
	case PlatformYouTube:
		s.YouTube = url
	case PlatformSpotify:
		s.Spotify = url
	case PlatformSoundCloud:
		s.SoundCloud = url
	case PlatformBandcamp:
		s.Bandcamp = url
	}
}

// ContactChannel is one way to reach the artist. The originating WhatsApp
// number is always recorded as the primary channel.
type ContactChannel struct {
	Kind    string `json:"kind"`  // "whatsapp", "email", ...
	Value   string `json:"value"` // normalized address
	Primary bool   `json:"primary"`
}

// Profile is the persisted artist/band record.
type Profile struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	City            string           `json:"city,omitempty"`
	Genre           Genre            `json:"genre"`
	SocialLinks     SocialLinks      `json:"social_links"`
	Bio             string           `json:"bio,omitempty"`
	YearsExperience int              `json:"years_experience,omitempty"`
	ContactChannels []ContactChannel `json:"contact_channels"`
	TenantID        string           `json:"tenant_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Validate performs comprehensive validation on a Profile structure.
func (p *Profile) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ErrProfileNameMissing
	}
	if len([]rune(name)) < MinProfileNameLength {
		return ErrProfileNameTooShort
	}
	if len([]rune(name)) > MaxProfileNameLength {
		return ErrProfileNameTooLong
	}
	if p.Genre == "" {
		return ErrProfileGenreMissing
	}
	if len([]rune(p.Bio)) > MaxProfileBioLength {
		return ErrProfileBioTooLong
	}
	if p.YearsExperience < 0 || p.YearsExperience > MaxYearsExperience {
		return ErrYearsOutOfRange
	}
	if len(p.ContactChannels) == 0 {
		return ErrNoContactChannel
	}
	return nil
}

// IsMinimumViable reports whether the profile satisfies the persistence gate:
// name, genre, and at least one social link. City is recommended but optional.
func (p *Profile) IsMinimumViable() bool {
	return strings.TrimSpace(p.Name) != "" &&
		p.Genre != "" &&
		p.SocialLinks.HasAny()
}

// ToJSON serializes the profile to a JSON string.
func (p *Profile) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes the profile from a JSON string.
func (p *Profile) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), p)
}

// InteractionDirection marks whether a logged interaction was inbound or outbound.
type InteractionDirection string

const (
	DirectionInbound  InteractionDirection = "in"
	DirectionOutbound InteractionDirection = "out"
)

// Interaction is one logged exchange line tied to a subject (and, once
// persisted, a profile).
type Interaction struct {
	ID        string               `json:"id"`
	SubjectID string               `json:"subject_id"`
	ProfileID string               `json:"profile_id,omitempty"`
	Direction InteractionDirection `json:"direction"`
	Text      string               `json:"text"`
	CreatedAt time.Time            `json:"created_at"`
}

// Response is one inbound message event emitted by a messaging service.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"` // unix seconds
}

// BookingLead records a confirmed booking interest raised from the flow.
type BookingLead struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	SubjectID string    `json:"subject_id"`
	Venue     string    `json:"venue,omitempty"`
	Origin    string    `json:"origin"` // "direct" or "referral"
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
