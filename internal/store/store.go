// Package store provides storage backends for StageLink.
//
// It includes an in-memory store for tests and development, plus SQLite- and
// PostgreSQL-backed persistent stores. Lookups return (nil, nil) when the
// record does not exist.
package store

import (
	"strings"
	"time"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// Store is the persistence contract the flow engine depends on. All methods
// surface transient failures as errors; absence is (nil, nil).
type Store interface {
	// Conversation state. SaveState is an upsert keyed by subject ID.
	LoadState(subjectID string) (*models.ConversationState, error)
	SaveState(state *models.ConversationState) error
	DeleteState(subjectID string) error

	// Artist profiles. CreateProfile fills in the ID when empty.
	GetProfile(id string) (*models.Profile, error)
	GetProfileByContact(contact string) (*models.Profile, error)
	CreateProfile(p *models.Profile) error
	UpdateProfile(p *models.Profile) error

	// Interaction log.
	AddInteraction(in models.Interaction) error
	CountInteractionsSince(since time.Time) (int, error)

	// Booking leads raised from the flow.
	AddBookingLead(lead models.BookingLead) error

	Ping() error
	Close() error
}

// Opts holds store configuration assembled by functional options.
type Opts struct {
	DSN string
}

// Option configures a store constructor.
type Option func(*Opts)

// WithDSN sets the database DSN (a file path for SQLite, a connection string
// for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" by shape:
// postgres:// URLs and key=value connection strings are Postgres, anything
// else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}
