// Package store provides storage backends for StageLink.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/PalcoLivre/StageLink/internal/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store over PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadState(subjectID string) (*models.ConversationState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state_json FROM conversation_states WHERE subject_id = $1`, subjectID).Scan(&raw)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore LoadState not found", "subjectID", subjectID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LoadState failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to load state for %s: %w", subjectID, err)
	}
	var state models.ConversationState
	if err := state.FromJSON(raw); err != nil {
		slog.Error("PostgresStore LoadState JSON unmarshal failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to parse state for %s: %w", subjectID, err)
	}
	return &state, nil
}

func (s *PostgresStore) SaveState(state *models.ConversationState) error {
	raw, err := state.ToJSON()
	if err != nil {
		slog.Error("PostgresStore SaveState JSON marshal failed", "error", err, "subjectID", state.SubjectID)
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO conversation_states (subject_id, stage, state_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (subject_id) DO UPDATE SET stage = $2, state_json = $3, updated_at = $5`,
		state.SubjectID, string(state.Stage), raw, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveState failed", "error", err, "subjectID", state.SubjectID)
		return fmt.Errorf("failed to save state for %s: %w", state.SubjectID, err)
	}
	slog.Debug("PostgresStore SaveState succeeded", "subjectID", state.SubjectID, "stage", state.Stage)
	return nil
}

func (s *PostgresStore) DeleteState(subjectID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE subject_id = $1`, subjectID)
	if err != nil {
		slog.Error("PostgresStore DeleteState failed", "error", err, "subjectID", subjectID)
		return fmt.Errorf("failed to delete state for %s: %w", subjectID, err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(id string) (*models.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) GetProfileByContact(contact string) (*models.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE primary_contact = $1`, contact)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetProfileByContact not found", "contact", contact)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfileByContact failed", "error", err, "contact", contact)
		return nil, fmt.Errorf("failed to get profile by contact: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CreateProfile(p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	socialLinks, contactChannels, primaryContact, err := profileRowValues(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, nilIfEmpty(p.City), string(p.Genre), socialLinks, nilIfEmpty(p.Bio),
		p.YearsExperience, contactChannels, primaryContact, nilIfEmpty(p.TenantID),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateProfile failed", "error", err, "name", p.Name)
		return fmt.Errorf("failed to create profile for %s: %w", p.Name, err)
	}
	slog.Debug("PostgresStore CreateProfile succeeded", "id", p.ID, "name", p.Name)
	return nil
}

func (s *PostgresStore) UpdateProfile(p *models.Profile) error {
	p.UpdatedAt = time.Now()
	socialLinks, contactChannels, primaryContact, err := profileRowValues(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE profiles SET name = $1, city = $2, genre = $3, social_links = $4, bio = $5, years_experience = $6, contact_channels = $7, primary_contact = $8, tenant_id = $9, updated_at = $10 WHERE id = $11`,
		p.Name, nilIfEmpty(p.City), string(p.Genre), socialLinks, nilIfEmpty(p.Bio),
		p.YearsExperience, contactChannels, primaryContact, nilIfEmpty(p.TenantID),
		p.UpdatedAt, p.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateProfile failed", "error", err, "id", p.ID)
		return fmt.Errorf("failed to update profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *PostgresStore) AddInteraction(in models.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO interactions (id, subject_id, profile_id, direction, body, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		in.ID, in.SubjectID, nilIfEmpty(in.ProfileID), string(in.Direction), in.Text, in.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddInteraction failed", "error", err, "subjectID", in.SubjectID)
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountInteractionsSince(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE created_at > $1`, since).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore CountInteractionsSince failed", "error", err)
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AddBookingLead(lead models.BookingLead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO booking_leads (id, profile_id, subject_id, venue, origin, notes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lead.ID, lead.ProfileID, lead.SubjectID, nilIfEmpty(lead.Venue), lead.Origin, nilIfEmpty(lead.Notes), lead.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddBookingLead failed", "error", err, "profileID", lead.ProfileID)
		return fmt.Errorf("failed to insert booking lead: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping() error { return s.db.Ping() }

func (s *PostgresStore) Close() error { return s.db.Close() }
