// Package store provides storage backends for StageLink.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/PalcoLivre/StageLink/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store over a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file path).
// The parent directory is created if missing and migrations are applied.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadState(subjectID string) (*models.ConversationState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state_json FROM conversation_states WHERE subject_id = ?`, subjectID).Scan(&raw)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore LoadState not found", "subjectID", subjectID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LoadState failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to load state for %s: %w", subjectID, err)
	}
	var state models.ConversationState
	if err := state.FromJSON(raw); err != nil {
		slog.Error("SQLiteStore LoadState JSON unmarshal failed", "error", err, "subjectID", subjectID)
		return nil, fmt.Errorf("failed to parse state for %s: %w", subjectID, err)
	}
	slog.Debug("SQLiteStore LoadState found", "subjectID", subjectID, "stage", state.Stage)
	return &state, nil
}

func (s *SQLiteStore) SaveState(state *models.ConversationState) error {
	raw, err := state.ToJSON()
	if err != nil {
		slog.Error("SQLiteStore SaveState JSON marshal failed", "error", err, "subjectID", state.SubjectID)
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO conversation_states (subject_id, stage, state_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		state.SubjectID, string(state.Stage), raw, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveState failed", "error", err, "subjectID", state.SubjectID)
		return fmt.Errorf("failed to save state for %s: %w", state.SubjectID, err)
	}
	slog.Debug("SQLiteStore SaveState succeeded", "subjectID", state.SubjectID, "stage", state.Stage)
	return nil
}

func (s *SQLiteStore) DeleteState(subjectID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE subject_id = ?`, subjectID)
	if err != nil {
		slog.Error("SQLiteStore DeleteState failed", "error", err, "subjectID", subjectID)
		return fmt.Errorf("failed to delete state for %s: %w", subjectID, err)
	}
	return nil
}

// scanProfile reads one profile row into the model, decoding the JSON columns.
func scanProfile(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	var city, socialLinks, bio, contactChannels, primaryContact, tenantID sql.NullString
	err := row.Scan(&p.ID, &p.Name, &city, &p.Genre, &socialLinks, &bio,
		&p.YearsExperience, &contactChannels, &primaryContact, &tenantID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.City = city.String
	p.Bio = bio.String
	p.TenantID = tenantID.String
	if socialLinks.String != "" {
		if err := json.Unmarshal([]byte(socialLinks.String), &p.SocialLinks); err != nil {
			return nil, fmt.Errorf("failed to parse social links: %w", err)
		}
	}
	if contactChannels.String != "" {
		if err := json.Unmarshal([]byte(contactChannels.String), &p.ContactChannels); err != nil {
			return nil, fmt.Errorf("failed to parse contact channels: %w", err)
		}
	}
	return &p, nil
}

const profileColumns = `id, name, city, genre, social_links, bio, years_experience, contact_channels, primary_contact, tenant_id, created_at, updated_at`

func (s *SQLiteStore) GetProfile(id string) (*models.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) GetProfileByContact(contact string) (*models.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE primary_contact = ?`, contact)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetProfileByContact not found", "contact", contact)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfileByContact failed", "error", err, "contact", contact)
		return nil, fmt.Errorf("failed to get profile by contact: %w", err)
	}
	return p, nil
}

// profileRowValues serializes the JSON columns shared by create and update.
func profileRowValues(p *models.Profile) (socialLinks, contactChannels, primaryContact string, err error) {
	sl, err := json.Marshal(p.SocialLinks)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to serialize social links: %w", err)
	}
	cc, err := json.Marshal(p.ContactChannels)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to serialize contact channels: %w", err)
	}
	primary := ""
	for _, ch := range p.ContactChannels {
		if primary == "" || ch.Primary {
			primary = ch.Value
		}
	}
	return string(sl), string(cc), primary, nil
}

func (s *SQLiteStore) CreateProfile(p *models.Profile) error {
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
	_, err = s.db.Exec(`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, nilIfEmpty(p.City), string(p.Genre), socialLinks, nilIfEmpty(p.Bio),
		p.YearsExperience, contactChannels, primaryContact, nilIfEmpty(p.TenantID),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateProfile failed", "error", err, "name", p.Name)
		return fmt.Errorf("failed to create profile for %s: %w", p.Name, err)
	}
	slog.Debug("SQLiteStore CreateProfile succeeded", "id", p.ID, "name", p.Name)
	return nil
}

func (s *SQLiteStore) UpdateProfile(p *models.Profile) error {
	p.UpdatedAt = time.Now()
	socialLinks, contactChannels, primaryContact, err := profileRowValues(p)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE profiles SET name = ?, city = ?, genre = ?, social_links = ?, bio = ?, years_experience = ?, contact_channels = ?, primary_contact = ?, tenant_id = ?, updated_at = ? WHERE id = ?`,
		p.Name, nilIfEmpty(p.City), string(p.Genre), socialLinks, nilIfEmpty(p.Bio),
		p.YearsExperience, contactChannels, primaryContact, nilIfEmpty(p.TenantID),
		p.UpdatedAt, p.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateProfile failed", "error", err, "id", p.ID)
		return fmt.Errorf("failed to update profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) AddInteraction(in models.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO interactions (id, subject_id, profile_id, direction, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.SubjectID, nilIfEmpty(in.ProfileID), string(in.Direction), in.Text, in.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddInteraction failed", "error", err, "subjectID", in.SubjectID)
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountInteractionsSince(since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE created_at > ?`, since).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore CountInteractionsSince failed", "error", err)
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) AddBookingLead(lead models.BookingLead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO booking_leads (id, profile_id, subject_id, venue, origin, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.ProfileID, lead.SubjectID, nilIfEmpty(lead.Venue), lead.Origin, nilIfEmpty(lead.Notes), lead.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddBookingLead failed", "error", err, "profileID", lead.ProfileID)
		return fmt.Errorf("failed to insert booking lead: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping() error { return s.db.Ping() }

func (s *SQLiteStore) Close() error { return s.db.Close() }
