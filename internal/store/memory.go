package store

import (
	"sync"
	"time"

	"github.com/PalcoLivre/StageLink/internal/models"

	"github.com/google/uuid"
)

// InMemoryStore keeps everything in process memory. Used in tests and for
// development runs without a database.
type InMemoryStore struct {
	mu           sync.RWMutex
	states       map[string]string // subject ID -> state JSON
	profiles     map[string]*models.Profile
	byContact    map[string]string // contact value -> profile ID
	interactions []models.Interaction
	leads        []models.BookingLead
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states:    make(map[string]string),
		profiles:  make(map[string]*models.Profile),
		byContact: make(map[string]string),
	}
}

func (s *InMemoryStore) LoadState(subjectID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.states[subjectID]
	if !ok {
		return nil, nil
	}
	var state models.ConversationState
	if err := state.FromJSON(raw); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *InMemoryStore) SaveState(state *models.ConversationState) error {
	raw, err := state.ToJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.SubjectID] = raw
	return nil
}

func (s *InMemoryStore) DeleteState(subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, subjectID)
	return nil
}

func (s *InMemoryStore) GetProfile(id string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) GetProfileByContact(contact string) (*models.Profile, error) {
	s.mu.RLock()
	id, ok := s.byContact[contact]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.GetProfile(id)
}

func (s *InMemoryStore) CreateProfile(p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.ID] = &cp
	for _, ch := range p.ContactChannels {
		s.byContact[ch.Value] = p.ID
	}
	return nil
}

func (s *InMemoryStore) UpdateProfile(p *models.Profile) error {
	p.UpdatedAt = time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.ID] = &cp
	for _, ch := range p.ContactChannels {
		s.byContact[ch.Value] = p.ID
	}
	return nil
}

func (s *InMemoryStore) AddInteraction(in models.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, in)
	return nil
}

func (s *InMemoryStore) CountInteractionsSince(since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, in := range s.interactions {
		if in.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) AddBookingLead(lead models.BookingLead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return nil
}

// BookingLeads returns a copy of the recorded leads (for tests).
func (s *InMemoryStore) BookingLeads() []models.BookingLead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BookingLead, len(s.leads))
	copy(out, s.leads)
	return out
}

func (s *InMemoryStore) Ping() error { return nil }

func (s *InMemoryStore) Close() error { return nil }
