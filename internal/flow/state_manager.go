// Package flow implements the conversation flow engine for StageLink.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PalcoLivre/StageLink/internal/models"
	"github.com/PalcoLivre/StageLink/internal/store"
)

// StateManager is the conversation-state contract the engine depends on.
type StateManager interface {
	GetOrCreate(ctx context.Context, subjectID string) (*models.ConversationState, error)
	Save(ctx context.Context, state *models.ConversationState) error
	Reset(ctx context.Context, subjectID string) (*models.ConversationState, error)
}

// StoreBasedStateManager implements StateManager over a store.Store with a
// write-through in-memory cache: reads hit the cache first, every mutation is
// written through to the durable store, which stays the source of truth
// across restarts.
type StoreBasedStateManager struct {
	store  store.Store
	mu     sync.Mutex
	cache  map[string]*models.ConversationState
	stages map[string]models.StateType
}

// NewStoreBasedStateManager creates a state manager backed by the given store.
func NewStoreBasedStateManager(s store.Store) *StoreBasedStateManager {
	return &StoreBasedStateManager{
		store:  s,
		cache:  make(map[string]*models.ConversationState),
		stages: make(map[string]models.StateType),
	}
}

// GetOrCreate returns the subject's state, checking the cache first, then the
// durable store, creating a fresh state at the start stage when neither has
// one.
func (m *StoreBasedStateManager) GetOrCreate(ctx context.Context, subjectID string) (*models.ConversationState, error) {
	m.mu.Lock()
	if cached, ok := m.cache[subjectID]; ok {
		stage := m.stages[subjectID]
		m.mu.Unlock()
		slog.Debug("StateManager cache hit", "subjectID", subjectID, "stage", stage)
		return cached, nil
	}
	m.mu.Unlock()

	state, err := m.store.LoadState(subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if state == nil {
		state = models.NewConversationState(subjectID)
		if err := m.store.SaveState(state); err != nil {
			return nil, fmt.Errorf("failed to save fresh state: %w", err)
		}
		slog.Info("StateManager created fresh state", "subjectID", subjectID)
	}

	m.mu.Lock()
	m.cache[subjectID] = state
	m.stages[subjectID] = state.Stage
	m.mu.Unlock()
	return state, nil
}

// Save writes the state through to the durable store and refreshes the cache.
func (m *StoreBasedStateManager) Save(ctx context.Context, state *models.ConversationState) error {
	if !models.IsValidState(state.Stage) {
		return fmt.Errorf("invalid stage %q for subject %s", state.Stage, state.SubjectID)
	}
	if err := m.store.SaveState(state); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	m.mu.Lock()
	m.cache[state.SubjectID] = state
	m.stages[state.SubjectID] = state.Stage
	m.mu.Unlock()
	slog.Debug("StateManager saved state", "subjectID", state.SubjectID, "stage", state.Stage)
	return nil
}

// Reset replaces the subject's state with a fresh empty instance. Safe to
// call repeatedly: resetting an already-fresh state yields the same result.
func (m *StoreBasedStateManager) Reset(ctx context.Context, subjectID string) (*models.ConversationState, error) {
	if err := m.store.DeleteState(subjectID); err != nil {
		return nil, fmt.Errorf("failed to delete state: %w", err)
	}
	fresh := models.NewConversationState(subjectID)
	if err := m.store.SaveState(fresh); err != nil {
		return nil, fmt.Errorf("failed to save fresh state: %w", err)
	}
	m.mu.Lock()
	m.cache[subjectID] = fresh
	m.stages[subjectID] = fresh.Stage
	m.mu.Unlock()
	slog.Info("StateManager reset state", "subjectID", subjectID)
	return fresh, nil
}

// StageSnapshot returns the subject's last saved stage as a value copy. The
// live *ConversationState belongs to the dispatch worker; concurrent readers
// (ack generation on the webhook goroutine) must go through this index and
// never touch the shared struct.
func (m *StoreBasedStateManager) StageSnapshot(subjectID string) (models.StateType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stage, ok := m.stages[subjectID]
	return stage, ok
}
