// Package memory implements ports.ActionStore in process memory. It backs
// tests and ephemeral setups where persistence across restarts is not
// needed.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// Store is a concurrency-safe in-memory action store.
type Store struct {
	mu      sync.Mutex
	actions map[string]*domain.Action
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{actions: make(map[string]*domain.Action)}
}

// Save persists a copy of the action, overwriting any existing record.
func (s *Store) Save(ctx context.Context, action *domain.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action.ID] = action.Clone()
	return nil
}

// Load retrieves a copy of the action by ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, domain.ErrActionNotFound
	}
	return a.Clone(), nil
}

// Delete removes the action; deleting an absent ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, id)
	return nil
}

// List returns copies of all stored actions ordered by ID.
func (s *Store) List(ctx context.Context) ([]*domain.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
