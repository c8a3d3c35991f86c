package ports

import (
	"context"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// ActionStore defines the interface for persisting user-authored actions.
// The engine only reads from it; authoring surfaces (CLI, HTTP) write.
type ActionStore interface {
	// Save persists the action, overwriting any existing record with the
	// same ID. Implementations must reject actions that fail Validate.
	Save(ctx context.Context, action *domain.Action) error

	// Load retrieves an action by ID.
	// Returns domain.ErrActionNotFound if it does not exist.
	Load(ctx context.Context, id string) (*domain.Action, error)

	// Delete removes an action. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns all stored actions ordered by ID.
	List(ctx context.Context) ([]*domain.Action, error)
}
