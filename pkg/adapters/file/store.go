// Package file implements ports.ActionStore on the local filesystem,
// one JSON file per action.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// Store persists actions as JSON files under a base directory.
type Store struct {
	BasePath string
}

// New creates a Store rooted at basePath. An empty basePath defaults to
// ".ensemble/actions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".ensemble", "actions")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.BasePath, id+".json")
}

// Save writes the action atomically: temp file in the same directory, fsync,
// then rename over the destination.
func (s *Store) Save(ctx context.Context, action *domain.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("ensure action directory: %w", err)
	}

	data, err := json.MarshalIndent(action, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmp, err := os.CreateTemp(s.BasePath, "tmp-"+action.ID+"-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(action.ID)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Load reads the action by ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.Action, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrActionNotFound
		}
		return nil, fmt.Errorf("read action file: %w", err)
	}

	var a domain.Action
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	return &a, nil
}

// Delete removes the action file; an absent ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete action file: %w", err)
	}
	return nil
}

// List loads every stored action, ordered by ID.
func (s *Store) List(ctx context.Context) ([]*domain.Action, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.Action{}, nil
		}
		return nil, fmt.Errorf("list action directory: %w", err)
	}

	var out []*domain.Action
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		a, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
