// Package sqlite implements ports.ActionStore on an embedded SQLite
// database, the default persistence for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	definition TEXT NOT NULL
);`

// Store persists actions in a single actions table, the full definition as
// a JSON column alongside the indexed identity fields.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single connection avoids SQLITE_BUSY on concurrent writes.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save upserts the action by ID.
func (s *Store) Save(ctx context.Context, action *domain.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO actions(id, name, definition) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name=excluded.name,
	definition=excluded.definition
`, action.ID, action.Name, string(data))
	if err != nil {
		return fmt.Errorf("upsert action: %w", err)
	}
	return nil
}

// Load retrieves the action by ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.Action, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM actions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, domain.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select action: %w", err)
	}

	var a domain.Action
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	return &a, nil
}

// Delete removes the action; an absent ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return nil
}

// List loads every stored action, ordered by ID.
func (s *Store) List(ctx context.Context) ([]*domain.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM actions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Action
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		var a domain.Action
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("unmarshal action: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
