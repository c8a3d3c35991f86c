// Package redis implements ports.ActionStore on Redis, for deployments
// where several coordinator processes share one action library.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

const defaultPrefix = "ensemble:action:"

// Store persists actions as JSON values under prefixed keys, with a set
// index tracking the stored IDs.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL sets an expiration on stored actions. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New creates a Store with its own client.
func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Store over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save writes the action and registers its ID in the index, in one pipeline.
func (s *Store) Save(ctx context.Context, action *domain.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(action.ID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), action.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save to redis: %w", err)
	}
	return nil
}

// Load retrieves the action by ID.
func (s *Store) Load(ctx context.Context, id string) (*domain.Action, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrActionNotFound
		}
		return nil, fmt.Errorf("get from redis: %w", err)
	}

	var a domain.Action
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, fmt.Errorf("unmarshal action: %w", err)
	}
	return &a, nil
}

// Delete removes the action and its index entry. Absent IDs are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List loads every indexed action, ordered by ID. Index entries whose value
// has expired are skipped and pruned.
func (s *Store) List(ctx context.Context) ([]*domain.Action, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	sort.Strings(ids)

	out := make([]*domain.Action, 0, len(ids))
	for _, id := range ids {
		a, err := s.Load(ctx, id)
		if err == domain.ErrActionNotFound {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
