package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-dev/ensemble/pkg/adapters/sqlite"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports/tests"
)

func openTestStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "ensemble.db"))
	tests.RunActionStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ensemble.db")
	ctx := context.Background()

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, &domain.Action{
		ID:           "wave",
		Name:         "Wave",
		Instructions: []domain.Instruction{{Capability: "gesture", Args: map[string]any{"g": "wave"}}},
	}))
	require.NoError(t, store.Close())

	reopened := openTestStore(t, path)
	got, err := reopened.Load(ctx, "wave")
	require.NoError(t, err)
	assert.Equal(t, "Wave", got.Name)
	assert.Equal(t, "wave", got.Instructions[0].Args["g"])
}

func TestSQLiteStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "ensemble.db")
	store := openTestStore(t, path)

	got, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
