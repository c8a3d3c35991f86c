package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-dev/ensemble/pkg/adapters/file"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports/tests"
)

func TestFileStore_Contract(t *testing.T) {
	tests.RunActionStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_DefaultBasePath(t *testing.T) {
	s := file.New("")
	assert.Equal(t, filepath.Join(".ensemble", "actions"), s.BasePath)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := &domain.Action{
		ID:           "wave",
		Name:         "Wave",
		Instructions: []domain.Instruction{{Capability: "gesture", Args: map[string]any{"g": "wave"}}},
	}
	require.NoError(t, file.New(dir).Save(ctx, a))

	// A fresh store over the same directory sees the action.
	got, err := file.New(dir).Load(ctx, "wave")
	require.NoError(t, err)
	assert.Equal(t, "Wave", got.Name)
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := file.New(dir)

	require.NoError(t, s.Save(ctx, &domain.Action{
		ID:           "one",
		Name:         "One",
		Instructions: []domain.Instruction{{Capability: "pose"}},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("scratch"), 0o644))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].ID)
}

func TestFileStore_CorruptFileSurfacesError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{nope"), 0o644))

	_, err := file.New(dir).Load(context.Background(), "bad")
	assert.Error(t, err)
}
