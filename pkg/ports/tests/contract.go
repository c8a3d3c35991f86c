package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

// RunActionStoreContract is a reusable test suite that verifies an adapter
// complies with ports.ActionStore semantics. Each adapter test wires its
// backend and delegates here.
func RunActionStoreContract(t *testing.T, store ports.ActionStore) {
	t.Helper()
	ctx := context.Background()

	sample := func(id string) *domain.Action {
		return &domain.Action{
			ID:    id,
			Name:  "Wave Hello",
			Icon:  "hand",
			Color: "#ffaa00",
			Instructions: []domain.Instruction{
				{Capability: "pose", Args: map[string]any{"p": "sit"}, DelayMS: 500},
				{Capability: "gesture", Args: map[string]any{"g": "wave"}, DelayMS: 1000},
			},
		}
	}

	t.Run("SaveAndLoad", func(t *testing.T) {
		want := sample("contract-roundtrip")
		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := store.Load(ctx, want.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.Name != want.Name || got.Icon != want.Icon || got.Color != want.Color {
			t.Errorf("metadata mismatch: got %+v, want %+v", got, want)
		}
		if len(got.Instructions) != len(want.Instructions) {
			t.Fatalf("expected %d instructions, got %d", len(want.Instructions), len(got.Instructions))
		}
		for n := range want.Instructions {
			if got.Instructions[n].Capability != want.Instructions[n].Capability {
				t.Errorf("instruction %d capability: got %q, want %q",
					n, got.Instructions[n].Capability, want.Instructions[n].Capability)
			}
			if got.Instructions[n].DelayMS != want.Instructions[n].DelayMS {
				t.Errorf("instruction %d delay: got %d, want %d",
					n, got.Instructions[n].DelayMS, want.Instructions[n].DelayMS)
			}
		}
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		first := sample("contract-overwrite")
		if err := store.Save(ctx, first); err != nil {
			t.Fatalf("save: %v", err)
		}
		second := sample("contract-overwrite")
		second.Name = "Renamed"
		if err := store.Save(ctx, second); err != nil {
			t.Fatalf("overwrite: %v", err)
		}

		got, err := store.Load(ctx, "contract-overwrite")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.Name != "Renamed" {
			t.Errorf("expected overwritten name, got %q", got.Name)
		}
	})

	t.Run("SaveRejectsInvalid", func(t *testing.T) {
		invalid := &domain.Action{ID: "contract-invalid"}
		if err := store.Save(ctx, invalid); err == nil {
			t.Error("expected validation error for action with no instructions")
		}
	})

	t.Run("LoadNotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "contract-absent")
		if !errors.Is(err, domain.ErrActionNotFound) {
			t.Errorf("expected ErrActionNotFound, got %v", err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		a := sample("contract-delete")
		if err := store.Save(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.Delete(ctx, a.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := store.Delete(ctx, a.ID); err != nil {
			t.Errorf("second delete should be a no-op, got %v", err)
		}
		if _, err := store.Load(ctx, a.ID); !errors.Is(err, domain.ErrActionNotFound) {
			t.Errorf("expected ErrActionNotFound after delete, got %v", err)
		}
	})

	t.Run("ListOrderedByID", func(t *testing.T) {
		for _, id := range []string{"contract-list-b", "contract-list-a", "contract-list-c"} {
			if err := store.Save(ctx, sample(id)); err != nil {
				t.Fatalf("save %s: %v", id, err)
			}
		}

		all, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}

		var ids []string
		for _, a := range all {
			ids = append(ids, a.ID)
		}
		for n := 1; n < len(ids); n++ {
			if ids[n-1] > ids[n] {
				t.Errorf("list not ordered by ID: %v", ids)
				break
			}
		}

		lookup := make(map[string]bool, len(ids))
		for _, id := range ids {
			lookup[id] = true
		}
		for _, id := range []string{"contract-list-a", "contract-list-b", "contract-list-c"} {
			if !lookup[id] {
				t.Errorf("action %s missing from list", id)
			}
		}
	})
}
