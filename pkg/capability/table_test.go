package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

func poseCapability() domain.Capability {
	minSpeed, maxSpeed := 0.0, 10.0
	return domain.Capability{
		Name: "pose",
		Parameters: []domain.Parameter{
			{Name: "p", Type: "string", Required: true, Enum: []string{"sit", "stand", "lie"}},
			{Name: "speed", Type: "number", Minimum: &minSpeed, Maximum: &maxSpeed},
		},
	}
}

func TestReplaceAndLookup(t *testing.T) {
	tbl := NewTable()
	tbl.Replace(1, []domain.Capability{poseCapability()})

	c, ok := tbl.Lookup("pose")
	require.True(t, ok)
	assert.Equal(t, "pose", c.Name)

	_, ok = tbl.Lookup("gesture")
	assert.False(t, ok)

	// A fresh tools/list response replaces the whole set.
	tbl.Replace(1, []domain.Capability{{Name: "gesture"}})
	_, ok = tbl.Lookup("pose")
	assert.False(t, ok)
	_, ok = tbl.Lookup("gesture")
	assert.True(t, ok)
}

func TestLowestSessionWinsOnCollision(t *testing.T) {
	tbl := NewTable()
	tbl.Replace(2, []domain.Capability{{Name: "pose", Description: "from session 2"}})
	tbl.Replace(1, []domain.Capability{{Name: "pose", Description: "from session 1"}})

	c, ok := tbl.Lookup("pose")
	require.True(t, ok)
	assert.Equal(t, "from session 1", c.Description)
}

func TestDropSession(t *testing.T) {
	tbl := NewTable()
	tbl.Replace(1, []domain.Capability{poseCapability()})
	tbl.Replace(2, []domain.Capability{{Name: "gesture"}})

	tbl.DropSession(1)

	_, ok := tbl.Lookup("pose")
	assert.False(t, ok)
	_, ok = tbl.Lookup("gesture")
	assert.True(t, ok)
}

func TestAllIsOrderedUnion(t *testing.T) {
	tbl := NewTable()
	tbl.Replace(1, []domain.Capability{{Name: "pose"}, {Name: "gesture"}})
	tbl.Replace(2, []domain.Capability{{Name: "speak"}, {Name: "pose"}})

	all := tbl.All()
	require.Len(t, all, 3)
	assert.Equal(t, "gesture", all[0].Name)
	assert.Equal(t, "pose", all[1].Name)
	assert.Equal(t, "speak", all[2].Name)
}

func TestValidateInstruction(t *testing.T) {
	tbl := NewTable()
	tbl.Replace(1, []domain.Capability{poseCapability()})

	tests := []struct {
		name    string
		in      domain.Instruction
		wantErr bool
	}{
		{
			name: "valid args",
			in:   domain.Instruction{Capability: "pose", Args: map[string]any{"p": "sit", "speed": 2.5}},
		},
		{
			name:    "missing required",
			in:      domain.Instruction{Capability: "pose", Args: map[string]any{"speed": 2.5}},
			wantErr: true,
		},
		{
			name:    "enum violation",
			in:      domain.Instruction{Capability: "pose", Args: map[string]any{"p": "moonwalk"}},
			wantErr: true,
		},
		{
			name:    "bound violation",
			in:      domain.Instruction{Capability: "pose", Args: map[string]any{"p": "sit", "speed": 99.0}},
			wantErr: true,
		},
		{
			name:    "unknown argument",
			in:      domain.Instruction{Capability: "pose", Args: map[string]any{"p": "sit", "bogus": 1}},
			wantErr: true,
		},
		{
			name: "undeclared capability passes unvalidated",
			in:   domain.Instruction{Capability: "undeclared", Args: map[string]any{"whatever": true}},
		},
		{
			name:    "empty capability name",
			in:      domain.Instruction{Capability: ""},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tbl.ValidateInstruction(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
