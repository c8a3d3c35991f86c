// Package capability maintains the locally cached table of capabilities the
// connected devices declared via tools/list. Instruction arguments are
// validated against these remotely declared schemas; the capability set is
// only known at runtime.
package capability

import (
	"sort"
	"sync"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// Table caches declared capabilities per session.
type Table struct {
	mu        sync.Mutex
	bySession map[int]map[string]domain.Capability
}

// NewTable creates an empty capability table.
func NewTable() *Table {
	return &Table{bySession: make(map[int]map[string]domain.Capability)}
}

// Replace swaps in the full capability set a session declared in its latest
// tools/list response.
func (t *Table) Replace(sessionID int, caps []domain.Capability) {
	byName := make(map[string]domain.Capability, len(caps))
	for _, c := range caps {
		byName[c.Name] = c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.bySession[sessionID] = byName
}

// DropSession forgets everything a detached session declared.
func (t *Table) DropSession(sessionID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bySession, sessionID)
}

// Lookup resolves a capability name against the union of all sessions'
// declarations. When several sessions declare the same name, the one from the
// lowest session identity wins.
func (t *Table) Lookup(name string) (domain.Capability, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0, len(t.bySession))
	for id := range t.bySession {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if c, ok := t.bySession[id][name]; ok {
			return c, true
		}
	}
	return domain.Capability{}, false
}

// All returns the union of declared capabilities, ordered by name.
func (t *Table) All() []domain.Capability {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]domain.Capability)
	ids := make([]int, 0, len(t.bySession))
	for id := range t.bySession {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		for name, c := range t.bySession[id] {
			if _, ok := seen[name]; !ok {
				seen[name] = c
			}
		}
	}

	out := make([]domain.Capability, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateInstruction checks an instruction's arguments against the declared
// schema for its capability. A capability no connected session has declared
// passes unvalidated: devices differ, and the transport enforces nothing.
func (t *Table) ValidateInstruction(in domain.Instruction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	c, ok := t.Lookup(in.Capability)
	if !ok {
		return nil
	}
	return c.ValidateArgs(in.Args)
}
