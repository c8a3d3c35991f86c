package ensemble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/ensemble-dev/ensemble/pkg/domain"
)

// DecodeActions parses an exported action collection. The format is the
// stored record shape wrapped in an array; unknown fields are ignored and
// missing ones default rather than reject, so collections exported by older
// or newer builds still import.
func DecodeActions(raw []byte) ([]*domain.Action, error) {
	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode action collection: %w", err)
	}

	out := make([]*domain.Action, 0, len(rows))
	for n, row := range rows {
		var a domain.Action
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &a,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(row); err != nil {
			return nil, fmt.Errorf("decode action %d: %w", n, err)
		}
		out = append(out, &a)
	}
	return out, nil
}

// EncodeActions serializes actions into the exchange format.
func EncodeActions(actions []*domain.Action) ([]byte, error) {
	if actions == nil {
		actions = []*domain.Action{}
	}
	return json.MarshalIndent(actions, "", "  ")
}

// ImportActions decodes a collection and saves every record, returning the
// number saved. A record failing structural validation aborts the import, but
// saves made before the failure stay applied.
func (o *Orchestrator) ImportActions(ctx context.Context, raw []byte) (int, error) {
	actions, err := DecodeActions(raw)
	if err != nil {
		return 0, err
	}
	for n, a := range actions {
		if err := o.store.Save(ctx, a); err != nil {
			return n, fmt.Errorf("save action %q: %w", a.ID, err)
		}
	}
	return len(actions), nil
}

// ExportActions serializes every stored action.
func (o *Orchestrator) ExportActions(ctx context.Context) ([]byte, error) {
	actions, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeActions(actions)
}
