package wire

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// chunkSlack covers the index/total digits not present in the measured
// empty-chunk overhead.
const chunkSlack = 8

// Frames serializes an envelope and splits it into transport frames. A
// serialization no larger than limit yields a single frame; anything larger
// is split into chunk envelopes sharing one message id with sequential
// indexes and an equal total, each fitting within limit.
func Frames(env Envelope, limit int) ([][]byte, error) {
	raw, err := Marshal(env)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = MaxFramePayload
	}
	if len(raw) <= limit {
		return [][]byte{raw}, nil
	}
	if env.Type == TypeChunk {
		return nil, fmt.Errorf("chunk envelope exceeds frame limit (%d > %d)", len(raw), limit)
	}

	id := newMessageID()
	segments := splitEscaped(string(raw), segmentBudget(id, limit))

	frames := make([][]byte, 0, len(segments))
	for n, seg := range segments {
		frame, err := Marshal(Envelope{
			Type:  TypeChunk,
			ID:    id,
			Index: n,
			Total: len(segments),
			Data:  seg,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// newMessageID returns a caller-chosen chunk message id. Short enough not to
// eat into the per-frame budget, random enough not to collide with any
// in-flight message on the same session.
func newMessageID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// segmentBudget computes how many escaped data bytes fit in one chunk frame
// under the limit, given the fixed envelope overhead.
func segmentBudget(id string, limit int) int {
	empty, _ := Marshal(Envelope{Type: TypeChunk, ID: id})
	budget := limit - len(empty) - chunkSlack
	if budget < utf8.UTFMax {
		budget = utf8.UTFMax
	}
	return budget
}

// splitEscaped cuts s into segments whose JSON-escaped encoding is at most
// budget bytes each. Chunk data rides inside a JSON string, so quotes,
// backslashes, and control characters count at their escaped width, and cuts
// always land on rune boundaries.
func splitEscaped(s string, budget int) []string {
	var out []string
	start, used := 0, 0
	for i, r := range s {
		n := escapedLen(r)
		if used+n > budget && i > start {
			out = append(out, s[start:i])
			start, used = i, 0
		}
		used += n
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// escapedLen returns the worst-case width of one rune inside an encoded JSON
// string.
func escapedLen(r rune) int {
	switch r {
	case '"', '\\', '\n', '\r', '\t':
		return 2
	}
	if r < 0x20 {
		return 6 // \u00XX
	}
	return utf8.RuneLen(r)
}
