// Package reassembly reconstructs complete application messages from
// per-session streams of size-limited transport fragments, tolerating
// duplicate and out-of-order delivery.
package reassembly

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/metrics"
)

// DefaultIdleTTL bounds how long an incomplete buffer may sit untouched
// before a sweep discards it. The transport has no back-channel to request
// retransmission, so an abandoned partial message can never complete.
const DefaultIdleTTL = 30 * time.Second

// Fragment is one piece of a larger message: the owning message id (scoped
// per session), a 0-based index, the declared total, and the payload slice.
type Fragment struct {
	ID    string
	Index int
	Total int
	Data  string
}

type bufferKey struct {
	session int
	id      string
}

type buffer struct {
	slots   []string
	present []bool
	filled  int
	touched time.Time
}

// Reassembler accumulates fragments into complete messages. Buffers are keyed
// by (session, message id) and never shared across sessions.
type Reassembler struct {
	mu      sync.Mutex
	buffers map[bufferKey]*buffer
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithIdleTTL sets how long an incomplete buffer may idle before SweepIdle
// discards it. Zero disables idle eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Reassembler) { r.ttl = ttl }
}

// WithLogger configures a logger for discarded fragments and sweeps.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reassembler) { r.logger = logger }
}

// WithNow injects a clock, used by tests to drive idle eviction.
func WithNow(now func() time.Time) Option {
	return func(r *Reassembler) { r.now = now }
}

// WithMetrics wires the shared collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reassembler) { r.metrics = m }
}

// New creates an empty reassembler.
func New(opts ...Option) *Reassembler {
	r := &Reassembler{
		buffers: make(map[bufferKey]*buffer),
		ttl:     DefaultIdleTTL,
		now:     time.Now,
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Offer feeds one fragment. When the fragment completes its message, the
// reconstructed message is returned with done=true and the buffer is gone.
// Duplicates (an already-filled slot) are discarded without error and without
// altering the fill count. A fragment whose total disagrees with the open
// buffer for the same (session, id) is discarded with an error.
func (r *Reassembler) Offer(sessionID int, frag Fragment) (msg []byte, done bool, err error) {
	if frag.Total < 1 {
		return nil, false, fmt.Errorf("fragment %q: total %d out of range", frag.ID, frag.Total)
	}
	if frag.Index < 0 || frag.Index >= frag.Total {
		return nil, false, fmt.Errorf("fragment %q: index %d out of range [0,%d)", frag.ID, frag.Index, frag.Total)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := bufferKey{session: sessionID, id: frag.ID}
	buf, ok := r.buffers[key]
	if !ok {
		buf = &buffer{
			slots:   make([]string, frag.Total),
			present: make([]bool, frag.Total),
		}
		r.buffers[key] = buf
	}
	if len(buf.slots) != frag.Total {
		return nil, false, fmt.Errorf("fragment %q: total %d does not match open buffer of %d",
			frag.ID, frag.Total, len(buf.slots))
	}
	if buf.present[frag.Index] {
		// Duplicate delivery; no back-channel exists to complain on.
		r.logger.Debug("discarding duplicate fragment",
			"session", sessionID, "id", frag.ID, "index", frag.Index)
		r.metrics.DuplicateFragments.Inc()
		return nil, false, nil
	}

	buf.slots[frag.Index] = frag.Data
	buf.present[frag.Index] = true
	buf.filled++
	buf.touched = r.now()

	if buf.filled < len(buf.slots) {
		return nil, false, nil
	}

	delete(r.buffers, key)
	var b strings.Builder
	for _, slot := range buf.slots {
		b.WriteString(slot)
	}
	r.metrics.MessagesReassembled.Inc()
	return []byte(b.String()), true, nil
}

// DropSession discards every partial buffer owned by the session, returning
// how many were dropped. Called when a session closes mid-reassembly.
func (r *Reassembler) DropSession(sessionID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for key := range r.buffers {
		if key.session == sessionID {
			delete(r.buffers, key)
			dropped++
		}
	}
	return dropped
}

// SweepIdle discards incomplete buffers untouched for longer than the idle
// TTL and returns how many were evicted. A no-op when the TTL is zero.
func (r *Reassembler) SweepIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ttl <= 0 {
		return 0
	}

	cutoff := r.now().Add(-r.ttl)
	evicted := 0
	for key, buf := range r.buffers {
		if buf.touched.Before(cutoff) {
			delete(r.buffers, key)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug("evicted idle reassembly buffers", "count", evicted)
		r.metrics.BuffersEvicted.Add(float64(evicted))
	}
	return evicted
}

// Pending returns the number of open partial buffers.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
