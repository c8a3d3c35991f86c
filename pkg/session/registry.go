package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/events"
	"github.com/ensemble-dev/ensemble/pkg/metrics"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

// FrameHandler receives every inbound frame of a session, in arrival order.
type FrameHandler func(s *Session, frame []byte)

// Registry owns the authoritative set of live sessions. It is the single
// writer of session membership; everything else reads snapshots.
type Registry struct {
	mu   sync.Mutex
	next int
	live []*Session
	byID map[int]*Session

	onFrame   FrameHandler
	onDetach  func(id int)
	broker    *events.Broker
	logger    *slog.Logger
	collector *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithFrameHandler sets the handler invoked for every inbound frame.
func WithFrameHandler(fn FrameHandler) Option {
	return func(r *Registry) { r.onFrame = fn }
}

// WithDetachHook sets a hook invoked after a session has left the registry,
// before the detach event is published. Used to discard per-session state
// such as partial reassembly buffers.
func WithDetachHook(fn func(id int)) Option {
	return func(r *Registry) { r.onDetach = fn }
}

// WithBroker sets the broker receiving membership-change events.
func WithBroker(b *events.Broker) Option {
	return func(r *Registry) { r.broker = b }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics wires the shared collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.collector = m }
}

// NewRegistry creates an empty registry. Identities start at 1 and increase
// monotonically; an identity is never reassigned for the process lifetime.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		next:      1,
		byID:      make(map[int]*Session),
		onFrame:   func(*Session, []byte) {},
		onDetach:  func(int) {},
		broker:    events.NewBroker(),
		logger:    logging.NewNop(),
		collector: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach registers a session for an established channel, assigns the next
// unused identity, and starts delivering its inbound frames. Every attach
// fires one membership-change event.
func (r *Registry) Attach(ch ports.Channel, name string) *Session {
	s := &Session{
		name:        name,
		connectedAt: time.Now(),
		ch:          ch,
		logger:      r.logger,
		done:        make(chan struct{}),
	}

	r.mu.Lock()
	s.id = r.next
	r.next++
	r.live = append(r.live, s)
	r.byID[s.id] = s
	count := len(r.live)
	r.mu.Unlock()

	r.collector.LiveSessions.Set(float64(count))
	r.logger.Info("session attached", "session", s.id, "name", name)
	r.broker.Publish(domain.Event{Type: domain.EventSessionAttached, Session: ptr(s.Info())})

	go s.readLoop(r.handleFrame, r.handleClosed)
	return s
}

// Remove disconnects and discards a session. Removing an absent identity is
// a no-op: disconnect notifications race with explicit disconnect requests.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	s, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	// Closing the channel drives the read loop onto the common detach path.
	if err := s.Close(); err != nil {
		r.logger.Debug("close on remove", "session", id, "err", err)
	}
}

// Snapshot returns an immutable point-in-time view of the live sessions, in
// attach order. Later membership changes never invalidate a taken snapshot.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, len(r.live))
	copy(out, r.live)
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Get looks up a live session by identity.
func (r *Registry) Get(id int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// FindByName returns the live session connected to the named device, if any.
// Used to keep Connect idempotent by device identity.
func (r *Registry) FindByName(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.live {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// CloseAll disconnects every live session.
func (r *Registry) CloseAll() {
	for _, s := range r.Snapshot() {
		r.Remove(s.ID())
	}
}

func (r *Registry) handleFrame(s *Session, frame []byte) {
	r.collector.FramesIn.Inc()
	r.onFrame(s, frame)
}

// handleClosed runs exactly once per session, from its read loop exit.
func (r *Registry) handleClosed(s *Session) {
	r.mu.Lock()
	if _, ok := r.byID[s.id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, s.id)
	for n, live := range r.live {
		if live.id == s.id {
			r.live = append(r.live[:n], r.live[n+1:]...)
			break
		}
	}
	count := len(r.live)
	r.mu.Unlock()

	r.collector.LiveSessions.Set(float64(count))
	r.onDetach(s.id)
	r.logger.Info("session detached", "session", s.id, "name", s.name)
	r.broker.Publish(domain.Event{Type: domain.EventSessionDetached, Session: ptr(s.Info())})
}

func ptr[T any](v T) *T { return &v }
