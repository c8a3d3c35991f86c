package ensemble

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/bus"
	"github.com/ensemble-dev/ensemble/pkg/capability"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/engine"
	"github.com/ensemble-dev/ensemble/pkg/events"
	"github.com/ensemble-dev/ensemble/pkg/metrics"
	"github.com/ensemble-dev/ensemble/pkg/ports"
	"github.com/ensemble-dev/ensemble/pkg/reassembly"
	"github.com/ensemble-dev/ensemble/pkg/session"
	"github.com/ensemble-dev/ensemble/pkg/wire"
)

// DefaultSweepInterval is how often idle reassembly buffers are checked for
// eviction.
const DefaultSweepInterval = 10 * time.Second

// Orchestrator is the high-level entry point. It owns the session registry,
// the inbound message pipeline, and the execution engine, and is the
// composition root every serving surface drives.
type Orchestrator struct {
	store       ports.ActionStore
	dialer      ports.Dialer
	registry    *session.Registry
	reassembler *reassembly.Reassembler
	caps        *capability.Table
	bus         *bus.Bus
	engine      *engine.Engine
	broker      *events.Broker
	logger      *slog.Logger
	collector   *metrics.Metrics

	frameLimit int
	idleTTL    time.Duration
	sweepEvery time.Duration

	closeOnce sync.Once
	sweepStop chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics wires a collector set, usually metrics.New over a registry
// served at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.collector = m }
}

// WithFrameLimit overrides the outbound per-frame payload ceiling.
func WithFrameLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.frameLimit = limit
		}
	}
}

// WithIdleTTL overrides how long an incomplete reassembly buffer may sit
// untouched before eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.idleTTL = ttl }
}

// WithSweepInterval overrides the idle-buffer sweep cadence. Zero disables
// the background sweeper.
func WithSweepInterval(every time.Duration) Option {
	return func(o *Orchestrator) { o.sweepEvery = every }
}

// New assembles an Orchestrator over the given action store and device
// dialer.
func New(store ports.ActionStore, dialer ports.Dialer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		dialer:     dialer,
		caps:       capability.NewTable(),
		logger:     logging.NewNop(),
		collector:  metrics.NewNop(),
		frameLimit: wire.MaxFramePayload,
		idleTTL:    reassembly.DefaultIdleTTL,
		sweepEvery: DefaultSweepInterval,
		sweepStop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.broker = events.NewBroker(events.WithLogger(o.logger))
	o.reassembler = reassembly.New(
		reassembly.WithIdleTTL(o.idleTTL),
		reassembly.WithLogger(o.logger),
		reassembly.WithMetrics(o.collector),
	)
	o.registry = session.NewRegistry(
		session.WithFrameHandler(o.handleFrame),
		session.WithDetachHook(o.handleDetach),
		session.WithBroker(o.broker),
		session.WithLogger(o.logger),
		session.WithMetrics(o.collector),
	)
	o.bus = bus.New(o.registry,
		bus.WithLogger(o.logger),
		bus.WithMetrics(o.collector),
	)
	o.engine = engine.New(o.store, o.registry, o.bus, o.caps,
		engine.WithBroker(o.broker),
		engine.WithLogger(o.logger),
		engine.WithMetrics(o.collector),
		engine.WithFrameLimit(o.frameLimit),
	)

	if o.sweepEvery > 0 {
		go o.sweepLoop()
	}
	return o
}

// Connect establishes a session to a device matching the selector and asks
// it for its capability list. Connecting to an already-connected device is
// idempotent: the existing session is returned and no second channel is
// kept.
func (o *Orchestrator) Connect(ctx context.Context, selector ports.DeviceSelector) (domain.SessionInfo, error) {
	if selector.Name != "" {
		if existing, ok := o.registry.FindByName(selector.Name); ok {
			return existing.Info(), nil
		}
	}

	ch, name, err := o.dialer.Dial(ctx, selector)
	if err != nil {
		return domain.SessionInfo{}, err
	}

	// A prefix dial may land on a device that connected in the meantime.
	if existing, ok := o.registry.FindByName(name); ok {
		_ = ch.Close()
		return existing.Info(), nil
	}

	s := o.registry.Attach(ch, name)
	if err := o.requestCapabilities(ctx, s); err != nil {
		o.logger.Warn("capability discovery request failed", "session", s.ID(), "err", err)
	}
	return s.Info(), nil
}

// Attach registers an already-established channel, for transports where the
// device dials the coordinator. Like Connect it is idempotent by device
// name and kicks off capability discovery.
func (o *Orchestrator) Attach(ctx context.Context, ch ports.Channel, name string) (domain.SessionInfo, error) {
	if existing, ok := o.registry.FindByName(name); ok {
		_ = ch.Close()
		return existing.Info(), nil
	}
	s := o.registry.Attach(ch, name)
	if err := o.requestCapabilities(ctx, s); err != nil {
		o.logger.Warn("capability discovery request failed", "session", s.ID(), "err", err)
	}
	return s.Info(), nil
}

// Disconnect tears down the identified session. Unknown identities are a
// no-op.
func (o *Orchestrator) Disconnect(id int) {
	o.registry.Remove(id)
}

// Devices lists the connected sessions in attach order.
func (o *Orchestrator) Devices() []domain.SessionInfo {
	live := o.registry.Snapshot()
	out := make([]domain.SessionInfo, len(live))
	for n, s := range live {
		out[n] = s.Info()
	}
	return out
}

// Capabilities returns the union of every session's declared capabilities.
func (o *Orchestrator) Capabilities() []domain.Capability {
	return o.caps.All()
}

// RefreshCapabilities re-requests the capability list from every session.
// Updated tables arrive asynchronously through the inbound pipeline.
func (o *Orchestrator) RefreshCapabilities(ctx context.Context) []domain.Outcome {
	frames, err := o.discoveryFrames()
	if err != nil {
		o.logger.Error("encode capability discovery", "err", err)
		return nil
	}
	return o.bus.Dispatch(ctx, frames)
}

// Run starts the named action. See engine.Engine.Start for the rejection
// cases.
func (o *Orchestrator) Run(ctx context.Context, actionID string, mode domain.Mode) error {
	return o.engine.Start(ctx, actionID, mode)
}

// Stop requests a graceful stop at the next iteration boundary.
func (o *Orchestrator) Stop() {
	o.engine.Stop()
}

// ForceStop aborts the active run immediately.
func (o *Orchestrator) ForceStop() {
	o.engine.ForceStop()
}

// Status reports the current run state.
func (o *Orchestrator) Status() domain.RunStatus {
	return o.engine.Status()
}

// Events subscribes to the notification stream: session membership, run
// phases, step outcomes, and capability refreshes. The returned cancel
// releases the subscription.
func (o *Orchestrator) Events() (<-chan domain.Event, func()) {
	return o.broker.Subscribe()
}

// Store exposes the underlying action store for the serving surfaces.
func (o *Orchestrator) Store() ports.ActionStore {
	return o.store
}

// Close disconnects every session and stops the background sweeper.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.sweepStop)
		o.registry.CloseAll()
	})
}

func (o *Orchestrator) discoveryFrames() ([][]byte, error) {
	env, err := wire.NewToolsList()
	if err != nil {
		return nil, err
	}
	return wire.Frames(env, o.frameLimit)
}

func (o *Orchestrator) requestCapabilities(ctx context.Context, s *session.Session) error {
	frames, err := o.discoveryFrames()
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := s.Write(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// handleFrame is the inbound pipeline: every frame of every session lands
// here, in arrival order. Chunk envelopes feed the reassembler; everything
// else is a complete message.
func (o *Orchestrator) handleFrame(s *session.Session, frame []byte) {
	env, err := wire.Parse(frame)
	if err != nil {
		o.dropMalformed(s, err)
		return
	}

	if env.Type != wire.TypeChunk {
		o.handleMessage(s, env)
		return
	}

	msg, done, err := o.reassembler.Offer(s.ID(), reassembly.Fragment{
		ID:    env.ID,
		Index: env.Index,
		Total: env.Total,
		Data:  env.Data,
	})
	if err != nil {
		o.dropMalformed(s, err)
		return
	}
	if !done {
		return
	}

	inner, err := wire.Parse(msg)
	if err != nil {
		o.dropMalformed(s, err)
		return
	}
	o.handleMessage(s, inner)
}

// handleMessage consumes one complete inbound message. Capability lists feed
// the table; anything else is informational.
func (o *Orchestrator) handleMessage(s *session.Session, env wire.Envelope) {
	switch env.Type {
	case wire.TypeRPCResponse:
		resp, err := wire.ParseResponse(env)
		if err != nil {
			o.dropMalformed(s, err)
			return
		}
		if resp.Error != nil {
			o.logger.Warn("device reported rpc error", "session", s.ID(), "code", resp.Error.Code, "message", resp.Error.Message)
			return
		}
		var list wire.ToolListResult
		if err := json.Unmarshal(resp.Result, &list); err == nil && list.Tools != nil {
			o.caps.Replace(s.ID(), list.Tools)
			o.logger.Info("capabilities updated", "session", s.ID(), "count", len(list.Tools))
			o.broker.Publish(domain.Event{Type: domain.EventCapabilities, Session: infoPtr(s)})
			return
		}
		o.logger.Debug("rpc call result", "session", s.ID())

	case wire.TypeText:
		o.logger.Info("device text", "session", s.ID(), "text", env.Text)

	default:
		// Devices do not issue requests to the coordinator.
		o.logger.Debug("ignoring inbound message", "session", s.ID(), "type", string(env.Type))
	}
}

func (o *Orchestrator) dropMalformed(s *session.Session, err error) {
	o.collector.MalformedMessages.Inc()
	merr := &domain.MalformedMessageError{SessionID: s.ID(), Err: err}
	o.logger.Warn("dropping malformed message", "session", s.ID(), "err", merr)
}

// handleDetach discards all per-session state once a session has left the
// registry.
func (o *Orchestrator) handleDetach(id int) {
	if n := o.reassembler.DropSession(id); n > 0 {
		o.logger.Debug("discarded partial messages", "session", id, "count", n)
	}
	o.caps.DropSession(id)
}

func (o *Orchestrator) sweepLoop() {
	ticker := time.NewTicker(o.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.reassembler.SweepIdle()
		case <-o.sweepStop:
			return
		}
	}
}

func infoPtr(s *session.Session) *domain.SessionInfo {
	info := s.Info()
	return &info
}
