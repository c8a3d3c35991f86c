// Package engine owns the run state machine: it steps an action's
// instruction list against every live session, in single-pass or repeat
// mode, bracketing each run with start and stop broadcast signals.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/bus"
	"github.com/ensemble-dev/ensemble/pkg/capability"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/events"
	"github.com/ensemble-dev/ensemble/pkg/metrics"
	"github.com/ensemble-dev/ensemble/pkg/ports"
	"github.com/ensemble-dev/ensemble/pkg/session"
	"github.com/ensemble-dev/ensemble/pkg/wire"
)

// StartSignalPrefix prefixes the text broadcast announcing a run start.
const StartSignalPrefix = "start:"

// SleepFunc suspends between instructions. It must return early when the
// context is canceled, which is how a forced stop cuts a delay short.
type SleepFunc func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Engine drives runs. At most one run is active at a time; a start request
// while one is active is rejected, never queued.
type Engine struct {
	store      ports.ActionStore
	registry   *session.Registry
	bus        *bus.Bus
	caps       *capability.Table
	broker     *events.Broker
	logger     *slog.Logger
	collector  *metrics.Metrics
	frameLimit int
	sleep      SleepFunc

	mu            sync.Mutex
	status        domain.RunStatus
	stopRequested bool
	cancel        context.CancelFunc

	// running is the forced-stop flag, checked before every instruction.
	running atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBroker sets the broker receiving run and step events.
func WithBroker(b *events.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics wires the shared collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.collector = m }
}

// WithFrameLimit overrides the per-frame payload ceiling used when splitting
// outbound messages into chunks.
func WithFrameLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.frameLimit = limit
		}
	}
}

// WithSleep injects the inter-instruction suspension, used by tests.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// New creates an idle engine.
func New(store ports.ActionStore, registry *session.Registry, b *bus.Bus, caps *capability.Table, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		registry:   registry,
		bus:        b,
		caps:       caps,
		broker:     events.NewBroker(),
		logger:     logging.NewNop(),
		collector:  metrics.NewNop(),
		frameLimit: wire.MaxFramePayload,
		sleep:      defaultSleep,
	}
	e.status.Phase = domain.PhaseIdle
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a run of the named action. It returns domain.ErrRunActive if
// a run is already active, domain.ErrActionNotFound if the action is
// unknown, domain.ErrNoSessions with zero connected sessions, and a
// validation error if the action or its arguments fail structural checks.
// The instruction list is snapshotted here; concurrent edits are not
// observed mid-run.
func (e *Engine) Start(ctx context.Context, actionID string, mode domain.Mode) error {
	if !mode.Valid() {
		return &domain.ValidationError{Field: "mode", Reason: "must be single_pass or repeat"}
	}

	e.mu.Lock()
	if e.status.Phase != domain.PhaseIdle {
		e.mu.Unlock()
		return domain.ErrRunActive
	}
	// Reserve the run slot before the first suspension point so a racing
	// start observes non-Idle.
	e.status = domain.RunStatus{Phase: domain.PhaseStarting, Mode: mode, ActionID: actionID}
	e.mu.Unlock()

	abort := func() {
		e.mu.Lock()
		e.status.Phase = domain.PhaseIdle
		e.mu.Unlock()
	}

	action, err := e.store.Load(ctx, actionID)
	if err != nil {
		abort()
		return err
	}
	if err := action.Validate(); err != nil {
		abort()
		return err
	}
	for _, in := range action.Instructions {
		if err := e.caps.ValidateInstruction(in); err != nil {
			abort()
			return err
		}
	}
	if e.registry.Count() == 0 {
		abort()
		return domain.ErrNoSessions
	}

	snapshot := action.Clone()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	e.mu.Lock()
	e.cancel = cancel
	e.stopRequested = false
	e.status.ActionName = snapshot.Name
	e.status.StartedAt = time.Now()
	e.mu.Unlock()
	e.running.Store(true)

	e.publishPhase()
	go e.run(runCtx, cancel, snapshot, mode)
	return nil
}

// Stop requests a graceful stop. In repeat mode the run exits at the next
// iteration boundary, after the current pass over the instruction list has
// fully completed, so no device is left mid-gesture. In single-pass mode it
// has no additional effect: the list already ends.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopRequested = true
	e.mu.Unlock()
}

// ForceStop aborts the run at the next per-instruction check, cutting any
// in-progress delay short. Devices may be left mid-sequence; the stop
// bracket broadcast still fires as compensation.
func (e *Engine) ForceStop() {
	e.running.Store(false)
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}

// Status returns a snapshot of the run state. After a run finishes the phase
// reads Idle while the rest of the fields describe the last run.
func (e *Engine) Status() domain.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// run executes one complete run. The stop bracket broadcast fires exactly
// once on every exit path: normal completion, graceful stop, forced stop,
// and failure.
func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, action *domain.Action, mode domain.Mode) {
	defer cancel()

	e.broadcastStart(ctx, action)
	e.transition(domain.PhaseRunning, nil)

	var runErr error
	iteration := 0

pass:
	for {
		for idx, in := range action.Instructions {
			if !e.running.Load() {
				break pass
			}

			env, err := wire.NewToolCall(in.Capability, in.Args)
			if err != nil {
				runErr = err
				break pass
			}
			frames, err := wire.Frames(env, e.frameLimit)
			if err != nil {
				runErr = err
				break pass
			}

			outcomes := e.bus.Dispatch(ctx, frames)
			e.mu.Lock()
			e.status.Step = idx
			e.mu.Unlock()
			e.broker.Publish(domain.Event{
				Type: domain.EventStepDone,
				Step: &domain.StepResult{
					Iteration:  iteration,
					Index:      idx,
					Capability: in.Capability,
					Outcomes:   outcomes,
				},
			})

			e.sleep(ctx, in.Delay())
		}

		iteration++
		e.mu.Lock()
		e.status.Iterations = iteration
		stop := e.stopRequested
		e.mu.Unlock()

		if mode == domain.ModeSinglePass || stop || !e.running.Load() {
			break
		}
	}

	e.transition(domain.PhaseStopping, nil)
	// A forced stop cancels ctx, which would make every context-aware
	// transport write fail and leave devices running. The stop bracket must
	// outlive the cancellation.
	e.broadcastStop(context.WithoutCancel(ctx))

	if runErr != nil {
		e.logger.Error("run failed", "action", action.ID, "err", runErr)
		e.collector.RunsTotal.WithLabelValues("failed").Inc()
		e.transition(domain.PhaseFailed, runErr)
	} else {
		e.collector.RunsTotal.WithLabelValues("completed").Inc()
		e.transition(domain.PhaseCompleted, nil)
	}

	// Back to Idle once observers have been notified of the terminal phase.
	e.mu.Lock()
	e.status.Phase = domain.PhaseIdle
	e.mu.Unlock()
}

// broadcastStart announces the run to every session. Best effort: individual
// delivery failures are logged and never block entry into Running.
func (e *Engine) broadcastStart(ctx context.Context, action *domain.Action) {
	frames, err := wire.Frames(wire.NewText(StartSignalPrefix+action.Name), e.frameLimit)
	if err != nil {
		e.logger.Warn("encode start signal", "err", err)
		return
	}
	for _, outcome := range e.bus.Dispatch(ctx, frames) {
		if !outcome.OK() {
			e.logger.Warn("start signal not delivered", "session", outcome.SessionID, "err", outcome.Error)
		}
	}
}

// broadcastStop invokes the reserved stop capability on every session,
// resetting devices to their rest state.
func (e *Engine) broadcastStop(ctx context.Context) {
	env, err := wire.NewToolCall(wire.StopCapability, nil)
	if err != nil {
		e.logger.Warn("encode stop signal", "err", err)
		return
	}
	frames, err := wire.Frames(env, e.frameLimit)
	if err != nil {
		e.logger.Warn("encode stop signal", "err", err)
		return
	}
	for _, outcome := range e.bus.Dispatch(ctx, frames) {
		if !outcome.OK() {
			e.logger.Warn("stop signal not delivered", "session", outcome.SessionID, "err", outcome.Error)
		}
	}
}

func (e *Engine) publishPhase() {
	e.mu.Lock()
	snap := e.status
	e.mu.Unlock()
	e.broker.Publish(domain.Event{Type: domain.EventRunPhase, Run: &snap})
}

func (e *Engine) transition(phase domain.Phase, runErr error) {
	e.mu.Lock()
	e.status.Phase = phase
	if runErr != nil {
		e.status.Error = runErr.Error()
	}
	snap := e.status
	e.mu.Unlock()
	e.broker.Publish(domain.Event{Type: domain.EventRunPhase, Run: &snap})
}
