// Package bus fans a single logical command out to every live session and
// aggregates per-session outcomes. One session's failure never blocks the
// others.
package bus

import (
	"context"
	"log/slog"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/metrics"
	"github.com/ensemble-dev/ensemble/pkg/session"
)

// Bus delivers pre-serialized command frames to the registry's live sessions.
// Commands larger than one transport frame must already be split into chunk
// envelopes by the caller; the bus never fragments.
type Bus struct {
	registry  *session.Registry
	logger    *slog.Logger
	collector *metrics.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger configures a logger for per-session send failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithMetrics wires the shared collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) { b.collector = m }
}

// New creates a bus over the registry.
func New(registry *session.Registry, opts ...Option) *Bus {
	b := &Bus{
		registry:  registry,
		logger:    logging.NewNop(),
		collector: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dispatch writes the command's frames to every session live at dispatch
// start, in registry-snapshot order, and returns exactly one outcome entry
// per such session. A failing session is recorded and skipped past, never
// allowed to abort the remaining sessions. All outcomes are collected before
// Dispatch returns; there is no command-level pipelining.
func (b *Bus) Dispatch(ctx context.Context, frames [][]byte) []domain.Outcome {
	snapshot := b.registry.Snapshot()
	outcomes := make([]domain.Outcome, 0, len(snapshot))

	for _, s := range snapshot {
		outcome := domain.Outcome{SessionID: s.ID(), SessionName: s.Name()}
		for _, frame := range frames {
			if err := s.Write(ctx, frame); err != nil {
				sendErr := &domain.SendError{SessionID: s.ID(), SessionName: s.Name(), Err: err}
				b.logger.Warn("dispatch write failed", "session", s.ID(), "name", s.Name(), "err", err)
				b.collector.SendFailures.Inc()
				outcome.Error = sendErr.Error()
				break
			}
			b.collector.FramesOut.Inc()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
