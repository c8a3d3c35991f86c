// Package session owns the live set of device sessions. A Session wraps one
// established channel; the Registry assigns identities, tracks membership,
// and broadcasts attach/detach notifications.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

// Session represents one connected device and its byte-level I/O. It is
// created and exclusively owned by the Registry.
type Session struct {
	id          int
	name        string
	connectedAt time.Time
	ch          ports.Channel
	logger      *slog.Logger

	doneOnce sync.Once
	done     chan struct{}
}

// ID returns the session's registry-assigned identity, stable for its
// lifetime and never reused within the process.
func (s *Session) ID() int { return s.id }

// Name returns the device's advertised display name.
func (s *Session) Name() string { return s.name }

// ConnectedAt returns when the channel was established.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Info returns the externally visible description of the session.
func (s *Session) Info() domain.SessionInfo {
	return domain.SessionInfo{ID: s.id, Name: s.name, ConnectedAt: s.connectedAt}
}

// Write sends a single frame to the device. A failed write means this one
// frame did not arrive, not that the session is dead; session death is
// reported separately through the registry's detach notification.
func (s *Session) Write(ctx context.Context, frame []byte) error {
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}
	return s.ch.Write(ctx, frame)
}

// Close voluntarily tears down the channel. The read loop observes the loss
// and takes the same detach path as an involuntary one, so the detach
// notification still fires exactly once.
func (s *Session) Close() error {
	return s.ch.Close()
}

// Done is closed when the session's channel is gone.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// readLoop delivers inbound frames in arrival order until the channel dies,
// then reports the loss once. No de-duplication happens here; that is the
// reassembler's job.
func (s *Session) readLoop(onFrame func(*Session, []byte), onClosed func(*Session)) {
	for {
		frame, err := s.ch.Read(context.Background())
		if err != nil {
			s.logger.Debug("session channel closed", "session", s.id, "name", s.name, "err", err)
			s.markDone()
			onClosed(s)
			return
		}
		onFrame(s, frame)
	}
}
