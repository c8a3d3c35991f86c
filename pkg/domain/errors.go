package domain

import (
	"errors"
	"fmt"
)

// ErrActionNotFound is returned when an action ID cannot be found in the store.
var ErrActionNotFound = errors.New("action not found")

// ErrNoSessions is returned when a run is started with zero connected sessions.
var ErrNoSessions = errors.New("no connected sessions")

// ErrRunActive is returned when a run is started while another is still active.
// Start requests are rejected, never queued.
var ErrRunActive = errors.New("a run is already active")

// ErrSessionClosed is returned by writes against a session whose channel is gone.
var ErrSessionClosed = errors.New("session closed")

// ConnectionError reports a failed channel establishment (discovery or
// handshake). It is surfaced to the caller of Connect and not retried.
type ConnectionError struct {
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection to %q failed: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError reports a single failed write to one session. It is isolated per
// session: a SendError never aborts a fan-out dispatch or a run.
type SendError struct {
	SessionID   int
	SessionName string
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to session %d (%s) failed: %v", e.SessionID, e.SessionName, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// MalformedMessageError reports a reconstructed inbound message that failed to
// parse. The message is logged and dropped; the reassembly buffer is already
// gone so no retry is possible.
type MalformedMessageError struct {
	SessionID int
	Err       error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message from session %d: %v", e.SessionID, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// ValidationError reports an action or instruction that failed structural
// validation before being offered for execution.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
