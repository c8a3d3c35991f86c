package domain

import "time"

// Mode selects how the engine traverses an action's instruction list.
type Mode string

const (
	// ModeSinglePass runs the instruction list once and stops.
	ModeSinglePass Mode = "single_pass"

	// ModeRepeat loops over the instruction list until a stop is requested.
	// A graceful stop is honored only at an iteration boundary.
	ModeRepeat Mode = "repeat"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	return m == ModeSinglePass || m == ModeRepeat
}

// Phase is the engine's run state machine position.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting"
	PhaseRunning   Phase = "running"
	PhaseStopping  Phase = "stopping"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Outcome records the result of delivering one command to one session.
type Outcome struct {
	SessionID   int    `json:"session_id"`
	SessionName string `json:"session_name"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the delivery succeeded.
func (o Outcome) OK() bool { return o.Error == "" }

// StepResult aggregates the fan-out outcomes of one executed instruction.
type StepResult struct {
	Iteration  int       `json:"iteration"`
	Index      int       `json:"index"`
	Capability string    `json:"capability"`
	Outcomes   []Outcome `json:"outcomes"`
}

// RunStatus is a point-in-time snapshot of the engine's run state.
type RunStatus struct {
	Phase      Phase     `json:"phase"`
	Mode       Mode      `json:"mode,omitempty"`
	ActionID   string    `json:"action_id,omitempty"`
	ActionName string    `json:"action_name,omitempty"`
	Step       int       `json:"step"`
	Iterations int       `json:"iterations"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// SessionInfo is the externally visible description of one connected session.
type SessionInfo struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connected_at"`
}
