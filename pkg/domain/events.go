package domain

import "time"

// EventType defines the category of a broker event.
type EventType string

const (
	// EventSessionAttached fires after a session joins the registry.
	EventSessionAttached EventType = "session_attached"

	// EventSessionDetached fires after a session leaves the registry,
	// whether from a voluntary disconnect or link loss.
	EventSessionDetached EventType = "session_detached"

	// EventRunPhase fires on every run state transition, in transition order.
	EventRunPhase EventType = "run_phase"

	// EventStepDone fires after one instruction has been dispatched to all
	// live sessions and its outcomes collected.
	EventStepDone EventType = "step_done"

	// EventCapabilities fires when a session's declared capability set is
	// replaced by a fresh tools/list response.
	EventCapabilities EventType = "capabilities"
)

// Event is the single notification record delivered to broker subscribers.
// Exactly one of the pointer fields is set, according to Type.
type Event struct {
	Type    EventType    `json:"type"`
	Time    time.Time    `json:"time"`
	Session *SessionInfo `json:"session,omitempty"`
	Run     *RunStatus   `json:"run,omitempty"`
	Step    *StepResult  `json:"step,omitempty"`
}
