package domain

import "time"

// EventKind names a node lifecycle transition recorded in the run journal.
type EventKind string

const (
	EventTracked        EventKind = "tracked"
	EventMissingSource  EventKind = "missing_source"
	EventBudgetExceeded EventKind = "budget_exceeded"
	EventStopRequested  EventKind = "stop_requested"
	EventStopFailed     EventKind = "stop_failed"
	EventSelfStop       EventKind = "self_stop"
)

// NodeEvent is a journal entry. Energy and Budget are in watt-seconds; Budget is
// zero when the node has no budget.
type NodeEvent struct {
	RunID  string    `json:"run_id"`
	Node   NodeID    `json:"node"`
	Kind   EventKind `json:"kind"`
	Energy float64   `json:"energy_ws"`
	Budget float64   `json:"budget_ws"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}
