package aegiswatt

import (
	"github.com/ghalamif/AegisWatt/internal/consumption"
	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/messaging"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// NodeID identifies a testbed node by hostname.
type NodeID = domain.NodeID

// Event is a node lifecycle entry recorded in the run journal.
type Event = domain.NodeEvent

// EventKind names a lifecycle transition.
type EventKind = domain.EventKind

// NodeStatus is a point-in-time view of one tracked node.
type NodeStatus = ports.NodeStatus

// NodeState is the aggregator's view of a node.
type NodeState = consumption.NodeState

// Experiment waits for, lists and stops nodes of a testbed experiment.
type Experiment = ports.Experiment

// NodeStopper powers a node off.
type NodeStopper = ports.NodeStopper

// LogSource yields newly appended consumption log lines.
type LogSource = ports.LogSource

// LogSourceOpener opens a node's consumption log.
type LogSourceOpener = ports.LogSourceOpener

// Transport opens line-oriented serial channels to nodes.
type Transport = ports.Transport

// NodeChannel is an open serial channel to one node.
type NodeChannel = ports.NodeChannel

// LineFunc receives inbound node lines.
type LineFunc = ports.LineFunc

// EventQueue buffers journal events ahead of the sink.
type EventQueue = ports.EventQueue

// EventSink persists batches of journal events.
type EventSink = ports.EventSink

// StateMirror publishes live node status.
type StateMirror = ports.StateMirror

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// LineHandler classifies inbound node lines.
type LineHandler = messaging.LineHandler

// Action is what an inbound line asks the runtime to do.
type Action = messaging.Action

// Inbound line actions.
const (
	ActionInfo           = messaging.ActionInfo
	ActionAckConsumption = messaging.ActionAckConsumption
	ActionAckTime        = messaging.ActionAckTime
	ActionStopSelf       = messaging.ActionStopSelf
)

// Node states.
const (
	StateUnknown = consumption.StateUnknown
	StateActive  = consumption.StateActive
	StateStopped = consumption.StateStopped
)

// ErrNoSource is returned by a LogSourceOpener when a node has no log yet.
var ErrNoSource = ports.ErrNoSource

// Classify applies the default marker matching to a line.
func Classify(line string) Action {
	return messaging.Classify(line)
}
