package aegiswatt

import (
	base "github.com/ghalamif/AegisWatt/pkg/aegiswatt"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrLineFeedClosed    = base.ErrLineFeedClosed
	ErrNoSource          = base.ErrNoSource
)

// Type aliases so consumers can import github.com/ghalamif/AegisWatt directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	ExperimentConfig = base.ExperimentConfig
	NodesConfig      = base.NodesConfig
	LoopConfig       = base.LoopConfig
	TransportConfig  = base.TransportConfig
	MQTTConfig       = base.MQTTConfig
	JournalConfig    = base.JournalConfig
	RedisConfig      = base.RedisConfig
	MetricsConfig    = base.MetricsConfig
	LogConfig        = base.LogConfig
	BudgetEntry      = base.BudgetEntry
	Flow             = base.Flow
	FlowOption       = base.FlowOption
	StreamInOption   = base.StreamInOption
	StreamOutOption  = base.StreamOutOption
	Runtime          = base.Runtime
	RuntimeOption    = base.RuntimeOption
	NodeID           = base.NodeID
	NodeStatus       = base.NodeStatus
	Event            = base.Event
	EventBatchSink   = base.EventBatchSink
	Experiment       = base.Experiment
	LogSource        = base.LogSource
	LogSourceOpener  = base.LogSourceOpener
	Transport        = base.Transport
	NodeChannel      = base.NodeChannel
	LineFunc         = base.LineFunc
	LineHandler      = base.LineHandler
	Action           = base.Action
	EventSink        = base.EventSink
	EventQueue       = base.EventQueue
	StateMirror      = base.StateMirror
	Observability    = base.Observability
	LineFeed         = base.LineFeed
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseBudgets(s string) ([]BudgetEntry, error) {
	return base.ParseBudgets(s)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInExperiment(exp Experiment) StreamInOption {
	return base.StreamInExperiment(exp)
}

func StreamInLogs(op LogSourceOpener) StreamInOption {
	return base.StreamInLogs(op)
}

func StreamInTransport(t Transport) StreamInOption {
	return base.StreamInTransport(t)
}

func StreamInLineHandler(h LineHandler) StreamInOption {
	return base.StreamInLineHandler(h)
}

func StreamOutSink(s EventSink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutCallback(name string, fn EventBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutMirror(m StateMirror) StreamOutOption {
	return base.StreamOutMirror(m)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithExperiment(exp Experiment) RuntimeOption {
	return base.WithExperiment(exp)
}

func WithLogSourceOpener(op LogSourceOpener) RuntimeOption {
	return base.WithLogSourceOpener(op)
}

func WithTransport(t Transport) RuntimeOption {
	return base.WithTransport(t)
}

func WithEventSink(s EventSink) RuntimeOption {
	return base.WithEventSink(s)
}

func WithEventQueue(q EventQueue) RuntimeOption {
	return base.WithEventQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithStateMirror(m StateMirror) RuntimeOption {
	return base.WithStateMirror(m)
}

func WithLineHandler(h LineHandler) RuntimeOption {
	return base.WithLineHandler(h)
}

// Sink adapters.
func NewCallbackSink(name string, fn EventBatchSink) EventSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (EventSink, <-chan []Event, func()) {
	return base.NewChannelSink(name, buffer)
}

// In-memory consumption logs.
func NewLineFeed() *LineFeed {
	return base.NewLineFeed()
}

// Classify maps an inbound node line to its action.
func Classify(line string) Action {
	return base.Classify(line)
}
