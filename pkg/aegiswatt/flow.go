package aegiswatt

import (
	"context"
	"fmt"
)

// Flow is a convenience builder: Conf → StreamIN (where node data comes
// from) → StreamOUT (where events go) → Run.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

type (
	// FlowOption mutates the Flow after configuration is loaded.
	FlowOption func(*Flow)
	// StreamInOption picks the experiment, consumption logs, transport and
	// inbound line handling.
	StreamInOption func(*Flow)
	// StreamOutOption picks the journal sink, state mirror and observability.
	StreamOutOption func(*Flow)
)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		f.apply(opt)
	}
	return f, nil
}

// Config exposes the loaded configuration so callers can adjust it (for
// example from command-line flags) before StreamOUT.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values for advanced scenarios.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		f.apply(withRuntime(opt != nil, opt))
	}
	return f
}

func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		f.apply(opt)
	}
	return f
}

// StreamOUT applies the output options and builds a Runtime ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		f.apply(opt)
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func (f *Flow) apply(opt func(*Flow)) {
	if opt != nil {
		opt(f)
	}
}

// withRuntime records opt when ok; nil adapters are ignored so callers can
// pass optional values straight through.
func withRuntime(ok bool, opt RuntimeOption) func(*Flow) {
	return func(f *Flow) {
		if f != nil && ok {
			f.opts = append(f.opts, opt)
		}
	}
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) { f.Options(opts...) }
}

func StreamInExperiment(exp Experiment) StreamInOption {
	return withRuntime(exp != nil, WithExperiment(exp))
}

// StreamInLogs reads consumption logs from op instead of the OML files.
func StreamInLogs(op LogSourceOpener) StreamInOption {
	return withRuntime(op != nil, WithLogSourceOpener(op))
}

func StreamInTransport(t Transport) StreamInOption {
	return withRuntime(t != nil, WithTransport(t))
}

// StreamInLineHandler overrides how inbound node lines are classified.
func StreamInLineHandler(h LineHandler) StreamInOption {
	return withRuntime(h != nil, WithLineHandler(h))
}

func StreamOutSink(s EventSink) StreamOutOption {
	return withRuntime(s != nil, WithEventSink(s))
}

// StreamOutCallback journals events through a plain function.
func StreamOutCallback(name string, fn EventBatchSink) StreamOutOption {
	return withRuntime(true, WithEventSink(NewCallbackSink(name, fn)))
}

func StreamOutMirror(m StateMirror) StreamOutOption {
	return withRuntime(m != nil, WithStateMirror(m))
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return withRuntime(obs != nil, WithObservability(obs))
}
