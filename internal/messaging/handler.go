package messaging

import (
	"context"
	"time"

	"github.com/ghalamif/AegisWatt/internal/consumption"
	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// LineHandler decides what an inbound line from node means.
type LineHandler func(node domain.NodeID, line string) Action

// DefaultHandler classifies by marker only.
func DefaultHandler(_ domain.NodeID, line string) Action {
	return Classify(line)
}

// Dispatcher applies inbound line actions. Its HandleLine is handed to the
// transport as the per-line callback.
type Dispatcher struct {
	loop    *Loop
	stopper ports.NodeStopper
	obs     ports.Observability
	handler LineHandler
	record  consumption.EventRecorder
	timeout time.Duration
	base    context.Context
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLineHandler swaps the classification used for inbound lines.
func WithLineHandler(h LineHandler) DispatcherOption {
	return func(d *Dispatcher) {
		if h != nil {
			d.handler = h
		}
	}
}

// WithSelfStopRecorder receives an event for every honoured self-stop.
func WithSelfStopRecorder(fn consumption.EventRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.record = fn
		}
	}
}

// WithStopTimeout bounds the stop call made for a self-stop request.
func WithStopTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithBaseContext parents the self-stop calls, so cancelling ctx aborts a
// slow stop instead of holding up the reader that delivered the request.
func WithBaseContext(ctx context.Context) DispatcherOption {
	return func(d *Dispatcher) {
		if ctx != nil {
			d.base = ctx
		}
	}
}

func NewDispatcher(loop *Loop, stopper ports.NodeStopper, obs ports.Observability, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		loop:    loop,
		stopper: stopper,
		obs:     obs,
		handler: DefaultHandler,
		record:  func(domain.NodeEvent) {},
		timeout: 30 * time.Second,
		base:    context.Background(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// HandleLine surfaces line and applies its action. Lines for nodes whose
// channel is gone are still logged.
func (d *Dispatcher) HandleLine(node domain.NodeID, line string) Action {
	action := d.handler(node, line)
	d.obs.LogInfo("node_line",
		ports.Field{Key: "node", Value: node},
		ports.Field{Key: "line", Value: line})
	d.obs.IncCounter("aegiswatt_lines_received_total", 1, action.String())

	switch action {
	case ActionAckConsumption:
		if ch := d.loop.Channel(node); ch != nil {
			ch.Ack(KindConsumption)
		}
	case ActionAckTime:
		if ch := d.loop.Channel(node); ch != nil {
			ch.Ack(KindTime)
		}
	case ActionStopSelf:
		d.stopSelf(node)
	}
	return action
}

// stopSelf powers node off whatever its aggregator state. A node whose
// budget stop failed still gets its own shutdown honoured.
func (d *Dispatcher) stopSelf(node domain.NodeID) {
	ctx, cancel := context.WithTimeout(d.base, d.timeout)
	defer cancel()

	d.obs.LogInfo("self_stop_requested", ports.Field{Key: "node", Value: node})
	d.record(domain.NodeEvent{Node: node, Kind: domain.EventSelfStop, At: time.Now()})

	if err := d.stopper.StopNode(ctx, node); err != nil {
		d.obs.LogError("node_stop_failed", err,
			ports.Field{Key: "node", Value: node},
			ports.Field{Key: "reason", Value: consumption.ReasonSelfStop})
		d.obs.IncCounter("aegiswatt_node_stop_failures_total", 1)
		return
	}
	d.obs.IncCounter("aegiswatt_node_stops_total", 1, consumption.ReasonSelfStop)
	d.obs.LogInfo("node_stopped",
		ports.Field{Key: "node", Value: node},
		ports.Field{Key: "reason", Value: consumption.ReasonSelfStop})
}
