package consumption

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/energy"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// NodeState is the aggregator's view of a node.
type NodeState int

const (
	StateUnknown NodeState = iota
	StateActive
	StateStopped
)

func (s NodeState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stop reasons recorded in logs, metrics and the journal.
const (
	ReasonBudget   = "budget"
	ReasonSelfStop = "self"
)

// EventRecorder receives node lifecycle events. It must not block.
type EventRecorder func(domain.NodeEvent)

// Reading is a point-in-time copy of an active node's energy.
type Reading struct {
	EnergyWs  float64
	Known     bool
	BudgetWs  float64
	HasBudget bool
	Percent   float64
}

type entry struct {
	mu      sync.Mutex
	tracker *energy.Tracker
	source  ports.LogSource
	state   NodeState
	// closed is set once source has been released.
	closed bool
}

// Aggregator owns one tracker per monitored node and the poll loop that
// feeds them. Membership is guarded by mu; each entry carries its own lock so
// nodes never contend with each other.
type Aggregator struct {
	mu      sync.RWMutex
	entries map[domain.NodeID]*entry
	order   []domain.NodeID

	stopper ports.NodeStopper
	obs     ports.Observability
	record  EventRecorder
	now     func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithEventRecorder forwards lifecycle events, typically to the run journal.
func WithEventRecorder(fn EventRecorder) Option {
	return func(a *Aggregator) {
		a.record = fn
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// New opens a log source for every node. Nodes without a source are left
// out and reported as missing; any other open error aborts construction.
func New(nodes []domain.NodeID, budgets map[domain.NodeID]float64, opener ports.LogSourceOpener, stopper ports.NodeStopper, obs ports.Observability, opts ...Option) (*Aggregator, error) {
	if opener == nil {
		return nil, fmt.Errorf("log source opener is required")
	}
	if stopper == nil {
		return nil, fmt.Errorf("node stopper is required")
	}
	if obs == nil {
		return nil, fmt.Errorf("observability is required")
	}

	a := &Aggregator{
		entries: make(map[domain.NodeID]*entry, len(nodes)),
		stopper: stopper,
		obs:     obs,
		record:  func(domain.NodeEvent) {},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	for _, node := range nodes {
		if _, dup := a.entries[node]; dup {
			continue
		}
		src, err := opener.Open(node)
		if err != nil {
			if errors.Is(err, ports.ErrNoSource) {
				obs.LogInfo("consumption_source_missing", ports.Field{Key: "node", Value: node})
				a.emit(node, domain.EventMissingSource, 0, 0, "")
				continue
			}
			a.closeAll()
			return nil, fmt.Errorf("open log source for %s: %w", node, err)
		}

		var tr *energy.Tracker
		if budget, ok := budgets[node]; ok {
			tr = energy.NewBudgetTracker(node, budget)
		} else {
			tr = energy.NewTracker(node)
		}
		a.entries[node] = &entry{tracker: tr, source: src, state: StateActive}
		a.order = append(a.order, node)

		budget, _ := tr.Budget()
		a.emit(node, domain.EventTracked, 0, budget, "")
	}
	obs.SetGauge("aegiswatt_active_nodes", float64(len(a.order)))
	return a, nil
}

// Run polls every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll drains every active node's log source once.
func (a *Aggregator) Poll(ctx context.Context) {
	start := time.Now()
	for _, node := range a.ActiveNodes() {
		if ctx.Err() != nil {
			return
		}
		a.pollNode(ctx, node)
	}
	a.obs.ObserveLatency("aegiswatt_poll_seconds", time.Since(start).Seconds())
}

func (a *Aggregator) pollNode(ctx context.Context, node domain.NodeID) {
	e := a.lookup(node)
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.state != StateActive || e.closed {
		e.mu.Unlock()
		return
	}
	lines, err := e.source.ReadAvailable()
	if err != nil {
		e.mu.Unlock()
		a.obs.LogError("consumption_read_failed", err, ports.Field{Key: "node", Value: node})
		return
	}
	if len(lines) == 0 {
		e.mu.Unlock()
		a.obs.LogInfo("consumption_no_new_data", ports.Field{Key: "node", Value: node})
		return
	}

	res := e.tracker.Ingest(lines)
	energyWs := e.tracker.Accumulated()
	ts, _ := e.tracker.LastTimestamp()
	if res.Exceeded != nil {
		a.retireLocked(node, e)
	}
	e.mu.Unlock()

	a.obs.IncCounter("aegiswatt_log_lines_total", float64(res.Read), string(node))
	a.obs.SetGauge("aegiswatt_node_energy_watt_seconds", energyWs, string(node))
	a.obs.LogInfo("consumption_read",
		ports.Field{Key: "node", Value: node},
		ports.Field{Key: "lines", Value: res.Read},
		ports.Field{Key: "records", Value: res.Valid},
		ports.Field{Key: "ts", Value: fmt.Sprintf("%.0f", ts)},
		ports.Field{Key: "energy_ws", Value: energyWs})

	if res.Exceeded != nil {
		a.obs.LogInfo("budget_exceeded",
			ports.Field{Key: "node", Value: node},
			ports.Field{Key: "energy_ws", Value: res.Exceeded.EnergyWs},
			ports.Field{Key: "budget_ws", Value: res.Exceeded.BudgetWs})
		a.emit(node, domain.EventBudgetExceeded, res.Exceeded.EnergyWs, res.Exceeded.BudgetWs, "")
		a.stop(ctx, node, ReasonBudget, res.Exceeded.EnergyWs, res.Exceeded.BudgetWs)
	}
}

// retireLocked flips the entry to stopped, releases its source and drops it
// from the active order. Callers hold e.mu.
func (a *Aggregator) retireLocked(node domain.NodeID, e *entry) {
	e.state = StateStopped
	if !e.closed {
		e.closed = true
		if err := e.source.Close(); err != nil {
			a.obs.LogError("consumption_source_close_failed", err, ports.Field{Key: "node", Value: node})
		}
	}

	a.mu.Lock()
	for i, n := range a.order {
		if n == node {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	active := len(a.order)
	a.mu.Unlock()
	a.obs.SetGauge("aegiswatt_active_nodes", float64(active))
}

// stop calls the stop collaborator once. Failures leave the node stopped
// locally and are not retried.
func (a *Aggregator) stop(ctx context.Context, node domain.NodeID, reason string, energyWs, budget float64) {
	a.emit(node, domain.EventStopRequested, energyWs, budget, reason)
	if err := a.stopper.StopNode(ctx, node); err != nil {
		a.obs.LogError("node_stop_failed", err,
			ports.Field{Key: "node", Value: node},
			ports.Field{Key: "reason", Value: reason})
		a.obs.IncCounter("aegiswatt_node_stop_failures_total", 1)
		a.emit(node, domain.EventStopFailed, energyWs, budget, err.Error())
		return
	}
	a.obs.IncCounter("aegiswatt_node_stops_total", 1, reason)
	a.obs.LogInfo("node_stopped",
		ports.Field{Key: "node", Value: node},
		ports.Field{Key: "reason", Value: reason})
}

// Accumulated returns the node's current energy. It is false for nodes that
// were never tracked.
func (a *Aggregator) Accumulated(node domain.NodeID) (float64, bool) {
	e := a.lookup(node)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Accumulated(), true
}

// Status reports whether node is tracked and still active.
func (a *Aggregator) Status(node domain.NodeID) NodeState {
	e := a.lookup(node)
	if e == nil {
		return StateUnknown
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reading copies node's energy figures. It is false unless the node is
// active. Callers must not do node I/O while relying on the result staying
// current; recheck Status instead.
func (a *Aggregator) Reading(node domain.NodeID) (Reading, bool) {
	e := a.lookup(node)
	if e == nil {
		return Reading{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return Reading{}, false
	}
	r := Reading{EnergyWs: e.tracker.Accumulated()}
	_, r.Known = e.tracker.LastTimestamp()
	r.BudgetWs, r.HasBudget = e.tracker.Budget()
	r.Percent, _ = e.tracker.Percent()
	return r, true
}

// ActiveNodes lists the active set in tracking order.
func (a *Aggregator) ActiveNodes() []domain.NodeID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.NodeID, len(a.order))
	copy(out, a.order)
	return out
}

// Snapshot returns the status of every tracked node, sorted by node id.
func (a *Aggregator) Snapshot() []ports.NodeStatus {
	a.mu.RLock()
	nodes := make([]domain.NodeID, 0, len(a.entries))
	for node := range a.entries {
		nodes = append(nodes, node)
	}
	a.mu.RUnlock()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	out := make([]ports.NodeStatus, 0, len(nodes))
	for _, node := range nodes {
		if st, ok := a.NodeStatus(node); ok {
			out = append(out, st)
		}
	}
	return out
}

// NodeStatus returns one node's status.
func (a *Aggregator) NodeStatus(node domain.NodeID) (ports.NodeStatus, bool) {
	e := a.lookup(node)
	if e == nil {
		return ports.NodeStatus{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st := ports.NodeStatus{
		Node:        node,
		State:       e.state.String(),
		EnergyWs:    e.tracker.Accumulated(),
		NetEnergyWs: e.tracker.Net(),
	}
	st.BudgetWs, st.HasBudget = e.tracker.Budget()
	st.Percent, _ = e.tracker.Percent()
	st.LastTimestamp, _ = e.tracker.LastTimestamp()
	return st, true
}

// Close releases every open source. Polling afterwards is a no-op; node
// states are left as they were so Snapshot still reports them.
func (a *Aggregator) Close() {
	a.closeAll()
}

func (a *Aggregator) closeAll() {
	a.mu.RLock()
	entries := make([]*entry, 0, len(a.entries))
	for _, e := range a.entries {
		entries = append(entries, e)
	}
	a.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if !e.closed {
			e.closed = true
			_ = e.source.Close()
		}
		e.mu.Unlock()
	}
}

func (a *Aggregator) lookup(node domain.NodeID) *entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.entries[node]
}

func (a *Aggregator) emit(node domain.NodeID, kind domain.EventKind, energyWs, budget float64, detail string) {
	a.record(domain.NodeEvent{
		Node:   node,
		Kind:   kind,
		Energy: energyWs,
		Budget: budget,
		Detail: detail,
		At:     a.now(),
	})
}
