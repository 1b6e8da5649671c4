package consumption

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

func record(sec uint32, power float64) string {
	return fmt.Sprintf("%d.000000\t1\t1\t%d\t0\t%g\t5.0\t0.1", sec, sec, power)
}

func TestAggregatorStopsNodeOverBudget(t *testing.T) {
	opener := newMockOpener("n1", "n2")
	stopper := &mockStopper{}
	obs := &mockObs{}
	var events []domain.NodeEvent

	agg, err := New([]domain.NodeID{"n1", "n2"}, map[domain.NodeID]float64{"n2": 10}, opener, stopper, obs,
		WithEventRecorder(func(ev domain.NodeEvent) { events = append(events, ev) }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	opener.push("n1", record(0, 1), record(1, 1))
	opener.push("n2", record(0, 4), record(1, 4), record(2, 4), record(3, 4))
	agg.Poll(context.Background())

	if got := stopper.calls("n2"); got != 1 {
		t.Fatalf("expected one stop for n2, got %d", got)
	}
	if got := stopper.calls("n1"); got != 0 {
		t.Fatalf("n1 should keep running, got %d stops", got)
	}
	if st := agg.Status("n2"); st != StateStopped {
		t.Fatalf("expected n2 stopped, got %s", st)
	}
	if !opener.sources["n2"].closed {
		t.Fatalf("expected n2 source closed")
	}
	active := agg.ActiveNodes()
	if len(active) != 1 || active[0] != "n1" {
		t.Fatalf("unexpected active set %v", active)
	}
	if e, ok := agg.Accumulated("n2"); !ok || e != 12 {
		t.Fatalf("expected n2 energy 12, got %f (%v)", e, ok)
	}

	// further data for a stopped node is never read
	opener.push("n2", record(4, 4))
	agg.Poll(context.Background())
	if got := stopper.calls("n2"); got != 1 {
		t.Fatalf("stop must not repeat, got %d", got)
	}
	if e, _ := agg.Accumulated("n2"); e != 12 {
		t.Fatalf("stopped node energy changed: %f", e)
	}

	var kinds []domain.EventKind
	for _, ev := range events {
		if ev.Node == "n2" {
			kinds = append(kinds, ev.Kind)
		}
	}
	want := []domain.EventKind{domain.EventTracked, domain.EventBudgetExceeded, domain.EventStopRequested}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("unexpected n2 events %v", kinds)
	}
}

func TestAggregatorStopFailureIsNotRetried(t *testing.T) {
	opener := newMockOpener("n1")
	stopper := &mockStopper{err: errors.New("api down")}
	obs := &mockObs{}

	agg, err := New([]domain.NodeID{"n1"}, map[domain.NodeID]float64{"n1": 1}, opener, stopper, obs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	opener.push("n1", record(0, 5), record(1, 5))
	agg.Poll(context.Background())
	agg.Poll(context.Background())

	if got := stopper.calls("n1"); got != 1 {
		t.Fatalf("expected a single stop attempt, got %d", got)
	}
	if st := agg.Status("n1"); st != StateStopped {
		t.Fatalf("node must stay stopped after failed stop, got %s", st)
	}
	if obs.errorCount() == 0 {
		t.Fatalf("expected stop failure to be logged")
	}
}

func TestAggregatorExcludesMissingSource(t *testing.T) {
	opener := newMockOpener("n1")
	agg, err := New([]domain.NodeID{"n1", "n9"}, nil, opener, &mockStopper{}, &mockObs{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if st := agg.Status("n9"); st != StateUnknown {
		t.Fatalf("expected n9 unknown, got %s", st)
	}
	if _, ok := agg.Accumulated("n9"); ok {
		t.Fatalf("missing node must not report energy")
	}
	if len(agg.ActiveNodes()) != 1 {
		t.Fatalf("expected one active node")
	}
}

func TestAggregatorOpenErrorAborts(t *testing.T) {
	opener := newMockOpener("n1")
	opener.openErr = errors.New("permission denied")
	if _, err := New([]domain.NodeID{"n1", "n2"}, nil, opener, &mockStopper{}, &mockObs{}); err == nil {
		t.Fatalf("expected open error")
	}
	if !opener.sources["n1"].closed {
		t.Fatalf("expected already opened source to be closed")
	}
}

func TestAggregatorReadingAndSnapshot(t *testing.T) {
	opener := newMockOpener("n1", "n2")
	agg, err := New([]domain.NodeID{"n2", "n1"}, map[domain.NodeID]float64{"n1": 100, "n2": 1}, opener, &mockStopper{}, &mockObs{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	before, ok := agg.Reading("n1")
	if !ok || before.Known {
		t.Fatalf("energy must be unknown before any record")
	}

	opener.push("n1", record(0, 10), record(5, 10))
	opener.push("n2", record(0, 10), record(5, 10))
	agg.Poll(context.Background())

	r, ok := agg.Reading("n1")
	if !ok {
		t.Fatalf("expected a reading for the active node")
	}
	if !r.Known || r.EnergyWs != 50 || !r.HasBudget || r.Percent != 50 {
		t.Fatalf("unexpected reading %+v", r)
	}

	snap := agg.Snapshot()
	if len(snap) != 2 || snap[0].Node != "n1" || snap[1].Node != "n2" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap[0].State != "active" || snap[0].EnergyWs != 50 || snap[0].LastTimestamp != 5 {
		t.Fatalf("unexpected n1 status %+v", snap[0])
	}

	if _, ok := agg.Reading("n2"); ok {
		t.Fatalf("stopped node must not yield a reading")
	}
	if st, _ := agg.NodeStatus("n2"); st.State != "stopped" {
		t.Fatalf("expected stopped status, got %s", st.State)
	}
}

func TestAggregatorCloseStopsPolling(t *testing.T) {
	opener := newMockOpener("n1", "n2")
	obs := &mockObs{}
	stopper := &mockStopper{}
	agg, err := New([]domain.NodeID{"n1", "n2"}, map[domain.NodeID]float64{"n1": 3}, opener, stopper, obs)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	opener.push("n1", record(0, 2), record(1, 2))
	agg.Poll(context.Background())

	agg.Close()
	if !opener.sources["n1"].closed || !opener.sources["n2"].closed {
		t.Fatalf("expected every source closed")
	}

	// enough to cross n1's budget if it were still read
	opener.push("n1", record(2, 2), record(3, 2))
	agg.Poll(context.Background())
	agg.Close()

	if got := opener.sources["n1"].readsAfterClose; got != 0 {
		t.Fatalf("closed source read %d times", got)
	}
	if got := opener.sources["n1"].closes; got != 1 {
		t.Fatalf("source closed %d times, want 1", got)
	}
	if e, _ := agg.Accumulated("n1"); e != 2 {
		t.Fatalf("energy changed after close: %f", e)
	}
	if got := stopper.calls("n1"); got != 0 {
		t.Fatalf("closed aggregator must not stop nodes, got %d", got)
	}
	if got := obs.errorCount(); got != 0 {
		t.Fatalf("expected no errors after close, got %d", got)
	}
}

func TestAggregatorRunPollsUntilCancelled(t *testing.T) {
	opener := newMockOpener("n1")
	agg, err := New([]domain.NodeID{"n1"}, nil, opener, &mockStopper{}, &mockObs{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	opener.push("n1", record(0, 2), record(3, 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if e, _ := agg.Accumulated("n1"); e == 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run loop never ingested data")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run loop did not exit")
	}
}

type mockSource struct {
	mu              sync.Mutex
	pending         []string
	closed          bool
	closes          int
	readsAfterClose int
}

func (m *mockSource) ReadAvailable() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.readsAfterClose++
	}
	out := m.pending
	m.pending = nil
	return out, nil
}

func (m *mockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closes++
	return nil
}

type mockOpener struct {
	sources map[domain.NodeID]*mockSource
	openErr error
}

func newMockOpener(nodes ...domain.NodeID) *mockOpener {
	m := &mockOpener{sources: make(map[domain.NodeID]*mockSource)}
	for _, n := range nodes {
		m.sources[n] = &mockSource{}
	}
	return m
}

func (m *mockOpener) Open(node domain.NodeID) (ports.LogSource, error) {
	src, ok := m.sources[node]
	if !ok {
		if m.openErr != nil {
			return nil, m.openErr
		}
		return nil, ports.ErrNoSource
	}
	return src, nil
}

func (m *mockOpener) push(node domain.NodeID, lines ...string) {
	src := m.sources[node]
	src.mu.Lock()
	src.pending = append(src.pending, lines...)
	src.mu.Unlock()
}

type mockStopper struct {
	mu      sync.Mutex
	stopped map[domain.NodeID]int
	err     error
}

func (m *mockStopper) StopNode(_ context.Context, node domain.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped == nil {
		m.stopped = make(map[domain.NodeID]int)
	}
	m.stopped[node]++
	return m.err
}

func (m *mockStopper) calls(node domain.NodeID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped[node]
}

type mockObs struct {
	mu     sync.Mutex
	errors []error
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	m.errors = append(m.errors, err)
	m.mu.Unlock()
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(string, float64, ...string)     {}
func (m *mockObs) ObserveLatency(string, float64)            {}
func (m *mockObs) SetGauge(string, float64, ...string)       {}

func (m *mockObs) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}
