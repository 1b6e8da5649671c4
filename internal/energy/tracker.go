package energy

import "github.com/ghalamif/AegisWatt/internal/domain"

// BudgetExceeded is reported once, by the Ingest call that pushed the
// accumulated energy above the budget.
type BudgetExceeded struct {
	Node     domain.NodeID
	EnergyWs float64
	BudgetWs float64
}

// IngestResult summarizes one batch.
type IngestResult struct {
	Read     int
	Valid    int
	Exceeded *BudgetExceeded
}

// Tracker integrates one node's power samples. It is not safe for concurrent
// use; the aggregator serializes access per node.
type Tracker struct {
	node domain.NodeID

	accumulated float64
	lastTS      float64
	hasLastTS   bool

	budget    float64
	hasBudget bool

	initial    float64
	hasInitial bool

	exceeded bool
}

// NewTracker returns a tracker without a budget.
func NewTracker(node domain.NodeID) *Tracker {
	return &Tracker{node: node}
}

// NewBudgetTracker returns a tracker that reports when budgetWs is exceeded.
func NewBudgetTracker(node domain.NodeID, budgetWs float64) *Tracker {
	return &Tracker{node: node, budget: budgetWs, hasBudget: true}
}

func (t *Tracker) Node() domain.NodeID { return t.node }

// Ingest applies a batch of raw log lines.
func (t *Tracker) Ingest(lines []string) IngestResult {
	res := IngestResult{Read: len(lines)}
	if len(lines) == 0 {
		return res
	}
	for _, line := range lines {
		s, ok := ParseRecord(line)
		if !ok {
			continue
		}
		res.Valid++
		t.accumulated, t.lastTS = Integrate(t.lastTS, t.hasLastTS, t.accumulated, s)
		t.hasLastTS = true
	}

	if !t.hasInitial {
		t.initial = t.accumulated
		t.hasInitial = true
	}

	if t.hasBudget && !t.exceeded && t.accumulated > t.budget {
		t.exceeded = true
		res.Exceeded = &BudgetExceeded{
			Node:     t.node,
			EnergyWs: t.accumulated,
			BudgetWs: t.budget,
		}
	}
	return res
}

func (t *Tracker) Accumulated() float64 { return t.accumulated }

// Net is the energy accumulated since the baseline recorded on the first
// non-empty batch.
func (t *Tracker) Net() float64 {
	if !t.hasInitial {
		return 0
	}
	return t.accumulated - t.initial
}

func (t *Tracker) Initial() (float64, bool) { return t.initial, t.hasInitial }

func (t *Tracker) Budget() (float64, bool) { return t.budget, t.hasBudget }

func (t *Tracker) LastTimestamp() (float64, bool) { return t.lastTS, t.hasLastTS }

// Percent of the budget consumed; false when the node has no (positive) budget.
func (t *Tracker) Percent() (float64, bool) {
	if !t.hasBudget || t.budget <= 0 {
		return 0, false
	}
	return 100 * t.accumulated / t.budget, true
}

func (t *Tracker) Exceeded() bool { return t.exceeded }
