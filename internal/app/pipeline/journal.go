package pipeline

import (
	"fmt"
	"time"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// Journal stamps node events with the run id and buffers them for the sink
// drain. Record is safe for concurrent use.
type Journal struct {
	runID string
	q     ports.EventQueue
	pol   ports.Policy
	obs   ports.Observability
}

func NewJournal(runID string, q ports.EventQueue, pol ports.Policy, obs ports.Observability) *Journal {
	return &Journal{runID: runID, q: q, pol: pol, obs: obs}
}

// Record enqueues ev according to the queue-full policy.
func (j *Journal) Record(ev domain.NodeEvent) {
	ev.RunID = j.runID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if !enqueueWithPolicy(j.q, &ev, j.pol, j.obs) {
		j.obs.IncCounter("aegiswatt_journal_dropped_total", 1)
	}
	j.obs.SetGauge("aegiswatt_journal_queue_length", float64(j.q.Len()))
}

func enqueueWithPolicy(q ports.EventQueue, ev *domain.NodeEvent, pol ports.Policy, obs ports.Observability) bool {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if ok := q.Enqueue(ev); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			time.Sleep(sleep)
		case "drop", "reject":
			obs.LogError("queue_full_drop", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen),
				ports.Field{Key: "node", Value: ev.Node},
				ports.Field{Key: "kind", Value: ev.Kind})
			return false
		default:
			obs.LogError("queue_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
