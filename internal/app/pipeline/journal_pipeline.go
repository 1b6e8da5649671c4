package pipeline

import (
	"context"
	"time"

	"github.com/ghalamif/AegisWatt/internal/ports"
)

// RunJournalPipeline drains the queue into sink until ctx is done, then
// writes whatever is still buffered.
func RunJournalPipeline(ctx context.Context, q ports.EventQueue, sink ports.EventSink, pol ports.Policy, obs ports.Observability) {
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 5 * time.Millisecond
	}
	for {
		if ctx.Err() != nil {
			for drainOnce(q, sink, pol, obs) {
			}
			return
		}
		if !drainOnce(q, sink, pol, obs) {
			select {
			case <-ctx.Done():
			case <-time.After(idle):
			}
		}
	}
}

// drainOnce writes one batch and reports whether there was anything to
// write. A failed batch is dropped; the journal has no replay log.
func drainOnce(q ports.EventQueue, sink ports.EventSink, pol ports.Policy, obs ports.Observability) bool {
	batch := q.DequeueBatch(pol.MaxBatchSize)
	if len(batch) == 0 {
		return false
	}
	obs.SetGauge("aegiswatt_journal_queue_length", float64(q.Len()))

	start := time.Now()
	if err := sink.WriteBatch(batch); err != nil {
		obs.LogError("journal_write_failed", err,
			ports.Field{Key: "sink", Value: sink.Name()},
			ports.Field{Key: "events", Value: len(batch)})
		obs.IncCounter("aegiswatt_journal_dropped_total", float64(len(batch)))
		return true
	}
	obs.ObserveLatency("aegiswatt_journal_write_seconds", time.Since(start).Seconds())
	obs.IncCounter("aegiswatt_journal_events_total", float64(len(batch)))
	return true
}
