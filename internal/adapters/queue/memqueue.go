package queue

import (
	"sync"

	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// MemQueue holds node events waiting for the journal in a fixed ring, so a
// burst of stops never grows memory past capacity.
type MemQueue struct {
	mu    sync.Mutex
	ring  []*domain.NodeEvent
	head  int
	count int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{ring: make([]*domain.NodeEvent, capacity)}
}

// Enqueue reports false when the ring is full; the caller's policy decides
// whether to wait or drop.
func (q *MemQueue) Enqueue(ev *domain.NodeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.ring) {
		return false
	}
	q.ring[(q.head+q.count)%len(q.ring)] = ev
	q.count++
	return true
}

// DequeueBatch removes up to max events in arrival order. max <= 0 takes all.
func (q *MemQueue) DequeueBatch(max int) []*domain.NodeEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	n := q.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]*domain.NodeEvent, n)
	for i := range out {
		slot := (q.head + i) % len(q.ring)
		out[i] = q.ring[slot]
		q.ring[slot] = nil
	}
	q.head = (q.head + n) % len(q.ring)
	q.count -= n
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *MemQueue) Cap() int { return len(q.ring) }

var _ ports.EventQueue = (*MemQueue)(nil)
