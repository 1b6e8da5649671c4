package queue

import (
	"fmt"
	"testing"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

func event(i int) *domain.NodeEvent {
	return &domain.NodeEvent{Node: domain.NodeID(fmt.Sprintf("m3-%d", i)), Kind: domain.EventTracked}
}

func TestMemQueueOrder(t *testing.T) {
	q := NewMemQueue(4)
	if !q.Enqueue(event(1)) || !q.Enqueue(event(2)) {
		t.Fatalf("expected successful enqueue")
	}

	first := q.DequeueBatch(1)
	if len(first) != 1 || first[0].Node != "m3-1" {
		t.Fatalf("unexpected first batch: %+v", first)
	}
	rest := q.DequeueBatch(10)
	if len(rest) != 1 || rest[0].Node != "m3-2" {
		t.Fatalf("unexpected second batch: %+v", rest)
	}
	if q.Len() != 0 || q.DequeueBatch(5) != nil {
		t.Fatalf("expected empty queue, len=%d", q.Len())
	}
}

func TestMemQueueFull(t *testing.T) {
	q := NewMemQueue(2)
	if !q.Enqueue(event(1)) || !q.Enqueue(event(2)) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(event(3)) {
		t.Fatalf("enqueue should fail when the ring is full")
	}
	q.DequeueBatch(1)
	if !q.Enqueue(event(3)) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}

func TestMemQueueWrapsAround(t *testing.T) {
	q := NewMemQueue(3)
	next := 0
	for round := 0; round < 5; round++ {
		for q.Len() < q.Cap() {
			next++
			q.Enqueue(event(next))
		}
		got := q.DequeueBatch(2)
		want := next - q.Cap() + 1
		for i, ev := range got {
			if ev.Node != domain.NodeID(fmt.Sprintf("m3-%d", want+i)) {
				t.Fatalf("round %d: got %s at %d, want m3-%d", round, ev.Node, i, want+i)
			}
		}
	}
}

func TestMemQueueMinimumCapacity(t *testing.T) {
	q := NewMemQueue(0)
	if q.Cap() != 1 {
		t.Fatalf("expected capacity 1, got %d", q.Cap())
	}
	if !q.Enqueue(event(1)) || q.Enqueue(event(2)) {
		t.Fatalf("expected exactly one slot")
	}
}
