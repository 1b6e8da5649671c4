package aegiswatt

import (
	"errors"
	"testing"
	"time"
)

func TestNewCallbackSink(t *testing.T) {
	var received []Event
	sink := NewCallbackSink("cb", func(batch []Event) error {
		received = append(received, batch...)
		return nil
	})

	input := &Event{RunID: "run-1", Node: nodeA, Kind: "budget_exceeded", Energy: 12.5, Budget: 10}
	if err := sink.WriteBatch([]*Event{input}); err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 batch entry, got %d", len(received))
	}
	got := received[0]
	if got.Node != input.Node || got.Kind != input.Kind || got.Energy != 12.5 {
		t.Fatalf("mismatched event payload: %+v vs %+v", got, input)
	}

	input.Energy = 99
	if received[0].Energy != 12.5 {
		t.Fatalf("expected callback to receive a copy")
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %q", sink.Name())
	}
	if err := sink.WriteBatch([]*Event{{Node: nodeA}}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch, closeFn := NewChannelSink("chan", 1)
	defer closeFn()

	input := &Event{Node: nodeB, Kind: "self_stop"}
	errCh := make(chan error, 1)

	go func() {
		errCh <- sink.WriteBatch([]*Event{input})
	}()

	var batch []Event
	select {
	case batch = <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel batch")
	}

	if err := <-errCh; err != nil {
		t.Fatalf("WriteBatch returned error: %v", err)
	}
	if len(batch) != 1 || batch[0].Node != nodeB {
		t.Fatalf("unexpected batch data: %+v", batch)
	}

	closeFn()
	if err := sink.WriteBatch([]*Event{input}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
}

func TestChannelSinkCloseUnblocksWriter(t *testing.T) {
	sink, _, closeFn := NewChannelSink("chan", 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sink.WriteBatch([]*Event{{Node: nodeA}})
	}()

	time.Sleep(10 * time.Millisecond)
	closeFn()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrChannelSinkClosed) {
			t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after close")
	}
}
