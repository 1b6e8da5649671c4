package aegiswatt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/AegisWatt/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("aegiswatt: channel sink closed")

// EventBatchSink is invoked with journal batches in recording order.
type EventBatchSink func([]Event) error

// NewCallbackSink adapts an EventBatchSink into an EventSink so callers can
// plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn EventBatchSink) EventSink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (EventSink, <-chan []Event, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Event, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, s.close
}

type callbackSink struct {
	name string
	fn   EventBatchSink
}

func (s *callbackSink) WriteBatch(events []*domain.NodeEvent) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	if len(events) == 0 {
		return nil
	}
	return s.fn(copyEvents(events))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	ch     chan []Event
	closed chan struct{}
	once   sync.Once
	// sending guards ch against being closed mid-send.
	sending sync.RWMutex
}

func (s *channelSink) WriteBatch(events []*domain.NodeEvent) error {
	s.sending.RLock()
	defer s.sending.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}
	if len(events) == 0 {
		return nil
	}

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- copyEvents(events):
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.sending.Lock()
		close(s.ch)
		s.sending.Unlock()
	})
}

func copyEvents(events []*domain.NodeEvent) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}
