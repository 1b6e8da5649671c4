package messaging

import (
	"sync"

	"github.com/ghalamif/AegisWatt/internal/ports"
)

// Kind is an outbound message kind with its own ack gate.
type Kind int

const (
	KindConsumption Kind = iota
	KindTime
)

func (k Kind) String() string {
	if k == KindTime {
		return "time"
	}
	return "cons"
}

// AckGatedChannel wraps a node channel and allows at most one unacknowledged
// message per kind.
type AckGatedChannel struct {
	mu       sync.Mutex
	ch       ports.NodeChannel
	consFree bool
	timeFree bool
	closed   bool
}

func NewAckGatedChannel(ch ports.NodeChannel) *AckGatedChannel {
	return &AckGatedChannel{ch: ch, consFree: true, timeFree: true}
}

// Free reports whether a message of kind may be sent.
func (c *AckGatedChannel) Free(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && *c.flag(kind)
}

// TrySend writes line if kind is free and marks it pending. It reports
// whether a write was attempted. A failed write leaves the kind free. The
// write itself runs unlocked so a slow node never blocks Ack or Close.
func (c *AckGatedChannel) TrySend(kind Kind, line string) (bool, error) {
	c.mu.Lock()
	free := c.flag(kind)
	if c.closed || !*free {
		c.mu.Unlock()
		return false, nil
	}
	*free = false
	c.mu.Unlock()

	if err := c.ch.WriteLine(line); err != nil {
		c.mu.Lock()
		*c.flag(kind) = true
		c.mu.Unlock()
		return true, err
	}
	return true, nil
}

// Ack frees kind again.
func (c *AckGatedChannel) Ack(kind Kind) {
	c.mu.Lock()
	*c.flag(kind) = true
	c.mu.Unlock()
}

// Close is idempotent. The underlying channel may wait for its reader,
// which can be inside Ack, so it is closed without holding mu.
func (c *AckGatedChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.ch.Close()
}

func (c *AckGatedChannel) flag(kind Kind) *bool {
	if kind == KindTime {
		return &c.timeFree
	}
	return &c.consFree
}
