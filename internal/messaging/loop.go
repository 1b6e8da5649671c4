package messaging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatt/internal/consumption"
	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// ConsumptionView is the part of the aggregator the messaging side reads.
type ConsumptionView interface {
	Status(node domain.NodeID) consumption.NodeState
	Reading(node domain.NodeID) (consumption.Reading, bool)
}

var _ ConsumptionView = (*consumption.Aggregator)(nil)

// Loop periodically pushes consumption and time messages to every node
// with a live channel.
type Loop struct {
	mu       sync.RWMutex
	channels map[domain.NodeID]*AckGatedChannel

	view  ConsumptionView
	obs   ports.Observability
	now   func() time.Time
	start time.Time
}

func NewLoop(view ConsumptionView, obs ports.Observability) *Loop {
	return &Loop{
		channels: make(map[domain.NodeID]*AckGatedChannel),
		view:     view,
		obs:      obs,
		now:      time.Now,
	}
}

// Attach registers a live channel for node, replacing and closing any
// previous one.
func (l *Loop) Attach(node domain.NodeID, ch ports.NodeChannel) *AckGatedChannel {
	gated := NewAckGatedChannel(ch)
	l.mu.Lock()
	prev := l.channels[node]
	l.channels[node] = gated
	l.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return gated
}

// Channel returns node's channel, or nil once it has been torn down.
func (l *Loop) Channel(node domain.NodeID) *AckGatedChannel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.channels[node]
}

// Nodes lists nodes with a live channel.
func (l *Loop) Nodes() []domain.NodeID {
	l.mu.RLock()
	out := make([]domain.NodeID, 0, len(l.channels))
	for node := range l.channels {
		out = append(out, node)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Run ticks every interval until ctx is done. Elapsed time is measured from
// the first call.
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	l.markStart()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		l.Tick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one messaging round over all live channels. Channels of nodes
// outside the active set are torn down.
func (l *Loop) Tick() {
	l.markStart()
	elapsed := l.now().Sub(l.start)

	for _, node := range l.Nodes() {
		ch := l.Channel(node)
		if ch == nil {
			continue
		}
		r, ok := l.view.Reading(node)
		if !ok {
			l.detach(node, ch)
			continue
		}
		// No lock is held across the writes; a node stopped in between is
		// skipped here and detached next round.
		if r.Known && l.active(node) {
			l.send(node, ch, KindConsumption, FormatConsumption(r.EnergyWs, r.Percent, r.HasBudget))
		}
		if l.active(node) {
			l.send(node, ch, KindTime, FormatTime(elapsed))
		}
	}
	l.obs.SetGauge("aegiswatt_live_channels", float64(l.count()))
}

func (l *Loop) active(node domain.NodeID) bool {
	return l.view.Status(node) == consumption.StateActive
}

func (l *Loop) send(node domain.NodeID, ch *AckGatedChannel, kind Kind, line string) {
	sent, err := ch.TrySend(kind, line)
	if err != nil {
		l.obs.LogError("message_send_failed", err,
			ports.Field{Key: "node", Value: node},
			ports.Field{Key: "kind", Value: kind.String()})
		return
	}
	if sent {
		l.obs.IncCounter("aegiswatt_messages_sent_total", 1, kind.String())
	}
}

func (l *Loop) detach(node domain.NodeID, ch *AckGatedChannel) {
	l.mu.Lock()
	if l.channels[node] == ch {
		delete(l.channels, node)
	}
	l.mu.Unlock()
	if err := ch.Close(); err != nil {
		l.obs.LogError("channel_close_failed", err, ports.Field{Key: "node", Value: node})
	}
	l.obs.LogInfo("channel_closed", ports.Field{Key: "node", Value: node})
}

// CloseAll tears down every channel.
func (l *Loop) CloseAll() {
	l.mu.Lock()
	channels := l.channels
	l.channels = make(map[domain.NodeID]*AckGatedChannel)
	l.mu.Unlock()
	for _, ch := range channels {
		_ = ch.Close()
	}
}

func (l *Loop) count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.channels)
}

func (l *Loop) markStart() {
	l.mu.Lock()
	if l.start.IsZero() {
		l.start = l.now()
	}
	l.mu.Unlock()
}
