package aegiswatt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatt/internal/ports"
)

// ErrLineFeedClosed is returned when publishing to a closed LineFeed.
var ErrLineFeedClosed = errors.New("aegiswatt: line feed closed")

// LineFeed is an in-memory LogSourceOpener for callers that obtain
// consumption records some other way (simulators, replays, remote
// collectors). Lines published before a node is opened are kept.
type LineFeed struct {
	mu     sync.Mutex
	nodes  map[NodeID]*feedSource
	seq    map[NodeID]uint64
	closed bool
}

var _ ports.LogSourceOpener = (*LineFeed)(nil)

func NewLineFeed() *LineFeed {
	return &LineFeed{
		nodes: make(map[NodeID]*feedSource),
		seq:   make(map[NodeID]uint64),
	}
}

// Declare makes node openable without publishing anything yet. Nodes that
// were never declared or published to report ErrNoSource.
func (f *LineFeed) Declare(node NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourceLocked(node)
}

func (f *LineFeed) Open(node NodeID) (LogSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.nodes[node]
	if !ok {
		return nil, fmt.Errorf("%s: %w", node, ports.ErrNoSource)
	}
	return src, nil
}

// PublishLine appends one raw log line for node.
func (f *LineFeed) PublishLine(node NodeID, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrLineFeedClosed
	}
	f.sourceLocked(node).push(line)
	return nil
}

// PublishSample appends a measurement record taken at ts with the given
// power in watts. Voltage and current are left at zero.
func (f *LineFeed) PublishSample(node NodeID, ts time.Time, powerW float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrLineFeedClosed
	}
	f.seq[node]++
	line := fmt.Sprintf("%.6f\t1\t%d\t%d\t%d\t%f\t0.0\t0.0",
		float64(ts.UnixNano())/1e9, f.seq[node], ts.Unix(), ts.Nanosecond()/1000, powerW)
	f.sourceLocked(node).push(line)
	return nil
}

// Close rejects further publishing. Sources keep returning buffered lines.
func (f *LineFeed) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *LineFeed) sourceLocked(node NodeID) *feedSource {
	src, ok := f.nodes[node]
	if !ok {
		src = &feedSource{}
		f.nodes[node] = src
	}
	return src
}

type feedSource struct {
	mu      sync.Mutex
	pending []string
	closed  bool
}

func (s *feedSource) push(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.pending = append(s.pending, line)
	}
}

func (s *feedSource) ReadAvailable() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *feedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	s.mu.Unlock()
	return nil
}
