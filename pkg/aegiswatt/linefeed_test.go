package aegiswatt

import (
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatt/internal/energy"
)

func TestLineFeedUnknownNode(t *testing.T) {
	feed := NewLineFeed()
	if _, err := feed.Open(nodeA); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}

	feed.Declare(nodeA)
	src, err := feed.Open(nodeA)
	if err != nil {
		t.Fatalf("Open after Declare: %v", err)
	}
	lines, err := src.ReadAvailable()
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected no lines, got %v (%v)", lines, err)
	}
}

func TestLineFeedSamplesParse(t *testing.T) {
	feed := NewLineFeed()
	at := time.Unix(1700000000, 250000000)
	if err := feed.PublishSample(nodeA, at, 0.125); err != nil {
		t.Fatalf("PublishSample: %v", err)
	}
	if err := feed.PublishLine(nodeA, "schema: 1 consumption"); err != nil {
		t.Fatalf("PublishLine: %v", err)
	}

	src, err := feed.Open(nodeA)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lines, _ := src.ReadAvailable()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	s, ok := energy.ParseRecord(lines[0])
	if !ok {
		t.Fatalf("expected sample line to parse: %q", lines[0])
	}
	if s.Seconds != 1700000000 || s.Micros != 250000 || s.PowerW != 0.125 {
		t.Fatalf("unexpected sample %+v", s)
	}
	if _, ok := energy.ParseRecord(lines[1]); ok {
		t.Fatalf("expected metadata line to be skipped")
	}

	if more, _ := src.ReadAvailable(); len(more) != 0 {
		t.Fatalf("expected lines to be consumed once, got %v", more)
	}
}

func TestLineFeedClosed(t *testing.T) {
	feed := NewLineFeed()
	feed.Close()
	if err := feed.PublishLine(nodeA, "x"); !errors.Is(err, ErrLineFeedClosed) {
		t.Fatalf("expected ErrLineFeedClosed, got %v", err)
	}
	if err := feed.PublishSample(nodeA, time.Now(), 1); !errors.Is(err, ErrLineFeedClosed) {
		t.Fatalf("expected ErrLineFeedClosed, got %v", err)
	}
}
