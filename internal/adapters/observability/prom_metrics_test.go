package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ghalamif/AegisWatt/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func useTestRegistry(t *testing.T) {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
}

func TestPromObsMetrics(t *testing.T) {
	useTestRegistry(t)
	obs := NewPromObs(WithLogWriter(&bytes.Buffer{}))

	obs.IncCounter("aegiswatt_log_lines_total", 5, "m3-1")
	obs.IncCounter("aegiswatt_log_lines_total", 2, "m3-1")
	if got := testutil.ToFloat64(obs.counters["aegiswatt_log_lines_total"].WithLabelValues("m3-1")); got != 7 {
		t.Fatalf("expected lines counter 7, got %f", got)
	}

	obs.IncCounter("aegiswatt_node_stop_failures_total", 1)
	if got := testutil.ToFloat64(obs.counters["aegiswatt_node_stop_failures_total"].WithLabelValues()); got != 1 {
		t.Fatalf("expected stop failure counter 1, got %f", got)
	}

	// wrong label arity is ignored rather than panicking
	obs.IncCounter("aegiswatt_node_stops_total", 1)
	obs.IncCounter("aegiswatt_unknown_total", 1)

	obs.SetGauge("aegiswatt_node_energy_watt_seconds", 42, "m3-2")
	if got := testutil.ToFloat64(obs.gauges["aegiswatt_node_energy_watt_seconds"].WithLabelValues("m3-2")); got != 42 {
		t.Fatalf("expected energy gauge 42, got %f", got)
	}

	obs.ObserveLatency("aegiswatt_poll_seconds", 0.5)
	hCollector := obs.histos["aegiswatt_poll_seconds"].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected poll histogram to record 1 sample, got %d", samples)
	}
}

func TestPromObsLogFormat(t *testing.T) {
	useTestRegistry(t)
	var buf bytes.Buffer
	obs := NewPromObs(WithLogWriter(&buf), WithClock(func() time.Time { return time.Unix(1700000000, 0) }))

	obs.LogInfo("consumption_read", ports.Field{Key: "node", Value: "m3-1"}, ports.Field{Key: "energy_ws", Value: 2.5})
	obs.LogError("node_stop_failed", errors.New("timeout"), ports.Field{Key: "node", Value: "m3-2"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", buf.String())
	}
	if lines[0] != "1700000000;consumption_read node=m3-1 energy_ws=2.5" {
		t.Fatalf("unexpected info line %q", lines[0])
	}
	if lines[1] != `1700000000;ERROR: node_stop_failed node=m3-2 err="timeout"` {
		t.Fatalf("unexpected error line %q", lines[1])
	}
}
