package observability

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ghalamif/AegisWatt/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// PromObs logs `<unix-seconds>;<msg> key=value ...` lines and keeps the
// runtime's prometheus collectors.
type PromObs struct {
	mu       sync.Mutex
	logger   *log.Logger
	now      func() time.Time
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	histos   map[string]prometheus.Observer
}

// Option customizes PromObs.
type Option func(*PromObs)

// WithLogWriter sends log lines to w instead of stdout.
func WithLogWriter(w io.Writer) Option {
	return func(p *PromObs) {
		if w != nil {
			p.logger = log.New(w, "", 0)
		}
	}
}

// WithClock overrides the log timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *PromObs) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPromObs(opts ...Option) *PromObs {
	linesRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_log_lines_total",
		Help: "Consumption log lines read per node.",
	}, []string{"node"})
	stops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_node_stops_total",
		Help: "Nodes powered off, by reason.",
	}, []string{"reason"})
	stopFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_node_stop_failures_total",
		Help: "Stop commands that failed and were not retried.",
	}, nil)
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_messages_sent_total",
		Help: "Status messages written to node channels, by kind.",
	}, []string{"kind"})
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_lines_received_total",
		Help: "Inbound node lines, by classified action.",
	}, []string{"action"})
	journaled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_journal_events_total",
		Help: "Node events committed to the run journal.",
	}, nil)
	journalDrops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegiswatt_journal_dropped_total",
		Help: "Node events lost to journal backpressure or sink failures.",
	}, nil)

	activeNodes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aegiswatt_active_nodes",
		Help: "Nodes currently tracked and not stopped.",
	}, nil)
	energy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aegiswatt_node_energy_watt_seconds",
		Help: "Accumulated energy per node.",
	}, []string{"node"})
	channels := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aegiswatt_live_channels",
		Help: "Node channels still attached to the messaging loop.",
	}, nil)
	queueLen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aegiswatt_journal_queue_length",
		Help: "Node events buffered ahead of the journal sink.",
	}, nil)

	pollLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegiswatt_poll_seconds",
		Help:    "Duration of one aggregator poll over all active nodes.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	journalLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "aegiswatt_journal_write_seconds",
		Help:    "Latency of one journal batch commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	prometheus.MustRegister(linesRead, stops, stopFailures, sent, received, journaled, journalDrops,
		activeNodes, energy, channels, queueLen, pollLatency, journalLatency)

	p := &PromObs{
		logger: log.New(os.Stdout, "", 0),
		now:    time.Now,
		counters: map[string]*prometheus.CounterVec{
			"aegiswatt_log_lines_total":          linesRead,
			"aegiswatt_node_stops_total":         stops,
			"aegiswatt_node_stop_failures_total": stopFailures,
			"aegiswatt_messages_sent_total":      sent,
			"aegiswatt_lines_received_total":     received,
			"aegiswatt_journal_events_total":     journaled,
			"aegiswatt_journal_dropped_total":    journalDrops,
		},
		gauges: map[string]*prometheus.GaugeVec{
			"aegiswatt_active_nodes":             activeNodes,
			"aegiswatt_node_energy_watt_seconds": energy,
			"aegiswatt_live_channels":            channels,
			"aegiswatt_journal_queue_length":     queueLen,
		},
		histos: map[string]prometheus.Observer{
			"aegiswatt_poll_seconds":          pollLatency,
			"aegiswatt_journal_write_seconds": journalLatency,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.write(msg, nil, fields)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.write("ERROR: "+msg, err, fields)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.write("CRITICAL: "+msg, err, fields)
}

func (p *PromObs) write(msg string, err error, fields []ports.Field) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d;%s", p.now().Unix(), msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	if err != nil {
		fmt.Fprintf(&b, " err=%q", err.Error())
	}
	p.mu.Lock()
	p.logger.Print(b.String())
	p.mu.Unlock()
}

// IncCounter ignores unknown names and label mismatches.
func (p *PromObs) IncCounter(name string, v float64, labels ...string) {
	if c, ok := p.counters[name]; ok {
		if m, err := c.GetMetricWithLabelValues(labels...); err == nil {
			m.Add(v)
		}
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64, labels ...string) {
	if g, ok := p.gauges[name]; ok {
		if m, err := g.GetMetricWithLabelValues(labels...); err == nil {
			m.Set(v)
		}
	}
}

var _ ports.Observability = (*PromObs)(nil)
