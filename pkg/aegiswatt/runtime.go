package aegiswatt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ghalamif/AegisWatt/internal/adapters/httpapi"
	"github.com/ghalamif/AegisWatt/internal/adapters/iotlab"
	"github.com/ghalamif/AegisWatt/internal/adapters/mqttbridge"
	"github.com/ghalamif/AegisWatt/internal/adapters/observability"
	"github.com/ghalamif/AegisWatt/internal/adapters/oml"
	"github.com/ghalamif/AegisWatt/internal/adapters/queue"
	"github.com/ghalamif/AegisWatt/internal/adapters/serial"
	"github.com/ghalamif/AegisWatt/internal/adapters/sink"
	"github.com/ghalamif/AegisWatt/internal/adapters/statecache"
	"github.com/ghalamif/AegisWatt/internal/app/config"
	"github.com/ghalamif/AegisWatt/internal/app/pipeline"
	"github.com/ghalamif/AegisWatt/internal/consumption"
	"github.com/ghalamif/AegisWatt/internal/domain"
	"github.com/ghalamif/AegisWatt/internal/messaging"
	"github.com/ghalamif/AegisWatt/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	experiment    Experiment
	opener        LogSourceOpener
	transport     Transport
	sink          EventSink
	queue         EventQueue
	observability Observability
	mirror        StateMirror
	lineHandler   LineHandler
}

// WithExperiment replaces the testbed REST client (simulators, other testbeds).
func WithExperiment(exp Experiment) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.experiment = exp
	}
}

// WithLogSourceOpener replaces the OML file tailer.
func WithLogSourceOpener(op LogSourceOpener) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.opener = op
	}
}

// WithTransport replaces the configured serial transport.
func WithTransport(t Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.transport = t
	}
}

// WithEventSink sends journal events to any database or API.
func WithEventSink(s EventSink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithEventQueue injects a custom journal queue.
func WithEventQueue(q EventQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom log/metrics backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithStateMirror publishes node status somewhere other than redis.
func WithStateMirror(m StateMirror) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.mirror = m
	}
}

// WithLineHandler swaps the inbound line classification.
func WithLineHandler(h LineHandler) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.lineHandler = h
	}
}

// Runtime wires the consumption aggregator, the messaging loop, the node
// transport and the optional journal, mirror and HTTP API for one
// experiment run.
type Runtime struct {
	cfg        *Config
	runID      string
	startedAt  time.Time
	policy     ports.Policy
	obs        ports.Observability
	experiment ports.Experiment
	opener     ports.LogSourceOpener
	transport  ports.Transport
	queue      ports.EventQueue
	sink       ports.EventSink
	journal    *pipeline.Journal
	mirror     ports.StateMirror
	handler    messaging.LineHandler

	db         *sql.DB
	logFile    *os.File
	bridge     *mqttbridge.Bridge
	metricsSrv *http.Server

	mu     sync.Mutex
	agg    *consumption.Aggregator
	loop   *messaging.Loop
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRuntime bootstraps the default adapters (testbed REST client, OML file
// tailer, TCP serial transport, SQL journal, redis mirror, Prometheus
// observability). RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &Runtime{
		cfg:     cfg,
		runID:   uuid.NewString(),
		policy:  cfg.Policy,
		handler: overrides.lineHandler,
	}

	var err error
	rt.experiment = overrides.experiment
	if rt.experiment == nil {
		if rt.experiment, err = newExperiment(cfg); err != nil {
			return nil, err
		}
	}

	rt.obs = overrides.observability
	if rt.obs == nil {
		rt.logFile, err = openRunLog(cfg.Log.Dir, rt.experiment.ID())
		if err != nil {
			return nil, err
		}
		rt.obs = observability.NewPromObs(observability.WithLogWriter(io.MultiWriter(os.Stdout, rt.logFile)))
	}

	rt.opener = overrides.opener
	if rt.opener == nil {
		rt.opener = oml.NewFileOpener(cfg.Nodes.OMLPath, rt.experiment.ID())
	}

	rt.transport = overrides.transport
	if rt.transport == nil {
		switch cfg.Transport.Kind {
		case "mqtt":
			rt.bridge, err = mqttbridge.Dial(cfg.Transport.MQTT, rt.obs)
			if err != nil {
				rt.closeResources()
				return nil, err
			}
			rt.transport = rt.bridge
		default:
			rt.transport = serial.NewTCPTransport(cfg.Transport.Port, cfg.Transport.DialTimeout, rt.obs,
				serial.WithWriteTimeout(cfg.Transport.WriteTimeout))
		}
	}

	rt.queue = overrides.queue
	if rt.queue == nil {
		rt.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}

	rt.sink = overrides.sink
	if rt.sink == nil && cfg.Journal.Driver != "" {
		rt.db, err = sink.Open(cfg.Journal.Driver, cfg.Journal.DSN, cfg.Journal.Table)
		if err != nil {
			rt.closeResources()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.sink = sink.NewJournalSink(rt.db, cfg.Journal.Driver, cfg.Journal.Table)
	}
	if rt.sink != nil {
		rt.journal = pipeline.NewJournal(rt.runID, rt.queue, rt.policy, rt.obs)
	}

	rt.mirror = overrides.mirror
	if rt.mirror == nil && cfg.Redis.Addr != "" {
		rt.mirror = rt.newRedisMirror()
	}

	return rt, nil
}

func newExperiment(cfg *Config) (ports.Experiment, error) {
	client := iotlab.NewClient(cfg.Experiment.APIURL, cfg.Experiment.User, cfg.Experiment.Password, cfg.Experiment.Timeout)
	id := cfg.Experiment.ID
	if id == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Experiment.Timeout)
		defer cancel()
		var err error
		if id, err = client.CurrentExperiment(ctx); err != nil {
			return nil, fmt.Errorf("resolve current experiment: %w", err)
		}
	}
	return iotlab.NewExperiment(client, id, cfg.Experiment.PollInterval), nil
}

// newRedisMirror returns nil when redis is unreachable; the run continues
// without a mirror.
func (r *Runtime) newRedisMirror() ports.StateMirror {
	rdb := redis.NewClient(&redis.Options{
		Addr:     r.cfg.Redis.Addr,
		Password: r.cfg.Redis.Password,
		DB:       r.cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		r.obs.LogError("redis_unavailable", err, ports.Field{Key: "addr", Value: r.cfg.Redis.Addr})
		rdb.Close()
		return nil
	}
	return statecache.NewRedisMirror(rdb, r.cfg.Redis.Prefix, r.experiment.ID(), r.cfg.Redis.TTL)
}

func openRunLog(dir string, experimentID int) (*os.File, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve log dir: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.aggregator.log", experimentID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return f, nil
}

func (r *Runtime) RunID() string { return r.runID }

func (r *Runtime) ExperimentID() int { return r.experiment.ID() }

// Start waits for the experiment to run, resolves nodes and budgets, opens
// one channel per node and launches the loops. Loops stop when ctx is done
// or Shutdown is called.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.startedAt = time.Now()
	r.obs.LogInfo("experiment_wait",
		ports.Field{Key: "experiment", Value: r.experiment.ID()},
		ports.Field{Key: "run_id", Value: r.runID})
	if err := r.experiment.WaitUntilRunning(ctx); err != nil {
		return err
	}

	nodes, err := r.experiment.ListNodes(ctx)
	if err != nil {
		return err
	}
	nodes = config.FilterNodes(nodes, r.cfg.Nodes.ExcludePrefixes)

	entries, err := config.ParseBudgets(r.cfg.Nodes.Budgets)
	if err != nil {
		return err
	}
	budgets, err := config.ResolveBudgets(entries, nodes)
	if err != nil {
		return err
	}

	record := r.recorder()
	agg, err := consumption.New(nodes, budgets, r.opener, r.experiment, r.obs, consumption.WithEventRecorder(record))
	if err != nil {
		return err
	}
	loop := messaging.NewLoop(agg, r.obs)
	disp := messaging.NewDispatcher(loop, r.experiment, r.obs,
		messaging.WithBaseContext(ctx),
		messaging.WithLineHandler(r.handler),
		messaging.WithSelfStopRecorder(record),
		messaging.WithStopTimeout(r.cfg.Loops.StopTimeout))

	r.mu.Lock()
	r.agg = agg
	r.loop = loop
	r.mu.Unlock()

	onLine := func(node domain.NodeID, line string) { disp.HandleLine(node, line) }
	for _, node := range nodes {
		ch, err := r.transport.Open(ctx, node, onLine)
		if err != nil {
			r.obs.LogError("channel_open_failed", err,
				ports.Field{Key: "node", Value: node},
				ports.Field{Key: "transport", Value: r.transport.Name()})
			continue
		}
		loop.Attach(node, ch)
	}
	r.obs.LogInfo("run_started",
		ports.Field{Key: "nodes", Value: len(nodes)},
		ports.Field{Key: "tracked", Value: len(agg.ActiveNodes())},
		ports.Field{Key: "channels", Value: len(loop.Nodes())},
		ports.Field{Key: "budgets", Value: len(budgets)})

	r.goLoop(func() { agg.Run(ctx, r.cfg.Loops.PollInterval) })
	r.goLoop(func() { loop.Run(ctx, r.cfg.Loops.MessageInterval) })
	if r.journal != nil {
		r.goLoop(func() { pipeline.RunJournalPipeline(ctx, r.queue, r.sink, r.policy, r.obs) })
	}
	if r.mirror != nil {
		r.goLoop(func() { r.publishStatus(ctx, r.cfg.Loops.MirrorInterval) })
	}
	r.startHTTP()
	return nil
}

// Run starts the runtime and blocks until ctx is cancelled, then shuts
// down. Loops exit without a final flush.
func (r *Runtime) Run(ctx context.Context) error {
	startErr := r.Start(ctx)
	if startErr == nil {
		<-ctx.Done()
	}
	r.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(startErr, r.Shutdown(shutdownCtx))
}

// Snapshot returns every tracked node's status, or nil before Start.
func (r *Runtime) Snapshot() []NodeStatus {
	r.mu.Lock()
	agg := r.agg
	r.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

// Shutdown stops the loops, then closes channels, sources and every owned
// connection.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	loop, agg, cancel := r.loop, r.agg, r.cancel
	r.mu.Unlock()
	if cancel != nil {
		// aborts self-stop calls still running in transport readers
		cancel()
	}
	if loop != nil {
		loop.CloseAll()
	}
	if agg != nil {
		agg.Close()
	}

	errs = append(errs, r.closeResources()...)
	return errors.Join(errs...)
}

func (r *Runtime) closeResources() []error {
	var errs []error
	if r.mirror != nil {
		if err := r.mirror.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.bridge != nil {
		r.bridge.Close()
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.logFile != nil {
		if err := r.logFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Runtime) recorder() consumption.EventRecorder {
	if r.journal == nil {
		return func(domain.NodeEvent) {}
	}
	return r.journal.Record
}

func (r *Runtime) goLoop(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Runtime) publishStatus(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.mirror.Publish(ctx, r.Snapshot()); err != nil && ctx.Err() == nil {
				r.obs.LogError("state_mirror_publish_failed", err)
			}
		}
	}
}

func (r *Runtime) startHTTP() {
	if r.cfg.Metrics.Addr == "" || r.cfg.Metrics.Addr == "-" {
		return
	}
	r.metricsSrv = &http.Server{
		Addr: r.cfg.Metrics.Addr,
		Handler: httpapi.NewRouter(r.agg, httpapi.RunInfo{
			RunID:        r.runID,
			ExperimentID: r.experiment.ID(),
			StartedAt:    r.startedAt,
		}),
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
}
