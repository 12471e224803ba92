package biasing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/engine"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/observability"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/queue"
	filerec "github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/recorder"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/sink"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/source"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/stimulus"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/journal"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/pipeline"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/recorder"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/scheduler"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/logging"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

var (
	ErrAlreadyStarted = errors.New("biasing: runtime already started")
	ErrNotRunning     = errors.New("biasing: runtime not running")
)

// State is the lifecycle position of a Runtime.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        SampleSource
	engineFactory EngineFactory
	stimulus      StimulusOutput
	sinks         []EventSink
	observability Observability
	registry      *prometheus.Registry
	writerFactory ports.WriterFactory
}

// WithSource injects a custom sample source (hardware SDK bindings, network feeds, replays).
func WithSource(src SampleSource) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithEngineFactory replaces the built-in threshold engine.
func WithEngineFactory(f EngineFactory) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.engineFactory = f
	}
}

// WithStimulus overrides the configured stimulus output.
func WithStimulus(out StimulusOutput) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.stimulus = out
	}
}

// WithEventSink adds a sink for stimulus outcome records. May be given several times.
func WithEventSink(s EventSink) RuntimeOption {
	return func(o *runtimeOverrides) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRegistry registers pipeline metrics on reg and serves it on /metrics.
func WithRegistry(reg *prometheus.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithWriterFactory replaces the raw data file writer.
func WithWriterFactory(f func(channel int) (ports.ChunkWriter, error)) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.writerFactory = f
	}
}

// Runtime wires source → exchange → engine → scheduler → stimulus, with the raw
// data recorder and event journal off the real-time path.
type Runtime struct {
	cfg      *Config
	runID    string
	obs      ports.Observability
	logger   *zap.Logger
	registry *prometheus.Registry

	source        ports.SampleSource
	engineFactory ports.EngineFactory
	engine        ports.AnalysisEngine
	output        ports.StimulusOutput
	closers       []io.Closer

	exchange  *pipeline.Exchange
	recorder  *recorder.Recorder
	scheduler *scheduler.Scheduler
	journal   *journal.Journal

	state       atomic.Int32
	startMu     sync.Mutex
	startCancel context.CancelFunc
	startDone   chan struct{}
	acqOnce     sync.Once
	cancel      context.CancelFunc
	group       *errgroup.Group
	acqDone     chan struct{}
	metricsSrv  *http.Server
	metricsAddr string
	gaugeStopCh chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewRuntime builds the default adapters from cfg (synth or WAV source, threshold
// engine, configured stimulus output, Timescale/Redis event sinks, Prometheus
// observability). RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	r := &Runtime{
		cfg:       cfg,
		runID:     uuid.NewString(),
		registry:  overrides.registry,
		acqDone:   make(chan struct{}),
		startDone: make(chan struct{}),
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}

	r.obs = overrides.observability
	if r.obs == nil {
		logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		r.logger = logger.With(zap.String("run_id", r.runID))
		prom, err := observability.NewPromObs(r.logger, r.registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		r.obs = prom
	}

	var err error
	proc := cfg.Processor

	r.source = overrides.source
	if r.source == nil {
		r.source, err = source.New(cfg.Source, proc.Channel, proc.SampleRate, proc.ScaleUVPerCount)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
	}

	r.engineFactory = overrides.engineFactory
	if r.engineFactory == nil {
		r.engineFactory = engine.Factory(cfg.Engine, r.obs)
	}

	r.output = overrides.stimulus
	if r.output == nil {
		r.output, err = stimulus.New(cfg.Stimulus, r.runID, r.obs)
		if err != nil {
			return nil, fmt.Errorf("stimulus: %w", err)
		}
	}
	if c, ok := r.output.(io.Closer); ok {
		r.closers = append(r.closers, c)
	}

	sinks, err := r.buildSinks(overrides.sinks)
	if err != nil {
		r.closeAll()
		return nil, err
	}
	r.journal = journal.New(sinks, cfg.Events.Journal, r.obs)

	r.exchange, err = pipeline.NewExchange(cfg.Buffers.Count, cfg.Buffers.Size)
	if err != nil {
		r.journal.Close()
		r.closeAll()
		return nil, err
	}

	writers := overrides.writerFactory
	if writers == nil {
		writers = filerec.Factory(cfg.Recording.Dir, nil)
	}
	r.recorder = recorder.New(queue.NewMemQueue(cfg.Policy.MaxQueueLen), writers, cfg.Policy, proc.SampleRate, r.obs)
	r.recorder.Enable(proc.SaveRawData)

	r.scheduler = scheduler.New(r.output, r.obs, scheduler.Options{
		RunID:            r.runID,
		Channel:          proc.Channel,
		CancelOnShutdown: cfg.Stimulus.CancelOnShutdown,
		Journal:          r.journal,
	})

	return r, nil
}

func (r *Runtime) buildSinks(extra []EventSink) ([]ports.EventSink, error) {
	sinks := append([]ports.EventSink(nil), extra...)
	ev := r.cfg.Events

	if ev.Timescale.ConnString != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts, err := sink.OpenTimescale(ctx, ev.Timescale.ConnString, ev.Timescale.Table)
		if err != nil {
			return nil, fmt.Errorf("events timescale: %w", err)
		}
		sinks = append(sinks, ts)
		r.closers = append(r.closers, ts)
	}

	if ev.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     ev.Redis.Addr,
			Password: ev.Redis.Password,
			DB:       ev.Redis.DB,
		})
		rs := sink.NewRedisStreamSink(client, ev.Redis.Stream, ev.Redis.MaxLen)
		sinks = append(sinks, rs)
		r.closers = append(r.closers, rs)
	}
	return sinks, nil
}

func (r *Runtime) RunID() string { return r.runID }

func (r *Runtime) State() State { return State(r.state.Load()) }

// Done is closed when acquisition ends, either because the source ran dry or
// because shutdown began.
func (r *Runtime) Done() <-chan struct{} { return r.acqDone }

// MetricsAddr returns the bound metrics listener address once started.
func (r *Runtime) MetricsAddr() string { return r.metricsAddr }

// RecordingPath returns the raw data file, or "" when persistence is off.
func (r *Runtime) RecordingPath() string { return r.recorder.Path() }

// Start opens the source, lets it settle, starts the recorder and launches the
// acquisition and analysis goroutines. It returns once the pipeline is running.
// An engine or source failure aborts startup; a recorder failure only disables
// persistence.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}
	r.startMu.Lock()
	if !r.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		r.startMu.Unlock()
		if r.State() >= StateStopping {
			return ErrNotRunning
		}
		return ErrAlreadyStarted
	}
	// Shutdown during startup cancels sctx and waits for startDone.
	sctx, scancel := context.WithCancel(ctx)
	r.startCancel = scancel
	r.startMu.Unlock()
	defer scancel()
	defer close(r.startDone)

	proc := r.cfg.Processor
	r.obs.LogInfo("starting pipeline",
		ports.F("component", "runtime"),
		ports.F("run_id", r.runID),
		ports.F("channel", proc.Channel),
		ports.F("sample_rate", proc.SampleRate),
		ports.F("save_raw_data", proc.SaveRawData),
		ports.F("stimulus", r.output.Name()),
	)

	eng, err := r.engineFactory()
	if err != nil {
		r.abortStart()
		return fmt.Errorf("create analysis engine: %w", err)
	}
	r.engine = eng

	if err := r.source.Open(sctx); err != nil {
		r.abortStart()
		return fmt.Errorf("open source: %w", err)
	}

	if d := proc.SetupSleep(); d > 0 {
		r.obs.LogInfo("waiting for source to settle", ports.F("component", "runtime"), ports.F("delay", d.String()))
		t := time.NewTimer(d)
		select {
		case <-sctx.Done():
			t.Stop()
			if err := r.source.Close(); err != nil {
				r.obs.LogError("close source failed", err, ports.F("component", "runtime"))
			}
			r.abortStart()
			return sctx.Err()
		case <-t.C:
		}
	}

	if err := r.recorder.Start(proc.Channel); err != nil {
		r.obs.LogError("raw data recording unavailable, continuing without persistence", err,
			ports.F("component", "runtime"),
		)
	}

	pctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	group, gctx := errgroup.WithContext(pctx)
	r.group = group

	acqCfg := pipeline.AcquisitionConfig{
		Channel:    proc.Channel,
		Scale:      proc.ScaleUVPerCount,
		BufferSize: r.cfg.Buffers.Size,
		SampleRate: proc.SampleRate,
	}
	group.Go(func() error {
		defer r.markAcqDone()
		err := pipeline.RunAcquisition(gctx, r.source, r.exchange, r.recorder, acqCfg, r.cfg.Policy, r.obs)
		if errors.Is(err, ports.ErrSourceExhausted) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		pipeline.RunAnalysis(r.exchange, r.engine, r.scheduler, r.obs)
		return nil
	})

	r.startMetrics()
	r.state.Store(int32(StateRunning))

	r.obs.LogInfo("pipeline running",
		ports.F("component", "runtime"),
		ports.F("recording", r.recorder.Path()),
		ports.F("metrics_addr", r.metricsAddr),
	)
	return nil
}

// abortStart releases what NewRuntime and a partial Start acquired.
func (r *Runtime) abortStart() {
	if r.engine != nil {
		if err := r.engine.Close(); err != nil {
			r.obs.LogError("close engine failed", err, ports.F("component", "runtime"))
		}
	}
	r.recorder.Stop()
	r.scheduler.Close(context.Background())
	r.journal.Close()
	if err := r.closeAll(); err != nil {
		r.obs.LogError("release resources failed", err, ports.F("component", "runtime"))
	}
	r.state.Store(int32(StateStopped))
	r.markAcqDone()
}

func (r *Runtime) markAcqDone() {
	r.acqOnce.Do(func() { close(r.acqDone) })
}

func (r *Runtime) cancelStart() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.startCancel != nil {
		r.startCancel()
	}
}

// shutdownMargin is the time Run allows for the non-stimulus shutdown steps.
const shutdownMargin = 5 * time.Second

// shutdownTimeout covers the configured wait for pending stimuli plus the
// remaining shutdown steps.
func (r *Runtime) shutdownTimeout() time.Duration {
	return r.cfg.Stimulus.CloseTimeout + shutdownMargin
}

// Run starts the runtime and blocks until ctx is cancelled or the source is
// exhausted, then shuts down gracefully.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-r.acqDone:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout())
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops acquisition and analysis, drains the recorder, settles pending
// stimuli and releases every resource. During Start it cancels the startup and
// waits for Start to return. Concurrent and repeated calls wait for the first one
// and return its result.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.shutdownErr = r.shutdown(ctx)
	})
	return r.shutdownErr
}

func (r *Runtime) shutdown(ctx context.Context) error {
	for {
		switch r.State() {
		case StateIdle:
			r.startMu.Lock()
			ok := r.state.CompareAndSwap(int32(StateIdle), int32(StateStopping))
			r.startMu.Unlock()
			if ok {
				return r.releaseUnstarted(ctx)
			}
		case StateStarting:
			r.cancelStart()
			<-r.startDone
		case StateRunning:
			if r.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
				return r.stopRunning(ctx)
			}
		default:
			// startup was aborted and already released everything
			return nil
		}
	}
}

func (r *Runtime) releaseUnstarted(ctx context.Context) error {
	r.recorder.Stop()
	r.scheduler.Close(ctx)
	r.journal.Close()
	err := r.closeAll()
	r.state.Store(int32(StateStopped))
	r.markAcqDone()
	return err
}

func (r *Runtime) stopRunning(ctx context.Context) error {
	r.obs.LogInfo("shutdown requested", ports.F("component", "runtime"))
	var errs []error

	// stop processing and join the real-time goroutines
	r.cancel()
	r.exchange.Stop()
	if err := r.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}

	// stop logging: every queued chunk reaches disk before we go on
	if err := r.recorder.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}

	sctx, cancelSched := context.WithTimeout(ctx, r.cfg.Stimulus.CloseTimeout)
	err := r.scheduler.Close(sctx)
	cancelSched()
	if err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := r.journal.Close(); err != nil {
		r.obs.LogWarn("event journal reported sink errors", ports.F("component", "runtime"), ports.F("error", err.Error()))
	}

	if err := r.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := r.source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("source: %w", err))
	}

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if err := r.closeAll(); err != nil {
		errs = append(errs, err)
	}

	stats := r.recorder.Stats()
	r.state.Store(int32(StateStopped))
	r.obs.LogInfo("pipeline stopped",
		ports.F("component", "runtime"),
		ports.F("recorded_chunks", stats.Chunks),
		ports.F("recorded_bytes", stats.SizeBytes),
	)
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	return errors.Join(errs...)
}

func (r *Runtime) closeAll() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	if r.cfg.Metrics.Addr == "" {
		return
	}
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		r.obs.LogError("metrics listener failed", err, ports.F("component", "runtime"), ports.F("addr", r.cfg.Metrics.Addr))
		return
	}
	r.metricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if r.State() != StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(r.State().String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := r.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err, ports.F("component", "runtime"))
		}
	}()

	r.gaugeStopCh = make(chan struct{})
	go r.recordResourceGauges(r.gaugeStopCh, time.Second)
}

func (r *Runtime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.obs.SetGauge(ports.MetricRecordedBytes, float64(r.recorder.Stats().SizeBytes))
			r.obs.SetGauge(ports.MetricPendingStimuli, float64(r.scheduler.Pending()))
		}
	}
}
