package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

type PromObs struct {
	logger   *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the pipeline collectors on reg and logs through logger.
// A nil reg means prometheus.DefaultRegisterer; a nil logger discards logs.
func NewPromObs(logger *zap.Logger, reg prometheus.Registerer) (*PromObs, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counterHelp := map[string]string{
		ports.MetricChunksAcquired:   "Chunks delivered by the sample source for the configured channel.",
		ports.MetricSamplesAcquired:  "Samples delivered by the sample source for the configured channel.",
		ports.MetricNoData:           "Acquisition polls that returned no samples.",
		ports.MetricChunksAnalyzed:   "Buffers handed to the analysis engine.",
		ports.MetricTriggers:         "Trigger timestamps returned by the analysis engine.",
		ports.MetricEngineErrors:     "Analysis engine invocations that reported an error.",
		ports.MetricChunksPersisted:  "Chunks written to the raw data recording.",
		ports.MetricPersistErrors:    "Chunks the recorder failed to write.",
		ports.MetricStimuliScheduled: "Stimuli registered for deferred delivery.",
		ports.MetricStimuliFired:     "Stimuli delivered to the output device.",
		ports.MetricStimuliMissed:    "Triggers skipped because their target time had already passed.",
		ports.MetricStimuliFailed:    "Stimuli the output device rejected.",
		ports.MetricStimuliCancelled: "Pending stimuli cancelled by shutdown.",
		ports.MetricJournalDropped:   "Stimulus records dropped because the journal was saturated.",
	}
	gaugeHelp := map[string]string{
		ports.MetricQueueLength:    "Chunks waiting in the persistence queue.",
		ports.MetricPendingStimuli: "Stimuli scheduled but not yet delivered.",
		ports.MetricRecordedBytes:  "Bytes written to the current raw data recording.",
	}

	p := &PromObs{
		logger:   logger,
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		histos:   make(map[string]prometheus.Observer, 3),
	}

	var collectors []prometheus.Collector
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		p.counters[name] = c
		collectors = append(collectors, c)
	}
	for name, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		p.gauges[name] = g
		collectors = append(collectors, g)
	}

	analysis := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricAnalysisLatency,
		Help:    "Time spent inside the analysis engine per buffer.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	backpressure := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricBackpressureWait,
		Help:    "Time the acquisition loop spent blocked on a full persistence queue.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	lateness := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricStimulusLateness,
		Help:    "Delay between a stimulus target time and its delivery.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	p.histos[ports.MetricAnalysisLatency] = analysis
	p.histos[ports.MetricBackpressureWait] = backpressure
	p.histos[ports.MetricStimulusLateness] = lateness
	collectors = append(collectors, analysis, backpressure, lateness)

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.logger.Debug(msg, zapFields(fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

// LogCritical logs at DPanic: it panics in development loggers only.
func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.DPanic(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

// Logger exposes the underlying zap logger for adapters that log directly.
func (p *PromObs) Logger() *zap.Logger { return p.logger }

func zapFields(fields []ports.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, len(fields), len(fields)+1)
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
