package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

type Config struct {
	Buffer        int           `yaml:"buffer"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Buffer <= 0 {
		c.Buffer = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Journal collects stimulus records off the real-time path and writes them to
// sinks in batches from a single goroutine. Record never blocks: when the buffer is
// full the record is dropped and counted.
type Journal struct {
	sinks []ports.EventSink
	cfg   Config
	obs   ports.Observability

	mu     sync.RWMutex
	ch     chan domain.StimulusRecord
	closed bool

	done     chan struct{}
	errMu    sync.Mutex
	writeErr error
}

func New(sinks []ports.EventSink, cfg Config, obs ports.Observability) *Journal {
	cfg.ApplyDefaults()
	j := &Journal{
		sinks: sinks,
		cfg:   cfg,
		obs:   obs,
		ch:    make(chan domain.StimulusRecord, cfg.Buffer),
		done:  make(chan struct{}),
	}
	go j.loop()
	return j
}

func (j *Journal) Record(rec domain.StimulusRecord) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.drop(rec, "closed")
		return
	}
	select {
	case j.ch <- rec:
	default:
		j.drop(rec, "full")
	}
}

func (j *Journal) drop(rec domain.StimulusRecord, reason string) {
	j.obs.IncCounter(ports.MetricJournalDropped, 1)
	j.obs.LogWarn("stimulus record dropped",
		ports.F("component", "journal"),
		ports.F("reason", reason),
		ports.F("outcome", string(rec.Outcome)),
	)
}

// Close flushes everything recorded so far and returns the joined sink errors
// seen over the journal's lifetime.
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.ch)
	}
	j.mu.Unlock()

	<-j.done

	j.errMu.Lock()
	defer j.errMu.Unlock()
	return j.writeErr
}

func (j *Journal) loop() {
	defer close(j.done)

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]domain.StimulusRecord, 0, j.cfg.BatchSize)
	for {
		select {
		case rec, ok := <-j.ch:
			if !ok {
				j.flush(batch)
				return
			}
			j.obs.LogDebug("stimulus record",
				ports.F("component", "journal"),
				ports.F("outcome", string(rec.Outcome)),
				ports.F("target", domain.Seconds(rec.Target)),
				ports.F("lateness_us", rec.Lateness.Microseconds()),
			)
			batch = append(batch, rec)
			if len(batch) >= j.cfg.BatchSize {
				j.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flush(batch []domain.StimulusRecord) {
	if len(batch) == 0 || len(j.sinks) == 0 {
		return
	}
	for _, sink := range j.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), j.cfg.WriteTimeout)
		err := sink.WriteBatch(ctx, batch)
		cancel()
		if err != nil {
			j.obs.LogError("event sink write failed", err,
				ports.F("component", "journal"),
				ports.F("sink", sink.Name()),
				ports.F("records", len(batch)),
			)
			j.errMu.Lock()
			j.writeErr = errors.Join(j.writeErr, err)
			j.errMu.Unlock()
		}
	}
}
