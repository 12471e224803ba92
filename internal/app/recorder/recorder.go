package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// Recorder moves chunks off the real-time path into a bounded queue and drains
// them to a ChunkWriter on its own goroutine. Enqueue never drops: when the queue
// is full it blocks in Policy.BackpressurePoll steps until the drain frees space.
type Recorder struct {
	queue      ports.ChunkQueue
	factory    ports.WriterFactory
	pol        ports.Policy
	sampleRate int
	obs        ports.Observability

	enabled    atomic.Bool
	warnedFull atomic.Bool

	mu      sync.Mutex
	writer  ports.ChunkWriter
	started bool
	done    chan struct{}

	stopOnce sync.Once
	stopErr  error
	closeErr error
}

func New(q ports.ChunkQueue, factory ports.WriterFactory, pol ports.Policy, sampleRate int, obs ports.Observability) *Recorder {
	if pol.BackpressurePoll <= 0 {
		pol.BackpressurePoll = 100 * time.Millisecond
	}
	if pol.StatsEveryChunks <= 0 {
		pol.StatsEveryChunks = 1000
	}
	if sampleRate <= 0 {
		sampleRate = domain.DefaultSampleRate
	}
	return &Recorder{
		queue:      q,
		factory:    factory,
		pol:        pol,
		sampleRate: sampleRate,
		obs:        obs,
		done:       make(chan struct{}),
	}
}

// Enable switches persistence on or off. It must be called before the first Enqueue.
func (r *Recorder) Enable(on bool) { r.enabled.Store(on) }

func (r *Recorder) Enabled() bool { return r.enabled.Load() }

// Start opens the recording for channel and spawns the drain loop. On failure the
// recorder disables itself so Enqueue becomes a no-op.
func (r *Recorder) Start(channel int) error {
	if !r.Enabled() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	w, err := r.factory(channel)
	if err != nil {
		r.enabled.Store(false)
		return fmt.Errorf("open recording for channel %d: %w", channel, err)
	}
	r.writer = w
	r.started = true

	r.obs.LogInfo("recording started",
		ports.F("component", "recorder"),
		ports.F("channel", channel),
		ports.F("path", w.Path()),
		ports.F("max_queue_len", r.pol.MaxQueueLen),
	)

	go r.drain(w)
	return nil
}

// Enqueue copies c onto the persistence queue. It returns ctx.Err() if ctx ends while
// waiting for space, and ports.ErrQueueClosed once the recorder has been stopped.
func (r *Recorder) Enqueue(ctx context.Context, c *domain.Chunk) error {
	if !r.Enabled() {
		return nil
	}

	owned := c.Clone()

	var (
		waitStart time.Time
		timer     *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		err := r.queue.Enqueue(owned)
		if err == nil {
			if !waitStart.IsZero() {
				r.obs.ObserveLatency(ports.MetricBackpressureWait, time.Since(waitStart).Seconds())
			}
			r.obs.SetGauge(ports.MetricQueueLength, float64(r.queue.Len()))
			return nil
		}
		if !errors.Is(err, ports.ErrQueueFull) {
			return err
		}

		if waitStart.IsZero() {
			waitStart = time.Now()
			if r.warnedFull.CompareAndSwap(false, true) {
				r.obs.LogWarn("persistence queue full, waiting for disk I/O",
					ports.F("component", "recorder"),
					ports.F("max_queue_len", r.pol.MaxQueueLen),
				)
			}
		}

		if timer == nil {
			timer = time.NewTimer(r.pol.BackpressurePoll)
		} else {
			timer.Reset(r.pol.BackpressurePoll)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.queue.Space():
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

// Stop closes the queue, waits until every queued chunk has been written and closes
// the recording. Later calls wait for the first and return its result.
func (r *Recorder) Stop() error {
	r.stopOnce.Do(func() {
		r.queue.Close()

		r.mu.Lock()
		started := r.started
		r.mu.Unlock()

		if !started {
			r.enabled.Store(false)
			close(r.done)
			return
		}

		<-r.done
		r.stopErr = r.closeErr
	})
	<-r.done
	return r.stopErr
}

func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return ""
	}
	return r.writer.Path()
}

func (r *Recorder) Stats() ports.WriterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return ports.WriterStats{}
	}
	return r.writer.Stats()
}

func (r *Recorder) drain(w ports.ChunkWriter) {
	defer close(r.done)

	var written, samples uint64
	for {
		c, err := r.queue.Dequeue()
		if errors.Is(err, ports.ErrQueueClosed) {
			break
		}
		if c == nil {
			<-r.queue.Ready()
			continue
		}

		if err := w.WriteChunk(c.Samples); err != nil {
			r.obs.IncCounter(ports.MetricPersistErrors, 1)
			r.obs.LogError("write chunk failed", err,
				ports.F("component", "recorder"),
				ports.F("seq", c.Seq),
			)
			continue
		}

		written++
		samples += uint64(len(c.Samples))
		r.obs.IncCounter(ports.MetricChunksPersisted, 1)
		r.obs.SetGauge(ports.MetricQueueLength, float64(r.queue.Len()))

		if written%uint64(r.pol.StatsEveryChunks) == 0 {
			r.obs.SetGauge(ports.MetricRecordedBytes, float64(w.Stats().SizeBytes))
			r.obs.LogInfo("recording progress",
				ports.F("component", "recorder"),
				ports.F("chunks", written),
				ports.F("seconds", float64(samples)/float64(r.sampleRate)),
				ports.F("queued", r.queue.Len()),
			)
		}
	}

	r.closeErr = w.Close()
	stats := w.Stats()
	r.obs.SetGauge(ports.MetricRecordedBytes, float64(stats.SizeBytes))
	r.obs.SetGauge(ports.MetricQueueLength, 0)
	if r.closeErr != nil {
		r.obs.LogError("close recording failed", r.closeErr, ports.F("component", "recorder"))
	}
	r.obs.LogInfo("recording stopped",
		ports.F("component", "recorder"),
		ports.F("path", w.Path()),
		ports.F("chunks", written),
		ports.F("samples", samples),
		ports.F("seconds", float64(samples)/float64(r.sampleRate)),
		ports.F("bytes", stats.SizeBytes),
	)
}
