package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// Journal receives the outcome of every scheduling request. Record must not block.
type Journal interface {
	Record(rec domain.StimulusRecord)
}

type Options struct {
	RunID   string
	Channel int
	// CancelOnShutdown makes Close abandon stimuli that have not fired yet.
	// By default Close lets them run to completion.
	CancelOnShutdown bool
	Journal          Journal
}

// Scheduler fires a stimulus at an absolute target instant. Each accepted trigger
// gets its own task which removes itself from the pending set when it finishes.
type Scheduler struct {
	out  ports.StimulusOutput
	obs  ports.Observability
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[uint64]time.Time
	nextID  uint64
	closed  bool
	wg      sync.WaitGroup
}

func New(out ports.StimulusOutput, obs ports.Observability, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		out:     out,
		obs:     obs,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]time.Time),
	}
}

// Schedule registers ev and returns immediately. Targets already in the past are
// skipped and never fired late.
func (s *Scheduler) Schedule(ev domain.TriggerEvent) {
	target := ev.Time()
	now := time.Now()
	delay := target.Sub(now)

	if delay <= 0 {
		s.obs.IncCounter(ports.MetricStimuliMissed, 1)
		s.obs.LogWarn("scheduled time already passed - skipping pulse",
			ports.F("component", "scheduler"),
			ports.F("target", ev.Timestamp),
			ports.F("late_ms", float64(-delay.Microseconds())/1000),
		)
		s.record(domain.StimulusRecord{Target: target, Outcome: domain.OutcomeMissed, Lateness: -delay})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.obs.IncCounter(ports.MetricStimuliCancelled, 1)
		s.obs.LogWarn("scheduler closed - dropping pulse",
			ports.F("component", "scheduler"),
			ports.F("target", ev.Timestamp),
		)
		s.record(domain.StimulusRecord{Target: target, Outcome: domain.OutcomeCancelled})
		return
	}
	id := s.nextID
	s.nextID++
	s.pending[id] = target
	pending := len(s.pending)
	s.wg.Add(1)
	s.mu.Unlock()

	s.obs.IncCounter(ports.MetricStimuliScheduled, 1)
	s.obs.SetGauge(ports.MetricPendingStimuli, float64(pending))
	s.obs.LogInfo("scheduling pulse",
		ports.F("component", "scheduler"),
		ports.F("delay_ms", float64(delay.Microseconds())/1000),
		ports.F("output", s.out.Name()),
	)

	go s.run(id, target)
}

func (s *Scheduler) run(id uint64, target time.Time) {
	defer s.wg.Done()
	defer s.reap(id)

	timer := time.NewTimer(time.Until(target))
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		s.obs.IncCounter(ports.MetricStimuliCancelled, 1)
		s.obs.LogInfo("pending pulse cancelled",
			ports.F("component", "scheduler"),
			ports.F("target", domain.Seconds(target)),
		)
		s.record(domain.StimulusRecord{Target: target, Outcome: domain.OutcomeCancelled})
		return
	case <-timer.C:
	}

	firedAt := time.Now()
	lateness := firedAt.Sub(target)
	err := s.out.Fire(s.ctx)
	s.obs.ObserveLatency(ports.MetricStimulusLateness, lateness.Seconds())

	if err != nil {
		s.obs.IncCounter(ports.MetricStimuliFailed, 1)
		s.obs.LogError("stimulus delivery failed", err,
			ports.F("component", "scheduler"),
			ports.F("output", s.out.Name()),
		)
		s.record(domain.StimulusRecord{
			Target:   target,
			FiredAt:  firedAt,
			Outcome:  domain.OutcomeFailed,
			Lateness: lateness,
			Error:    err.Error(),
		})
		return
	}

	s.obs.IncCounter(ports.MetricStimuliFired, 1)
	s.obs.LogDebug("pulse fired",
		ports.F("component", "scheduler"),
		ports.F("lateness_us", lateness.Microseconds()),
	)
	s.record(domain.StimulusRecord{Target: target, FiredAt: firedAt, Outcome: domain.OutcomeFired, Lateness: lateness})
}

func (s *Scheduler) reap(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	pending := len(s.pending)
	s.mu.Unlock()
	s.obs.SetGauge(ports.MetricPendingStimuli, float64(pending))
}

func (s *Scheduler) record(rec domain.StimulusRecord) {
	if s.opts.Journal == nil {
		return
	}
	rec.RunID = s.opts.RunID
	rec.Channel = s.opts.Channel
	s.opts.Journal.Record(rec)
}

// Pending reports how many stimuli are waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops accepting triggers and waits for outstanding tasks. If ctx ends first
// the remaining tasks are cancelled and ctx.Err() is returned.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	outstanding := len(s.pending)
	s.mu.Unlock()

	if s.opts.CancelOnShutdown {
		s.cancel()
	} else if outstanding > 0 {
		s.obs.LogInfo("waiting for pending pulses",
			ports.F("component", "scheduler"),
			ports.F("pending", outstanding),
		)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
