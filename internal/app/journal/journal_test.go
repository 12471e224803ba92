package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func record(outcome domain.StimulusOutcome) domain.StimulusRecord {
	return domain.StimulusRecord{RunID: "r", Target: time.Now(), Outcome: outcome}
}

func TestJournalBatchesToEverySink(t *testing.T) {
	a, b := &stubSink{name: "a"}, &stubSink{name: "b"}
	j := New([]ports.EventSink{a, b}, Config{BatchSize: 2, FlushInterval: time.Hour}, &stubObs{})

	j.Record(record(domain.OutcomeFired))
	j.Record(record(domain.OutcomeMissed))
	j.Record(record(domain.OutcomeCancelled))
	require.NoError(t, j.Close())

	for _, s := range []*stubSink{a, b} {
		batches := s.all()
		require.Len(t, batches, 2, "sink %s", s.name)
		assert.Len(t, batches[0], 2)
		assert.Len(t, batches[1], 1)
		assert.Equal(t, domain.OutcomeCancelled, batches[1][0].Outcome)
	}
}

func TestJournalFlushesOnInterval(t *testing.T) {
	s := &stubSink{name: "tick"}
	j := New([]ports.EventSink{s}, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, &stubObs{})
	defer j.Close()

	j.Record(record(domain.OutcomeFired))
	require.Eventually(t, func() bool { return len(s.all()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestJournalDropsWhenSaturated(t *testing.T) {
	gate := make(chan struct{})
	s := &stubSink{name: "slow", gate: gate}
	obs := &stubObs{}
	j := New([]ports.EventSink{s}, Config{Buffer: 2, BatchSize: 1, FlushInterval: time.Hour}, obs)

	start := time.Now()
	for i := 0; i < 10; i++ {
		j.Record(record(domain.OutcomeFired))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "Record must not block")
	assert.Positive(t, obs.dropped())

	close(gate)
	require.NoError(t, j.Close())

	var written int
	for _, b := range s.all() {
		written += len(b)
	}
	assert.Equal(t, 10, written+obs.dropped())

	j.Record(record(domain.OutcomeFired))
	assert.Equal(t, 10-written+1, obs.dropped())
}

func TestJournalCollectsSinkErrors(t *testing.T) {
	boom := errors.New("connection refused")
	s := &stubSink{name: "broken", err: boom}
	j := New([]ports.EventSink{s}, Config{BatchSize: 1}, &stubObs{})

	j.Record(record(domain.OutcomeFailed))
	assert.ErrorIs(t, j.Close(), boom)
	assert.ErrorIs(t, j.Close(), boom)
}

type stubSink struct {
	name    string
	gate    chan struct{}
	err     error
	mu      sync.Mutex
	batches [][]domain.StimulusRecord
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) WriteBatch(_ context.Context, recs []domain.StimulusRecord) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]domain.StimulusRecord(nil), recs...))
	return s.err
}

func (s *stubSink) all() [][]domain.StimulusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]domain.StimulusRecord(nil), s.batches...)
}

type stubObs struct {
	mu    sync.Mutex
	drops int
}

func (o *stubObs) dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drops
}

func (o *stubObs) IncCounter(name string, v float64) {
	if name != ports.MetricJournalDropped {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops += int(v)
}

func (o *stubObs) LogDebug(string, ...ports.Field)           {}
func (o *stubObs) LogInfo(string, ...ports.Field)            {}
func (o *stubObs) LogWarn(string, ...ports.Field)            {}
func (o *stubObs) LogError(string, error, ...ports.Field)    {}
func (o *stubObs) LogCritical(string, error, ...ports.Field) {}
func (o *stubObs) ObserveLatency(string, float64)            {}
func (o *stubObs) SetGauge(string, float64)                  {}
