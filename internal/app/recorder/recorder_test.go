package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/queue"
	filerec "github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/recorder"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testPolicy(maxQueue int) ports.Policy {
	return ports.Policy{
		MaxQueueLen:      maxQueue,
		BackpressurePoll: 5 * time.Millisecond,
		StatsEveryChunks: 100,
	}
}

func seqChunk(seq uint64, n int) *domain.Chunk {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(seq)
	}
	return &domain.Chunk{Channel: 1, Seq: seq, Samples: samples}
}

func TestDisabledRecorderIgnoresChunks(t *testing.T) {
	q := queue.NewMemQueue(4)
	w := newStubWriter(nil)
	rec := New(q, w.factory, testPolicy(4), 30000, &stubObs{})

	require.NoError(t, rec.Start(1))
	require.NoError(t, rec.Enqueue(context.Background(), seqChunk(1, 4)))
	assert.Equal(t, 0, q.Len())
	require.NoError(t, rec.Stop())
	assert.Zero(t, w.opened)
}

func TestStartFailureDisablesPersistence(t *testing.T) {
	q := queue.NewMemQueue(4)
	rec := New(q, func(int) (ports.ChunkWriter, error) {
		return nil, errors.New("permission denied")
	}, testPolicy(4), 30000, &stubObs{})
	rec.Enable(true)

	err := rec.Start(3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 3")
	assert.False(t, rec.Enabled())

	require.NoError(t, rec.Enqueue(context.Background(), seqChunk(1, 4)))
	assert.Equal(t, 0, q.Len())
	require.NoError(t, rec.Stop())
}

func TestEnqueueCopiesChunk(t *testing.T) {
	q := queue.NewMemQueue(4)
	w := newStubWriter(nil)
	rec := New(q, w.factory, testPolicy(4), 30000, &stubObs{})
	rec.Enable(true)

	c := seqChunk(7, 3)
	require.NoError(t, rec.Enqueue(context.Background(), c))
	c.Samples[0] = -1

	require.NoError(t, rec.Start(1))
	require.NoError(t, rec.Stop())
	require.Len(t, w.chunks, 1)
	assert.Equal(t, []float64{7, 7, 7}, w.chunks[0])
}

// The writer stalls, the queue fills to capacity, the producer blocks, and once the
// writer resumes every chunk lands on disk in order.
func TestBackpressureBlocksProducerWithoutLoss(t *testing.T) {
	const (
		capacity = 1000
		total    = 2000
	)

	gate := make(chan struct{})
	q := queue.NewMemQueue(capacity)
	w := newStubWriter(gate)
	obs := &stubObs{}
	rec := New(q, w.factory, testPolicy(capacity), 30000, obs)
	rec.Enable(true)
	require.NoError(t, rec.Start(1))

	produced := make(chan error, 1)
	go func() {
		for i := uint64(0); i < total; i++ {
			if err := rec.Enqueue(context.Background(), seqChunk(i, 2)); err != nil {
				produced <- err
				return
			}
		}
		produced <- nil
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-produced:
		t.Fatalf("producer finished while the writer was stalled: %v", err)
	default:
	}
	assert.Equal(t, capacity, q.Len())

	close(gate)
	select {
	case err := <-produced:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("producer stayed blocked after the writer resumed")
	}
	require.NoError(t, rec.Stop())

	require.Len(t, w.chunks, total)
	for i, c := range w.chunks {
		if c[0] != float64(i) {
			t.Fatalf("chunk %d persisted out of order: %v", i, c)
		}
	}
	assert.Equal(t, 1, obs.count("warn", "persistence queue full, waiting for disk I/O"))
	assert.Positive(t, obs.latencies(ports.MetricBackpressureWait))
}

func TestEnqueueReturnsWhenContextEndsWhileFull(t *testing.T) {
	gate := make(chan struct{})
	q := queue.NewMemQueue(1)
	w := newStubWriter(gate)
	rec := New(q, w.factory, testPolicy(1), 30000, &stubObs{})
	rec.Enable(true)
	require.NoError(t, rec.Start(1))

	// first chunk is taken by the stalled writer, second fills the queue
	require.NoError(t, rec.Enqueue(context.Background(), seqChunk(0, 1)))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, rec.Enqueue(context.Background(), seqChunk(1, 1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rec.Enqueue(ctx, seqChunk(2, 1))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	require.NoError(t, rec.Stop())
	assert.Len(t, w.chunks, 2)
}

func TestStopFlushesQueuedChunks(t *testing.T) {
	gate := make(chan struct{})
	q := queue.NewMemQueue(100)
	w := newStubWriter(gate)
	rec := New(q, w.factory, testPolicy(100), 30000, &stubObs{})
	rec.Enable(true)
	require.NoError(t, rec.Start(1))

	for i := uint64(0); i < 50; i++ {
		require.NoError(t, rec.Enqueue(context.Background(), seqChunk(i, 8)))
	}

	stopped := make(chan error, 1)
	go func() { stopped <- rec.Stop() }()
	close(gate)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not return")
	}

	assert.Len(t, w.chunks, 50)
	assert.True(t, w.closed)
	assert.ErrorIs(t, rec.Enqueue(context.Background(), seqChunk(99, 1)), ports.ErrQueueClosed)
}

func TestStopIsIdempotent(t *testing.T) {
	q := queue.NewMemQueue(4)
	closeErr := errors.New("sync failed")
	w := newStubWriter(nil)
	w.closeErr = closeErr
	rec := New(q, w.factory, testPolicy(4), 30000, &stubObs{})
	rec.Enable(true)
	require.NoError(t, rec.Start(1))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = rec.Stop()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, closeErr)
	}
}

func TestPersistedBytesMatchEnqueuedSamples(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	q := queue.NewMemQueue(16)
	rec := New(q, filerec.Factory(dir, func() time.Time { return started }), testPolicy(16), 30000, &stubObs{})
	rec.Enable(true)
	require.NoError(t, rec.Start(5))

	var enqueued int
	for i := uint64(0); i < 200; i++ {
		n := int(i%7) + 1
		enqueued += n
		require.NoError(t, rec.Enqueue(context.Background(), seqChunk(i, n)))
	}
	require.NoError(t, rec.Stop())

	path := filepath.Join(dir, "raw_data_ch5_20260301_093000.bin")
	assert.Equal(t, path, rec.Path())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(enqueued*8), info.Size())

	values, err := filerec.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, values, enqueued)
	assert.Equal(t, float64(199), values[len(values)-1])
}

type stubWriter struct {
	gate     <-chan struct{}
	mu       sync.Mutex
	chunks   [][]float64
	samples  uint64
	opened   int
	closed   bool
	closeErr error
}

func newStubWriter(gate <-chan struct{}) *stubWriter {
	return &stubWriter{gate: gate}
}

func (w *stubWriter) factory(int) (ports.ChunkWriter, error) {
	w.opened++
	return w, nil
}

func (w *stubWriter) WriteChunk(samples []float64) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chunks = append(w.chunks, append([]float64(nil), samples...))
	w.samples += uint64(len(samples))
	return nil
}

func (w *stubWriter) Flush() error { return nil }

func (w *stubWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.closeErr
}

func (w *stubWriter) Path() string { return "stub" }

func (w *stubWriter) Stats() ports.WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WriterStats{Chunks: uint64(len(w.chunks)), Samples: w.samples, SizeBytes: int64(w.samples * 8)}
}

type logEntry struct {
	level string
	msg   string
}

type stubObs struct {
	mu      sync.Mutex
	logs    []logEntry
	latency map[string]int
}

func (o *stubObs) log(level, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logs = append(o.logs, logEntry{level: level, msg: msg})
}

func (o *stubObs) count(level, msg string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.logs {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

func (o *stubObs) latencies(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latency[name]
}

func (o *stubObs) LogDebug(msg string, _ ...ports.Field)             { o.log("debug", msg) }
func (o *stubObs) LogInfo(msg string, _ ...ports.Field)              { o.log("info", msg) }
func (o *stubObs) LogWarn(msg string, _ ...ports.Field)              { o.log("warn", msg) }
func (o *stubObs) LogError(msg string, _ error, _ ...ports.Field)    { o.log("error", msg) }
func (o *stubObs) LogCritical(msg string, _ error, _ ...ports.Field) { o.log("critical", msg) }
func (o *stubObs) IncCounter(string, float64)                        {}
func (o *stubObs) SetGauge(string, float64)                          {}
func (o *stubObs) ObserveLatency(name string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.latency == nil {
		o.latency = make(map[string]int)
	}
	o.latency[name]++
}
