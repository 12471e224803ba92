package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

var (
	ErrExchangeStopped = errors.New("buffer exchange stopped")
	ErrChunkTooLarge   = errors.New("chunk exceeds buffer size")
)

type slotState uint8

const (
	slotFree slotState = iota
	slotFilling
	slotReady
	slotHeld
)

type slot struct {
	state      slotState
	samples    []float64
	n          int
	seq        uint64
	acquiredAt time.Time
}

// View is a read-only window onto a held slot. Samples is only valid until Release.
type View struct {
	Index      int
	Seq        uint64
	AcquiredAt time.Time
	Samples    []float64
}

// Exchange hands chunks from one producer to one consumer through a fixed ring of
// slots. A slot is written only while free/filling and read only while held, so the
// producer never overwrites samples the consumer is still reading. Ready slots are
// handed out in fill order.
type Exchange struct {
	mu      sync.Mutex
	cond    *sync.Cond
	slots   []slot
	size    int
	fillIdx int
	ready   []int
	stopped bool
}

func NewExchange(numBuffers, bufferSize int) (*Exchange, error) {
	if numBuffers < 2 {
		return nil, fmt.Errorf("exchange needs at least 2 buffers, got %d", numBuffers)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", bufferSize)
	}
	ex := &Exchange{
		slots: make([]slot, numBuffers),
		size:  bufferSize,
		ready: make([]int, 0, numBuffers),
	}
	for i := range ex.slots {
		ex.slots[i].samples = make([]float64, bufferSize)
	}
	ex.cond = sync.NewCond(&ex.mu)
	return ex, nil
}

// Fill copies c into the next slot in the ring, waiting until that slot has been
// released by the consumer.
func (ex *Exchange) Fill(c *domain.Chunk) error {
	if len(c.Samples) > ex.size {
		return fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(c.Samples), ex.size)
	}

	ex.mu.Lock()
	for !ex.stopped && ex.slots[ex.fillIdx].state != slotFree {
		ex.cond.Wait()
	}
	if ex.stopped {
		ex.mu.Unlock()
		return ErrExchangeStopped
	}
	idx := ex.fillIdx
	s := &ex.slots[idx]
	s.state = slotFilling
	ex.mu.Unlock()

	// the slot belongs to the producer until it is marked ready
	s.n = copy(s.samples, c.Samples)
	s.seq = c.Seq
	s.acquiredAt = c.AcquiredAt

	ex.mu.Lock()
	s.state = slotReady
	ex.ready = append(ex.ready, idx)
	ex.fillIdx = (idx + 1) % len(ex.slots)
	ex.cond.Broadcast()
	ex.mu.Unlock()
	return nil
}

// Take blocks until a slot is ready and returns a view onto it. The slot stays
// held until Release.
func (ex *Exchange) Take() (View, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	for !ex.stopped && len(ex.ready) == 0 {
		ex.cond.Wait()
	}
	if ex.stopped {
		return View{}, ErrExchangeStopped
	}

	idx := ex.ready[0]
	n := copy(ex.ready, ex.ready[1:])
	ex.ready = ex.ready[:n]

	s := &ex.slots[idx]
	s.state = slotHeld
	return View{
		Index:      idx,
		Seq:        s.seq,
		AcquiredAt: s.acquiredAt,
		Samples:    s.samples[:s.n:s.n],
	}, nil
}

func (ex *Exchange) Release(v View) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if v.Index < 0 || v.Index >= len(ex.slots) {
		return
	}
	s := &ex.slots[v.Index]
	if s.state != slotHeld {
		return
	}
	s.state = slotFree
	s.n = 0
	ex.cond.Broadcast()
}

// Stop wakes every waiter; Fill and Take fail from then on. Safe to call repeatedly.
func (ex *Exchange) Stop() {
	ex.mu.Lock()
	ex.stopped = true
	ex.cond.Broadcast()
	ex.mu.Unlock()
}

func (ex *Exchange) Stopped() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.stopped
}

// Pending reports how many slots are ready but not yet taken.
func (ex *Exchange) Pending() int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return len(ex.ready)
}
