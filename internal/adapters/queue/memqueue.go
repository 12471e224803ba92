package queue

import (
	"sync"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// MemQueue is a bounded in-memory queue that preserves FIFO ordering.
// Once closed it keeps accepting chunks until a Dequeue observes it empty,
// so producers caught mid-enqueue by a shutdown never lose data.
type MemQueue struct {
	mu      sync.Mutex
	data    []*domain.Chunk
	cap     int
	closing bool
	drained bool

	ready chan struct{}
	space chan struct{}
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data:  make([]*domain.Chunk, 0, capacity),
		cap:   capacity,
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
	}
}

func (q *MemQueue) Enqueue(c *domain.Chunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.drained {
		return ports.ErrQueueClosed
	}
	if len(q.data) >= q.cap && !q.closing {
		return ports.ErrQueueFull
	}
	q.data = append(q.data, c)
	notify(q.ready)
	return nil
}

func (q *MemQueue) Dequeue() (*domain.Chunk, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		if q.closing {
			q.drained = true
			return nil, ports.ErrQueueClosed
		}
		return nil, nil
	}
	c := q.data[0]
	n := copy(q.data, q.data[1:])
	q.data[n] = nil
	q.data = q.data[:n]
	notify(q.space)
	return c, nil
}

func (q *MemQueue) Close() {
	q.mu.Lock()
	q.closing = true
	q.mu.Unlock()
	notify(q.ready)
	notify(q.space)
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *MemQueue) Ready() <-chan struct{} { return q.ready }

func (q *MemQueue) Space() <-chan struct{} { return q.space }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ ports.ChunkQueue = (*MemQueue)(nil)
