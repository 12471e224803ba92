package ports

import (
	"errors"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned once the queue has been drained after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// ChunkQueue is a bounded FIFO of chunks awaiting persistence. Size, contents and the
// closing flag share a single lock.
type ChunkQueue interface {
	// Enqueue appends c. While closing, capacity is not enforced so nothing is lost.
	Enqueue(c *domain.Chunk) error
	// Dequeue pops the oldest chunk. It returns (nil, nil) when empty and open, and
	// (nil, ErrQueueClosed) when empty and closing, after which Enqueue fails.
	Dequeue() (*domain.Chunk, error)
	Close()
	Len() int
	// Ready is signalled after Enqueue and Close.
	Ready() <-chan struct{}
	// Space is signalled after Dequeue.
	Space() <-chan struct{}
}
