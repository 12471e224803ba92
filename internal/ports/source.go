package ports

import (
	"context"
	"errors"
)

// ErrSourceExhausted is returned by finite sources once every sample was delivered.
var ErrSourceExhausted = errors.New("source exhausted")

// RawChunk is what a source delivers per poll: raw amplifier counts for one channel.
type RawChunk struct {
	Channel int
	Samples []int16
}

// SampleSource delivers raw samples from the acquisition hardware or a stand-in.
// Next must not block for longer than one acquisition cycle and may return zero samples.
type SampleSource interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (RawChunk, error)
	Close() error
}
