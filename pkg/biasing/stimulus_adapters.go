package biasing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrChannelStimulusClosed is returned when a channel stimulus fires after being closed.
	ErrChannelStimulusClosed = errors.New("biasing: channel stimulus closed")
	// ErrChannelStimulusFull is returned when the reader has fallen behind.
	ErrChannelStimulusFull = errors.New("biasing: channel stimulus full")
)

// StimulusFunc is called when a scheduled stimulus comes due.
type StimulusFunc func(ctx context.Context) error

// EventBatchFunc receives stimulus records flushed by the event journal.
type EventBatchFunc func(ctx context.Context, records []StimulusRecord) error

// NewCallbackStimulus adapts a StimulusFunc into a StimulusOutput so callers
// can plug arbitrary functions without defining structs.
func NewCallbackStimulus(name string, fn StimulusFunc) StimulusOutput {
	if name == "" {
		name = "callback"
	}
	return &callbackStimulus{name: name, fn: fn}
}

// NewChannelStimulus publishes fire times on a channel; it returns the output,
// the read-only channel, and a close function the caller should invoke after
// the runtime has shut down. Fire never blocks: a full channel is an error.
func NewChannelStimulus(name string, buffer int) (StimulusOutput, <-chan time.Time, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan time.Time, buffer)
	s := &channelStimulus{
		name: name,
		ch:   ch,
	}
	return s, ch, func() { s.close() }
}

// NewCallbackEventSink adapts an EventBatchFunc into an EventSink.
func NewCallbackEventSink(name string, fn EventBatchFunc) EventSink {
	if name == "" {
		name = "callback"
	}
	return &callbackEventSink{name: name, fn: fn}
}

type callbackStimulus struct {
	name string
	fn   StimulusFunc
}

func (s *callbackStimulus) Fire(ctx context.Context) error {
	if s.fn == nil {
		return fmt.Errorf("callback stimulus %q: nil handler", s.name)
	}
	return s.fn(ctx)
}

func (s *callbackStimulus) Name() string { return s.name }

type channelStimulus struct {
	name   string
	mu     sync.Mutex
	ch     chan time.Time
	closed bool
}

func (s *channelStimulus) Fire(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrChannelStimulusClosed
	}
	select {
	case s.ch <- time.Now():
		return nil
	default:
		return ErrChannelStimulusFull
	}
}

func (s *channelStimulus) Name() string { return s.name }

func (s *channelStimulus) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

type callbackEventSink struct {
	name string
	fn   EventBatchFunc
}

func (s *callbackEventSink) WriteBatch(ctx context.Context, records []StimulusRecord) error {
	if s.fn == nil {
		return fmt.Errorf("callback event sink %q: nil handler", s.name)
	}
	if len(records) == 0 {
		return nil
	}
	return s.fn(ctx, records)
}

func (s *callbackEventSink) Name() string { return s.name }
