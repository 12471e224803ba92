package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

func chunk(seq uint64, values ...float64) *domain.Chunk {
	return &domain.Chunk{Channel: 1, Seq: seq, Samples: values}
}

func TestExchangeHandsOutSlotsInFillOrder(t *testing.T) {
	ex, err := NewExchange(2, 4)
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}

	if err := ex.Fill(chunk(1, 1, 2)); err != nil {
		t.Fatalf("fill 1: %v", err)
	}
	if err := ex.Fill(chunk(2, 3, 4, 5)); err != nil {
		t.Fatalf("fill 2: %v", err)
	}

	v1, err := ex.Take()
	if err != nil {
		t.Fatalf("take 1: %v", err)
	}
	if v1.Index != 0 || v1.Seq != 1 || len(v1.Samples) != 2 {
		t.Fatalf("unexpected first view: %+v", v1)
	}
	ex.Release(v1)

	// slot 0 is free again and the fill index wrapped to it
	if err := ex.Fill(chunk(3, 6)); err != nil {
		t.Fatalf("fill 3: %v", err)
	}

	v2, _ := ex.Take()
	if v2.Index != 1 || v2.Seq != 2 {
		t.Fatalf("expected slot 1 with seq 2 before slot 0, got %+v", v2)
	}
	ex.Release(v2)

	v3, _ := ex.Take()
	if v3.Index != 0 || v3.Seq != 3 || v3.Samples[0] != 6 {
		t.Fatalf("unexpected third view: %+v", v3)
	}
	ex.Release(v3)
}

func TestExchangeFillWaitsForHeldSlot(t *testing.T) {
	defer goleak.VerifyNone(t)

	ex, _ := NewExchange(2, 2)
	_ = ex.Fill(chunk(1, 10, 11))
	_ = ex.Fill(chunk(2, 20, 21))

	held, _ := ex.Take()

	filled := make(chan error, 1)
	go func() { filled <- ex.Fill(chunk(3, 30, 31)) }()

	select {
	case err := <-filled:
		t.Fatalf("fill returned while its slot was held: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	if held.Samples[0] != 10 || held.Samples[1] != 11 {
		t.Fatalf("held slot was overwritten: %v", held.Samples)
	}

	ex.Release(held)
	select {
	case err := <-filled:
		if err != nil {
			t.Fatalf("fill after release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("fill did not resume after release")
	}
}

func TestExchangeStopWakesWaiters(t *testing.T) {
	defer goleak.VerifyNone(t)

	ex, _ := NewExchange(2, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := ex.Take()
		errs <- err
	}()

	_ = ex.Fill(chunk(1, 1))
	_ = ex.Fill(chunk(2, 2))
	wg.Add(1)
	go func() {
		defer wg.Done()
		// the taker above may have consumed one slot without releasing it
		for {
			if err := ex.Fill(chunk(3, 3)); err != nil {
				errs <- err
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	ex.Stop()
	ex.Stop()
	wg.Wait()
	close(errs)

	var stopped int
	for err := range errs {
		if errors.Is(err, ErrExchangeStopped) {
			stopped++
		}
	}
	if stopped == 0 {
		t.Fatalf("expected at least one waiter to observe ErrExchangeStopped")
	}
	if _, err := ex.Take(); !errors.Is(err, ErrExchangeStopped) {
		t.Fatalf("expected take after stop to fail, got %v", err)
	}
}

func TestExchangeRejectsOversizedChunk(t *testing.T) {
	ex, _ := NewExchange(2, 2)
	if err := ex.Fill(chunk(1, 1, 2, 3)); !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("expected ErrChunkTooLarge, got %v", err)
	}
	if _, err := NewExchange(1, 2); err == nil {
		t.Fatalf("expected a single buffer to be rejected")
	}
}

func TestExchangeConcurrentProducerConsumerKeepsOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	const total = 2000
	ex, _ := NewExchange(3, 8)

	done := make(chan []uint64)
	go func() {
		seen := make([]uint64, 0, total)
		for len(seen) < total {
			v, err := ex.Take()
			if err != nil {
				break
			}
			if v.Samples[0] != float64(v.Seq) {
				t.Errorf("slot %d carried stale samples for seq %d", v.Index, v.Seq)
			}
			seen = append(seen, v.Seq)
			ex.Release(v)
		}
		done <- seen
	}()

	for i := uint64(0); i < total; i++ {
		if err := ex.Fill(chunk(i, float64(i), float64(i))); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}

	seen := <-done
	ex.Stop()
	if len(seen) != total {
		t.Fatalf("expected %d chunks, got %d", total, len(seen))
	}
	for i, seq := range seen {
		if seq != uint64(i) {
			t.Fatalf("chunk %d arrived out of order (seq %d)", i, seq)
		}
	}
}
