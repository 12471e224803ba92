package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// Persister takes a copy of each chunk for the raw data recording.
type Persister interface {
	Enqueue(ctx context.Context, c *domain.Chunk) error
}

type AcquisitionConfig struct {
	Channel    int
	Scale      float64
	BufferSize int
	SampleRate int
}

// RunAcquisition polls src until ctx ends, the exchange stops or the source is
// exhausted. Each delivery for cfg.Channel is converted to microvolts, split into
// pieces of at most cfg.BufferSize samples, handed to rec and then to ex.
// It returns ports.ErrSourceExhausted when a finite source runs dry.
func RunAcquisition(ctx context.Context, src ports.SampleSource, ex *Exchange, rec Persister, cfg AcquisitionConfig, pol ports.Policy, obs ports.Observability) error {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = domain.BufferSize
	}
	if cfg.Scale == 0 {
		cfg.Scale = domain.MicrovoltsPerCount
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.DefaultSampleRate
	}
	idle := pol.IdleSleep
	if idle <= 0 {
		idle = 10 * time.Millisecond
	}
	statsEvery := uint64(pol.StatsEveryChunks)
	if statsEvery == 0 {
		statsEvery = 1000
	}

	var (
		scratch []float64
		seq     uint64
		samples uint64
		noData  int
	)

	for {
		if ctx.Err() != nil || ex.Stopped() {
			return nil
		}

		raw, err := src.Next(ctx)
		if errors.Is(err, ports.ErrSourceExhausted) {
			obs.LogInfo("source exhausted",
				ports.F("component", "acquisition"),
				ports.F("chunks", seq),
				ports.F("samples", samples),
			)
			return ports.ErrSourceExhausted
		}

		if err != nil || len(raw.Samples) == 0 {
			if ctx.Err() != nil {
				return nil
			}
			noData++
			obs.IncCounter(ports.MetricNoData, 1)
			warnNoData(obs, err, noData, pol.NoDataWarnLimit)
			if !sleepCtx(ctx, idle) {
				return nil
			}
			continue
		}
		noData = 0

		if raw.Channel != cfg.Channel {
			continue
		}

		for off := 0; off < len(raw.Samples); off += cfg.BufferSize {
			end := off + cfg.BufferSize
			if end > len(raw.Samples) {
				end = len(raw.Samples)
			}

			scratch = domain.ToMicrovolts(scratch, raw.Samples[off:end], cfg.Scale)
			c := &domain.Chunk{
				Channel:    cfg.Channel,
				Seq:        seq,
				AcquiredAt: time.Now(),
				Samples:    scratch,
			}

			if rec != nil {
				if err := rec.Enqueue(ctx, c); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					obs.LogError("persist enqueue failed", err,
						ports.F("component", "acquisition"),
						ports.F("seq", seq),
					)
				}
			}

			if err := ex.Fill(c); err != nil {
				if errors.Is(err, ErrExchangeStopped) {
					return nil
				}
				return err
			}

			seq++
			samples += uint64(len(c.Samples))
			obs.IncCounter(ports.MetricChunksAcquired, 1)
			obs.IncCounter(ports.MetricSamplesAcquired, float64(len(c.Samples)))

			if seq%statsEvery == 0 {
				obs.LogInfo("acquisition status",
					ports.F("component", "acquisition"),
					ports.F("channel", cfg.Channel),
					ports.F("chunks", seq),
					ports.F("seconds", float64(samples)/float64(cfg.SampleRate)),
				)
			}
		}
	}
}

// warnNoData logs the first limit empty polls, then announces suppression once.
func warnNoData(obs ports.Observability, err error, count, limit int) {
	if limit <= 0 || count > limit {
		return
	}
	if err != nil {
		obs.LogWarn("source read failed",
			ports.F("component", "acquisition"),
			ports.F("error", err.Error()),
			ports.F("attempt", count),
		)
	} else {
		obs.LogWarn("no data available",
			ports.F("component", "acquisition"),
			ports.F("attempt", count),
		)
	}
	if count == limit {
		obs.LogInfo("suppressing further no-data warnings", ports.F("component", "acquisition"))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
