package source

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// SynthSource generates a wall-clock paced test signal: a sine carrier plus
// gaussian noise with periodic large slow-wave bursts. Next returns no samples
// until a whole chunk is due.
type SynthSource struct {
	cfg        Config
	channel    int
	sampleRate int
	scale      float64
	now        func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	started time.Time
	emitted int64
	limit   int64
	open    bool
}

func NewSynthSource(cfg Config, channel, sampleRate int, scale float64) *SynthSource {
	cfg.ApplyDefaults()
	if scale <= 0 {
		scale = 0.25
	}
	s := &SynthSource{
		cfg:        cfg,
		channel:    channel,
		sampleRate: sampleRate,
		scale:      scale,
		now:        time.Now,
	}
	if cfg.Duration > 0 {
		s.limit = int64(cfg.Duration.Seconds() * float64(sampleRate))
	}
	return s
}

func (s *SynthSource) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(s.cfg.Synth.Seed))
	s.started = s.now()
	s.emitted = 0
	s.open = true
	return nil
}

func (s *SynthSource) Next(context.Context) (ports.RawChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ports.RawChunk{}, ports.ErrSourceExhausted
	}
	if s.limit > 0 && s.emitted >= s.limit {
		return ports.RawChunk{}, ports.ErrSourceExhausted
	}

	due := int64(s.now().Sub(s.started).Seconds()*float64(s.sampleRate)) - s.emitted
	n := int64(s.cfg.ChunkSize)
	if due < n {
		return ports.RawChunk{Channel: s.channel}, nil
	}
	if s.limit > 0 && s.emitted+n > s.limit {
		n = s.limit - s.emitted
	}

	out := make([]int16, n)
	for i := range out {
		out[i] = clampCount(s.sampleUV(s.emitted+int64(i)) / s.scale)
	}
	s.emitted += n
	return ports.RawChunk{Channel: s.channel, Samples: out}, nil
}

func (s *SynthSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *SynthSource) sampleUV(idx int64) float64 {
	sc := s.cfg.Synth
	t := float64(idx) / float64(s.sampleRate)

	v := sc.SineUV*math.Sin(2*math.Pi*sc.SineHz*t) + sc.NoiseUV*s.rng.NormFloat64()

	period := sc.BurstEvery.Seconds()
	length := sc.BurstLength.Seconds()
	if period > 0 && length > 0 {
		phase := math.Mod(t, period)
		if phase < length {
			// negative-going slow wave, one half cycle per burst
			v -= sc.BurstUV * math.Sin(math.Pi*phase/length)
		}
	}
	return v
}

func clampCount(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

var _ ports.SampleSource = (*SynthSource)(nil)
