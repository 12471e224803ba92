package source

import (
	"errors"
	"fmt"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

const (
	KindSynth = "synth"
	KindWAV   = "wav"
)

// Config selects and parameterises the sample source.
type Config struct {
	Kind      string        `yaml:"kind"`
	ChunkSize int           `yaml:"chunk_size"`
	Duration  time.Duration `yaml:"duration"`
	Synth     SynthConfig   `yaml:"synth"`
	WAV       WAVConfig     `yaml:"wav"`
}

type SynthConfig struct {
	Seed        int64         `yaml:"seed"`
	NoiseUV     float64       `yaml:"noise_uv"`
	SineHz      float64       `yaml:"sine_hz"`
	SineUV      float64       `yaml:"sine_uv"`
	BurstEvery  time.Duration `yaml:"burst_every"`
	BurstLength time.Duration `yaml:"burst_length"`
	BurstUV     float64       `yaml:"burst_uv"`
}

type WAVConfig struct {
	Path     string `yaml:"path"`
	Channel  int    `yaml:"channel"`
	Loop     bool   `yaml:"loop"`
	Realtime *bool  `yaml:"realtime"`
}

func (c *Config) ApplyDefaults() {
	if c.Kind == "" {
		c.Kind = KindSynth
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1024
	}
	s := &c.Synth
	if s.Seed == 0 {
		s.Seed = 1
	}
	if s.NoiseUV == 0 {
		s.NoiseUV = 5
	}
	if s.SineHz == 0 {
		s.SineHz = 10
	}
	if s.SineUV == 0 {
		s.SineUV = 20
	}
	if s.BurstEvery == 0 {
		s.BurstEvery = 5 * time.Second
	}
	if s.BurstLength == 0 {
		s.BurstLength = 500 * time.Millisecond
	}
	if s.BurstUV == 0 {
		s.BurstUV = 150
	}
	if c.WAV.Realtime == nil {
		rt := true
		c.WAV.Realtime = &rt
	}
}

func (c *Config) Validate() error {
	switch c.Kind {
	case KindSynth:
		if c.Synth.BurstLength > c.Synth.BurstEvery {
			return errors.New("synth.burst_length must not exceed synth.burst_every")
		}
	case KindWAV:
		if c.WAV.Path == "" {
			return errors.New("wav.path is required")
		}
		if c.WAV.Channel < 0 {
			return errors.New("wav.channel must be >= 0")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Kind)
	}
	if c.Duration < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// New builds the configured source delivering samples for channel at sampleRate.
func New(cfg Config, channel, sampleRate int, scale float64) (ports.SampleSource, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindWAV:
		return NewWAVSource(cfg, channel, sampleRate), nil
	default:
		return NewSynthSource(cfg, channel, sampleRate, scale), nil
	}
}
