package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

var ErrEmptyInput = errors.New("empty sample buffer")

// Config tunes the z-score threshold detector.
type Config struct {
	ZScoreThreshold float64       `yaml:"z_score_threshold"`
	Window          int           `yaml:"window"`
	Sensitivity     float64       `yaml:"sensitivity"`
	Negative        bool          `yaml:"negative"`
	StimDelay       time.Duration `yaml:"stim_delay"`
	Cooldown        time.Duration `yaml:"cooldown"`
}

func (c *Config) ApplyDefaults() {
	if c.ZScoreThreshold == 0 {
		c.ZScoreThreshold = 2
	}
	if c.Window == 0 {
		c.Window = 300
	}
	if c.Sensitivity == 0 {
		c.Sensitivity = 0.5
	}
	if c.StimDelay == 0 {
		c.StimDelay = 250 * time.Millisecond
	}
	if c.Cooldown == 0 {
		c.Cooldown = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be between 0 and 1, got %v", c.Sensitivity)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", c.Window)
	}
	if c.StimDelay < 0 || c.Cooldown < 0 {
		return errors.New("stim_delay and cooldown must be >= 0")
	}
	return nil
}

// ThresholdEngine keeps running statistics over every sample it sees and flags a
// detection when the share of recent z-scores beyond the threshold exceeds the
// sensitivity. Each detection outside the cooldown asks for a stimulus StimDelay
// after the buffer was processed.
type ThresholdEngine struct {
	cfg Config
	obs ports.Observability
	now func() time.Time

	// running mean and variance
	n    float64
	mean float64
	m2   float64

	ring  []bool
	pos   int
	full  bool
	above int

	lastTrigger time.Time
}

func NewThresholdEngine(cfg Config, obs ports.Observability) (*ThresholdEngine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ThresholdEngine{
		cfg:  cfg,
		obs:  obs,
		now:  time.Now,
		ring: make([]bool, cfg.Window),
	}, nil
}

// Factory returns an EngineFactory that builds a fresh ThresholdEngine per run.
func Factory(cfg Config, obs ports.Observability) ports.EngineFactory {
	return func() (ports.AnalysisEngine, error) {
		return NewThresholdEngine(cfg, obs)
	}
}

func (e *ThresholdEngine) Process(samples []float64) domain.AnalysisResult {
	if len(samples) == 0 {
		return domain.EngineErrorResult(ErrEmptyInput)
	}

	detected := false
	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.EngineErrorResult(fmt.Errorf("non-finite sample %v", v))
		}
		if e.push(v) {
			detected = true
		}
	}
	if !detected {
		return domain.NoEventResult()
	}

	now := e.now()
	if !e.lastTrigger.IsZero() && now.Sub(e.lastTrigger) < e.cfg.Cooldown {
		return domain.NoEventResult()
	}
	e.lastTrigger = now
	return domain.TriggeredResult(domain.TriggerAt(now.Add(e.cfg.StimDelay)))
}

// push folds v into the statistics and reports whether the window is in detection.
func (e *ThresholdEngine) push(v float64) bool {
	e.n++
	delta := v - e.mean
	e.mean += delta / e.n
	e.m2 += delta * (v - e.mean)

	z := 0.0
	if e.n > 1 {
		if sd := math.Sqrt(e.m2 / (e.n - 1)); sd > 0 {
			z = (v - e.mean) / sd
		}
	}
	if e.cfg.Negative {
		z = -z
	}

	hit := z > e.cfg.ZScoreThreshold
	if e.ring[e.pos] {
		e.above--
	}
	e.ring[e.pos] = hit
	if hit {
		e.above++
	}
	e.pos++
	if e.pos == len(e.ring) {
		e.pos = 0
		e.full = true
	}

	if !e.full {
		return false
	}
	return float64(e.above)/float64(len(e.ring)) > e.cfg.Sensitivity
}

func (e *ThresholdEngine) Log(msg string) {
	e.obs.LogInfo(msg, ports.F("component", "engine"))
}

func (e *ThresholdEngine) Close() error { return nil }

var _ ports.AnalysisEngine = (*ThresholdEngine)(nil)
