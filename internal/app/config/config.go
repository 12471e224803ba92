package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/engine"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/source"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/stimulus"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/journal"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

type Config struct {
	Processor ProcessorConfig `yaml:"processor"`
	Buffers   BuffersConfig   `yaml:"buffers"`
	Policy    ports.Policy    `yaml:"policy"`
	Recording RecordingConfig `yaml:"recording"`
	Source    source.Config   `yaml:"source"`
	Engine    engine.Config   `yaml:"engine"`
	Stimulus  stimulus.Config `yaml:"stimulus"`
	Events    EventsConfig    `yaml:"events"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type ProcessorConfig struct {
	Channel         int     `yaml:"channel"`
	SampleRate      int     `yaml:"sample_rate"`
	ScaleUVPerCount float64 `yaml:"scale_uv_per_count"`
	SaveRawData     bool    `yaml:"save_raw_data"`
	// SetupSleepMS is the settle delay after the source opens; nil means 1000.
	SetupSleepMS *int `yaml:"setup_sleep_ms"`
}

// SetupSleep returns the settle delay between opening the source and streaming.
func (p ProcessorConfig) SetupSleep() time.Duration {
	if p.SetupSleepMS == nil {
		return time.Second
	}
	return time.Duration(*p.SetupSleepMS) * time.Millisecond
}

type BuffersConfig struct {
	Count int `yaml:"count"`
	Size  int `yaml:"size"`
}

type RecordingConfig struct {
	Dir string `yaml:"dir"`
}

type EventsConfig struct {
	Journal   journal.Config  `yaml:"journal"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Redis     RedisConfig     `yaml:"redis"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads YAML from path, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithChannel(path, 0)
}

// LoadWithChannel is Load with a channel override; channel <= 0 keeps the file's value.
func LoadWithChannel(path string, channel int) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, channel)
}

func Parse(raw []byte, channel int) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if channel > 0 {
		cfg.Processor.Channel = channel
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Processor.SampleRate == 0 {
		c.Processor.SampleRate = domain.DefaultSampleRate
	}
	if c.Processor.ScaleUVPerCount == 0 {
		c.Processor.ScaleUVPerCount = domain.MicrovoltsPerCount
	}
	if c.Buffers.Count == 0 {
		c.Buffers.Count = domain.NumBuffers
	}
	if c.Buffers.Size == 0 {
		c.Buffers.Size = domain.BufferSize
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 1000
	}
	if c.Policy.BackpressurePoll == 0 {
		c.Policy.BackpressurePoll = 100 * time.Millisecond
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 10 * time.Millisecond
	}
	if c.Policy.NoDataWarnLimit == 0 {
		c.Policy.NoDataWarnLimit = 10
	}
	if c.Policy.StatsEveryChunks == 0 {
		c.Policy.StatsEveryChunks = 1000
	}
	if c.Recording.Dir == "" {
		c.Recording.Dir = "./data"
	}
	if c.Events.Timescale.Table == "" {
		c.Events.Timescale.Table = "stimulus_events"
	}
	if c.Events.Redis.Stream == "" {
		c.Events.Redis.Stream = "dnb:stimuli"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.ServiceName == "" {
		c.Log.ServiceName = "dnb-realtime"
	}

	c.Source.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Stimulus.ApplyDefaults()
	c.Events.Journal.ApplyDefaults()
}

func (c *Config) Validate() error {
	if c.Processor.Channel < 1 {
		return errors.New("processor.channel is required and must be >= 1")
	}
	if c.Processor.SampleRate <= 0 {
		return fmt.Errorf("processor.sample_rate must be positive, got %d", c.Processor.SampleRate)
	}
	if c.Processor.ScaleUVPerCount <= 0 {
		return fmt.Errorf("processor.scale_uv_per_count must be positive, got %v", c.Processor.ScaleUVPerCount)
	}
	if c.Processor.SetupSleepMS != nil && *c.Processor.SetupSleepMS < 0 {
		return errors.New("processor.setup_sleep_ms must be >= 0")
	}
	if c.Buffers.Count < 2 {
		return fmt.Errorf("buffers.count must be at least 2, got %d", c.Buffers.Count)
	}
	if c.Buffers.Size <= 0 {
		return fmt.Errorf("buffers.size must be positive, got %d", c.Buffers.Size)
	}
	if c.Policy.MaxQueueLen <= 0 {
		return errors.New("policy.max_queue_len must be positive")
	}
	if c.Processor.SaveRawData && c.Recording.Dir == "" {
		return errors.New("recording.dir is required when save_raw_data is set")
	}
	if c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required")
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	if err := c.Stimulus.Validate(); err != nil {
		return fmt.Errorf("stimulus config: %w", err)
	}
	return nil
}
