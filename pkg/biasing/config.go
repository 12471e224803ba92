package biasing

import (
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/engine"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/source"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/stimulus"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/config"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/app/journal"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	ProcessorConfig = config.ProcessorConfig
	BuffersConfig   = config.BuffersConfig
	// Policy controls queue capacity, backpressure and polling intervals.
	Policy          = ports.Policy
	RecordingConfig = config.RecordingConfig
	SourceConfig    = source.Config
	SynthConfig     = source.SynthConfig
	WAVConfig       = source.WAVConfig
	EngineConfig    = engine.Config
	StimulusConfig  = stimulus.Config
	EventsConfig    = config.EventsConfig
	JournalConfig   = journal.Config
	TimescaleConfig = config.TimescaleConfig
	RedisConfig     = config.RedisConfig
	MetricsConfig   = config.MetricsConfig
	LogConfig       = config.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// LoadConfigWithChannel loads YAML and overrides processor.channel when channel > 0.
func LoadConfigWithChannel(path string, channel int) (*Config, error) {
	return config.LoadWithChannel(path, channel)
}
