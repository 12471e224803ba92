package biasing

import (
	"context"
	"time"

	base "github.com/bushlab-ucl/DirectNeuralBiasing/pkg/biasing"
)

// Re-exported errors for convenience.
var (
	ErrSourceExhausted       = base.ErrSourceExhausted
	ErrAlreadyStarted        = base.ErrAlreadyStarted
	ErrChannelStimulusClosed = base.ErrChannelStimulusClosed
	ErrChannelStimulusFull   = base.ErrChannelStimulusFull
)

// Type aliases so consumers can import github.com/bushlab-ucl/DirectNeuralBiasing directly.
type (
	Config          = base.Config
	ProcessorConfig = base.ProcessorConfig
	BuffersConfig   = base.BuffersConfig
	Policy          = base.Policy
	RecordingConfig = base.RecordingConfig
	SourceConfig    = base.SourceConfig
	EngineConfig    = base.EngineConfig
	StimulusConfig  = base.StimulusConfig
	EventsConfig    = base.EventsConfig
	MetricsConfig   = base.MetricsConfig
	LogConfig       = base.LogConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	State           = base.State
	SampleSource    = base.SampleSource
	RawChunk        = base.RawChunk
	AnalysisEngine  = base.AnalysisEngine
	EngineFactory   = base.EngineFactory
	AnalysisResult  = base.AnalysisResult
	TriggerEvent    = base.TriggerEvent
	StimulusOutput  = base.StimulusOutput
	StimulusFunc    = base.StimulusFunc
	EventSink       = base.EventSink
	EventBatchFunc  = base.EventBatchFunc
	StimulusRecord  = base.StimulusRecord
	Observability   = base.Observability
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func LoadConfigWithChannel(path string, channel int) (*Config, error) {
	return base.LoadConfigWithChannel(path, channel)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSource(src SampleSource) StreamInOption {
	return base.StreamInSource(src)
}

func StreamInEngine(factory EngineFactory) StreamInOption {
	return base.StreamInEngine(factory)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutStimulus(out StimulusOutput) StreamOutOption {
	return base.StreamOutStimulus(out)
}

func StreamOutEventSink(s EventSink) StreamOutOption {
	return base.StreamOutEventSink(s)
}

func StreamOutCallback(name string, fn StimulusFunc) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSource(src SampleSource) RuntimeOption {
	return base.WithSource(src)
}

func WithEngineFactory(f EngineFactory) RuntimeOption {
	return base.WithEngineFactory(f)
}

func WithStimulus(out StimulusOutput) RuntimeOption {
	return base.WithStimulus(out)
}

func WithEventSink(s EventSink) RuntimeOption {
	return base.WithEventSink(s)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

// Result constructors for custom engines.
func NoEventResult() AnalysisResult { return base.NoEventResult() }

func TriggeredResult(ev TriggerEvent) AnalysisResult { return base.TriggeredResult(ev) }

func EngineErrorResult(err error) AnalysisResult { return base.EngineErrorResult(err) }

func TriggerAt(t time.Time) TriggerEvent { return base.TriggerAt(t) }

// Stimulus adapters.
func NewCallbackStimulus(name string, fn StimulusFunc) StimulusOutput {
	return base.NewCallbackStimulus(name, fn)
}

func NewChannelStimulus(name string, buffer int) (StimulusOutput, <-chan time.Time, func()) {
	return base.NewChannelStimulus(name, buffer)
}

func NewCallbackEventSink(name string, fn func(ctx context.Context, records []StimulusRecord) error) EventSink {
	return base.NewCallbackEventSink(name, fn)
}
