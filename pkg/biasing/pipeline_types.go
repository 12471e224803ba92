package biasing

import (
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// SampleSource delivers raw amplifier counts for the configured channel.
type SampleSource = ports.SampleSource

// RawChunk is one delivery from a SampleSource.
type RawChunk = ports.RawChunk

// AnalysisEngine inspects each buffer of microvolt samples and may request a stimulus.
type AnalysisEngine = ports.AnalysisEngine

// EngineFactory creates the engine when the runtime starts.
type EngineFactory = ports.EngineFactory

// AnalysisResult is the tagged outcome of one engine invocation.
type AnalysisResult = domain.AnalysisResult

// TriggerEvent is an absolute stimulus time in fractional Unix seconds.
type TriggerEvent = domain.TriggerEvent

// StimulusOutput delivers a stimulus when a scheduled trigger comes due.
type StimulusOutput = ports.StimulusOutput

// EventSink receives batches of stimulus outcome records.
type EventSink = ports.EventSink

// StimulusRecord describes what happened to one trigger.
type StimulusRecord = domain.StimulusRecord

// StimulusOutcome is fired, missed, failed or cancelled.
type StimulusOutcome = domain.StimulusOutcome

// Observability emits structured logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// ErrSourceExhausted ends a run when a finite source has delivered everything.
var ErrSourceExhausted = ports.ErrSourceExhausted

const (
	OutcomeFired     = domain.OutcomeFired
	OutcomeMissed    = domain.OutcomeMissed
	OutcomeFailed    = domain.OutcomeFailed
	OutcomeCancelled = domain.OutcomeCancelled
)

func NoEventResult() AnalysisResult { return domain.NoEventResult() }

func TriggeredResult(ev TriggerEvent) AnalysisResult { return domain.TriggeredResult(ev) }

func EngineErrorResult(err error) AnalysisResult { return domain.EngineErrorResult(err) }

// TriggerAt builds a TriggerEvent for t.
func TriggerAt(t time.Time) TriggerEvent { return domain.TriggerAt(t) }
