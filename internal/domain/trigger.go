package domain

import (
	"fmt"
	"math"
	"time"
)

// TriggerEvent is an absolute instant, in fractional seconds since the Unix epoch,
// at which the analysis engine wants a stimulus delivered.
type TriggerEvent struct {
	Timestamp float64
}

// TriggerAt builds a TriggerEvent for t.
func TriggerAt(t time.Time) TriggerEvent {
	return TriggerEvent{Timestamp: Seconds(t)}
}

// Time converts the timestamp back to a time.Time.
func (e TriggerEvent) Time() time.Time {
	sec, frac := math.Modf(e.Timestamp)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}

// Seconds returns t as fractional seconds since the Unix epoch.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// ResultKind tags the outcome of a single engine invocation.
type ResultKind uint8

const (
	NoEvent ResultKind = iota
	Triggered
	EngineError
)

func (k ResultKind) String() string {
	switch k {
	case NoEvent:
		return "no_event"
	case Triggered:
		return "triggered"
	case EngineError:
		return "engine_error"
	default:
		return fmt.Sprintf("result(%d)", uint8(k))
	}
}

// AnalysisResult is what the engine returns for one buffer.
type AnalysisResult struct {
	Kind    ResultKind
	Trigger TriggerEvent
	Err     error
}

func NoEventResult() AnalysisResult {
	return AnalysisResult{Kind: NoEvent}
}

func TriggeredResult(ev TriggerEvent) AnalysisResult {
	return AnalysisResult{Kind: Triggered, Trigger: ev}
}

func EngineErrorResult(err error) AnalysisResult {
	return AnalysisResult{Kind: EngineError, Err: err}
}
