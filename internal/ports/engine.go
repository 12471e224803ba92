package ports

import "github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"

// AnalysisEngine inspects microvolt samples and may ask for a stimulus.
// An engine is owned by a single analysis goroutine and is not safe for concurrent use.
type AnalysisEngine interface {
	Process(samples []float64) domain.AnalysisResult
	Log(msg string)
	Close() error
}

// EngineFactory creates an engine; a non-nil error aborts pipeline startup.
type EngineFactory func() (AnalysisEngine, error)
