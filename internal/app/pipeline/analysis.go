package pipeline

import (
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// Scheduler accepts trigger events for deferred delivery. Schedule must not block.
type Scheduler interface {
	Schedule(ev domain.TriggerEvent)
}

// RunAnalysis feeds every ready buffer to engine until the exchange stops.
// Engine errors are logged and counted; they never end the loop.
func RunAnalysis(ex *Exchange, engine ports.AnalysisEngine, sched Scheduler, obs ports.Observability) {
	var processed uint64
	for {
		v, err := ex.Take()
		if err != nil {
			obs.LogInfo("analysis stopped",
				ports.F("component", "analysis"),
				ports.F("chunks", processed),
			)
			return
		}

		start := time.Now()
		res := engine.Process(v.Samples)
		elapsed := time.Since(start)
		ex.Release(v)

		processed++
		obs.IncCounter(ports.MetricChunksAnalyzed, 1)
		obs.ObserveLatency(ports.MetricAnalysisLatency, elapsed.Seconds())

		switch res.Kind {
		case domain.Triggered:
			obs.IncCounter(ports.MetricTriggers, 1)
			obs.LogInfo("trigger detected",
				ports.F("component", "analysis"),
				ports.F("seq", v.Seq),
				ports.F("target", res.Trigger.Timestamp),
				ports.F("processing_ms", float64(elapsed.Microseconds())/1000),
				ports.F("since_acquired_ms", float64(time.Since(v.AcquiredAt).Microseconds())/1000),
			)
			engine.Log("trigger scheduled for " + res.Trigger.Time().UTC().Format(time.RFC3339Nano))
			sched.Schedule(res.Trigger)
		case domain.EngineError:
			obs.IncCounter(ports.MetricEngineErrors, 1)
			obs.LogError("engine processing failed", res.Err,
				ports.F("component", "analysis"),
				ports.F("seq", v.Seq),
			)
		}
	}
}
