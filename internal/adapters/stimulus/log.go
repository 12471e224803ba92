package stimulus

import (
	"context"
	"sync/atomic"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// LogOutput only logs each stimulus. Useful for dry runs.
type LogOutput struct {
	obs   ports.Observability
	fired atomic.Uint64
}

func NewLogOutput(obs ports.Observability) *LogOutput {
	return &LogOutput{obs: obs}
}

func (o *LogOutput) Name() string { return KindLog }

func (o *LogOutput) Fire(context.Context) error {
	n := o.fired.Add(1)
	o.obs.LogInfo("stimulus fired",
		ports.F("component", "stimulus"),
		ports.F("output", KindLog),
		ports.F("count", n),
	)
	return nil
}

func (o *LogOutput) Fired() uint64 { return o.fired.Load() }

var _ ports.StimulusOutput = (*LogOutput)(nil)
