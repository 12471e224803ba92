package stimulus

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/ports"
)

// CommandOutput starts an external program per stimulus, e.g. an audio player for
// a pink-noise pulse. Fire returns once the process has started; exits are reaped
// in the background.
type CommandOutput struct {
	cfg          CommandConfig
	closeTimeout time.Duration
	obs          ports.Observability

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommandOutput builds the output. Close waits up to closeTimeout for running
// commands before killing them; closeTimeout <= 0 kills them straight away.
func NewCommandOutput(cfg CommandConfig, closeTimeout time.Duration, obs ports.Observability) *CommandOutput {
	ctx, cancel := context.WithCancel(context.Background())
	return &CommandOutput{
		cfg:          cfg,
		closeTimeout: closeTimeout,
		obs:          obs,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (o *CommandOutput) Name() string { return KindCommand }

func (o *CommandOutput) Fire(context.Context) error {
	cmd := exec.CommandContext(o.ctx, o.cfg.Path, o.cfg.Args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", o.cfg.Path, err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := cmd.Wait(); err != nil {
			o.obs.LogError("stimulus command failed", err,
				ports.F("component", "stimulus"),
				ports.F("path", o.cfg.Path),
			)
		}
	}()
	return nil
}

// Close waits for started commands to exit and kills whatever is still running
// once the close timeout has passed.
func (o *CommandOutput) Close() error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(o.closeTimeout)
	defer timer.Stop()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-timer.C:
	}

	o.cancel()
	<-done
	o.obs.LogWarn("stimulus commands killed on close",
		ports.F("component", "stimulus"),
		ports.F("path", o.cfg.Path),
		ports.F("timeout", o.closeTimeout.String()),
	)
	return fmt.Errorf("stimulus command %s still running after %s, killed", o.cfg.Path, o.closeTimeout)
}

var _ ports.StimulusOutput = (*CommandOutput)(nil)
