package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	biasing "github.com/bushlab-ucl/DirectNeuralBiasing"
)

func main() {
	flow, err := biasing.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, pulses, closePulses := biasing.NewChannelStimulus("fanout", 32)

	done := make(chan struct{})
	go func() {
		defer close(done)
		pulseWorker("stim", pulses)
	}()

	if err := flow.Run(ctx, biasing.StreamOutStimulus(out)); err != nil && err != context.Canceled {
		log.Printf("runtime error: %v", err)
	}
	closePulses()
	<-done
}

func pulseWorker(name string, pulses <-chan time.Time) {
	var last time.Time
	for at := range pulses {
		if !last.IsZero() {
			fmt.Printf("[%s] pulse at %s (%s since previous)\n", name, at.Format(time.RFC3339Nano), at.Sub(last))
		} else {
			fmt.Printf("[%s] pulse at %s\n", name, at.Format(time.RFC3339Nano))
		}
		last = at
	}
}
