package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bushlab-ucl/DirectNeuralBiasing/pkg/biasing"
)

func main() {
	flow, err := biasing.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pulse := func(context.Context) error {
		fmt.Printf("%s pulse\n", time.Now().Format(time.RFC3339Nano))
		return nil
	}
	audit := func(_ context.Context, records []biasing.StimulusRecord) error {
		for _, rec := range records {
			fmt.Printf("target=%s outcome=%s lateness=%s\n",
				rec.Target.Format(time.RFC3339Nano), rec.Outcome, rec.Lateness)
		}
		return nil
	}

	err = flow.Run(ctx,
		biasing.StreamOutCallback("stdout", pulse),
		biasing.StreamOutEventSink(biasing.NewCallbackEventSink("audit", audit)),
	)
	if err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
