package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/common/expfmt"

	biasing "github.com/bushlab-ucl/DirectNeuralBiasing"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/adapters/recorder"
	"github.com/bushlab-ucl/DirectNeuralBiasing/internal/domain"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "export":
		err = exportCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("dnb-realtime %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to pipeline configuration file")
	channel := fs.Int("channel", 0, "Override processor.channel (1-based)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := biasing.LoadConfigWithChannel(*cfgPath, *channel)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	flow, err := biasing.ConfFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	channel := fs.Int("channel", 0, "Override processor.channel (1-based)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := biasing.LoadConfigWithChannel(*cfgPath, *channel)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good (channel %d, %d Hz, source %s, stimulus %s)\n",
		*cfgPath, cfg.Processor.Channel, cfg.Processor.SampleRate, cfg.Source.Kind, cfg.Stimulus.Kind)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var snapshotMetrics = []string{
	"dnb_chunks_acquired_total",
	"dnb_chunks_analyzed_total",
	"dnb_triggers_total",
	"dnb_stimuli_fired_total",
	"dnb_stimuli_missed_total",
	"dnb_persist_queue_length",
	"dnb_recorded_bytes",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}

	values := make(map[string]float64, len(snapshotMetrics))
	for _, name := range snapshotMetrics {
		mf, ok := families[name]
		if !ok {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[name] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] += m.GetGauge().GetValue()
			}
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("[%s]", time.Now().Format(time.RFC3339))
	for _, k := range keys {
		fmt.Printf(" %s=%.0f", k, values[k])
	}
	fmt.Println()
	return nil
}

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	in := fs.String("in", "", "Raw data recording (.bin)")
	out := fs.String("out", "", "Destination WAV file")
	rate := fs.Int("rate", domain.DefaultSampleRate, "Sample rate written to the WAV header")
	scale := fs.Float64("scale", domain.MicrovoltsPerCount, "Microvolts per count used to convert back to 16-bit PCM")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("-in and -out are required")
	}

	n, err := recorder.ExportWAV(*in, *out, *rate, *scale)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d samples to %s\n", n, *out)
	return nil
}

func printUsage() {
	fmt.Printf(`DirectNeuralBiasing real-time pipeline

Usage:
  dnb-realtime <command> [flags]

Commands:
  run        Start the closed-loop pipeline using the provided config
  validate   Load and validate a config file without starting the pipeline
  stats      Poll the Prometheus metrics endpoint and print live counters
  export     Convert a raw data recording to a 16-bit WAV file

Examples:
  dnb-realtime run -config ./data/config.yaml -channel 3
  dnb-realtime validate -config ./data/config.yaml
  dnb-realtime stats -url http://localhost:9100/metrics -interval 1s
  dnb-realtime export -in ./data/raw_data_ch3_20260301_093000.bin -out ch3.wav
`)
}
