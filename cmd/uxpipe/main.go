package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"uxpipe/internal/config"
	"uxpipe/internal/metrics"
	"uxpipe/internal/version"
)

// Exit codes: 0 run completed (including a deliberately truncated step
// range), 1 run failed or was interrupted, 2 configuration or input error.
const (
	exitOK    = 0
	exitRun   = 1
	exitInput = 2
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"uxpipe.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		FromStep int    `help:"Resume from step N, reusing the prior step's artifact"`
		Steps    string `help:"Run only steps N-M (inclusive), e.g. 2-4"`
		Sample   int    `help:"Process only the first N work items"`
		DryRun   bool   `help:"Execute the pipeline without external side effects"`
	} `cmd:"" help:"Execute the pipeline"`

	Status struct {
		Events bool `help:"Include the run event journal"`
	} `cmd:"" help:"Show the last run's workflow state"`

	Init struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`

	Watch struct{} `cmd:"" help:"Rerun the pipeline on a schedule and on inventory changes"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	switch kctx.Command() {
	case "run":
		os.Exit(cmdRun())
	case "status":
		os.Exit(cmdStatus())
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("init failed", "error", err)
			os.Exit(exitInput)
		}
		fmt.Printf("wrote %s\n", CLI.Config)
		os.Exit(exitOK)
	case "watch":
		os.Exit(cmdWatch())
	case "version":
		fmt.Printf("uxpipe %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		os.Exit(exitOK)
	default:
		kctx.Fatalf("unknown command %q", kctx.Command())
	}
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted run can persist
// its partial artifact before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newRecorder returns the metrics recorder plus the registry backing it, or
// the noop pair when metrics are disabled.
func newRecorder(cfg *config.Config) (metrics.Recorder, *prom.Registry) {
	if !cfg.Metrics.Enabled {
		return metrics.NoopRecorder{}, nil
	}
	reg := prom.NewRegistry()
	return metrics.NewPrometheusRecorder(reg), reg
}
