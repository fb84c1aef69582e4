// Command edgepull is the fixed-rate industrial telemetry poller binary.
//
// It loads one YAML configuration file describing the source protocol, the
// reads to perform each cycle and the decode/transform pipeline, then runs
// the polling engine until the single-shot cycle completes or the process is
// interrupted (SIGINT / SIGTERM).
//
// Usage:
//
//	edgepull -F <config.yml> [-L] [-R]
//
//	-F, --config        configuration file (required)
//	-L, --loop          run continuously at the configured frequency
//	-R, --auto-restart  reinitialise after runtime errors (loop mode)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgewatch/edgepull/output"
	"github.com/edgewatch/edgepull/pkg/edgepull/config"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
	"github.com/edgewatch/edgepull/proto"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "edgepull: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Flags ────────────────────────────────────────────────────────────
	var (
		cfgPath     string
		loop        bool
		autoRestart bool
		logLevel    string
		logFmt      string
	)

	flag.StringVar(&cfgPath, "F", "", "Configuration file")
	flag.StringVar(&cfgPath, "config", "", "Configuration file")
	flag.BoolVar(&loop, "L", false, "Loop (production)")
	flag.BoolVar(&loop, "loop", false, "Loop (production)")
	flag.BoolVar(&autoRestart, "R", false, "Restart the loop on errors")
	flag.BoolVar(&autoRestart, "auto-restart", false, "Restart the loop on errors")
	flag.StringVar(&logLevel, "log.level", "warn", "Log level: debug, info, warn, error")
	flag.StringVar(&logFmt, "log.fmt", "text", "Log format: json, text")
	flag.Parse()

	if cfgPath == "" {
		return fmt.Errorf("configuration file is required (-F)")
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger, err := buildLogger(logLevel, logFmt)
	if err != nil {
		return err
	}

	// ── Configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	tf, err := output.ParseTimeFormat(cfg.TimeFormat)
	if err != nil {
		return err
	}
	sink, err := output.New(output.Config{
		Type:       cfg.Output.Type,
		TimeFormat: tf,
	}, logger)
	if err != nil {
		return err
	}

	factory, err := proto.NewFactory(cfg, logger)
	if err != nil {
		return err
	}

	// ── Engine ───────────────────────────────────────────────────────────
	eng, err := engine.New(engine.Options{
		Interval:    cfg.Interval(),
		Beacon:      cfg.BeaconInterval(),
		Loop:        loop,
		AutoRestart: autoRestart,
		Sink:        sink,
		NewAdapter:  factory,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("edgepull: starting",
		"proto", cfg.Proto.Name,
		"interval", cfg.Interval().String(),
		"loop", loop,
	)
	return eng.Run(ctx)
}

// buildLogger constructs the stderr slog handler.
func buildLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json|text)", format)
	}
}
