// Package engine implements the polling engine: the fixed-rate scheduler,
// the pull/process pipeline with its dedicated processing worker, the
// data-point change-detection store, and the lifecycle / restart policy that
// ties a protocol adapter, the transform layer and an output sink together.
//
// Data flow per cycle:
//
//	scheduler fires → each registered puller's fetch-fn runs (protocol I/O) →
//	payload + process-fn list enqueued → processor worker dequeues →
//	decode → transform → data-point store → sink emit on change
//
// The scheduler and the processor run concurrently; the data-point store,
// the speed cache and the sink's data lines are written exclusively by the
// processor worker once init has completed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edgewatch/edgepull/transform"
)

// ─────────────────────────────────────────────────────────────────────────────
// Adapter contract
// ─────────────────────────────────────────────────────────────────────────────

// Adapter is a live protocol adapter. Construction (via AdapterFactory)
// performs init: validating configuration, opening the transport and
// registering fetch / process pairs on the Core's registry. Shutdown releases
// the transport; the engine calls it exactly once per run, after the
// processor worker has drained.
type Adapter interface {
	Shutdown() error
}

// AdapterFactory builds and initialises an adapter against a fresh Core.
// The engine invokes it once per run (and again after each auto-restart).
type AdapterFactory func(core *Core) (Adapter, error)

// Core bundles the engine-owned collaborators a protocol adapter needs while
// building its pullers.
type Core struct {
	// Registry receives the adapter's fetch / process pairs.
	Registry *Registry

	// Store is the data-point change-detection map; process functions write
	// decoded values through Store.Set.
	Store *Store

	// Speed is the engine's speed-transform cache, passed to transform.New.
	Speed *transform.SpeedCache

	// LastPullTime returns the monotonic timestamp (seconds) recorded at the
	// start of the current cycle's pull step.
	LastPullTime func() float64
}

// InitError wraps a failure during adapter initialisation. Init failures are
// configuration-class: they are never retried by the auto-restart policy.
type InitError struct{ Err error }

func (e *InitError) Error() string { return "engine: adapter init: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// ─────────────────────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────────────────────

// Options configures an Engine. Interval, Sink and NewAdapter are required.
type Options struct {
	// Interval is the cycle period (1/freq).
	Interval time.Duration

	// Beacon is the heartbeat period; 0 disables the beacon. Beacons are
	// only emitted in loop mode.
	Beacon time.Duration

	// Loop selects continuous mode; false runs a single cycle and returns.
	Loop bool

	// AutoRestart reinitialises the engine after a non-fatal runtime error
	// instead of exiting. Only effective together with Loop.
	AutoRestart bool

	// Sink receives changed data points and beacons.
	Sink Sink

	// NewAdapter builds the protocol adapter for each run.
	NewAdapter AdapterFactory
}

// Engine is the polling engine. Create one with New and drive it with Run.
type Engine struct {
	opts   Options
	logger *slog.Logger

	store *Store
	speed *transform.SpeedCache

	epoch    time.Time
	lastPull atomic.Int64 // nanoseconds since epoch, written by the scheduler
}

// New constructs an Engine. It does not start anything — call Run for that.
func New(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("engine: interval must be positive")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("engine: sink is required")
	}
	if opts.NewAdapter == nil {
		return nil, fmt.Errorf("engine: adapter factory is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Engine{
		opts:   opts,
		logger: logger,
		store:  NewStore(opts.Sink),
		speed:  transform.NewSpeedCache(),
		epoch:  time.Now(),
	}, nil
}

// LastPullTime returns the monotonic timestamp (seconds since engine
// creation) of the current cycle's pull step. It is written by the scheduler
// before each cycle and read by the processor worker inside the speed
// transform; the enqueue happens-before the dequeue, so a plain atomic
// exchange suffices.
func (e *Engine) LastPullTime() float64 {
	return float64(e.lastPull.Load()) / float64(time.Second)
}

func (e *Engine) markPullTime() {
	e.lastPull.Store(time.Since(e.epoch).Nanoseconds())
}

// Run executes the engine until the single-shot cycle completes, ctx is
// cancelled (clean exit), or an unrecovered error occurs. With AutoRestart
// and Loop both set, runtime errors reinitialise the engine after a pause of
// one interval; init errors are always fatal.
func (e *Engine) Run(ctx context.Context) error {
	for {
		err := e.runOnce(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		}

		var initErr *InitError
		if errors.As(err, &initErr) || !e.opts.AutoRestart || !e.opts.Loop {
			return err
		}

		e.logger.Error("engine: cycle failed — restarting",
			"error", err.Error(),
			"pause", e.opts.Interval.String(),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.opts.Interval):
		}
	}
}

// runOnce performs one full engine lifecycle:
//
//	clear → adapter init → start processor → run scheduler →
//	close queue → join processor → adapter shutdown
//
// The close/join/shutdown ordering guarantees all in-flight payloads are
// fully processed and all sink writes have landed before the adapter's
// transport is released.
func (e *Engine) runOnce(ctx context.Context) error {
	e.clear()

	core := &Core{
		Registry:     &Registry{},
		Store:        e.store,
		Speed:        e.speed,
		LastPullTime: e.LastPullTime,
	}

	adapter, err := e.opts.NewAdapter(core)
	if err != nil {
		return &InitError{Err: err}
	}

	proc := NewProcessor(core.Registry.Len(), e.logger)
	proc.Start()

	runErr := e.runLoop(ctx, core.Registry, proc)

	proc.Close()
	proc.Join()

	if serr := adapter.Shutdown(); serr != nil {
		e.logger.Warn("engine: adapter shutdown failed", "error", serr.Error())
	}
	return runErr
}

// clear resets all per-run state: the data-point store and the speed cache.
// The registry is rebuilt from scratch by the next adapter init.
func (e *Engine) clear() {
	e.store.Clear()
	e.speed.Clear()
}
