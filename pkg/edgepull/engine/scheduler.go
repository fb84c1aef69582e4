package engine

import (
	"context"
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixed-rate scheduler
// ─────────────────────────────────────────────────────────────────────────────

// runLoop drives pull cycles at a fixed phase until ctx is cancelled or a
// cycle fails. nextIter is the absolute deadline of the next cycle; it is
// advanced by exactly one interval per cycle regardless of how long the cycle
// took, so the phase never drifts. An overrunning cycle logs a warning and
// the next cycle starts immediately — cycles are never skipped.
//
// In single-shot mode (Loop=false) exactly one cycle runs, with no sleep and
// no beacon.
func (e *Engine) runLoop(ctx context.Context, reg *Registry, proc *Processor) error {
	if !e.opts.Loop {
		if err := e.cycle(reg, proc); err != nil {
			return err
		}
		if !proc.Alive() {
			return ErrProcessorDead
		}
		return nil
	}

	interval := e.opts.Interval
	nextIter := time.Now().Add(interval)

	beaconOn := e.opts.Beacon > 0
	var nextBeacon time.Time
	if beaconOn {
		nextBeacon = time.Now().Add(e.opts.Beacon)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.cycle(reg, proc); err != nil {
			return err
		}
		if !proc.Alive() {
			return ErrProcessorDead
		}

		if beaconOn {
			nextBeacon = e.fireBeacon(nextBeacon)
		}

		delay := time.Until(nextIter)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else {
			e.logger.Warn("engine: cycle overran the interval",
				"behind", (-delay).String(),
				"interval", interval.String(),
			)
		}
		nextIter = nextIter.Add(interval)
	}
}

// cycle performs one pull-and-enqueue pass over the registry. The pull time
// is recorded first so the speed transform sees a single per-cycle timestamp.
func (e *Engine) cycle(reg *Registry, proc *Processor) error {
	e.markPullTime()
	for i, p := range reg.pullers {
		payload, err := p.Fetch()
		if err != nil {
			return fmt.Errorf("engine: pull %d: %w", i, err)
		}
		if !proc.Enqueue(payload, p.Process) {
			return ErrProcessorDead
		}
	}
	return nil
}

// fireBeacon emits a heartbeat when due and advances the beacon phase in
// whole beacon intervals until it is strictly in the future. Beacon emission
// is independent of data changes and is not deduplicated.
func (e *Engine) fireBeacon(nextBeacon time.Time) time.Time {
	now := time.Now()
	if now.Before(nextBeacon) {
		return nextBeacon
	}
	if err := e.opts.Sink.Beacon(); err != nil {
		e.logger.Warn("engine: beacon write failed", "error", err.Error())
	}
	for !nextBeacon.After(now) {
		nextBeacon = nextBeacon.Add(e.opts.Beacon)
	}
	return nextBeacon
}
