package engine

import (
	"errors"
	"log/slog"
	"runtime/debug"
)

// ErrProcessorDead is returned by a cycle when the processor worker is no
// longer alive at enqueue or liveness-check time.
var ErrProcessorDead = errors.New("engine: processor worker is not alive")

// ─────────────────────────────────────────────────────────────────────────────
// Processor — single background consumer
// ─────────────────────────────────────────────────────────────────────────────

// item is one hand-off unit: a fetched payload paired with the process
// functions bound to it at init.
type item struct {
	payload any
	process []ProcessFunc
}

// Processor drains the hand-off queue on a single goroutine, running each
// item's process functions in order. At most one worker is alive at any
// instant; its death is observable through Alive and fails the cycle.
type Processor struct {
	queue  chan item
	done   chan struct{}
	logger *slog.Logger
}

// NewProcessor creates a processor with a queue bounded to size items. The
// engine sizes the queue to the number of registered pullers so that one
// cycle's payloads always fit; a full queue means the worker lags a full
// cycle behind and blocking the scheduler is the intended backpressure.
func NewProcessor(size int, logger *slog.Logger) *Processor {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Processor{
		queue:  make(chan item, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start launches the worker goroutine.
func (p *Processor) Start() {
	go p.run()
}

func (p *Processor) run() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processor: panic",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	for it := range p.queue {
		for _, fn := range it.process {
			if err := fn(it.payload); err != nil {
				p.logger.Error("processor: process error — worker exiting",
					"error", err.Error(),
					"stack", string(debug.Stack()),
				)
				return
			}
		}
	}
}

// Enqueue hands one payload to the worker. It blocks while the queue is full
// (backpressure) and returns false if the worker dies in the meantime, which
// the scheduler treats as a fatal cycle error.
func (p *Processor) Enqueue(payload any, process []ProcessFunc) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.queue <- item{payload: payload, process: process}:
		return true
	case <-p.done:
		return false
	}
}

// Alive reports whether the worker goroutine is still running.
func (p *Processor) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Close signals shutdown. The worker drains all remaining queued items and
// then exits; callers must not Enqueue after Close.
func (p *Processor) Close() {
	close(p.queue)
}

// Join blocks until the worker has exited. The engine calls Close, then
// Join, and only then the adapter's shutdown — guaranteeing every in-flight
// payload has been fully processed and all sink writes have landed before
// transport resources are released.
func (p *Processor) Join() {
	<-p.done
}

// noopWriter discards log output when no logger is provided.
type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
