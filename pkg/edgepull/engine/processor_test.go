package engine_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
)

func TestProcessorRunsProcessFnsInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(tag string) engine.ProcessFunc {
		return func(payload any) error {
			mu.Lock()
			seen = append(seen, fmt.Sprintf("%s:%v", tag, payload))
			mu.Unlock()
			return nil
		}
	}

	p := engine.NewProcessor(4, nil)
	p.Start()

	if !p.Enqueue(1, []engine.ProcessFunc{record("a"), record("b")}) {
		t.Fatal("Enqueue returned false")
	}
	if !p.Enqueue(2, []engine.ProcessFunc{record("c")}) {
		t.Fatal("Enqueue returned false")
	}

	p.Close()
	p.Join()

	want := []string{"a:1", "b:1", "c:2"}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("seen %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen %v, want %v", seen, want)
		}
	}
}

func TestProcessorDrainsQueueOnClose(t *testing.T) {
	var (
		mu    sync.Mutex
		count int
	)
	fn := func(payload any) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	p := engine.NewProcessor(10, nil)
	// Fill the queue before the worker starts so Close finds queued items.
	for i := 0; i < 10; i++ {
		if !p.Enqueue(i, []engine.ProcessFunc{fn}) {
			t.Fatalf("Enqueue %d returned false", i)
		}
	}
	p.Start()
	p.Close()
	p.Join()

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("processed %d items, want 10 (drain on close)", count)
	}
}

func TestProcessorDiesOnProcessError(t *testing.T) {
	p := engine.NewProcessor(1, nil)
	p.Start()

	if !p.Alive() {
		t.Fatal("worker should be alive after Start")
	}

	boom := func(payload any) error { return fmt.Errorf("decode blew up") }
	if !p.Enqueue(nil, []engine.ProcessFunc{boom}) {
		t.Fatal("Enqueue returned false")
	}

	p.Join()
	if p.Alive() {
		t.Fatal("worker should be dead after a process error")
	}

	// Enqueue after death reports failure instead of blocking.
	if p.Enqueue(nil, nil) {
		t.Fatal("Enqueue after death should return false")
	}
}

func TestProcessorDiesOnPanic(t *testing.T) {
	p := engine.NewProcessor(1, nil)
	p.Start()

	bad := func(payload any) error {
		var regs []uint16
		_ = regs[3] // out of range
		return nil
	}
	if !p.Enqueue(nil, []engine.ProcessFunc{bad}) {
		t.Fatal("Enqueue returned false")
	}

	// The worker must exit (not hang) and become observable as dead.
	done := make(chan struct{})
	go func() {
		p.Join()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after panic")
	}
	if p.Alive() {
		t.Fatal("worker should be dead after panic")
	}
}
