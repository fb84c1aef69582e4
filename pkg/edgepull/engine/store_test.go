package engine_test

import (
	"sync"
	"testing"

	"github.com/edgewatch/edgepull/models"
	"github.com/edgewatch/edgepull/pkg/edgepull/engine"
)

// ─────────────────────────────────────────────────────────────────────────────
// Shared test sink
// ─────────────────────────────────────────────────────────────────────────────

// emission records one sink write.
type emission struct {
	ID    string
	Value models.Value
}

// recordSink captures writes and beacons for assertions.
type recordSink struct {
	mu       sync.Mutex
	lines    []emission
	beacons  int
	failWith error
}

func (s *recordSink) Write(id string, value models.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.lines = append(s.lines, emission{ID: id, Value: value})
	return nil
}

func (s *recordSink) Beacon() error {
	s.mu.Lock()
	s.beacons++
	s.mu.Unlock()
	return nil
}

func (s *recordSink) emissions() []emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]emission, len(s.lines))
	copy(out, s.lines)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

func TestStoreEmitsOnlyOnChange(t *testing.T) {
	sink := &recordSink{}
	store := engine.NewStore(sink)

	steps := []struct {
		id    string
		value models.Value
		emit  bool
	}{
		{"d.a", int64(1), true},
		{"d.a", int64(1), false}, // unchanged
		{"d.a", int64(2), true},
		{"d.b", int64(2), true}, // separate id
		{"d.a", int64(2), false},
		{"d.a", int64(1), true}, // changed back
	}

	want := 0
	for i, s := range steps {
		if err := store.Set(s.id, s.value); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if s.emit {
			want++
		}
		if got := len(sink.emissions()); got != want {
			t.Fatalf("step %d: %d emissions, want %d", i, got, want)
		}
	}
}

func TestStoreSkipSentinel(t *testing.T) {
	sink := &recordSink{}
	store := engine.NewStore(sink)

	if err := store.Set("d.a", nil); err != nil {
		t.Fatalf("Set nil: %v", err)
	}
	if len(sink.emissions()) != 0 {
		t.Fatal("nil value must not emit")
	}
	if _, ok := store.Get("d.a"); ok {
		t.Fatal("nil value must not be stored")
	}

	// A later real value still counts as first observation.
	if err := store.Set("d.a", int64(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(sink.emissions()) != 1 {
		t.Fatal("first real value must emit")
	}
}

func TestStoreNumericEqualityAcrossRepresentations(t *testing.T) {
	sink := &recordSink{}
	store := engine.NewStore(sink)

	if err := store.Set("d.a", uint64(100)); err != nil {
		t.Fatal(err)
	}
	// Same numeric value in a different representation: no emission.
	if err := store.Set("d.a", float64(100)); err != nil {
		t.Fatal(err)
	}
	if got := len(sink.emissions()); got != 1 {
		t.Errorf("%d emissions, want 1 (100 == 100.0)", got)
	}
}

func TestStoreClear(t *testing.T) {
	sink := &recordSink{}
	store := engine.NewStore(sink)

	if err := store.Set("d.a", int64(1)); err != nil {
		t.Fatal(err)
	}
	store.Clear()
	if store.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", store.Len())
	}

	// After a clear the same value is emitted again (fresh engine run).
	if err := store.Set("d.a", int64(1)); err != nil {
		t.Fatal(err)
	}
	if got := len(sink.emissions()); got != 2 {
		t.Errorf("%d emissions, want 2", got)
	}
}
