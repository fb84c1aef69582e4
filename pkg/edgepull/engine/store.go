package engine

import (
	"fmt"

	"github.com/edgewatch/edgepull/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sink — consumer-side interface
// ─────────────────────────────────────────────────────────────────────────────

// Sink is the subset of the output layer the engine consumes. Using a local
// interface lets tests inject a recorder without importing the output package.
type Sink interface {
	// Write emits one changed data point as a line on the output stream.
	Write(id string, value models.Value) error

	// Beacon emits a heartbeat, independent of data changes.
	Beacon() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Data-point store
// ─────────────────────────────────────────────────────────────────────────────

// Store is the data-point change-detection map. It holds the last emitted
// value per identifier and forwards changed values to the sink.
//
// Ownership: after engine init completes, the store is written exclusively by
// the processor worker, so no locking is needed; Clear runs only between
// engine runs, after the worker has been joined.
type Store struct {
	data map[string]models.Value
	sink Sink
}

// NewStore creates an empty store emitting to sink.
func NewStore(sink Sink) *Store {
	return &Store{
		data: make(map[string]models.Value),
		sink: sink,
	}
}

// Set records value for id and emits it when it differs from the stored
// value (or none existed). A nil value is the skip sentinel: no storage, no
// emission.
func (s *Store) Set(id string, value models.Value) error {
	if value == nil {
		return nil
	}
	current, ok := s.data[id]
	if ok && models.Equal(current, value) {
		return nil
	}
	s.data[id] = value
	if err := s.sink.Write(id, value); err != nil {
		return fmt.Errorf("sink write %s: %w", id, err)
	}
	return nil
}

// Get returns the stored value for id (for tests / inspection).
func (s *Store) Get(id string) (models.Value, bool) {
	v, ok := s.data[id]
	return v, ok
}

// Clear empties the map. Called when the engine reinitialises.
func (s *Store) Clear() {
	s.data = make(map[string]models.Value)
}

// Len returns the number of tracked data points.
func (s *Store) Len() int { return len(s.data) }
