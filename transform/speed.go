package transform

import "sync"

// ─────────────────────────────────────────────────────────────────────────────
// Speed cache
// ─────────────────────────────────────────────────────────────────────────────

// speedEntry holds the previously observed counter value and the pull time
// (monotonic seconds) at which it was recorded.
type speedEntry struct {
	Value uint64
	Time  float64
}

// SpeedCache tracks the last known value for every data point that carries a
// speed transform, so that the rate of change can be computed across cycles.
// Its lifetime matches the engine's; it is reset on every reinitialisation.
//
// The cache is only written by the processor worker once the engine is
// running, but it is mutex-guarded so that construction-time seeding and
// tests need no extra discipline.
type SpeedCache struct {
	mu      sync.Mutex
	entries map[string]speedEntry
}

// NewSpeedCache creates a ready-to-use cache.
func NewSpeedCache() *SpeedCache {
	return &SpeedCache{entries: make(map[string]speedEntry)}
}

// lookup returns the stored entry for id, if any.
func (c *SpeedCache) lookup(id string) (speedEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// store records (value, pull time) for id, replacing any previous entry.
func (c *SpeedCache) store(id string, value uint64, t float64) {
	c.mu.Lock()
	c.entries[id] = speedEntry{Value: value, Time: t}
	c.mu.Unlock()
}

// Clear removes all entries. Called when the engine reinitialises.
func (c *SpeedCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]speedEntry)
	c.mu.Unlock()
}

// Len returns the number of tracked data points (for monitoring / tests).
func (c *SpeedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
