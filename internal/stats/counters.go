// Package stats provides a concurrent counter sink shared across the
// worker's thread pool. It is passed explicitly to every component that
// needs to record an outcome, rather than kept as package-level global
// state, so a test can supply an isolated instance.
package stats

import "sync"

// Counter names used by the history loader and the worker driver.
// Keeping these as exported constants lets call sites and tests refer to
// the same literal string.
const (
	DuplicateRecords               = "Duplicate Records"
	UniqueRecords                  = "Unique Records"
	UnrecoverableRecordParseErrors = "Unrecoverable Record Parse Errors"
	InvalidRecords                 = "Invalid Records"
	IdentityHashMismatches         = "Identity Hash Mismatches"
	UnitsProcessed                 = "Units Processed"
	UnitsFailed                    = "Units Failed"
)

// Counters is a concurrent map of named integer counters.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

// New returns an empty Counters ready for concurrent use.
func New() *Counters {
	return &Counters{values: make(map[string]int64)}
}

// Add increments the named counter by delta (delta may be negative).
func (c *Counters) Add(name string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] += delta
}

// Inc increments the named counter by one.
func (c *Counters) Inc(name string) {
	c.Add(name, 1)
}

// Get returns the current value of the named counter.
func (c *Counters) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot returns a point-in-time copy of all counters, suitable for
// logging or emitting to an external stats sink.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
