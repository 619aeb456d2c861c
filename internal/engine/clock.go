package engine

import (
	"sync"

	"github.com/roach88/lattice/internal/ir"
)

// Clock is a Lamport clock for one replica origin.
//
// Every local write is stamped with Next. Observe folds in timestamps seen
// from other replicas so that later local writes dominate them.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	mu     sync.Mutex
	seq    int64
	origin string
}

// NewClock creates a clock for origin starting at 0.
func NewClock(origin string) *Clock {
	return &Clock{origin: origin}
}

// NewClockAt creates a clock for origin resuming after seq.
// Used when reopening a store that already holds writes.
func NewClockAt(origin string, seq int64) *Clock {
	return &Clock{origin: origin, seq: seq}
}

// Origin returns the replica id the clock stamps writes with.
func (c *Clock) Origin() string {
	return c.origin
}

// Next advances the clock and returns a fresh timestamp.
func (c *Clock) Next() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return ir.NewTimestamp(c.seq, c.origin)
}

// Observe advances the clock to at least ts.Seq.
func (c *Clock) Observe(ts ir.Timestamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts.Seq > c.seq {
		c.seq = ts.Seq
	}
}

// Current returns the last issued or observed timestamp without advancing.
func (c *Clock) Current() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.NewTimestamp(c.seq, c.origin)
}
