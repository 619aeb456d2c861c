package testutil

import (
	"sync"
	"time"

	"github.com/roach88/lattice/internal/schema"
)

// Epoch is the instant a DeterministicClock starts at.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every reading, so "now" defaults produce the same dates on every
// run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock at Epoch advancing one second per
// reading.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{now: Epoch, step: time.Second}
}

// Now returns the current instant and advances the clock by one step.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Current returns the next instant Now will return, without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset moves the clock back to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}

// Config returns schema.DefaultConfig with the "now" default provider
// reading this clock.
func (c *DeterministicClock) Config() schema.Config {
	cfg := schema.DefaultConfig()
	cfg.Defaults.Register(schema.NowProvider{Now: c.Now})
	return cfg
}
