package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/schema"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, Epoch, clock.Current())
}

func TestDeterministicClock_NowAdvances(t *testing.T) {
	clock := NewDeterministicClock()

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Current())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 20
	const callsPerGoroutine = 50

	var wg sync.WaitGroup
	results := make(chan time.Time, numGoroutines*callsPerGoroutine)
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[time.Time]bool)
	for r := range results {
		assert.False(t, seen[r], "instant %s returned twice", r)
		seen[r] = true
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
}

func TestDeterministicClock_Config(t *testing.T) {
	clock := NewDeterministicClock()
	cfg := clock.Config()

	p, ok := cfg.Defaults.Lookup(schema.DefaultFuncNow)
	require.True(t, ok)
	v, err := p.DefaultValue()
	require.NoError(t, err)
	assert.Equal(t, Epoch, v)

	_, ok = cfg.Defaults.Lookup(schema.DefaultFuncUUID)
	assert.True(t, ok, "other providers are kept")
}
