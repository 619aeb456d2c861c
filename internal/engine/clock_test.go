package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lattice/internal/ir"
)

func TestClock_NewClock(t *testing.T) {
	c := NewClock("A")
	assert.Equal(t, ir.NewTimestamp(0, "A"), c.Current(), "new clock should start at 0")
	assert.Equal(t, "A", c.Origin())
}

func TestClock_NewClockAt(t *testing.T) {
	c := NewClockAt("A", 100)
	assert.Equal(t, int64(100), c.Current().Seq)
	assert.Equal(t, ir.NewTimestamp(101, "A"), c.Next())
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock("A")

	assert.Equal(t, ir.NewTimestamp(1, "A"), c.Next())
	assert.Equal(t, ir.NewTimestamp(2, "A"), c.Next())
	assert.Equal(t, ir.NewTimestamp(3, "A"), c.Next())
	assert.Equal(t, int64(3), c.Current().Seq)
}

func TestClock_Observe(t *testing.T) {
	c := NewClock("A")
	c.Next()

	c.Observe(ir.NewTimestamp(10, "B"))
	next := c.Next()
	assert.Equal(t, ir.NewTimestamp(11, "A"), next)
	assert.True(t, next.After(ir.NewTimestamp(10, "Z")), "local write must dominate observed writes")

	// older timestamps never move the clock back
	c.Observe(ir.NewTimestamp(3, "B"))
	assert.Equal(t, int64(11), c.Current().Seq)
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClock("A")
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	seqs := make(chan int64, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seqs <- c.Next().Seq
			}
		}()
	}

	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		assert.False(t, seen[seq], "seq %d generated twice", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
