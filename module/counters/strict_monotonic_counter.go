package counters

import (
	"go.uber.org/atomic"
)

// StrictMonotonicCounter is a lock-free counter that only moves forward.
// The nonce coordinator uses one per access key: Increment hands out the
// next nonce exactly once, Set skips forward when the chain reports a
// higher nonce than the local shadow.
type StrictMonotonicCounter struct {
	value *atomic.Uint64
}

// NewMonotonicCounter creates a counter seeded with initial.
func NewMonotonicCounter(initial uint64) *StrictMonotonicCounter {
	return &StrictMonotonicCounter{value: atomic.NewUint64(initial)}
}

// Set updates the value to processed, ensuring strict monotonic growth.
// Returns true on success or false if the stored value is not smaller.
func (c *StrictMonotonicCounter) Set(processed uint64) bool {
	for {
		current := c.value.Load()
		if processed <= current {
			return false
		}
		if c.value.CompareAndSwap(current, processed) {
			return true
		}
	}
}

// Increment atomically advances the counter by one and returns the new
// value. Each returned value is handed out to exactly one caller.
func (c *StrictMonotonicCounter) Increment() uint64 {
	return c.value.Add(1)
}

// Value returns the current value.
func (c *StrictMonotonicCounter) Value() uint64 {
	return c.value.Load()
}
