package executor

import (
	"math"
	"sync/atomic"
)

// floatCounter is a lock-free float64 accumulator: a CAS-loop add/load over
// the float's bit pattern, since sync/atomic has no native float64
// operations. Used here because every worker goroutine can land a CALL
// reply concurrently within a single MakeTransitions round, and
// rewardsSeen sums across all of them.
type floatCounter struct {
	bits uint64
}

func (c *floatCounter) add(delta float64) {
	for {
		old := atomic.LoadUint64(&c.bits)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(&c.bits, old, next) {
			return
		}
	}
}

func (c *floatCounter) load() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bits))
}
