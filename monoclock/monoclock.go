// Package monoclock implements the wrap-safe boot-relative microsecond
// clock stamped into every page header: a free-running tick counter
// plus a wrap counter incremented whenever the raw reading goes
// backwards. A mutex rather than an atomic guards the state because
// the invariant spans two fields (prev and wrapCount) that must be
// read and updated together to stay monotonic under concurrent
// callers.
package monoclock

import (
	"math/bits"
	"sync"
)

// TickSource is the platform's free-running tick counter, machine-word
// width, running at TickHz. Real hardware backs this with a hardware
// timer register; tests back it with a plain counter and cmd/ringctl
// with wall-clock nanoseconds.
type TickSource interface {
	Ticks() uint64
}

// Clock tracks a free-running TickSource and turns it into a monotonic,
// wrap-safe microsecond count since boot.
type Clock struct {
	source TickSource
	tickHz uint64
	width  uint // bit width of the raw tick counter, e.g. 32 or 64

	mu        sync.Mutex
	prev      uint64
	wrapCount uint64
}

// New constructs a Clock reading from source, which produces ticks at
// tickHz, wrapping at 2^width.
func New(source TickSource, tickHz uint64, width uint) *Clock {
	return &Clock{source: source, tickHz: tickHz, width: width}
}

// NowMicros returns the tick counter's reading converted to
// microseconds (time since the counter's zero, i.e. boot), rounded up,
// accounting for any wraps of the underlying tick counter observed so
// far. All reads occur under the same critical section as
// the prev/wrapCount update, so concurrent callers never observe time
// moving backwards.
func (c *Clock) NowMicros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.source.Ticks()
	if now < c.prev {
		c.wrapCount++
	}
	c.prev = now

	total := c.wrapCount<<c.width + now
	return mulDivRoundUp(total, 1_000_000, c.tickHz)
}

// mulDivRoundUp computes ceil(a * b / c) using a 128-bit intermediate
// product so a large total tick count (after many wraps) times
// 1_000_000 never overflows uint64.
func mulDivRoundUp(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, r := bits.Div64(hi, lo, c)
	if r != 0 {
		q++
	}
	return q
}
