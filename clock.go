package mbus

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic millisecond counter. The counter may wrap around;
// the scheduler only compares differences of readings.
type Clock interface {
	Millis() uint32
}

// elapsed returns the milliseconds from since to now, modulo 2^32, so a
// counter wrap between the two readings is harmless.
func elapsed(now, since uint32) uint32 {
	return now - since
}

func toMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		return ^uint32(0) >> 1
	}
	return uint32(ms)
}

// SystemClock counts milliseconds since its creation using the monotonic
// reading of time.Now.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a SystemClock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ManualClock is a Clock advanced explicitly, for deterministic scheduling.
type ManualClock struct {
	now atomic.Uint32
}

// NewManualClock creates a ManualClock reading start.
func NewManualClock(start uint32) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Millis() uint32 {
	return c.now.Load()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.now.Add(uint32(d.Milliseconds()))
}
