// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic timestamp counter.
type Clock interface {
	Ticks() uint64
	Hz() uint64
}

// MonotonicClock counts nanoseconds since its creation.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Ticks returns nanoseconds elapsed since creation.
func (c *MonotonicClock) Ticks() uint64 {
	return uint64(time.Since(c.start))
}

// Hz returns 1e9.
func (c *MonotonicClock) Hz() uint64 {
	return uint64(time.Second)
}

// ManualClock only moves when told to. It is used to drive schedulers
// deterministically.
type ManualClock struct {
	ticks atomic.Uint64
	hz    uint64
}

// NewManualClock returns a clock at tick zero with frequency hz.
func NewManualClock(hz uint64) *ManualClock {
	return &ManualClock{hz: hz}
}

// Ticks returns the current tick.
func (c *ManualClock) Ticks() uint64 {
	return c.ticks.Load()
}

// Hz returns the configured frequency.
func (c *ManualClock) Hz() uint64 {
	return c.hz
}

// Advance moves the clock forward by d ticks and returns the new value.
func (c *ManualClock) Advance(d uint64) uint64 {
	return c.ticks.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t uint64) {
	c.ticks.Store(t)
}
