// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency

// RingSize is the number of most recent round trip times kept per port.
const RingSize = 1024

// Ring keeps the last RingSize values, overwriting the oldest one.
type Ring struct {
	buf  [RingSize]uint64
	head int // next write position
	n    int
}

// Push appends v, dropping the oldest value once the ring is full.
func (r *Ring) Push(v uint64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % RingSize
	if r.n < RingSize {
		r.n++
	}
}

// Len is the number of stored values.
func (r *Ring) Len() int {
	return r.n
}

// Values returns stored values oldest first.
func (r *Ring) Values() []uint64 {
	out := make([]uint64, 0, r.n)
	start := (r.head - r.n + RingSize) % RingSize
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%RingSize])
	}
	return out
}

// Reset drops all values.
func (r *Ring) Reset() {
	r.head = 0
	r.n = 0
}
