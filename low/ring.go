// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"runtime"
	"sync/atomic"
)

type headTail struct {
	head atomic.Uint32
	tail atomic.Uint32
	_    [56]byte
}

// Ring is a multi producer multi consumer ring of mbuf pointers.
// Real usable ring size is count-1.
type Ring struct {
	prod  headTail
	cons  headTail
	size  uint32
	mask  uint32
	slots []*Mbuf
}

// CreateRing creates ring with at least count slots. Count is rounded up to
// a power of two.
func CreateRing(count uint) *Ring {
	size := uint32(2)
	for uint(size) < count {
		size <<= 1
	}
	return &Ring{
		size:  size,
		mask:  size - 1,
		slots: make([]*Mbuf, size),
	}
}

// EnqueueBurst enqueues up to count mbufs and returns how many were stored.
func (ring *Ring) EnqueueBurst(buffer []*Mbuf, count uint) uint {
	return ring.mpDoEnqueue(buffer, count, false)
}

// EnqueueBulk enqueues exactly count mbufs or nothing.
func (ring *Ring) EnqueueBulk(buffer []*Mbuf, count uint) bool {
	return ring.mpDoEnqueue(buffer, count, true) == count
}

// DequeueBurst dequeues up to count mbufs.
func (ring *Ring) DequeueBurst(buffer []*Mbuf, count uint) uint {
	return ring.mcDoDequeue(buffer, count, false)
}

// DequeueBulk dequeues exactly count mbufs or nothing.
func (ring *Ring) DequeueBulk(buffer []*Mbuf, count uint) bool {
	return ring.mcDoDequeue(buffer, count, true) == count
}

// GetRingCount gets number of objects in ring.
func (ring *Ring) GetRingCount() uint32 {
	return (ring.prod.tail.Load() - ring.cons.tail.Load()) & ring.mask
}

// GetRingFree gets number of free slots.
func (ring *Ring) GetRingFree() uint32 {
	return ring.mask - ring.GetRingCount()
}

// Heavily based on DPDK mp_do_enqueue
func (ring *Ring) mpDoEnqueue(objTable []*Mbuf, n uint, fixed bool) uint {
	var prodHead, prodNext uint32
	max := n

	// move prod.head atomically
	for {
		n = max
		prodHead = ring.prod.head.Load()
		consTail := ring.cons.tail.Load()
		// The subtraction is done between two unsigned 32bits value so
		// freeEntries is always between 0 and size(ring)-1.
		freeEntries := ring.mask + consTail - prodHead

		if uint32(n) > freeEntries {
			if fixed || freeEntries == 0 {
				return 0
			}
			n = uint(freeEntries)
		}
		prodNext = prodHead + uint32(n)
		if ring.prod.head.CompareAndSwap(prodHead, prodNext) {
			break
		}
	}

	idx := prodHead & ring.mask
	for i := uint(0); i < n; i++ {
		ring.slots[(idx+uint32(i))&ring.mask] = objTable[i]
	}

	// If there are other enqueues in progress that preceded us,
	// we need to wait for them to complete
	for ring.prod.tail.Load() != prodHead {
		runtime.Gosched()
	}
	ring.prod.tail.Store(prodNext)
	return n
}

// Heavily based on DPDK mc_do_dequeue
func (ring *Ring) mcDoDequeue(objTable []*Mbuf, n uint, fixed bool) uint {
	var consHead, consNext uint32
	max := n

	// move cons.head atomically
	for {
		n = max
		consHead = ring.cons.head.Load()
		prodTail := ring.prod.tail.Load()
		entries := prodTail - consHead

		if uint32(n) > entries {
			if fixed || entries == 0 {
				return 0
			}
			n = uint(entries)
		}
		consNext = consHead + uint32(n)
		if ring.cons.head.CompareAndSwap(consHead, consNext) {
			break
		}
	}

	idx := consHead & ring.mask
	for i := uint(0); i < n; i++ {
		j := (idx + uint32(i)) & ring.mask
		objTable[i] = ring.slots[j]
	}

	for ring.cons.tail.Load() != consHead {
		runtime.Gosched()
	}
	ring.cons.tail.Store(consNext)
	return n
}
