// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package low is the NIC I/O layer: message buffers and their pools, the
// Port and Driver interfaces implemented by the software loopback and the
// AF_PACKET drivers, and the tick clock used by the schedulers.
package low

import (
	"strconv"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// MbufDataRoom is the data capacity of one mbuf.
const MbufDataRoom = 2048

// Mbuf is a message buffer. An mbuf belongs to exactly one pool and keeps
// its data when it is returned there, so pre-built packets survive a round
// trip through the NIC.
type Mbuf struct {
	data  [MbufDataRoom]byte
	len   uint16
	index uint32
	pool  *Mempool
}

// GetRawPacketBytes returns the packet data.
func (mb *Mbuf) GetRawPacketBytes() []byte {
	return mb.data[:mb.len]
}

// Room returns the whole data area regardless of the packet length.
func (mb *Mbuf) Room() []byte {
	return mb.data[:]
}

// Len returns the packet length.
func (mb *Mbuf) Len() int {
	return int(mb.len)
}

// SetLen sets the packet length. Lengths above MbufDataRoom are refused.
func (mb *Mbuf) SetLen(n int) bool {
	if n < 0 || n > MbufDataRoom {
		return false
	}
	mb.len = uint16(n)
	return true
}

// WriteData copies data to mbuf and sets the length.
func (mb *Mbuf) WriteData(data []byte) bool {
	if len(data) > MbufDataRoom {
		return false
	}
	mb.len = uint16(copy(mb.data[:], data))
	return true
}

// Index is the position of the mbuf inside its pool.
func (mb *Mbuf) Index() int {
	return int(mb.index)
}

// Pool returns the owner pool.
func (mb *Mbuf) Pool() *Mempool {
	return mb.pool
}

// Free returns the mbuf to its pool.
func (mb *Mbuf) Free() {
	mb.pool.put(mb)
}

// Mempool is a fixed set of mbufs with a ring of free ones.
type Mempool struct {
	name  string
	mbufs []Mbuf
	free  *Ring
}

// CreateMempool creates and returns a new memory pool of n mbufs.
func CreateMempool(name string, n uint) (*Mempool, error) {
	if n == 0 {
		return nil, common.WrapWithNFError(nil, "mempool "+name+" can't be empty", common.FailToCreatePool)
	}
	mp := &Mempool{
		name:  name,
		mbufs: make([]Mbuf, n),
		free:  CreateRing(n + 1),
	}
	all := make([]*Mbuf, n)
	for i := range mp.mbufs {
		mp.mbufs[i].index = uint32(i)
		mp.mbufs[i].pool = mp
		all[i] = &mp.mbufs[i]
	}
	if !mp.free.EnqueueBulk(all, n) {
		return nil, common.WrapWithNFError(nil, "mempool "+name+" ring is too small", common.FailToCreatePool)
	}
	common.LogDebug(common.Initialization, "Created mempool", name, "of", n, "mbufs")
	return mp, nil
}

// Name returns pool name.
func (mp *Mempool) Name() string {
	return mp.name
}

// Size returns the number of mbufs owned by the pool.
func (mp *Mempool) Size() int {
	return len(mp.mbufs)
}

// Free returns the number of mbufs currently in the pool.
func (mp *Mempool) Free() int {
	return int(mp.free.GetRingCount())
}

// GetBulk fills pkts with free mbufs. It takes either all of them or none.
func (mp *Mempool) GetBulk(pkts []*Mbuf) bool {
	return mp.free.DequeueBulk(pkts, uint(len(pkts)))
}

// Get returns one free mbuf or nil.
func (mp *Mempool) Get() *Mbuf {
	var one [1]*Mbuf
	if mp.free.DequeueBurst(one[:], 1) == 0 {
		return nil
	}
	return one[0]
}

// PutBulk returns mbufs to the pools they belong to. They need not come
// from mp.
func (mp *Mempool) PutBulk(pkts []*Mbuf) {
	PutBulk(pkts)
}

func (mp *Mempool) put(m *Mbuf) {
	one := [1]*Mbuf{m}
	mp.free.EnqueueBurst(one[:], 1)
}

// Each calls fn for every mbuf of the pool in index order, including the
// ones that are currently taken. The first error stops the walk.
func (mp *Mempool) Each(fn func(*Mbuf) error) error {
	for i := range mp.mbufs {
		if err := fn(&mp.mbufs[i]); err != nil {
			return err
		}
	}
	return nil
}

// PutBulk returns every mbuf to its own pool. Runs of mbufs of one pool
// are enqueued at once.
func PutBulk(pkts []*Mbuf) {
	for len(pkts) > 0 {
		owner := pkts[0].pool
		n := 1
		for n < len(pkts) && pkts[n].pool == owner {
			n++
		}
		owner.free.EnqueueBurst(pkts[:n], uint(n))
		pkts = pkts[n:]
	}
}

// LinkInfo describes a port as reported by its driver.
type LinkInfo struct {
	Name      string
	MAC       types.MACAddress
	SpeedMbps uint32
	Up        bool
	MTU       int
}

func (info LinkInfo) String() string {
	state := "down"
	if info.Up {
		state = "up"
	}
	return info.Name + " " + info.MAC.String() + " " + strconv.Itoa(int(info.SpeedMbps)) + "Mbps " + state
}

// Port is one NIC port. Each queue must be polled by a single goroutine
// at a time.
type Port interface {
	// RxBurst fills pkts with received mbufs and returns their number.
	// The caller owns the returned mbufs.
	RxBurst(queue uint16, pkts []*Mbuf) int
	// TxBurst hands pkts to the wire and returns how many were accepted.
	// Accepted mbufs go back to their pool once transmitted.
	TxBurst(queue uint16, pkts []*Mbuf) int
	Info() LinkInfo
	Queues() (rx, tx int)
	Close() error
}

// Driver owns a set of ports.
type Driver interface {
	Ports() []Port
	Close() error
}
