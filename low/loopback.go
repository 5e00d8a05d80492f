// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"strconv"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// Loopback defaults.
const (
	DefaultLoopbackRingSize  = 1024
	DefaultLoopbackPoolSize  = 8191
	DefaultLoopbackSpeedMbps = 10000
)

// LoopbackConfig describes a software driver. Ports are cabled in pairs:
// 0 with 1, 2 with 3 and so on. An odd last port is cabled to itself.
type LoopbackConfig struct {
	Ports     int
	Queues    int
	RingSize  uint
	PoolSize  uint
	SpeedMbps uint32
}

// Loopback is a driver of software ports that deliver every transmitted
// frame as a copy to the rx queue of the peer port.
type Loopback struct {
	ports []*LoopbackPort
}

// LoopbackPort is one software port.
type LoopbackPort struct {
	info   LinkInfo
	peer   *LoopbackPort
	rx     []*Ring
	pool   *Mempool
	missed atomic.Uint64
	closed atomic.Bool
}

// NewLoopback creates cabled software ports.
func NewLoopback(cfg LoopbackConfig) (*Loopback, error) {
	if cfg.Ports <= 0 {
		return nil, common.WrapWithNFError(nil, "loopback needs at least one port", common.FailToInitPort)
	}
	if cfg.Queues <= 0 {
		cfg.Queues = 1
	}
	if cfg.RingSize == 0 {
		cfg.RingSize = DefaultLoopbackRingSize
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = DefaultLoopbackPoolSize
	}
	if cfg.SpeedMbps == 0 {
		cfg.SpeedMbps = DefaultLoopbackSpeedMbps
	}

	lb := &Loopback{ports: make([]*LoopbackPort, cfg.Ports)}
	for i := range lb.ports {
		pool, err := CreateMempool("loop"+strconv.Itoa(i)+"-rx", cfg.PoolSize)
		if err != nil {
			return nil, err
		}
		p := &LoopbackPort{
			info: LinkInfo{
				Name:      "loop" + strconv.Itoa(i),
				MAC:       types.MACAddress{0x02, 0, 0, 0, byte(i >> 8), byte(i)},
				SpeedMbps: cfg.SpeedMbps,
				Up:        true,
				MTU:       types.MaxPktSize - types.EtherAddrLen*2 - 2,
			},
			rx:   make([]*Ring, cfg.Queues),
			pool: pool,
		}
		for q := range p.rx {
			p.rx[q] = CreateRing(cfg.RingSize)
		}
		lb.ports[i] = p
	}
	for i, p := range lb.ports {
		peer := i ^ 1
		if peer >= len(lb.ports) {
			peer = i
		}
		p.peer = lb.ports[peer]
	}
	common.LogDebug(common.Initialization, "Loopback driver with", cfg.Ports, "ports and", cfg.Queues, "queues")
	return lb, nil
}

// Ports returns the software ports.
func (lb *Loopback) Ports() []Port {
	ports := make([]Port, len(lb.ports))
	for i, p := range lb.ports {
		ports[i] = p
	}
	return ports
}

// Port returns software port i.
func (lb *Loopback) Port(i int) *LoopbackPort {
	return lb.ports[i]
}

// Close closes every port.
func (lb *Loopback) Close() error {
	var err error
	for _, p := range lb.ports {
		err = multierr.Append(err, p.Close())
	}
	return err
}

// RxBurst dequeues received copies.
func (p *LoopbackPort) RxBurst(queue uint16, pkts []*Mbuf) int {
	if int(queue) >= len(p.rx) || p.closed.Load() {
		return 0
	}
	return int(p.rx[queue].DequeueBurst(pkts, uint(len(pkts))))
}

// TxBurst copies every packet to the peer and frees it. Frames that find
// the peer pool empty or its ring full are counted as missed by the peer.
func (p *LoopbackPort) TxBurst(queue uint16, pkts []*Mbuf) int {
	if p.closed.Load() {
		return 0
	}
	peer := p.peer
	ring := peer.rx[int(queue)%len(peer.rx)]
	var copies [64]*Mbuf
	for off := 0; off < len(pkts); off += len(copies) {
		chunk := pkts[off:]
		if len(chunk) > len(copies) {
			chunk = chunk[:len(copies)]
		}
		n := 0
		for _, m := range chunk {
			c := peer.pool.Get()
			if c == nil {
				break
			}
			c.WriteData(m.GetRawPacketBytes())
			copies[n] = c
			n++
		}
		stored := int(ring.EnqueueBurst(copies[:n], uint(n)))
		if stored < n {
			PutBulk(copies[stored:n])
		}
		if lost := len(chunk) - stored; lost > 0 {
			peer.missed.Add(uint64(lost))
		}
	}
	PutBulk(pkts)
	return len(pkts)
}

// Info returns link facts.
func (p *LoopbackPort) Info() LinkInfo {
	return p.info
}

// Queues returns the number of rx and tx queues.
func (p *LoopbackPort) Queues() (rx, tx int) {
	return len(p.rx), len(p.rx)
}

// Missed returns the number of frames dropped on receive.
func (p *LoopbackPort) Missed() uint64 {
	return p.missed.Load()
}

// Pending returns the number of frames waiting on an rx queue.
func (p *LoopbackPort) Pending(queue uint16) int {
	return int(p.rx[queue].GetRingCount())
}

// Close stops the port and frees pending frames.
func (p *LoopbackPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	var buf [64]*Mbuf
	for _, r := range p.rx {
		for {
			n := r.DequeueBurst(buf[:], uint(len(buf)))
			if n == 0 {
				break
			}
			PutBulk(buf[:n])
		}
	}
	return nil
}
