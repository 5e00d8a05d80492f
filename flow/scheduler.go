// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Lcore loops
// 1) Every lcore polls its own set of (port, queue) pairs. No pair is shared
// between lcores so queue state needs no locking.
// 2) Transmit queues send pre-built packets. A pool is pre-built again only
// when its dirty flag was raised by a configuration publish. The pre-bake
// runs on the lcore under the port pre-bake mutex.
// 3) All loops check one shared atomic stop flag once per iteration. A
// burst in flight always completes.

package flow

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/construct"
	"github.com/intel-go/nff-pktgen/low"
	"github.com/intel-go/nff-pktgen/packet"
	"github.com/intel-go/nff-pktgen/scheduler"
	"github.com/intel-go/nff-pktgen/template"
)

// Mode of an lcore, fixed at assignment time.
type Mode uint8

// Lcore modes.
const (
	ModeRX Mode = iota + 1
	ModeTX
	ModeRXTX
)

func (m Mode) String() string {
	switch m {
	case ModeRX:
		return "rx"
	case ModeTX:
		return "tx"
	case ModeRXTX:
		return "rxtx"
	}
	return "mode" + strconv.Itoa(int(m))
}

// QueueRef names one queue of one port.
type QueueRef struct {
	Port  int
	Queue int
}

func (ref QueueRef) String() string {
	return strconv.Itoa(ref.Port) + "." + strconv.Itoa(ref.Queue)
}

// Assignment maps an lcore to its mode and its queues.
type Assignment struct {
	Lcore int
	Mode  Mode
	RX    []QueueRef
	TX    []QueueRef
}

func (a Assignment) name() string {
	return a.Mode.String() + strconv.Itoa(a.Lcore)
}

// Give up a burst after this many TxBurst calls in a row took nothing.
const maxIdleTxBursts = 1000

type txQueue struct {
	port  *Port
	id    uint16
	lead  bool
	pools [numPoolModes]*low.Mempool
	burst []*low.Mbuf
	one   [1]*low.Mbuf
	rnd   *rand.Rand
	dirty atomic.Bool

	// lead queue only
	builder *construct.Builder
	pingSeq uint16

	next      uint64
	packets   atomic.Uint64
	bytes     atomic.Uint64
	dropped   atomic.Uint64
	noMbufs   atomic.Uint64
	keepAlive atomic.Uint64
}

func newTxQueue(p *Port, id int, poolSize uint, burst uint, seed int64) (*txQueue, error) {
	q := &txQueue{
		port:  p,
		id:    uint16(id),
		burst: make([]*low.Mbuf, burst),
		rnd:   rand.New(rand.NewSource(seed)),
	}
	for mode := poolMode(0); mode < numPoolModes; mode++ {
		name := "tx" + strconv.Itoa(p.id) + "." + strconv.Itoa(id) + "-" + mode.String()
		pool, err := low.CreateMempool(name, poolSize)
		if err != nil {
			return nil, err
		}
		q.pools[mode] = pool
	}
	q.dirty.Store(true)
	return q, nil
}

// poll runs one transmit iteration at tick now.
func (q *txQueue) poll(now uint64) {
	cfg := q.port.cfg.Load()
	if q.lead {
		q.sendSpecials(cfg)
	}
	// Zero cycles disable pacing, bursts go back to back.
	cycles := cfg.Rate.TxCycles
	if now < q.next {
		return
	}
	q.transmit(now, cfg)
	q.next += cycles
	if q.next < now {
		q.next = now
	}
}

// transmit is the transmit step of one queue.
func (q *txQueue) transmit(now uint64, cfg *PortConfig) {
	p := q.port
	if !p.sending.Load() {
		return
	}
	if q.dirty.Swap(false) {
		p.prebake(q, p.cfg.Load())
		return
	}
	n := len(q.burst)
	forever := cfg.Features.SendForever()
	if !forever {
		left := p.budget.Load()
		if left <= 0 {
			p.sending.Store(false)
			return
		}
		if left < int64(n) {
			n = int(left)
		}
	}
	pkts := q.burst[:n]
	if !q.pools[cfg.Features.poolMode()].GetBulk(pkts) {
		q.noMbufs.Add(1)
		return
	}
	if cfg.Features.Random() {
		for _, m := range pkts {
			cfg.Bits.Apply(m.GetRawPacketBytes(), q.rnd)
		}
	}
	q.send(pkts)
	if !forever && p.budget.Add(-int64(n)) <= 0 {
		p.sending.Store(false)
		p.log.Info("transmit budget exhausted")
	}
	if cfg.Features.Latency() && q.lead {
		q.sendProbe(now, cfg)
	}
}

// send hands every packet to the port and counts them.
func (q *txQueue) send(pkts []*low.Mbuf) {
	var bytes uint64
	for _, m := range pkts {
		bytes += uint64(m.Len())
	}
	sent, idle := 0, 0
	for sent < len(pkts) && idle < maxIdleTxBursts {
		n := q.port.dev.TxBurst(q.id, pkts[sent:])
		if n == 0 {
			idle++
		} else {
			idle = 0
		}
		sent += n
	}
	if sent < len(pkts) {
		for _, m := range pkts[sent:] {
			bytes -= uint64(m.Len())
		}
		q.dropped.Add(uint64(len(pkts) - sent))
		low.PutBulk(pkts[sent:])
	}
	q.packets.Add(uint64(sent))
	q.bytes.Add(bytes)
}

func (q *txQueue) sendProbe(now uint64, cfg *PortConfig) {
	st := q.port.lat.Load()
	if !st.ProbeDue(now) {
		return
	}
	m := q.port.special.Get()
	if m == nil {
		q.noMbufs.Add(1)
		return
	}
	idx := st.NextProbe(now)
	slot := cfg.Store.Slots[template.SlotLatency]
	slot.SrcPort = st.SourcePort(slot.SrcPort, idx)
	n, err := q.builder.BuildProbe(m.Room(), &slot, cfg.Features.Encap(), now, idx)
	if err != nil {
		m.Free()
		common.LogDebug(common.Verbose, "Port", q.port.id, "can't build latency probe:", err)
		return
	}
	m.SetLen(n)
	q.one[0] = m
	q.send(q.one[:])
}

// sendSpecials fires pending one-shot packets once.
func (q *txQueue) sendSpecials(cfg *PortConfig) {
	pending := q.port.pending.Swap(0)
	if pending == 0 {
		return
	}
	slot := &cfg.Store.Slots[template.SlotSingle]
	for _, kind := range []uint32{specialARP, specialGARP, specialPing4} {
		if pending&kind == 0 {
			continue
		}
		m := q.port.special.Get()
		if m == nil {
			q.noMbufs.Add(1)
			continue
		}
		var n int
		var err error
		switch kind {
		case specialARP:
			n, err = q.builder.BuildARP(m.Room(), slot, false)
		case specialGARP:
			n, err = q.builder.BuildARP(m.Room(), slot, true)
		case specialPing4:
			n, err = q.builder.BuildPing4(m.Room(), slot, uint16(q.port.id), q.pingSeq)
			q.pingSeq++
		}
		if err != nil {
			m.Free()
			q.port.log.Warn("can't build special packet: " + err.Error())
			continue
		}
		m.SetLen(n)
		q.one[0] = m
		q.send(q.one[:])
	}
}

// keepAliveBurst sends an empty burst that lets bonding drivers run their
// state machines.
func (q *txQueue) keepAliveBurst() {
	if q.port.cfg.Load().Features.Bonding() {
		q.port.dev.TxBurst(q.id, nil)
		q.keepAlive.Add(1)
	}
}

type rxQueue struct {
	port    *Port
	id      uint16
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// receive polls one burst and accounts every packet of it.
func (q *rxQueue) receive(buf []*low.Mbuf, clock low.Clock) int {
	p := q.port
	n := p.dev.RxBurst(q.id, buf)
	if n == 0 {
		return 0
	}
	now := clock.Ticks()
	lat := p.lat.Load()
	capt := p.capture.Load()
	var bytes uint64
	var stamp time.Time
	if capt != nil {
		stamp = time.Now()
	}
	for _, m := range buf[:n] {
		raw := m.GetRawPacketBytes()
		bytes += uint64(len(raw))
		p.classes.count(packet.Classify(raw))
		if capt != nil {
			capt.put(raw, stamp)
		}
		if lat.Receive(raw, now) {
			p.classes.probes.Add(1)
		}
	}
	q.packets.Add(uint64(n))
	q.bytes.Add(bytes)
	low.PutBulk(buf[:n])
	return n
}

// lcoreBody builds the loop of one assignment.
func (e *Engine) lcoreBody(mode Mode, rx []*rxQueue, tx []*txQueue) scheduler.LcoreBody {
	return func(core int, stop *atomic.Bool) {
		buf := make([]*low.Mbuf, e.config.BurstSize)
		keepAliveTicks := e.clock.Hz() / 10
		nextKeepAlive := e.clock.Ticks() + keepAliveTicks
		for !stop.Load() {
			if mode != ModeTX {
				for _, q := range rx {
					q.receive(buf, e.clock)
				}
			}
			if mode == ModeRX {
				continue
			}
			now := e.clock.Ticks()
			for _, q := range tx {
				q.poll(now)
			}
			if now >= nextKeepAlive {
				for _, q := range tx {
					q.keepAliveBurst()
				}
				nextKeepAlive = now + keepAliveTicks
			}
		}
	}
}
