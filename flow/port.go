// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/intel-go/nff-pktgen/bitfield"
	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/construct"
	"github.com/intel-go/nff-pktgen/latency"
	"github.com/intel-go/nff-pktgen/low"
	"github.com/intel-go/nff-pktgen/packet"
	"github.com/intel-go/nff-pktgen/ranges"
	"github.com/intel-go/nff-pktgen/rate"
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

// DefaultRatePercent is the target share of line rate of a new port.
const DefaultRatePercent = 100

// PortConfig is an immutable configuration snapshot of one port. Setters
// clone the current snapshot, change the clone and publish it.
type PortConfig struct {
	// Generation grows with every publish.
	Gen         uint64
	Store       template.Store
	Range       ranges.Spec
	Bits        bitfield.Set
	Percent     float64
	Rate        rate.State
	Latency     latency.Config
	Features    Features
	TxCount     uint64
	CaptureFile string
}

func (cfg *PortConfig) clone() *PortConfig {
	c := *cfg
	return &c
}

// avgPktSize is the frame size the rate is calculated for.
func (cfg *PortConfig) avgPktSize() int {
	switch {
	case cfg.Features.Pcap() && cfg.Store.PcapAvgSize > 0:
		return cfg.Store.PcapAvgSize
	case cfg.Features.Range():
		return cfg.Range.AvgPktSize()
	case cfg.Features.Sequence():
		return cfg.Store.AvgSeqSize()
	}
	return int(cfg.Store.Slots[template.SlotSingle].PktSize)
}

// ARPKind selects the special ARP packet.
type ARPKind int

// ARP special packets.
const (
	ARPRequest ARPKind = iota
	ARPGratuitous
)

const (
	specialARP uint32 = 1 << iota
	specialGARP
	specialPing4
)

type classCounters struct {
	ether     [packet.NumEtherClasses]atomic.Uint64
	size      [packet.NumSizeClasses]atomic.Uint64
	broadcast atomic.Uint64
	multicast atomic.Uint64
	probes    atomic.Uint64
}

func (cc *classCounters) count(c packet.Class) {
	cc.ether[c.Ether].Add(1)
	cc.size[c.Size].Add(1)
	if c.Broadcast {
		cc.broadcast.Add(1)
	}
	if c.Multicast {
		cc.multicast.Add(1)
	}
}

// Port is the runtime state of one port. Control methods may be called
// from any goroutine. Data path state is owned by the lcores serving the
// port queues.
type Port struct {
	id     int
	dev    low.Port
	info   low.LinkInfo
	engine *Engine
	log    *zap.Logger

	ctl sync.Mutex
	cfg atomic.Pointer[PortConfig]

	prebakeMu sync.Mutex
	ranges    ranges.State
	seq       template.Selector
	builder   *construct.Builder

	lat     atomic.Pointer[latency.State]
	capture atomic.Pointer[capture]
	sending atomic.Bool
	budget  atomic.Int64
	pending atomic.Uint32
	special *low.Mempool

	txq     []*txQueue
	rxq     []*rxQueue
	classes classCounters
}

func newPort(e *Engine, id int, dev low.Port) (*Port, error) {
	info := dev.Info()
	special, err := low.CreateMempool("special"+strconv.Itoa(id), e.config.SpecialPoolSize)
	if err != nil {
		return nil, err
	}
	p := &Port{
		id:      id,
		dev:     dev,
		info:    info,
		engine:  e,
		log:     common.Logger().With(zap.Int("port", id), zap.String("name", info.Name)),
		builder: construct.NewBuilder(uint16(id) << 8),
		special: special,
	}
	cfg := &PortConfig{
		Store:    template.NewStore(id, info.MAC),
		Percent:  DefaultRatePercent,
		Latency:  latency.DefaultConfig(),
		Features: FeatureSendForever,
	}
	cfg.Range = ranges.DefaultSpec(id, &cfg.Store.Slots[template.SlotRange])
	cfg.Rate = p.pacing(cfg)
	p.cfg.Store(cfg)
	p.ranges.Reset(&cfg.Range)
	p.seq = template.NewSelector(cfg.Store.SeqCnt)
	p.lat.Store(latency.NewState(cfg.Latency, e.clock.Hz(), e.seed(id)))
	return p, nil
}

// ID returns port number.
func (p *Port) ID() int {
	return p.id
}

// Info returns link facts read when the engine was created.
func (p *Port) Info() low.LinkInfo {
	return p.info
}

// Config returns the active configuration snapshot. It must not be
// modified.
func (p *Port) Config() *PortConfig {
	return p.cfg.Load()
}

// Features returns active features including the runtime sending flag.
func (p *Port) Features() Features {
	fs := p.cfg.Load().Features
	if p.sending.Load() {
		fs |= FeatureSending
	}
	return fs
}

// Latency returns the latency state.
func (p *Port) Latency() *latency.State {
	return p.lat.Load()
}

// pacing computes rate of cfg for the current number of tx queues.
func (p *Port) pacing(cfg *PortConfig) rate.State {
	speed := p.info.SpeedMbps
	if speed == 0 {
		speed = p.engine.config.DefaultLinkSpeedMbps
	}
	return rate.Calculate(rate.Params{
		LinkSpeedMbps: uint64(speed),
		Percent:       cfg.Percent,
		PktSize:       cfg.avgPktSize(),
		Queues:        len(p.txq),
		Burst:         int(p.engine.config.BurstSize),
		Hz:            p.engine.clock.Hz(),
	})
}

// update publishes a changed clone of the current snapshot. Nothing is
// published when fn fails.
func (p *Port) update(fn func(*PortConfig) error) error {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	return p.updateLocked(fn)
}

func (p *Port) updateLocked(fn func(*PortConfig) error) error {
	next := p.cfg.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	p.publishLocked(next)
	return nil
}

func (p *Port) publishLocked(next *PortConfig) {
	next.Gen++
	next.Rate = p.pacing(next)
	p.cfg.Store(next)
	for _, q := range p.txq {
		q.dirty.Store(true)
	}
	common.LogDebug(common.Verbose, "Port", p.id, "config generation", next.Gen, next.Rate)
}

// UpdateSlot changes packet template idx.
func (p *Port) UpdateSlot(idx int, fn func(*template.PacketSlot)) error {
	return p.update(func(cfg *PortConfig) error {
		if err := cfg.Store.Update(idx, fn); err != nil {
			return err
		}
		if idx == template.SlotLatency {
			s := &cfg.Store.Slots[idx]
			if construct.ProbeOffset(s, 0)+packet.StampLen > int(s.PktSize) {
				return common.WrapWithNFError(nil, "latency packet is too short for the probe stamp", common.BadPktSize)
			}
		}
		return nil
	})
}

// SetRange changes the range configuration.
func (p *Port) SetRange(fn func(*ranges.Spec)) error {
	return p.update(func(cfg *PortConfig) error {
		fn(&cfg.Range)
		return cfg.Range.Validate()
	})
}

// SetBitfield compiles mask into bitfield slot idx. An empty mask disables
// the slot.
func (p *Port) SetBitfield(idx, offset int, mask string) error {
	return p.update(func(cfg *PortConfig) error {
		return cfg.Bits.Configure(idx, offset, mask)
	})
}

// SetRate sets target share of line rate in percent.
func (p *Port) SetRate(percent float64) error {
	return p.update(func(cfg *PortConfig) error {
		if err := rate.Validate(percent); err != nil {
			return err
		}
		cfg.Percent = percent
		return nil
	})
}

// SetLatency replaces latency configuration. Statistics and probe
// numbering restart and a running sample series is written out.
func (p *Port) SetLatency(lc latency.Config) error {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	if err := lc.Validate(); err != nil {
		return err
	}
	err := p.updateLocked(func(cfg *PortConfig) error {
		cfg.Latency = lc
		return nil
	})
	if err != nil {
		return err
	}
	return p.resetLatencyLocked()
}

func (p *Port) resetLatencyLocked() error {
	cfg := p.cfg.Load()
	old := p.lat.Swap(latency.NewState(cfg.Latency, p.engine.clock.Hz(), p.engine.seed(p.id)))
	return old.StopSampling()
}

// SetFeature turns f on or off. FeatureSending is the same as
// StartSending and StopSending.
func (p *Port) SetFeature(f Features, on bool) error {
	if f == FeatureSending {
		if on {
			p.StartSending()
		} else {
			p.StopSending()
		}
		return nil
	}
	p.ctl.Lock()
	defer p.ctl.Unlock()
	before := p.cfg.Load().Features
	if f.Has(FeatureCapture) && on && !before.Capture() {
		if err := p.openCaptureLocked(); err != nil {
			return err
		}
	}
	err := p.updateLocked(func(cfg *PortConfig) error {
		cfg.Features = cfg.Features.With(f, on)
		return nil
	})
	if err != nil {
		return err
	}
	after := p.cfg.Load().Features
	if before.Capture() && !after.Capture() {
		err = multierr.Append(err, p.closeCapture())
	}
	if before.Latency() != after.Latency() {
		err = multierr.Append(err, p.resetLatencyLocked())
	}
	return err
}

// SetSeqCount selects the number of sequence packets.
func (p *Port) SetSeqCount(n int) error {
	return p.update(func(cfg *PortConfig) error {
		return cfg.Store.SetSeqCount(n)
	})
}

// SetTxCount limits the number of packets sent after StartSending. Zero
// means send forever.
func (p *Port) SetTxCount(n uint64) {
	p.update(func(cfg *PortConfig) error {
		cfg.TxCount = n
		cfg.Features = cfg.Features.With(FeatureSendForever, n == 0)
		return nil
	})
	p.budget.Store(int64(n))
}

// SetPcapAverage sets average frame size of an external capture.
func (p *Port) SetPcapAverage(size int) error {
	return p.update(func(cfg *PortConfig) error {
		if size < types.MinPktSize || size > types.MaxPktSize {
			return common.WrapWithNFError(nil, "pcap average size "+strconv.Itoa(size)+" out of range", common.BadPktSize)
		}
		cfg.Store.PcapAvgSize = size
		return nil
	})
}

// SetCaptureFile sets the pcap file of the capture feature. It takes
// effect the next time capture is turned on.
func (p *Port) SetCaptureFile(path string) error {
	return p.update(func(cfg *PortConfig) error {
		cfg.CaptureFile = path
		return nil
	})
}

// StartSending starts transmission and restores the transmit budget.
func (p *Port) StartSending() {
	p.ctl.Lock()
	defer p.ctl.Unlock()
	p.budget.Store(int64(p.cfg.Load().TxCount))
	p.sending.Store(true)
	p.log.Info("start sending", zap.Stringer("features", p.cfg.Load().Features))
}

// StopSending stops transmission after the burst in flight.
func (p *Port) StopSending() {
	if p.sending.Swap(false) {
		p.log.Info("stop sending")
	}
}

// Sending reports whether the port transmits.
func (p *Port) Sending() bool {
	return p.sending.Load()
}

// SendARP queues one ARP request or gratuitous ARP.
func (p *Port) SendARP(kind ARPKind) {
	if kind == ARPGratuitous {
		p.pending.Or(specialGARP)
	} else {
		p.pending.Or(specialARP)
	}
}

// SendPing4 queues one ICMP echo request.
func (p *Port) SendPing4() {
	p.pending.Or(specialPing4)
}

// prebake fills every mbuf of the active pool of q. The range walk and the
// sequence rotation continue across passes and queues. A range field
// restarts only when its own tuple changed.
func (p *Port) prebake(q *txQueue, cfg *PortConfig) {
	p.prebakeMu.Lock()
	defer p.prebakeMu.Unlock()
	p.ranges.Sync(&cfg.Range)
	p.seq.SetCount(cfg.Store.SeqCnt)
	mode := cfg.Features.poolMode()
	enc := cfg.Features.Encap()
	pool := q.pools[mode]
	err := pool.Each(func(m *low.Mbuf) error {
		var slot template.PacketSlot
		switch mode {
		case poolRange:
			slot = cfg.Store.Slots[template.SlotRange]
			p.ranges.Apply(&cfg.Range, &slot)
		case poolSequence:
			slot = cfg.Store.Slots[template.SeqSlot(p.seq.Next())]
		default:
			slot = cfg.Store.Slots[template.SlotSingle]
		}
		n, err := p.builder.Build(m.Room(), &slot, enc)
		if err != nil {
			return err
		}
		m.SetLen(n)
		return nil
	})
	if err != nil {
		p.log.Error("pre-bake failed", zap.Int("queue", int(q.id)), zap.Error(err))
		return
	}
	common.LogDebug(common.Verbose, "Port", p.id, "queue", q.id, "pre-baked", pool.Size(), mode, "packets", enc)
}
