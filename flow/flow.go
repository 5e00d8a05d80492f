// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flow is the packet generator engine.
//
// An Engine owns the ports of one driver. Every port keeps packet
// templates, a range walk, random bitfields, pacing and latency state.
// Configuration setters of a port publish an immutable snapshot which is
// picked up by the lcores serving the port queues.
//
// Engine.Start receives lcore assignments. Every lcore polls its rx queues
// and transmits pre-built packet pools on its tx queues:
//
//	eng, err := flow.NewEngine(flow.Config{}, driver, low.NewMonotonicClock())
//	port, _ := eng.Port(0)
//	port.SetRate(50)
//	eng.Start(assignments)
//	port.StartSending()
package flow

import (
	"strconv"

	"go.uber.org/multierr"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/construct"
	"github.com/intel-go/nff-pktgen/low"
	"github.com/intel-go/nff-pktgen/scheduler"
)

// Engine defaults.
const (
	DefaultBurstSize         = 64
	DefaultTxPoolSize        = 2048
	DefaultSpecialPoolSize   = 64
	DefaultLinkSpeedMbps     = 10000
	DefaultCaptureQueueLimit = 1 << 16
	MaxBurstSize             = 256
)

// Config is a struct with all parameters which user can pass to the
// engine. All of them are optional.
type Config struct {
	// Number of packets in one transmit and receive burst. Default value
	// is 64.
	BurstSize uint
	// Number of mbufs in every transmit pool. Each tx queue has a single,
	// a range and a sequence pool. Default value is 2048.
	TxPoolSize uint
	// Number of mbufs a port keeps for latency probes and special
	// packets. Default value is 64.
	SpecialPoolSize uint
	// Link speed used for pacing when a port reports none. Default
	// value is 10000.
	DefaultLinkSpeedMbps uint32
	// Maximum number of received packets waiting for the capture
	// writer. Default value is 65536.
	CaptureQueueLimit int64
	// Pin lcore threads to their CPUs. Default value is false.
	PinThreads bool
	// Seed of random bitfields and the Poisson sampler. Default value is
	// 0.
	Seed int64
}

func (cfg *Config) setDefaults() error {
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.BurstSize > MaxBurstSize {
		return common.WrapWithNFError(nil, "burst size "+strconv.Itoa(int(cfg.BurstSize))+" exceeds "+
			strconv.Itoa(MaxBurstSize), common.BadArgument)
	}
	if cfg.TxPoolSize == 0 {
		cfg.TxPoolSize = DefaultTxPoolSize
	}
	if cfg.TxPoolSize < cfg.BurstSize {
		return common.WrapWithNFError(nil, "transmit pool is smaller than a burst", common.BadArgument)
	}
	if cfg.SpecialPoolSize == 0 {
		cfg.SpecialPoolSize = DefaultSpecialPoolSize
	}
	if cfg.DefaultLinkSpeedMbps == 0 {
		cfg.DefaultLinkSpeedMbps = DefaultLinkSpeedMbps
	}
	if cfg.CaptureQueueLimit == 0 {
		cfg.CaptureQueueLimit = DefaultCaptureQueueLimit
	}
	return nil
}

// Engine is the generator context created by the entry point.
type Engine struct {
	config  Config
	drv     low.Driver
	clock   low.Clock
	ports   []*Port
	sched   *scheduler.Scheduler
	started bool
}

// NewEngine creates ports with default templates for every port of drv.
func NewEngine(cfg Config, drv low.Driver, clock low.Clock) (*Engine, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	e := &Engine{config: cfg, drv: drv, clock: clock}
	common.LogTitle(common.Initialization, "------------***-------- Initializing ports -------***------------")
	for i, dev := range drv.Ports() {
		p, err := newPort(e, i, dev)
		if err != nil {
			return nil, common.WrapWithNFError(err, "port "+strconv.Itoa(i), common.FailToInitPort)
		}
		common.LogDebug(common.Initialization, "Port", i, p.info)
		e.ports = append(e.ports, p)
	}
	if len(e.ports) == 0 {
		return nil, common.WrapWithNFError(nil, "driver has no ports", common.FailToInitPort)
	}
	return e, nil
}

func (e *Engine) seed(port int) int64 {
	return e.config.Seed + int64(port)*7919
}

// Config returns engine configuration with defaults applied.
func (e *Engine) Config() Config {
	return e.config
}

// Clock returns the timer of the engine.
func (e *Engine) Clock() low.Clock {
	return e.clock
}

// Ports returns every port.
func (e *Engine) Ports() []*Port {
	return e.ports
}

// Port returns port id.
func (e *Engine) Port(id int) (*Port, error) {
	if id < 0 || id >= len(e.ports) {
		return nil, common.WrapWithNFError(nil, "port "+strconv.Itoa(id)+" doesn't exist", common.WrongPort)
	}
	return e.ports[id], nil
}

// Started reports whether lcores are running.
func (e *Engine) Started() bool {
	return e.started
}

type lcorePlan struct {
	a  Assignment
	rx []*rxQueue
	tx []*txQueue
}

// plan checks assignments and creates the queues they serve. Every
// (port, queue) pair may be owned by one lcore only.
func (e *Engine) plan(assign []Assignment) ([]lcorePlan, error) {
	if len(assign) == 0 {
		return nil, common.WrapWithNFError(nil, "no lcore assignments", common.InvalidLcoreAssignment)
	}
	type owner struct {
		ref QueueRef
		tx  bool
	}
	owners := make(map[owner]int)
	lcores := make(map[int]bool)
	check := func(a Assignment, ref QueueRef, tx bool) error {
		if ref.Port < 0 || ref.Port >= len(e.ports) {
			return common.WrapWithNFError(nil, "lcore "+strconv.Itoa(a.Lcore)+" uses missing port "+strconv.Itoa(ref.Port),
				common.InvalidLcoreAssignment)
		}
		rxn, txn := e.ports[ref.Port].dev.Queues()
		limit, dir := rxn, "rx"
		if tx {
			limit, dir = txn, "tx"
		}
		if ref.Queue < 0 || ref.Queue >= limit {
			return common.WrapWithNFError(nil, "port "+strconv.Itoa(ref.Port)+" has no "+dir+" queue "+strconv.Itoa(ref.Queue),
				common.InvalidLcoreAssignment)
		}
		key := owner{ref, tx}
		if prev, ok := owners[key]; ok {
			return common.WrapWithNFError(nil, dir+" queue "+ref.String()+" is owned by lcores "+strconv.Itoa(prev)+
				" and "+strconv.Itoa(a.Lcore), common.InvalidLcoreAssignment)
		}
		owners[key] = a.Lcore
		return nil
	}

	plans := make([]lcorePlan, 0, len(assign))
	txPerPort := make([][]*txQueue, len(e.ports))
	rxPerPort := make([][]*rxQueue, len(e.ports))
	for _, a := range assign {
		if lcores[a.Lcore] {
			return nil, common.WrapWithNFError(nil, "lcore "+strconv.Itoa(a.Lcore)+" is assigned twice", common.InvalidLcoreAssignment)
		}
		lcores[a.Lcore] = true
		switch {
		case a.Mode != ModeRX && a.Mode != ModeTX && a.Mode != ModeRXTX:
			return nil, common.WrapWithNFError(nil, "lcore "+strconv.Itoa(a.Lcore)+" has no mode", common.InvalidLcoreAssignment)
		case a.Mode == ModeRX && len(a.TX) != 0, a.Mode == ModeTX && len(a.RX) != 0:
			return nil, common.WrapWithNFError(nil, "lcore "+strconv.Itoa(a.Lcore)+" in "+a.Mode.String()+
				" mode has queues of the other direction", common.InvalidLcoreAssignment)
		}
		lp := lcorePlan{a: a}
		for _, ref := range a.RX {
			if err := check(a, ref, false); err != nil {
				return nil, err
			}
			q := &rxQueue{port: e.ports[ref.Port], id: uint16(ref.Queue)}
			lp.rx = append(lp.rx, q)
			rxPerPort[ref.Port] = append(rxPerPort[ref.Port], q)
		}
		for _, ref := range a.TX {
			if err := check(a, ref, true); err != nil {
				return nil, err
			}
			p := e.ports[ref.Port]
			q, err := newTxQueue(p, ref.Queue, e.config.TxPoolSize, e.config.BurstSize, e.seed(ref.Port)+int64(ref.Queue)+1)
			if err != nil {
				return nil, err
			}
			lp.tx = append(lp.tx, q)
			txPerPort[ref.Port] = append(txPerPort[ref.Port], q)
		}
		plans = append(plans, lp)
	}

	now := e.clock.Ticks()
	for i, p := range e.ports {
		txq := txPerPort[i]
		if len(txq) != 0 {
			txq[0].lead = true
			txq[0].builder = construct.NewBuilder(p.builder.Ident() + 0x80)
		}
		for _, q := range txq {
			q.next = now
		}
		p.ctl.Lock()
		p.txq = txq
		p.rxq = rxPerPort[i]
		p.publishLocked(p.cfg.Load().clone())
		p.ctl.Unlock()
	}
	return plans, nil
}

// Start checks lcore assignments and launches the lcores. An error means
// nothing was started.
func (e *Engine) Start(assign []Assignment) error {
	if e.started {
		return common.WrapWithNFError(nil, "engine is already started", common.EngineStarted)
	}
	common.LogTitle(common.Initialization, "------------***------ Initializing scheduler -----***------------")
	plans, err := e.plan(assign)
	if err != nil {
		return err
	}
	sched := scheduler.NewScheduler(e.config.PinThreads)
	for _, lp := range plans {
		if _, err := sched.NewLcoreFunction(lp.a.name(), lp.a.Lcore, e.lcoreBody(lp.a.Mode, lp.rx, lp.tx)); err != nil {
			return err
		}
		common.LogDebug(common.Initialization, "Lcore", lp.a.Lcore, lp.a.Mode, "rx", lp.a.RX, "tx", lp.a.TX)
	}
	common.LogTitle(common.Initialization, "------------***------ Starting lcore functions ---***------------")
	sched.SystemStart()
	e.sched = sched
	e.started = true
	common.LogTitle(common.Initialization, "------------***------- nff-pktgen started -------***------------")
	return nil
}

// Scheduler returns the running scheduler, nil before Start.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.sched
}

// Stop stops every lcore, ends latency sampling and flushes captures.
// Counters stay readable until the next Start.
func (e *Engine) Stop() error {
	if !e.started {
		return common.WrapWithNFError(nil, "engine is not started", common.EngineNotStarted)
	}
	e.sched.Stop()
	e.started = false
	var err error
	for _, p := range e.ports {
		p.StopSending()
		err = multierr.Append(err, p.lat.Load().StopSampling())
		err = multierr.Append(err, p.closeCapture())
	}
	common.LogTitle(common.Initialization, "------------***------- nff-pktgen stopped -------***------------")
	return err
}

// Close stops the engine if it runs and closes the driver.
func (e *Engine) Close() error {
	var err error
	if e.started {
		err = e.Stop()
	} else {
		for _, p := range e.ports {
			err = multierr.Append(err, p.closeCapture())
		}
	}
	return multierr.Append(err, e.drv.Close())
}
