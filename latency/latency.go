// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package latency measures round trip time of stamped probe packets.
// The transmit side decides when a probe is due and numbers probes. The
// receive side recognizes returned probes, accounts RTT and jitter and
// optionally samples a bounded RTT series.
package latency

import (
	"fmt"
	"sync"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/packet"
)

// Defaults of latency configuration.
const (
	DefaultProbeIntervalUs   = 1000
	DefaultJitterThresholdUs = 50
	DefaultSampleRate        = 1000
	DefaultNumSamples        = 10000
	MaxNumSamples            = 1 << 20
)

// Config is the latency configuration of one port.
type Config struct {
	ProbeIntervalUs   uint64
	Entropy           uint16
	JitterThresholdUs uint64
	Sampling          bool
	Sampler           SamplerType
	SampleRate        uint64
	NumSamples        int
	OutFile           string
}

// DefaultConfig returns the configuration of a freshly initialized port.
func DefaultConfig() Config {
	return Config{
		ProbeIntervalUs:   DefaultProbeIntervalUs,
		JitterThresholdUs: DefaultJitterThresholdUs,
		Sampler:           SamplerSimple,
		SampleRate:        DefaultSampleRate,
		NumSamples:        DefaultNumSamples,
	}
}

// Validate checks configuration ranges.
func (c *Config) Validate() error {
	if c.ProbeIntervalUs == 0 {
		return common.WrapWithNFError(nil, "latency probe interval must be positive", common.BadLatencyConfig)
	}
	if c.Sampling {
		if c.SampleRate == 0 {
			return common.WrapWithNFError(nil, "latency sample rate must be positive", common.BadLatencyConfig)
		}
		if c.NumSamples <= 0 || c.NumSamples > MaxNumSamples {
			return common.WrapWithNFError(nil, fmt.Sprintf("latency sample count %d out of [1, %d]", c.NumSamples, MaxNumSamples), common.BadLatencyConfig)
		}
	}
	if c.Sampler != SamplerSimple && c.Sampler != SamplerPoisson {
		return common.WrapWithNFError(nil, "unknown sampler type", common.BadLatencyConfig)
	}
	return nil
}

// Stats is a read only snapshot of latency accounting.
type Stats struct {
	Count         uint64
	Skipped       uint64
	JitterCount   uint64
	ExpectedIndex uint64
	SentProbes    uint64
	MinTicks      uint64
	MaxTicks      uint64
	AvgTicks      uint64
	LastTicks     uint64
	MinNs         uint64
	MaxNs         uint64
	AvgNs         uint64
	Samples       int
}

// State is the latency state of one port.
type State struct {
	cfg         Config
	hz          uint64
	probeTicks  uint64
	jitterTicks uint64

	// transmit side, owned by the lcore that injects probes
	nextProbe uint64
	index     uint64

	mu       sync.Mutex
	expected uint64
	count    uint64
	sum      uint64
	min      uint64
	max      uint64
	skipped  uint64
	jitters  uint64
	prev     uint64
	havePrev bool
	ring     Ring
	sampler  *Sampler
	sent     uint64
}

// NewState creates latency state for a timer of hz ticks per second.
func NewState(cfg Config, hz uint64, seed int64) *State {
	st := &State{hz: hz}
	st.configure(cfg, seed)
	return st
}

func (st *State) configure(cfg Config, seed int64) {
	st.cfg = cfg
	st.probeTicks = cfg.ProbeIntervalUs * st.hz / 1000000
	st.jitterTicks = cfg.JitterThresholdUs * st.hz / 1000000
	st.sampler = nil
	if cfg.Sampling {
		st.sampler = NewSampler(cfg.Sampler, cfg.SampleRate, cfg.NumSamples, st.hz, seed)
	}
}

// Config returns active configuration.
func (st *State) Config() Config {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cfg
}

// ProbeDue reports whether a probe should be injected at now.
func (st *State) ProbeDue(now uint64) bool {
	return now >= st.nextProbe
}

// NextProbe takes the index of the probe sent at now and schedules the
// next one.
func (st *State) NextProbe(now uint64) uint64 {
	idx := st.index
	st.index++
	st.nextProbe = now + st.probeTicks
	st.mu.Lock()
	st.sent++
	st.mu.Unlock()
	return idx
}

// SourcePort perturbs base by the probe index when entropy is configured.
func (st *State) SourcePort(base uint16, idx uint64) uint16 {
	if st.cfg.Entropy == 0 {
		return base
	}
	return base + uint16(idx%uint64(st.cfg.Entropy))
}

// Stamp writes the probe stamp at offset off of pkt.
func Stamp(pkt []byte, off int, now, idx uint64) bool {
	s := packet.ToStamp(pkt, off)
	if s == nil {
		return false
	}
	s.Write(now, idx)
	return true
}

// Receive inspects pkt and accounts it if it is a returned probe. It
// reports whether pkt was a probe. The stamp is expected right after the
// UDP header.
func (st *State) Receive(pkt []byte, now uint64) bool {
	p := packet.Parse(pkt)
	if p.UDP == nil {
		return false
	}
	s := packet.ToStamp(pkt, p.L4Offset+common.UDPLen)
	if s == nil || !s.IsProbe() {
		return false
	}
	rtt := now - s.Timestamp()
	idx := s.Index()
	s.Clear()
	st.account(rtt, idx, now)
	return true
}

func (st *State) account(rtt, idx, now uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if idx != st.expected {
		st.skipped++
		st.expected = idx + 1
	} else {
		st.expected++
		st.count++
		st.sum += rtt
		if st.count == 1 || rtt < st.min {
			st.min = rtt
		}
		if rtt > st.max {
			st.max = rtt
		}
		st.ring.Push(rtt)
		if st.havePrev {
			jitter := rtt - st.prev
			if st.prev > rtt {
				jitter = st.prev - rtt
			}
			if jitter > st.jitterTicks {
				st.jitters++
			}
		}
		st.prev = rtt
		st.havePrev = true
	}
	if st.sampler != nil && st.sampler.Due(now) {
		st.sampler.Record(now, st.ticksToNs(rtt))
	}
}

func (st *State) ticksToNs(ticks uint64) uint64 {
	if st.hz == 0 {
		return 0
	}
	return uint64(float64(ticks) * 1e9 / float64(st.hz))
}

// Stats returns a snapshot.
func (st *State) Stats() Stats {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := Stats{
		Count:         st.count,
		Skipped:       st.skipped,
		JitterCount:   st.jitters,
		ExpectedIndex: st.expected,
		SentProbes:    st.sent,
		MinTicks:      st.min,
		MaxTicks:      st.max,
		LastTicks:     st.prev,
	}
	if st.count > 0 {
		s.AvgTicks = st.sum / st.count
	}
	s.MinNs, s.MaxNs, s.AvgNs = st.ticksToNs(s.MinTicks), st.ticksToNs(s.MaxTicks), st.ticksToNs(s.AvgTicks)
	if st.sampler != nil {
		s.Samples = len(st.sampler.Samples())
	}
	return s
}

// Recent returns the ring content oldest first.
func (st *State) Recent() []uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.ring.Values()
}

// StopSampling ends the current sample series and writes it to the
// configured file. A new series needs a new State.
func (st *State) StopSampling() error {
	st.mu.Lock()
	sampler, path := st.sampler, st.cfg.OutFile
	st.sampler = nil
	st.mu.Unlock()
	if sampler == nil || path == "" {
		return nil
	}
	return WriteCSVFile(path, sampler.Samples())
}
