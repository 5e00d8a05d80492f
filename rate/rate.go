// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rate converts a target share of line rate into the number of
// timer ticks between transmit bursts.
package rate

import (
	"fmt"

	"github.com/intel-go/nff-pktgen/common"
)

// Params are the inputs of Calculate.
type Params struct {
	LinkSpeedMbps uint64  // 0 when link is down or unknown
	Percent       float64 // target share of line rate, 0..100
	PktSize       int     // average frame size without FCS
	Queues        int     // active transmit queues of the port
	Burst         int     // packets per burst
	Hz            uint64  // timer ticks per second
}

// State is the pacing of one port.
type State struct {
	Percent  float64
	TxCycles uint64 // ticks between bursts, 0 means back to back
	TxPPS    uint64 // packets per second per queue
	Burst    int
	Queues   int
}

// WireBits is the number of bits a frame of pktSize bytes occupies on the
// link, framing overhead included.
func WireBits(pktSize int) uint64 {
	return uint64(pktSize+common.WireOverhead) * 8
}

// Validate checks the target percent.
func Validate(percent float64) error {
	if percent < 0 || percent > 100 {
		return common.WrapWithNFError(nil, fmt.Sprintf("rate %.2f%% out of [0, 100]", percent), common.BadArgument)
	}
	return nil
}

// Calculate computes pacing:
//
//	pps = max(1, (link / wire_bits) * percent / 100 / queues)
//	tx_cycles = (hz / pps) * burst * queues
//
// Zero link speed or zero percent disables pacing.
func Calculate(p Params) State {
	st := State{Percent: p.Percent, Burst: p.Burst, Queues: p.Queues}
	if st.Queues < 1 {
		st.Queues = 1
	}
	if st.Burst < 1 {
		st.Burst = 1
	}
	if p.LinkSpeedMbps == 0 || p.Percent <= 0 {
		return st
	}
	linkPPS := float64(p.LinkSpeedMbps*1000000) / float64(WireBits(p.PktSize))
	pps := uint64(linkPPS * p.Percent / 100 / float64(st.Queues))
	if pps < 1 {
		pps = 1
	}
	st.TxPPS = pps
	cyclesPerBurst := (p.Hz / pps) * uint64(st.Burst)
	st.TxCycles = cyclesPerBurst * uint64(st.Queues)
	return st
}

func (s State) String() string {
	return fmt.Sprintf("rate %.2f%%: %d pps, %d cycles per burst of %d on %d queues", s.Percent, s.TxPPS, s.TxCycles, s.Burst, s.Queues)
}
