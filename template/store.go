// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"strconv"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// Default protocol values of a freshly initialized port.
const (
	DefaultSrcPort   = 1234
	DefaultDstPort   = 5678
	DefaultTCPSeq    = 0x12345678
	DefaultTCPAck    = 0x12345690
	DefaultTCPWindow = 8192
	DefaultTTL       = 4
	DefaultVlanID    = 1
	DefaultMPLSLabel = 16
	DefaultVxlanFlag = 0x08
)

// Store is the template state of one port. It is a plain value so that
// copying it produces an independent snapshot.
type Store struct {
	Slots  [NumSlots]PacketSlot
	SeqCnt int
	// PcapAvgSize is the average frame size of an external capture used
	// for rate calculation when PCAP replay is selected.
	PcapAvgSize int
}

// DefaultSlot returns the base template of port pid.
func DefaultSlot(pid int, mac types.MACAddress) PacketSlot {
	return PacketSlot{
		EtherType:  types.IPV4Number,
		Proto:      types.TCPNumber,
		SrcMAC:     mac,
		SrcIP:      types.IPv4Prefix{Addr: types.BytesToIPv4(192, 168, byte(pid), 1), Bits: 24},
		DstIP:      types.BytesToIPv4(192, 168, byte(pid+1), 1),
		SrcIP6:     types.IPv6Address{0x20, 0x01, 0x0d, 0xb8, 0, byte(pid), 14: 0, 15: 1},
		DstIP6:     types.IPv6Address{0x20, 0x01, 0x0d, 0xb8, 0, byte(pid + 1), 14: 0, 15: 1},
		SrcPort:    DefaultSrcPort,
		DstPort:    DefaultDstPort,
		VlanID:     DefaultVlanID,
		TTL:        DefaultTTL,
		PktSize:    types.MinPktSize,
		TCPFlags:   types.TCPFlagAck,
		TCPSeq:     DefaultTCPSeq,
		TCPAck:     DefaultTCPAck,
		TCPWindow:  DefaultTCPWindow,
		VxlanFlags: DefaultVxlanFlag,
		MPLSLabel:  DefaultMPLSLabel,
		Fill:       FillABC,
	}
}

// NewStore fills every slot with the port defaults. The latency probe is
// UDP since the stamp is placed after the L4 header.
func NewStore(pid int, mac types.MACAddress) Store {
	var st Store
	for i := range st.Slots {
		st.Slots[i] = DefaultSlot(pid, mac)
	}
	st.Slots[SlotLatency].Proto = types.UDPNumber
	st.Slots[SlotLatency].PktSize = types.MinPktSize + 24
	st.SeqCnt = 0
	return st
}

// Update applies fn to a copy of slot idx and stores the copy only if it
// validates.
func (st *Store) Update(idx int, fn func(*PacketSlot)) error {
	if idx < 0 || idx >= NumSlots {
		return common.WrapWithNFError(nil, "slot index "+strconv.Itoa(idx)+" out of range", common.BadSlot)
	}
	s := st.Slots[idx]
	fn(&s)
	if err := s.Validate(); err != nil {
		return err
	}
	st.Slots[idx] = s
	return nil
}

// SetSeqCount selects how many sequence slots take part in round robin.
func (st *Store) SetSeqCount(n int) error {
	if n < 0 || n > NumSeqPkts {
		return common.WrapWithNFError(nil, "sequence count "+strconv.Itoa(n)+" out of [0, "+strconv.Itoa(NumSeqPkts)+"]", common.BadArgument)
	}
	st.SeqCnt = n
	return nil
}

// AvgSeqSize is the mean packet size of the active sequence slots.
func (st *Store) AvgSeqSize() int {
	if st.SeqCnt == 0 {
		return int(st.Slots[SlotSingle].PktSize)
	}
	sum := 0
	for i := 0; i < st.SeqCnt; i++ {
		sum += int(st.Slots[SeqSlot(i)].PktSize)
	}
	return sum / st.SeqCnt
}
