// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package template keeps per port packet templates: the single packet,
// the range packet, sequence packets and the latency probe.
package template

import (
	"strconv"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// NumSeqPkts is the number of sequence slots.
const NumSeqPkts = 16

// Slot indices. Sequence slots come first so that SeqSlot(i) == i.
const (
	SlotSingle = NumSeqPkts + iota
	SlotRange
	SlotLatency
	NumSlots
)

// SeqSlot returns slot index of sequence packet i.
func SeqSlot(i int) int {
	return i
}

// SlotName is used in logs and errors.
func SlotName(idx int) string {
	switch {
	case idx >= 0 && idx < NumSeqPkts:
		return "seq" + strconv.Itoa(idx)
	case idx == SlotSingle:
		return "single"
	case idx == SlotRange:
		return "range"
	case idx == SlotLatency:
		return "latency"
	}
	return "slot" + strconv.Itoa(idx)
}

// FillPattern selects how payload after the headers is filled.
type FillPattern uint8

// Fill patterns.
const (
	FillABC FillPattern = iota
	FillZero
	FillUser
	FillNone
)

// ABCPattern is the default payload.
const ABCPattern = "abcdefghijklmnopqrstuvwxyz012345"

// ParseFillPattern accepts abc, zero, user and none.
func ParseFillPattern(s string) (FillPattern, error) {
	switch s {
	case "abc", "":
		return FillABC, nil
	case "zero":
		return FillZero, nil
	case "user":
		return FillUser, nil
	case "none":
		return FillNone, nil
	}
	return FillABC, common.WrapWithNFError(nil, "unknown fill pattern "+strconv.Quote(s), common.BadArgument)
}

// Maximum values of the narrow protocol fields.
const (
	MaxVlanID    = 4095
	MaxCoS       = 7
	MaxMPLSLabel = 1<<20 - 1
	MaxVxlanVID  = 1<<24 - 1
)

// PacketSlot holds protocol fields of one packet template.
type PacketSlot struct {
	EtherType uint16 // types.IPV4Number or types.IPV6Number
	Proto     uint8  // types.TCPNumber, types.UDPNumber or types.ICMPNumber

	SrcMAC types.MACAddress
	DstMAC types.MACAddress

	SrcIP  types.IPv4Prefix
	DstIP  types.IPv4Address
	SrcIP6 types.IPv6Address
	DstIP6 types.IPv6Address

	SrcPort uint16
	DstPort uint16

	VlanID uint16
	CoS    uint8
	TOS    uint8
	TTL    uint8

	PktSize uint16 // without FCS

	TCPFlags  types.TCPFlags
	TCPSeq    uint32
	TCPAck    uint32
	TCPWindow uint16

	TEID       uint32
	VxlanFlags uint16
	VxlanGID   uint16
	VxlanVID   uint32
	MPLSLabel  uint32
	QinQOuter  uint16
	QinQInner  uint16
	GREKey     uint32

	Fill        FillPattern
	UserPattern string
}

// IsIPv6 reports whether the template carries IPv6.
func (s *PacketSlot) IsIPv6() bool {
	return s.EtherType == types.IPV6Number
}

// MinSize is the smallest legal PktSize for this template.
func (s *PacketSlot) MinSize() uint16 {
	if s.IsIPv6() {
		return types.MinPktSizeV6
	}
	return types.MinPktSize
}

// Validate checks that every field is in range for the wire encoding.
func (s *PacketSlot) Validate() error {
	switch s.EtherType {
	case types.IPV4Number, types.IPV6Number:
	default:
		return badField("ether type", strconv.Itoa(int(s.EtherType)))
	}
	switch s.Proto {
	case types.TCPNumber, types.UDPNumber:
	case types.ICMPNumber:
		if s.IsIPv6() {
			return common.WrapWithNFError(nil, "ICMP echo is only generated over IPv4", common.BadArgument)
		}
	default:
		return badField("protocol", strconv.Itoa(int(s.Proto)))
	}
	if s.PktSize < s.MinSize() || s.PktSize > types.MaxPktSize {
		return common.WrapWithNFError(nil, "packet size "+strconv.Itoa(int(s.PktSize))+" out of ["+
			strconv.Itoa(int(s.MinSize()))+", "+strconv.Itoa(types.MaxPktSize)+"]", common.BadPktSize)
	}
	if s.VlanID == 0 || s.VlanID > MaxVlanID {
		return badField("vlan id", strconv.Itoa(int(s.VlanID)))
	}
	if s.QinQOuter > MaxVlanID || s.QinQInner > MaxVlanID {
		return badField("qinq id", strconv.Itoa(int(s.QinQOuter))+"/"+strconv.Itoa(int(s.QinQInner)))
	}
	if s.CoS > MaxCoS {
		return badField("cos", strconv.Itoa(int(s.CoS)))
	}
	if s.MPLSLabel > MaxMPLSLabel {
		return badField("mpls label", strconv.Itoa(int(s.MPLSLabel)))
	}
	if s.VxlanVID > MaxVxlanVID {
		return badField("vxlan id", strconv.Itoa(int(s.VxlanVID)))
	}
	if s.Fill == FillUser && s.UserPattern == "" {
		return common.WrapWithNFError(nil, "user fill pattern is empty", common.BadArgument)
	}
	return nil
}

func badField(name, value string) error {
	return common.WrapWithNFError(nil, "bad "+name+" "+value, common.BadArgument)
}
