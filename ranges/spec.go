// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import (
	"strings"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

// FieldID names an integer field of the range packet.
type FieldID int

// Integer range fields.
const (
	SrcIP FieldID = iota
	DstIP
	SrcPort
	DstPort
	VlanID
	CoS
	TOS
	PktSize
	SrcMAC
	DstMAC
	TTL
	TCPSeq
	TCPAck
	TEID
	VxlanGID
	VxlanVID
	MPLSLabel
	QinQOuter
	QinQInner
	NumFields
)

// Field6ID names an IPv6 range field.
type Field6ID int

// IPv6 range fields.
const (
	SrcIP6 Field6ID = iota
	DstIP6
	NumFields6
)

var fieldInfo = [NumFields]struct {
	name  string
	limit uint64
}{
	SrcIP:     {"src_ip", 1<<32 - 1},
	DstIP:     {"dst_ip", 1<<32 - 1},
	SrcPort:   {"src_port", 1<<16 - 1},
	DstPort:   {"dst_port", 1<<16 - 1},
	VlanID:    {"vlan", template.MaxVlanID},
	CoS:       {"cos", template.MaxCoS},
	TOS:       {"tos", 1<<8 - 1},
	PktSize:   {"pkt_size", types.MaxPktSize},
	SrcMAC:    {"src_mac", 1<<48 - 1},
	DstMAC:    {"dst_mac", 1<<48 - 1},
	TTL:       {"ttl", 1<<8 - 1},
	TCPSeq:    {"tcp_seq", 1<<32 - 1},
	TCPAck:    {"tcp_ack", 1<<32 - 1},
	TEID:      {"gtpu_teid", 1<<32 - 1},
	VxlanGID:  {"vxlan_gid", 1<<16 - 1},
	VxlanVID:  {"vxlan_vid", template.MaxVxlanVID},
	MPLSLabel: {"mpls", template.MaxMPLSLabel},
	QinQOuter: {"qinq_outer", template.MaxVlanID},
	QinQInner: {"qinq_inner", template.MaxVlanID},
}

var field6Names = [NumFields6]string{SrcIP6: "src_ip6", DstIP6: "dst_ip6"}

func (id FieldID) String() string {
	if id < 0 || id >= NumFields {
		return "unknown"
	}
	return fieldInfo[id].name
}

func (id Field6ID) String() string {
	if id < 0 || id >= NumFields6 {
		return "unknown"
	}
	return field6Names[id]
}

// LookupField finds a field by its configuration name, for example
// "dst_port" or "src_ip6".
func LookupField(name string) (id FieldID, id6 Field6ID, isV6 bool, err error) {
	name = strings.ToLower(name)
	for i := FieldID(0); i < NumFields; i++ {
		if fieldInfo[i].name == name {
			return i, 0, false, nil
		}
	}
	for i := Field6ID(0); i < NumFields6; i++ {
		if field6Names[i] == name {
			return 0, i, true, nil
		}
	}
	return 0, 0, false, common.WrapWithNFError(nil, "unknown range field "+name, common.BadArgument)
}

// Spec is the range configuration of one port.
type Spec struct {
	Fields  [NumFields]Field
	Fields6 [NumFields6]Field6
}

// Validate checks every field.
func (s *Spec) Validate() error {
	for id := FieldID(0); id < NumFields; id++ {
		if err := s.Fields[id].Validate(fieldInfo[id].name, fieldInfo[id].limit); err != nil {
			return err
		}
	}
	if f := s.Fields[PktSize]; f.Inc != 0 && f.Min < types.MinPktSize {
		return common.WrapWithNFError(nil, "range pkt_size: min below minimum packet size", common.BadRange)
	}
	for id := Field6ID(0); id < NumFields6; id++ {
		if err := s.Fields6[id].Validate(field6Names[id]); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces one integer field after validating it.
func (s *Spec) Set(id FieldID, f Field) error {
	if id < 0 || id >= NumFields {
		return common.WrapWithNFError(nil, "unknown range field", common.BadArgument)
	}
	if err := f.Validate(fieldInfo[id].name, fieldInfo[id].limit); err != nil {
		return err
	}
	s.Fields[id] = f
	return nil
}

// Set6 replaces one IPv6 field after validating it.
func (s *Spec) Set6(id Field6ID, f Field6) error {
	if id < 0 || id >= NumFields6 {
		return common.WrapWithNFError(nil, "unknown range field", common.BadArgument)
	}
	if err := f.Validate(field6Names[id]); err != nil {
		return err
	}
	s.Fields6[id] = f
	return nil
}

// AvgPktSize is the mean size of range packets used for rate calculation.
func (s *Spec) AvgPktSize() int {
	f := s.Fields[PktSize]
	if f.Inc == 0 {
		return int(f.Start)
	}
	return int(f.Min+f.Max) / 2
}

// DefaultSpec returns the range setup of a freshly initialized port, built
// around base.
func DefaultSpec(pid int, base *template.PacketSlot) Spec {
	var s Spec
	hold := func(v uint64) Field { return Field{Start: v, Min: v, Max: v} }

	dst := uint64(types.BytesToIPv4(192, 168, byte(pid+1), 1))
	src := uint64(types.BytesToIPv4(192, 168, byte(pid), 1))
	s.Fields[DstIP] = Field{Start: dst, Min: dst, Max: dst + 253, Inc: 1}
	s.Fields[SrcIP] = Field{Start: src, Min: src, Max: src + 253, Inc: 0}
	s.Fields[DstPort] = Field{Start: 0, Min: 0, Max: 1<<16 - 1, Inc: 1}
	s.Fields[SrcPort] = Field{Start: 0, Min: 0, Max: 1<<16 - 1, Inc: 0}
	s.Fields[VlanID] = Field{Start: 1, Min: 1, Max: template.MaxVlanID, Inc: 0}
	s.Fields[CoS] = Field{Start: 0, Min: 0, Max: template.MaxCoS, Inc: 0}
	s.Fields[TOS] = Field{Start: 0, Min: 0, Max: 255, Inc: 0}
	s.Fields[PktSize] = Field{Start: types.MinPktSize, Min: types.MinPktSize, Max: types.MaxPktSize, Inc: 0}
	s.Fields[SrcMAC] = hold(base.SrcMAC.Uint64())
	s.Fields[DstMAC] = hold(base.DstMAC.Uint64())
	s.Fields[TTL] = hold(uint64(base.TTL))
	s.Fields[TCPSeq] = hold(uint64(base.TCPSeq))
	s.Fields[TCPAck] = hold(uint64(base.TCPAck))
	s.Fields[TEID] = Field{Start: 0, Min: 0, Max: 10, Inc: 0}
	s.Fields[VxlanGID] = Field{Start: 0, Min: 0, Max: 1<<16 - 1, Inc: 0}
	s.Fields[VxlanVID] = Field{Start: 0, Min: 0, Max: template.MaxVxlanVID, Inc: 0}
	s.Fields[MPLSLabel] = hold(uint64(base.MPLSLabel))
	s.Fields[QinQOuter] = hold(uint64(base.QinQOuter))
	s.Fields[QinQInner] = hold(uint64(base.QinQInner))

	hold6 := func(a types.IPv6Address) Field6 { return Field6{Start: a, Min: a, Max: a} }
	s.Fields6[SrcIP6] = hold6(base.SrcIP6)
	dst6 := base.DstIP6
	s.Fields6[DstIP6] = Field6{Start: dst6, Min: dst6, Max: dst6.Add(types.Uint64ToIPv6(253)), Inc: types.Uint64ToIPv6(1)}
	return s
}
