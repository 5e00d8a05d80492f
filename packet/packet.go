// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package packet provides bounds checked views over raw packet bytes.
// The following header types are supported:
//   - L2 Ethernet with up to two VLAN tags or one MPLS label
//   - L3 IPv4 and IPv6
//   - L4 TCP and UDP
//
// At the moment IPv6 is supported without extension headers.
//
// Every view is a byte slice aliasing the packet buffer, so setters write
// straight into the packet. Constructors return nil views when the buffer
// is too short, and Parse leaves the corresponding Packet field nil.
package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// EtherHdr is a view of the L2 header.
type EtherHdr []byte

// ToEther returns an ethernet view of b or nil if b is too short.
func ToEther(b []byte) EtherHdr {
	if len(b) < common.EtherLen {
		return nil
	}
	return EtherHdr(b[:common.EtherLen])
}

// DAddr is the destination MAC.
func (hdr EtherHdr) DAddr() (mac types.MACAddress) {
	copy(mac[:], hdr[0:6])
	return mac
}

// SAddr is the source MAC.
func (hdr EtherHdr) SAddr() (mac types.MACAddress) {
	copy(mac[:], hdr[6:12])
	return mac
}

// EtherType is the frame type in host order.
func (hdr EtherHdr) EtherType() uint16 {
	return binary.BigEndian.Uint16(hdr[12:14])
}

// SetDAddr writes destination MAC.
func (hdr EtherHdr) SetDAddr(mac types.MACAddress) {
	copy(hdr[0:6], mac[:])
}

// SetSAddr writes source MAC.
func (hdr EtherHdr) SetSAddr(mac types.MACAddress) {
	copy(hdr[6:12], mac[:])
}

func (hdr EtherHdr) String() string {
	return fmt.Sprintf("L2 protocol: Ethernet\nEthernet Source: %v\nEthernet Destination: %v\nEtherType: %#04x\n",
		hdr.SAddr(), hdr.DAddr(), hdr.EtherType())
}

// IPv4Hdr is a view of the IPv4 header including options.
type IPv4Hdr []byte

// ToIPv4 returns an IPv4 view of b or nil if b does not hold a full header.
func ToIPv4(b []byte) IPv4Hdr {
	if len(b) < common.IPv4MinLen || b[0]>>4 != 4 {
		return nil
	}
	hlen := int(b[0]&0x0f) * 4
	if hlen < common.IPv4MinLen || len(b) < hlen {
		return nil
	}
	return IPv4Hdr(b[:hlen])
}

// HeaderLen is IHL in bytes.
func (hdr IPv4Hdr) HeaderLen() int { return int(hdr[0]&0x0f) * 4 }

// TypeOfService is the TOS byte.
func (hdr IPv4Hdr) TypeOfService() uint8 { return hdr[1] }

// TotalLength is the length of IP packet.
func (hdr IPv4Hdr) TotalLength() uint16 { return binary.BigEndian.Uint16(hdr[2:4]) }

// PacketID is the identification field.
func (hdr IPv4Hdr) PacketID() uint16 { return binary.BigEndian.Uint16(hdr[4:6]) }

// TimeToLive is the TTL byte.
func (hdr IPv4Hdr) TimeToLive() uint8 { return hdr[8] }

// NextProtoID is the L4 protocol number.
func (hdr IPv4Hdr) NextProtoID() uint8 { return hdr[9] }

// HdrChecksum is the header checksum as stored.
func (hdr IPv4Hdr) HdrChecksum() uint16 { return binary.BigEndian.Uint16(hdr[10:12]) }

// SrcAddr is the source address.
func (hdr IPv4Hdr) SrcAddr() types.IPv4Address { return types.SliceToIPv4(hdr[12:16]) }

// DstAddr is the destination address.
func (hdr IPv4Hdr) DstAddr() types.IPv4Address { return types.SliceToIPv4(hdr[16:20]) }

func (hdr IPv4Hdr) String() string {
	return fmt.Sprintf("    L3 protocol: IPv4\n    IPv4 Source: %v\n    IPv4 Destination: %v\n",
		hdr.SrcAddr(), hdr.DstAddr())
}

// IPv6Hdr is a view of the fixed IPv6 header.
type IPv6Hdr []byte

// ToIPv6 returns an IPv6 view of b or nil.
func ToIPv6(b []byte) IPv6Hdr {
	if len(b) < common.IPv6Len || b[0]>>4 != 6 {
		return nil
	}
	return IPv6Hdr(b[:common.IPv6Len])
}

// TrafficClass is the 8 bit traffic class.
func (hdr IPv6Hdr) TrafficClass() uint8 {
	return uint8(binary.BigEndian.Uint32(hdr[0:4]) >> 20)
}

// PayloadLen is the length after the fixed header.
func (hdr IPv6Hdr) PayloadLen() uint16 { return binary.BigEndian.Uint16(hdr[4:6]) }

// Proto is the next header.
func (hdr IPv6Hdr) Proto() uint8 { return hdr[6] }

// HopLimits is the hop limit.
func (hdr IPv6Hdr) HopLimits() uint8 { return hdr[7] }

// SrcAddr is the source address.
func (hdr IPv6Hdr) SrcAddr() (a types.IPv6Address) {
	copy(a[:], hdr[8:24])
	return a
}

// DstAddr is the destination address.
func (hdr IPv6Hdr) DstAddr() (a types.IPv6Address) {
	copy(a[:], hdr[24:40])
	return a
}

func (hdr IPv6Hdr) String() string {
	return fmt.Sprintf("    L3 protocol: IPv6\n    IPv6 Source: %v\n    IPv6 Destination: %v\n",
		hdr.SrcAddr(), hdr.DstAddr())
}

// TCPHdr is a view of the TCP header.
type TCPHdr []byte

// ToTCP returns a TCP view of b or nil.
func ToTCP(b []byte) TCPHdr {
	if len(b) < common.TCPMinLen {
		return nil
	}
	off := int(b[12]>>4) * 4
	if off < common.TCPMinLen || len(b) < off {
		return nil
	}
	return TCPHdr(b[:off])
}

// SrcPort is the TCP source port.
func (hdr TCPHdr) SrcPort() uint16 { return binary.BigEndian.Uint16(hdr[0:2]) }

// DstPort is the TCP destination port.
func (hdr TCPHdr) DstPort() uint16 { return binary.BigEndian.Uint16(hdr[2:4]) }

// SentSeq is the sequence number.
func (hdr TCPHdr) SentSeq() uint32 { return binary.BigEndian.Uint32(hdr[4:8]) }

// RecvAck is the acknowledgement number.
func (hdr TCPHdr) RecvAck() uint32 { return binary.BigEndian.Uint32(hdr[8:12]) }

// TCPFlags is the flags byte.
func (hdr TCPHdr) TCPFlags() types.TCPFlags { return types.TCPFlags(hdr[13]) }

// RxWin is the receive window.
func (hdr TCPHdr) RxWin() uint16 { return binary.BigEndian.Uint16(hdr[14:16]) }

func (hdr TCPHdr) String() string {
	return fmt.Sprintf("        L4 protocol: TCP\n        L4 Source: %d\n        L4 Destination: %d\n",
		hdr.SrcPort(), hdr.DstPort())
}

// UDPHdr is a view of the UDP header.
type UDPHdr []byte

// ToUDP returns a UDP view of b or nil.
func ToUDP(b []byte) UDPHdr {
	if len(b) < common.UDPLen {
		return nil
	}
	return UDPHdr(b[:common.UDPLen])
}

// SrcPort is the UDP source port.
func (hdr UDPHdr) SrcPort() uint16 { return binary.BigEndian.Uint16(hdr[0:2]) }

// DstPort is the UDP destination port.
func (hdr UDPHdr) DstPort() uint16 { return binary.BigEndian.Uint16(hdr[2:4]) }

// DgramLen is the UDP length field.
func (hdr UDPHdr) DgramLen() uint16 { return binary.BigEndian.Uint16(hdr[4:6]) }

// DgramCksum is the checksum as stored.
func (hdr UDPHdr) DgramCksum() uint16 { return binary.BigEndian.Uint16(hdr[6:8]) }

func (hdr UDPHdr) String() string {
	return fmt.Sprintf("        L4 protocol: UDP\n        L4 Source: %d\n        L4 Destination: %d\n",
		hdr.SrcPort(), hdr.DstPort())
}

// Packet is a set of views into one raw buffer. Parse fills only the views
// that the buffer actually contains.
type Packet struct {
	Ether EtherHdr
	VLAN  [2]VLANHdr // outer tag first
	MPLS  MPLSHdr
	IPv4  IPv4Hdr
	IPv6  IPv6Hdr
	TCP   TCPHdr
	UDP   UDPHdr

	// L3Type is the ether type after all tags, 0 if L2 did not parse.
	L3Type uint16
	// L3Offset and L4Offset are byte offsets of the headers, 0 when absent.
	L3Offset int
	L4Offset int

	raw []byte
}

// Parse builds views over raw. It never fails: missing layers stay nil.
func Parse(raw []byte) Packet {
	pkt := Packet{raw: raw}
	pkt.ParseL2()
	pkt.ParseL3()
	pkt.ParseL4()
	return pkt
}

// Raw returns the whole buffer.
func (packet *Packet) Raw() []byte {
	return packet.raw
}

// ParseL2 parses ethernet header and VLAN or MPLS tags.
func (packet *Packet) ParseL2() int {
	packet.Ether = ToEther(packet.raw)
	if packet.Ether == nil {
		return 0
	}
	off := common.EtherLen
	etype := packet.Ether.EtherType()
	for i := 0; i < len(packet.VLAN) && etype == types.VLANNumber; i++ {
		tag := ToVLAN(packet.raw[off:])
		if tag == nil {
			return 0
		}
		packet.VLAN[i] = tag
		etype = tag.EtherType()
		off += common.VLANLen
	}
	if etype == types.MPLSNumber {
		packet.MPLS = ToMPLS(packet.raw[off:])
		if packet.MPLS == nil {
			return 0
		}
		off += common.MPLSLen
		// Label to protocol mapping is local, guess from the IP version.
		etype = types.IPV4Number
		if len(packet.raw) > off && packet.raw[off]>>4 == 6 {
			etype = types.IPV6Number
		}
	}
	packet.L3Type = etype
	packet.L3Offset = off
	return off
}

// ParseL3 parses IPv4 or IPv6 header after ParseL2.
func (packet *Packet) ParseL3() (int, uint8) {
	if packet.L3Offset == 0 {
		return 0, 0
	}
	l3 := packet.raw[packet.L3Offset:]
	switch packet.L3Type {
	case types.IPV4Number:
		if packet.IPv4 = ToIPv4(l3); packet.IPv4 != nil {
			packet.L4Offset = packet.L3Offset + packet.IPv4.HeaderLen()
			return packet.L4Offset, packet.IPv4.NextProtoID()
		}
	case types.IPV6Number:
		if packet.IPv6 = ToIPv6(l3); packet.IPv6 != nil {
			packet.L4Offset = packet.L3Offset + common.IPv6Len
			return packet.L4Offset, packet.IPv6.Proto()
		}
	}
	return 0, 0
}

// ParseL4 parses TCP or UDP header after ParseL3. It returns offset of
// L4 payload or 0.
func (packet *Packet) ParseL4() int {
	if packet.L4Offset == 0 {
		return 0
	}
	var proto uint8
	if packet.IPv4 != nil {
		proto = packet.IPv4.NextProtoID()
	} else if packet.IPv6 != nil {
		proto = packet.IPv6.Proto()
	}
	l4 := packet.raw[packet.L4Offset:]
	switch proto {
	case types.TCPNumber:
		if packet.TCP = ToTCP(l4); packet.TCP != nil {
			return packet.L4Offset + len(packet.TCP)
		}
	case types.UDPNumber:
		if packet.UDP = ToUDP(l4); packet.UDP != nil {
			return packet.L4Offset + common.UDPLen
		}
	}
	return 0
}

func (packet *Packet) String() string {
	s := ""
	if packet.Ether != nil {
		s += packet.Ether.String()
	}
	if packet.IPv4 != nil {
		s += packet.IPv4.String()
	}
	if packet.IPv6 != nil {
		s += packet.IPv6.String()
	}
	if packet.TCP != nil {
		s += packet.TCP.String()
	}
	if packet.UDP != nil {
		s += packet.UDP.String()
	}
	return s
}
