// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

// Length of addresses.
const (
	EtherAddrLen = 6
	IPv4AddrLen  = 4
	IPv6AddrLen  = 16
)

// Supported EtherType for L2
const (
	IPV4Number = 0x0800
	ARPNumber  = 0x0806
	VLANNumber = 0x8100
	MPLSNumber = 0x8847
	IPV6Number = 0x86dd
	TEBNumber  = 0x6558 // transparent ethernet bridging, ethernet over GRE
)

// Supported L4 types
const (
	ICMPNumber   = 0x01
	IPNumber     = 0x04
	TCPNumber    = 0x06
	UDPNumber    = 0x11
	GRENumber    = 0x2f
	ICMPv6Number = 0x3a
	NoNextHeader = 0x3b
)

// Supported ICMP Types
const (
	ICMPTypeEchoRequest  uint8 = 8
	ICMPTypeEchoResponse uint8 = 0
)

// Well known UDP ports which switch the constructor into a tunnel encoding.
const (
	GTPUPort  = 2152
	VXLANPort = 4789
)

// Packet sizes without FCS.
const (
	MinPktSize   = 60
	MinPktSizeV6 = 74
	MaxPktSize   = 1514
	JumboSize    = 1518
)

// TCPFlags is the flags byte of the TCP header.
type TCPFlags uint8

// Constants for values of TCP flags.
const (
	TCPFlagFin TCPFlags = 0x01
	TCPFlagSyn TCPFlags = 0x02
	TCPFlagRst TCPFlags = 0x04
	TCPFlagPsh TCPFlags = 0x08
	TCPFlagAck TCPFlags = 0x10
	TCPFlagUrg TCPFlags = 0x20
	TCPFlagEce TCPFlags = 0x40
	TCPFlagCwr TCPFlags = 0x80
)

var tcpFlagNames = []struct {
	flag TCPFlags
	name string
}{
	{TCPFlagFin, "FIN"}, {TCPFlagSyn, "SYN"}, {TCPFlagRst, "RST"}, {TCPFlagPsh, "PSH"},
	{TCPFlagAck, "ACK"}, {TCPFlagUrg, "URG"}, {TCPFlagEce, "ECE"}, {TCPFlagCwr, "CWR"},
}

func (f TCPFlags) String() string {
	s := ""
	for _, n := range tcpFlagNames {
		if f&n.flag != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	return s
}
