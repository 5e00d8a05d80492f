// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/intel-go/nff-pktgen/types"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}
	return buf.Bytes()
}

var (
	srcMAC = net.HardwareAddr{0x00, 0x60, 0x08, 0x9f, 0xb1, 0xf3}
	dstMAC = net.HardwareAddr{0x00, 0x40, 0x05, 0x40, 0xef, 0x24}
)

func TestParseIPv4TCPVLAN(t *testing.T) {
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IP{131, 151, 32, 21}, DstIP: net.IP{131, 151, 32, 129}, Id: 35355}
	tcp := &layers.TCP{SrcPort: 6000, DstPort: 1162, Seq: 1, Ack: 3477, ACK: true, Window: 31856, DataOffset: 5}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	raw := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 32, Priority: 3, Type: layers.EthernetTypeIPv4},
		ip, tcp)

	pkt := Parse(raw)
	if pkt.Ether == nil || pkt.Ether.SAddr() != types.NetHWAddressToMAC(srcMAC) || pkt.Ether.DAddr() != types.NetHWAddressToMAC(dstMAC) {
		t.Fatalf("ether header parsed wrongly: %v", pkt.Ether)
	}
	if pkt.VLAN[0] == nil || pkt.VLAN[0].GetVLANTagIdentifier() != 32 || pkt.VLAN[0].Priority() != 3 {
		t.Errorf("vlan tag parsed wrongly: %v", pkt.VLAN[0])
	}
	if pkt.VLAN[1] != nil {
		t.Errorf("unexpected inner vlan tag")
	}
	if pkt.IPv4 == nil {
		t.Fatalf("IPv4 header not parsed")
	}
	if pkt.IPv4.SrcAddr() != types.BytesToIPv4(131, 151, 32, 21) || pkt.IPv4.DstAddr() != types.BytesToIPv4(131, 151, 32, 129) {
		t.Errorf("IPv4 addresses parsed wrongly:\n%v", pkt.IPv4)
	}
	if pkt.IPv4.PacketID() != 35355 || pkt.IPv4.TimeToLive() != 64 {
		t.Errorf("IPv4 fields parsed wrongly: id %d ttl %d", pkt.IPv4.PacketID(), pkt.IPv4.TimeToLive())
	}
	if pkt.TCP == nil || pkt.TCP.SrcPort() != 6000 || pkt.TCP.DstPort() != 1162 ||
		pkt.TCP.SentSeq() != 1 || pkt.TCP.RecvAck() != 3477 || pkt.TCP.TCPFlags() != types.TCPFlagAck {
		t.Errorf("TCP header parsed wrongly: %v", pkt.TCP)
	}
	if pkt.L4Offset != 14+4+20 {
		t.Errorf("L4 offset: got %d, want %d", pkt.L4Offset, 14+4+20)
	}
}

func TestParseIPv6UDP(t *testing.T) {
	src := net.ParseIP("2607:f2c0:f00f:b001::face:b00c")
	ip := &layers.IPv6{Version: 6, HopLimit: 255, NextHeader: layers.IPProtocolUDP, SrcIP: src, DstIP: src, TrafficClass: 0x28}
	udp := &layers.UDP{SrcPort: 1234, DstPort: 5678}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}
	raw := serialize(t, &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}, ip, udp,
		gopacket.Payload([]byte("abcdefgh")))

	pkt := Parse(raw)
	if pkt.IPv6 == nil || pkt.IPv6.HopLimits() != 255 || pkt.IPv6.TrafficClass() != 0x28 {
		t.Fatalf("IPv6 header parsed wrongly: %v", pkt.IPv6)
	}
	want, _ := types.ParseIPv6("2607:f2c0:f00f:b001::face:b00c")
	if pkt.IPv6.SrcAddr() != want || pkt.IPv6.DstAddr() != want {
		t.Errorf("IPv6 addresses parsed wrongly:\n%v", pkt.IPv6)
	}
	if pkt.UDP == nil || pkt.UDP.SrcPort() != 1234 || pkt.UDP.DstPort() != 5678 || pkt.UDP.DgramLen() != 16 {
		t.Errorf("UDP header parsed wrongly: %v", pkt.UDP)
	}
}

func TestParseMPLS(t *testing.T) {
	raw := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeMPLSUnicast},
		&layers.MPLS{Label: 16, StackBottom: true, TTL: 64},
		&layers.IPv4{Version: 4, TTL: 4, Protocol: layers.IPProtocolUDP, SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}},
		&layers.UDP{SrcPort: 1, DstPort: 2})
	pkt := Parse(raw)
	if pkt.MPLS == nil || pkt.MPLS.GetMPLSLabel() != 16 || !pkt.MPLS.BottomOfStack() || pkt.MPLS.TTL() != 64 {
		t.Fatalf("MPLS parsed wrongly: %v", pkt.MPLS)
	}
	if pkt.IPv4 == nil || pkt.UDP == nil {
		t.Errorf("layers after MPLS not parsed")
	}
}

func TestParseTruncated(t *testing.T) {
	raw := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, TTL: 4, Protocol: layers.IPProtocolUDP, SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}},
		&layers.UDP{SrcPort: 1, DstPort: 2})
	for _, n := range []int{0, 10, 14, 20, 34, 38} {
		pkt := Parse(raw[:n])
		if n < 34 && pkt.IPv4 != nil {
			t.Errorf("len %d: IPv4 view over short buffer", n)
		}
		if n < 42 && pkt.UDP != nil {
			t.Errorf("len %d: UDP view over short buffer", n)
		}
	}
}

func TestStamp(t *testing.T) {
	buf := make([]byte, 64)
	if ToStamp(buf, 50) != nil {
		t.Errorf("stamp view past end of buffer")
	}
	st := ToStamp(buf, 42-2)
	if st.IsProbe() {
		t.Errorf("zero buffer recognized as probe")
	}
	st.Write(123456, 7)
	st = ToStamp(buf, 40)
	if !st.IsProbe() || st.Timestamp() != 123456 || st.Index() != 7 {
		t.Errorf("stamp round trip failed: magic %x ts %d idx %d", st.Magic(), st.Timestamp(), st.Index())
	}
	st.Clear()
	if st.IsProbe() {
		t.Errorf("stamp still marked after Clear")
	}
}

var classifySizeTests = []struct {
	length int
	want   SizeClass
}{
	{42, SizeRunt},
	{60, Size64},
	{61, Size65To127},
	{123, Size65To127},
	{124, Size128To255},
	{1020, Size1024To1518},
	{1514, Size1024To1518},
	{1515, SizeJumbo},
}

func TestClassify(t *testing.T) {
	for _, tt := range classifySizeTests {
		if got := ClassifySize(tt.length); got != tt.want {
			t.Errorf("ClassifySize(%d): got %d, want %d", tt.length, got, tt.want)
		}
	}
	raw := serialize(t, &layers.Ethernet{SrcMAC: srcMAC, DstMAC: net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP},
		&layers.ARP{AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4, HwAddressSize: 6, ProtAddressSize: 4,
			Operation: layers.ARPRequest, SourceHwAddress: srcMAC, SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress: make([]byte, 6), DstProtAddress: []byte{10, 0, 0, 2}})
	c := Classify(raw)
	if c.Ether != ClassARP || !c.Broadcast || c.Multicast {
		t.Errorf("ARP broadcast classified wrongly: %+v", c)
	}
	raw[0] = 0x01
	if c = Classify(raw); c.Broadcast || !c.Multicast {
		t.Errorf("multicast classified wrongly: %+v", c)
	}
}
