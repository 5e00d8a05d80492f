// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package construct turns packet templates into wire bytes.
//
// A Builder serializes the protocol stack selected by the template and the
// port encapsulation flags through gopacket, computes lengths and checksums
// and pads the payload up to the template size with the fill pattern.
// Builders are not safe for concurrent use. Each pre-bake owner keeps its own.
package construct

import (
	"net"
	"strconv"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/packet"
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

// Encap is a set of port level encapsulations applied on top of a template.
type Encap uint8

// Encapsulations. VLAN, QinQ and MPLS are alternatives on L2, QinQ wins
// over VLAN and VLAN over MPLS. GRE and GREEther are alternative tunnels.
const (
	EncapVLAN Encap = 1 << iota
	EncapQinQ
	EncapMPLS
	EncapGRE
	EncapGREEther
	EncapVXLAN
)

const encapTunnels = EncapGRE | EncapGREEther | EncapVXLAN

// encapPlainUDP disables the GTP-U header on port 2152.
const encapPlainUDP Encap = 1 << 7

// IdentStep is added to the IPv4 identification after every build.
const IdentStep = 27

// GTPUMessageType is the G-PDU message type.
const GTPUMessageType = 0xff

var encapNames = []struct {
	e    Encap
	name string
}{
	{EncapVLAN, "vlan"}, {EncapQinQ, "qinq"}, {EncapMPLS, "mpls"},
	{EncapGRE, "gre"}, {EncapGREEther, "gre_eth"}, {EncapVXLAN, "vxlan"},
}

func (e Encap) String() string {
	s := ""
	for _, n := range encapNames {
		if e&n.e != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Builder serializes templates. The zero value is not usable, use NewBuilder.
type Builder struct {
	ident   uint16
	buf     gopacket.SerializeBuffer
	opts    gopacket.SerializeOptions
	payload [types.JumboSize]byte
	ls      []gopacket.SerializableLayer
}

// NewBuilder returns a builder whose IPv4 identification starts from ident.
func NewBuilder(ident uint16) *Builder {
	return &Builder{
		ident: ident,
		buf:   gopacket.NewSerializeBufferExpectedSize(types.JumboSize, 0),
		opts:  gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		ls:    make([]gopacket.SerializableLayer, 0, 12),
	}
}

// Ident returns the identification the next IPv4 build will use.
func (b *Builder) Ident() uint16 {
	return b.ident
}

func l2Len(enc Encap) int {
	switch {
	case enc&EncapQinQ != 0:
		return common.EtherLen + 2*common.VLANLen
	case enc&EncapVLAN != 0:
		return common.EtherLen + common.VLANLen
	case enc&EncapMPLS != 0:
		return common.EtherLen + common.MPLSLen
	}
	return common.EtherLen
}

func greLen(s *template.PacketSlot) int {
	if s.GREKey != 0 {
		return common.GREKeyLen
	}
	return common.GRELen
}

func isGTPU(s *template.PacketSlot, enc Encap) bool {
	return s.Proto == types.UDPNumber && enc&(EncapVXLAN|encapPlainUDP) == 0 && s.DstPort == types.GTPUPort
}

func gtpPayloadLen(s *template.PacketSlot, enc Encap) int {
	if n := int(s.PktSize) - HeaderLen(s, enc); n > 0 {
		return n
	}
	return 0
}

// HeaderLen returns the number of header bytes that Build puts before the
// payload for this template and encapsulation.
func HeaderLen(s *template.PacketSlot, enc Encap) int {
	n := l2Len(enc)
	switch {
	case enc&EncapGREEther != 0:
		n += common.IPv4MinLen + greLen(s) + common.EtherLen
	case enc&EncapGRE != 0:
		n += common.IPv4MinLen + greLen(s)
	}
	if s.IsIPv6() {
		n += common.IPv6Len
	} else {
		n += common.IPv4MinLen
	}
	switch s.Proto {
	case types.TCPNumber:
		n += common.TCPMinLen
	case types.UDPNumber:
		n += common.UDPLen
		if enc&EncapVXLAN != 0 {
			n += common.VXLANLen
		} else if isGTPU(s, enc) {
			n += common.GTPMinLen
		}
	case types.ICMPNumber:
		n += common.ICMPLen
	}
	return n
}

// ProbeOffset returns the offset of the latency stamp in a probe built by
// BuildProbe. Tunnels are never applied to probes.
func ProbeOffset(s *template.PacketSlot, enc Encap) int {
	return l2Len(enc) + l3Len(s) + common.UDPLen
}

func l3Len(s *template.PacketSlot) int {
	if s.IsIPv6() {
		return common.IPv6Len
	}
	return common.IPv4MinLen
}

// Build writes the packet for template s into dst and returns its length.
func (b *Builder) Build(dst []byte, s *template.PacketSlot, enc Encap) (int, error) {
	hdr := HeaderLen(s, enc)
	payload := b.fill(s, int(s.PktSize)-hdr)
	if err := b.stack(s, enc); err != nil {
		return 0, err
	}
	return b.finish(dst, payload)
}

// BuildProbe writes a latency probe. The probe is always UDP, carries the
// port L2 tags but no tunnel, and has the stamp right after the UDP header.
func (b *Builder) BuildProbe(dst []byte, s *template.PacketSlot, enc Encap, ticks, index uint64) (int, error) {
	probe := *s
	probe.Proto = types.UDPNumber
	enc = enc&^encapTunnels | encapPlainUDP
	n := int(probe.PktSize) - HeaderLen(&probe, enc)
	if n < packet.StampLen {
		return 0, common.WrapWithNFError(nil, "probe of "+strconv.Itoa(int(probe.PktSize))+
			" bytes has no room for the latency stamp", common.BadPktSize)
	}
	payload := b.fill(&probe, n)
	packet.StampHdr(payload[:packet.StampLen]).Write(ticks, index)
	if err := b.stack(&probe, enc); err != nil {
		return 0, err
	}
	return b.finish(dst, payload)
}

// BuildARP writes an ARP request for the template destination address or,
// when gratuitous is set, a gratuitous ARP announcing the source address.
func (b *Builder) BuildARP(dst []byte, s *template.PacketSlot, gratuitous bool) (int, error) {
	src := types.IPv4ToBytes(s.SrcIP.Addr)
	target := types.IPv4ToBytes(s.DstIP)
	if gratuitous {
		target = src
	}
	b.ls = append(b.ls[:0],
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr(s.SrcMAC[:]),
			DstMAC:       net.HardwareAddr(types.BroadcastMAC[:]),
			EthernetType: layers.EthernetTypeARP,
		},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     types.EtherAddrLen,
			ProtAddressSize:   types.IPv4AddrLen,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   s.SrcMAC[:],
			SourceProtAddress: src[:],
			DstHwAddress:      make([]byte, types.EtherAddrLen),
			DstProtAddress:    target[:],
		})
	return b.finish(dst, nil)
}

// BuildPing4 writes an ICMP echo request from the template addresses.
func (b *Builder) BuildPing4(dst []byte, s *template.PacketSlot, id, seq uint16) (int, error) {
	ping := *s
	ping.EtherType = types.IPV4Number
	ping.Proto = types.ICMPNumber
	payload := b.fill(&ping, int(ping.PktSize)-HeaderLen(&ping, 0))
	ip := b.ipv4(&ping, layers.IPProtocolICMPv4)
	b.ls = append(b.ls[:0],
		&layers.Ethernet{
			SrcMAC:       net.HardwareAddr(ping.SrcMAC[:]),
			DstMAC:       net.HardwareAddr(ping.DstMAC[:]),
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip,
		&layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(types.ICMPTypeEchoRequest, 0),
			Id:       id,
			Seq:      seq,
		})
	return b.finish(dst, payload)
}

func (b *Builder) fill(s *template.PacketSlot, n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > len(b.payload) {
		n = len(b.payload)
	}
	p := b.payload[:n]
	switch s.Fill {
	case template.FillABC:
		repeat(p, template.ABCPattern)
	case template.FillZero:
		for i := range p {
			p[i] = 0
		}
	case template.FillUser:
		repeat(p, s.UserPattern)
	case template.FillNone:
		// Payload keeps whatever the previous build left.
	}
	return p
}

func repeat(p []byte, pattern string) {
	if pattern == "" {
		return
	}
	for i := 0; i < len(p); i += len(pattern) {
		copy(p[i:], pattern)
	}
}

func (b *Builder) ipv4(s *template.PacketSlot, proto layers.IPProtocol) *layers.IPv4 {
	src := types.IPv4ToBytes(s.SrcIP.Addr)
	dst := types.IPv4ToBytes(s.DstIP)
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TOS:      s.TOS,
		Id:       b.ident,
		TTL:      s.TTL,
		Protocol: proto,
		SrcIP:    net.IP(src[:]),
		DstIP:    net.IP(dst[:]),
	}
	b.ident += IdentStep
	return ip
}

func (b *Builder) stack(s *template.PacketSlot, enc Encap) error {
	l3 := layers.EthernetTypeIPv4
	if s.IsIPv6() {
		l3 = layers.EthernetTypeIPv6
	}
	first := l3
	if enc&(EncapGRE|EncapGREEther) != 0 {
		first = layers.EthernetTypeIPv4
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(s.SrcMAC[:]),
		DstMAC:       net.HardwareAddr(s.DstMAC[:]),
		EthernetType: first,
	}
	b.ls = append(b.ls[:0], eth)
	switch {
	case enc&EncapQinQ != 0:
		eth.EthernetType = layers.EthernetTypeDot1Q
		b.ls = append(b.ls,
			&layers.Dot1Q{Priority: s.CoS, VLANIdentifier: s.QinQOuter, Type: layers.EthernetTypeDot1Q},
			&layers.Dot1Q{Priority: s.CoS, VLANIdentifier: s.QinQInner, Type: first})
	case enc&EncapVLAN != 0:
		eth.EthernetType = layers.EthernetTypeDot1Q
		b.ls = append(b.ls, &layers.Dot1Q{Priority: s.CoS, VLANIdentifier: s.VlanID, Type: first})
	case enc&EncapMPLS != 0:
		eth.EthernetType = layers.EthernetTypeMPLSUnicast
		b.ls = append(b.ls, &layers.MPLS{Label: s.MPLSLabel, TrafficClass: s.CoS, StackBottom: true, TTL: s.TTL})
	}

	if enc&(EncapGRE|EncapGREEther) != 0 {
		gre := &layers.GRE{KeyPresent: s.GREKey != 0, Key: s.GREKey, Protocol: l3}
		b.ls = append(b.ls, b.ipv4(s, layers.IPProtocolGRE), gre)
		if enc&EncapGREEther != 0 {
			gre.Protocol = layers.EthernetTypeTransparentEthernetBridging
			b.ls = append(b.ls, &layers.Ethernet{
				SrcMAC:       net.HardwareAddr(s.SrcMAC[:]),
				DstMAC:       net.HardwareAddr(s.DstMAC[:]),
				EthernetType: l3,
			})
		}
	}

	var proto layers.IPProtocol
	switch s.Proto {
	case types.TCPNumber:
		proto = layers.IPProtocolTCP
	case types.UDPNumber:
		proto = layers.IPProtocolUDP
	case types.ICMPNumber:
		if s.IsIPv6() {
			return common.WrapWithNFError(nil, "ICMP echo is only generated over IPv4", common.BadArgument)
		}
		proto = layers.IPProtocolICMPv4
	default:
		return common.WrapWithNFError(nil, "unsupported protocol "+strconv.Itoa(int(s.Proto)), common.BadArgument)
	}

	var nl gopacket.NetworkLayer
	var ident uint16
	if s.IsIPv6() {
		ip := &layers.IPv6{
			Version:      6,
			TrafficClass: s.TOS,
			HopLimit:     s.TTL,
			NextHeader:   proto,
			SrcIP:        net.IP(append([]byte(nil), s.SrcIP6[:]...)),
			DstIP:        net.IP(append([]byte(nil), s.DstIP6[:]...)),
		}
		nl = ip
		b.ls = append(b.ls, ip)
	} else {
		ident = b.ident
		ip := b.ipv4(s, proto)
		nl = ip
		b.ls = append(b.ls, ip)
	}

	switch s.Proto {
	case types.TCPNumber:
		f := s.TCPFlags
		tcp := &layers.TCP{
			SrcPort:    layers.TCPPort(s.SrcPort),
			DstPort:    layers.TCPPort(s.DstPort),
			Seq:        s.TCPSeq,
			Ack:        s.TCPAck,
			Window:     s.TCPWindow,
			DataOffset: common.TCPMinLen / 4,
			FIN:        f&types.TCPFlagFin != 0,
			SYN:        f&types.TCPFlagSyn != 0,
			RST:        f&types.TCPFlagRst != 0,
			PSH:        f&types.TCPFlagPsh != 0,
			ACK:        f&types.TCPFlagAck != 0,
			URG:        f&types.TCPFlagUrg != 0,
			ECE:        f&types.TCPFlagEce != 0,
			CWR:        f&types.TCPFlagCwr != 0,
		}
		if err := tcp.SetNetworkLayerForChecksum(nl); err != nil {
			return err
		}
		b.ls = append(b.ls, tcp)
	case types.UDPNumber:
		udp := &layers.UDP{SrcPort: layers.UDPPort(s.SrcPort), DstPort: layers.UDPPort(s.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(nl); err != nil {
			return err
		}
		b.ls = append(b.ls, udp)
		if enc&EncapVXLAN != 0 {
			udp.DstPort = types.VXLANPort
			b.ls = append(b.ls, &layers.VXLAN{
				ValidIDFlag:      s.VxlanFlags&0x08 != 0,
				VNI:              s.VxlanVID,
				GBPExtension:     s.VxlanGID != 0,
				GBPGroupPolicyID: s.VxlanGID,
			})
		} else if isGTPU(s, enc) {
			b.ls = append(b.ls, &layers.GTPv1U{
				Version:       1,
				ProtocolType:  1,
				MessageType:   GTPUMessageType,
				MessageLength: uint16(gtpPayloadLen(s, enc)),
				TEID:          s.TEID,
			})
		}
	case types.ICMPNumber:
		b.ls = append(b.ls, &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(types.ICMPTypeEchoRequest, 0),
			Id:       s.SrcPort,
			Seq:      ident,
		})
	}
	return nil
}

func (b *Builder) finish(dst []byte, payload []byte) (int, error) {
	if payload != nil {
		b.ls = append(b.ls, gopacket.Payload(payload))
	}
	if err := b.buf.Clear(); err != nil {
		return 0, err
	}
	if err := gopacket.SerializeLayers(b.buf, b.opts, b.ls...); err != nil {
		return 0, common.WrapWithNFError(err, "can't serialize packet", common.BadPktSize)
	}
	raw := b.buf.Bytes()
	size := len(raw)
	if size < types.MinPktSize {
		size = types.MinPktSize
	}
	if len(dst) < size {
		return 0, common.WrapWithNFError(nil, "buffer of "+strconv.Itoa(len(dst))+
			" bytes is too small for a "+strconv.Itoa(size)+" bytes packet", common.BadPktSize)
	}
	n := copy(dst, raw)
	for ; n < size; n++ {
		dst[n] = 0
	}
	return size, nil
}
