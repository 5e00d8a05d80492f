// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads generator configuration files and applies them to
// an engine.
//
// Both ini and yaml files are accepted. An ini file keeps engine settings
// in the [engine] section, logging in [log] and every port in [portN].
// Sequence templates of port N live in [portN.seqI] sections and the probe
// template in [portN.latency]. Such sections inherit keys of [portN].
// Environment variables with NFFPKTGEN_ prefix override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
	"inet.af/netaddr"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/flow"
	"github.com/intel-go/nff-pktgen/latency"
	"github.com/intel-go/nff-pktgen/ranges"
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "NFFPKTGEN"

// Engine holds settings of the whole generator.
type Engine struct {
	Burst             uint          `default:"64" ini:"burst" yaml:"burst"`
	TxPoolSize        uint          `default:"2048" ini:"tx_pool_size" yaml:"tx_pool_size"`
	SpecialPoolSize   uint          `default:"64" ini:"special_pool_size" yaml:"special_pool_size"`
	LinkSpeedMbps     uint32        `default:"10000" ini:"link_speed_mbps" yaml:"link_speed_mbps"`
	CaptureQueueLimit int64         `default:"65536" ini:"capture_queue_limit" yaml:"capture_queue_limit"`
	Pin               bool          `ini:"pin" yaml:"pin"`
	Seed              int64         `ini:"seed" yaml:"seed"`
	Map               string        `ini:"map" yaml:"map"`
	StatsAddr         string        `ini:"stats_addr" yaml:"stats_addr"`
	StatsInterval     time.Duration `default:"1s" ini:"stats_interval" yaml:"stats_interval"`
	Duration          time.Duration `ini:"duration" yaml:"duration"`
	Loopback          int           `ini:"loopback" yaml:"loopback"`
	Queues            int           `default:"1" ini:"queues" yaml:"queues"`
	Interfaces        []string      `ini:"interfaces" yaml:"interfaces"`

	Log common.LogConfig `ini:"-" yaml:"log"`
}

// FlowConfig converts engine settings to engine parameters.
func (e *Engine) FlowConfig() flow.Config {
	return flow.Config{
		BurstSize:            e.Burst,
		TxPoolSize:           e.TxPoolSize,
		SpecialPoolSize:      e.SpecialPoolSize,
		DefaultLinkSpeedMbps: e.LinkSpeedMbps,
		CaptureQueueLimit:    e.CaptureQueueLimit,
		PinThreads:           e.Pin,
		Seed:                 e.Seed,
	}
}

// Slot describes one packet template. Zero values keep the port default.
type Slot struct {
	Proto     string `ini:"proto" yaml:"proto"`
	SrcMAC    string `ini:"src_mac" yaml:"src_mac"`
	DstMAC    string `ini:"dst_mac" yaml:"dst_mac"`
	SrcIP     string `ini:"src_ip" yaml:"src_ip"`
	DstIP     string `ini:"dst_ip" yaml:"dst_ip"`
	SrcPort   uint16 `ini:"src_port" yaml:"src_port"`
	DstPort   uint16 `ini:"dst_port" yaml:"dst_port"`
	VlanID    uint16 `ini:"vlan" yaml:"vlan"`
	CoS       uint8  `ini:"cos" yaml:"cos"`
	TOS       uint8  `ini:"tos" yaml:"tos"`
	TTL       uint8  `ini:"ttl" yaml:"ttl"`
	PktSize   uint16 `ini:"pkt_size" yaml:"pkt_size"`
	TEID      uint32 `ini:"gtpu_teid" yaml:"gtpu_teid"`
	VxlanVID  uint32 `ini:"vxlan_vid" yaml:"vxlan_vid"`
	MPLSLabel uint32 `ini:"mpls" yaml:"mpls"`
	GREKey    uint32 `ini:"gre_key" yaml:"gre_key"`
	Fill      string `ini:"fill" yaml:"fill"`
	Pattern   string `ini:"pattern" yaml:"pattern"`
}

// Port holds settings of one port.
type Port struct {
	ID          int      `ini:"-" yaml:"id"`
	Rate        float64  `default:"100" ini:"rate" yaml:"rate"`
	TxCount     uint64   `ini:"tx_count" yaml:"tx_count"`
	SeqCount    int      `ini:"seq_count" yaml:"seq_count"`
	PcapAvgSize int      `ini:"pcap_avg_size" yaml:"pcap_avg_size"`
	Features    []string `ini:"features" yaml:"features"`
	Capture     string   `ini:"capture" yaml:"capture"`
	Start       bool     `ini:"start" yaml:"start"`
	// Every range is "field start min max inc", for example
	// "dst_port 1000 1000 1004 1".
	Ranges []string `ini:"ranges" yaml:"ranges"`
	// Every bitfield is "slot offset mask", for example "0 30 XXXXXXXX".
	Bitfields []string `ini:"bitfields" yaml:"bitfields"`

	LatencyIntervalUs uint64 `default:"1000" ini:"latency_interval_us" yaml:"latency_interval_us"`
	LatencyEntropy    uint16 `ini:"latency_entropy" yaml:"latency_entropy"`
	JitterThresholdUs uint64 `default:"50" ini:"jitter_threshold_us" yaml:"jitter_threshold_us"`
	Sampling          bool   `ini:"sampling" yaml:"sampling"`
	Sampler           string `default:"simple" ini:"sampler" yaml:"sampler"`
	SampleRate        uint64 `default:"1000" ini:"sample_rate" yaml:"sample_rate"`
	NumSamples        int    `default:"10000" ini:"num_samples" yaml:"num_samples"`
	SampleFile        string `ini:"sample_file" yaml:"sample_file"`

	Template Slot   `ini:"-" yaml:"template"`
	Latency  Slot   `ini:"-" yaml:"latency"`
	Seq      []Slot `ini:"-" yaml:"seq"`
}

// UnmarshalYAML decodes a port on top of its defaults.
func (p *Port) UnmarshalYAML(node *yaml.Node) error {
	type plain Port
	var v plain
	defaults.SetDefaults(&v)
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = Port(v)
	return nil
}

// File is a whole configuration file.
type File struct {
	Engine Engine `yaml:"engine"`
	Ports  []Port `yaml:"ports"`
}

// Default returns configuration with every default applied and no ports.
func Default() *File {
	f := &File{}
	defaults.SetDefaults(&f.Engine)
	return f
}

// Load reads configuration from path and applies environment overrides. An
// empty path loads defaults only. The format is chosen by file extension.
func Load(path string) (*File, error) {
	var f *File
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case path == "":
		f = Default()
	case ext == ".ini":
		f, err = loadINI(path)
	case ext == ".yaml", ext == ".yml":
		f, err = loadYAML(path)
	default:
		return nil, common.WrapWithNFError(nil, "unknown config format "+path, common.BadConfigFile)
	}
	if err != nil {
		return nil, common.WrapWithNFError(err, "can't load "+path, common.BadConfigFile)
	}
	if err := f.applyEnv(); err != nil {
		return nil, common.WrapWithNFError(err, "bad environment", common.BadConfigFile)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return f, nil
}

func loadINI(path string) (*File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	f := Default()
	if err := cfg.Section("engine").MapTo(&f.Engine); err != nil {
		return nil, err
	}
	if err := cfg.Section("log").MapTo(&f.Engine.Log); err != nil {
		return nil, err
	}
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, "port") || strings.Contains(name, ".") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "port"))
		if err != nil {
			return nil, fmt.Errorf("bad section name %s", name)
		}
		var p Port
		defaults.SetDefaults(&p)
		if err := sec.MapTo(&p); err != nil {
			return nil, err
		}
		if err := sec.MapTo(&p.Template); err != nil {
			return nil, err
		}
		p.ID = id
		if lat, err := cfg.GetSection(name + ".latency"); err == nil {
			if err := lat.MapTo(&p.Latency); err != nil {
				return nil, err
			}
		}
		for i := 0; i < template.NumSeqPkts; i++ {
			seq, err := cfg.GetSection(name + ".seq" + strconv.Itoa(i))
			if err != nil {
				break
			}
			var s Slot
			if err := seq.MapTo(&s); err != nil {
				return nil, err
			}
			p.Seq = append(p.Seq, s)
		}
		f.Ports = append(f.Ports, p)
	}
	return f, nil
}

func loadYAML(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, err
	}
	return f, nil
}

// env holds engine values which may be overridden from environment.
type env struct {
	Burst      uint   `envconfig:"BURST"`
	TxPoolSize uint   `envconfig:"POOL_SIZE"`
	StatsAddr  string `envconfig:"STATS_ADDR"`
	Map        string `envconfig:"MAP"`
	Loopback   int    `envconfig:"LOOPBACK"`
}

func (f *File) applyEnv() error {
	e := &f.Engine
	overlay := env{Burst: e.Burst, TxPoolSize: e.TxPoolSize, StatsAddr: e.StatsAddr, Map: e.Map, Loopback: e.Loopback}
	if err := envconfig.Process(EnvPrefix, &overlay); err != nil {
		return err
	}
	e.Burst, e.TxPoolSize, e.StatsAddr, e.Map, e.Loopback =
		overlay.Burst, overlay.TxPoolSize, overlay.StatsAddr, overlay.Map, overlay.Loopback
	return envconfig.Process(EnvPrefix, &e.Log)
}

func (f *File) check() error {
	seen := make(map[int]bool)
	for _, p := range f.Ports {
		if p.ID < 0 || p.ID >= MaxPorts {
			return common.WrapWithNFError(nil, "bad port id "+strconv.Itoa(p.ID), common.BadConfigFile)
		}
		if seen[p.ID] {
			return common.WrapWithNFError(nil, "port "+strconv.Itoa(p.ID)+" is configured twice", common.BadConfigFile)
		}
		seen[p.ID] = true
		if len(p.Seq) > template.NumSeqPkts {
			return common.WrapWithNFError(nil, "port "+strconv.Itoa(p.ID)+" has too many sequence packets", common.BadConfigFile)
		}
	}
	return nil
}

// Apply configures engine ports. Ports missing from the file keep their
// defaults. A port in the file the engine doesn't have is an error.
func (f *File) Apply(e *flow.Engine) error {
	for i := range f.Ports {
		ps := &f.Ports[i]
		p, err := e.Port(ps.ID)
		if err != nil {
			return err
		}
		if err := ps.apply(p); err != nil {
			return common.WrapWithNFError(err, "port "+strconv.Itoa(ps.ID), common.GetNFErrorCode(err))
		}
	}
	return nil
}

func (ps *Port) apply(p *flow.Port) error {
	main, err := ps.Template.compile(false)
	if err != nil {
		return err
	}
	if main != nil {
		for _, idx := range []int{template.SlotSingle, template.SlotRange} {
			if err := p.UpdateSlot(idx, main); err != nil {
				return err
			}
		}
	}
	// The probe follows the addressing of the main template and keeps UDP.
	probe, err := ps.Template.compile(true)
	if err != nil {
		return err
	}
	own, err := ps.Latency.compile(false)
	if err != nil {
		return err
	}
	for _, fn := range []func(*template.PacketSlot){probe, own} {
		if fn == nil {
			continue
		}
		if err := p.UpdateSlot(template.SlotLatency, fn); err != nil {
			return err
		}
	}
	for i := range ps.Seq {
		fn, err := ps.Seq[i].compile(false)
		if err != nil {
			return err
		}
		if fn == nil {
			continue
		}
		if err := p.UpdateSlot(template.SeqSlot(i), fn); err != nil {
			return err
		}
	}
	if ps.SeqCount != 0 {
		if err := p.SetSeqCount(ps.SeqCount); err != nil {
			return err
		}
	}

	if err := p.SetRate(ps.Rate); err != nil {
		return err
	}
	p.SetTxCount(ps.TxCount)
	if ps.PcapAvgSize != 0 {
		if err := p.SetPcapAverage(ps.PcapAvgSize); err != nil {
			return err
		}
	}

	if len(ps.Ranges) != 0 {
		set, err := parseRanges(ps.Ranges)
		if err != nil {
			return err
		}
		if err := p.SetRange(set); err != nil {
			return err
		}
	}
	for _, b := range ps.Bitfields {
		idx, offset, mask, err := parseBitfield(b)
		if err != nil {
			return err
		}
		if err := p.SetBitfield(idx, offset, mask); err != nil {
			return err
		}
	}

	lc, err := ps.latency()
	if err != nil {
		return err
	}
	if err := p.SetLatency(lc); err != nil {
		return err
	}

	if ps.Capture != "" {
		if err := p.SetCaptureFile(ps.Capture); err != nil {
			return err
		}
	}
	for _, name := range ps.Features {
		feature, err := flow.ParseFeature(name)
		if err != nil {
			return err
		}
		if feature == flow.FeatureSending {
			ps.Start = true
			continue
		}
		if err := p.SetFeature(feature, true); err != nil {
			return err
		}
	}
	return nil
}

// StartPorts starts sending on ports configured to start with the engine.
func (f *File) StartPorts(e *flow.Engine) error {
	for i := range f.Ports {
		if !f.Ports[i].Start {
			continue
		}
		p, err := e.Port(f.Ports[i].ID)
		if err != nil {
			return err
		}
		p.StartSending()
	}
	return nil
}

func (ps *Port) latency() (latency.Config, error) {
	sampler, err := latency.ParseSamplerType(ps.Sampler)
	if err != nil {
		return latency.Config{}, err
	}
	return latency.Config{
		ProbeIntervalUs:   ps.LatencyIntervalUs,
		Entropy:           ps.LatencyEntropy,
		JitterThresholdUs: ps.JitterThresholdUs,
		Sampling:          ps.Sampling,
		Sampler:           sampler,
		SampleRate:        ps.SampleRate,
		NumSamples:        ps.NumSamples,
		OutFile:           ps.SampleFile,
	}, nil
}

// compile parses textual fields once and returns the template mutator, nil
// when the slot changes nothing. With addressing set only MAC, IP, port and
// VLAN fields are taken.
func (s *Slot) compile(addressing bool) (func(*template.PacketSlot), error) {
	var steps []func(*template.PacketSlot)
	add := func(fn func(*template.PacketSlot)) { steps = append(steps, fn) }

	if s.SrcMAC != "" {
		mac, err := types.StringToMACAddress(s.SrcMAC)
		if err != nil {
			return nil, badValue("src_mac", s.SrcMAC, err)
		}
		add(func(ps *template.PacketSlot) { ps.SrcMAC = mac })
	}
	if s.DstMAC != "" {
		mac, err := types.StringToMACAddress(s.DstMAC)
		if err != nil {
			return nil, badValue("dst_mac", s.DstMAC, err)
		}
		add(func(ps *template.PacketSlot) { ps.DstMAC = mac })
	}
	if s.SrcIP != "" {
		fn, err := parseAddr("src_ip", s.SrcIP, true)
		if err != nil {
			return nil, err
		}
		add(fn)
	}
	if s.DstIP != "" {
		fn, err := parseAddr("dst_ip", s.DstIP, false)
		if err != nil {
			return nil, err
		}
		add(fn)
	}
	if s.SrcPort != 0 {
		add(func(ps *template.PacketSlot) { ps.SrcPort = s.SrcPort })
	}
	if s.DstPort != 0 {
		add(func(ps *template.PacketSlot) { ps.DstPort = s.DstPort })
	}
	if s.VlanID != 0 {
		add(func(ps *template.PacketSlot) { ps.VlanID = s.VlanID })
	}
	if addressing {
		return chain(steps), nil
	}

	if s.Proto != "" {
		proto, err := parseProto(s.Proto)
		if err != nil {
			return nil, err
		}
		add(func(ps *template.PacketSlot) { ps.Proto = proto })
	}
	if s.CoS != 0 {
		add(func(ps *template.PacketSlot) { ps.CoS = s.CoS })
	}
	if s.TOS != 0 {
		add(func(ps *template.PacketSlot) { ps.TOS = s.TOS })
	}
	if s.TTL != 0 {
		add(func(ps *template.PacketSlot) { ps.TTL = s.TTL })
	}
	if s.PktSize != 0 {
		add(func(ps *template.PacketSlot) { ps.PktSize = s.PktSize })
	}
	if s.TEID != 0 {
		add(func(ps *template.PacketSlot) { ps.TEID = s.TEID })
	}
	if s.VxlanVID != 0 {
		add(func(ps *template.PacketSlot) { ps.VxlanVID = s.VxlanVID })
	}
	if s.MPLSLabel != 0 {
		add(func(ps *template.PacketSlot) { ps.MPLSLabel = s.MPLSLabel })
	}
	if s.GREKey != 0 {
		add(func(ps *template.PacketSlot) { ps.GREKey = s.GREKey })
	}
	if s.Fill != "" {
		fill, err := template.ParseFillPattern(s.Fill)
		if err != nil {
			return nil, err
		}
		add(func(ps *template.PacketSlot) { ps.Fill = fill })
	}
	if s.Pattern != "" {
		add(func(ps *template.PacketSlot) { ps.UserPattern = s.Pattern })
	}
	return chain(steps), nil
}

func chain(steps []func(*template.PacketSlot)) func(*template.PacketSlot) {
	if len(steps) == 0 {
		return nil
	}
	return func(ps *template.PacketSlot) {
		for _, fn := range steps {
			fn(ps)
		}
	}
}

// parseAddr accepts IPv4 or IPv6 addresses. Source IPv4 may carry a
// prefix length. The address family switches the ether type of a slot.
func parseAddr(field, s string, src bool) (func(*template.PacketSlot), error) {
	host := s
	if i := strings.IndexByte(s, '/'); i >= 0 {
		host = s[:i]
	}
	ip, err := netaddr.ParseIP(host)
	if err != nil {
		return nil, badValue(field, s, err)
	}
	if ip.Is6() {
		addr := types.IPv6Address(ip.As16())
		return func(ps *template.PacketSlot) {
			ps.EtherType = types.IPV6Number
			if src {
				ps.SrcIP6 = addr
			} else {
				ps.DstIP6 = addr
			}
		}, nil
	}
	if src {
		prefix, err := types.ParseIPv4Prefix(s)
		if err != nil {
			return nil, badValue(field, s, err)
		}
		return func(ps *template.PacketSlot) {
			ps.EtherType = types.IPV4Number
			ps.SrcIP = prefix
		}, nil
	}
	addr := types.ArrayToIPv4(ip.As4())
	return func(ps *template.PacketSlot) {
		ps.EtherType = types.IPV4Number
		ps.DstIP = addr
	}, nil
}

func parseProto(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return types.TCPNumber, nil
	case "udp":
		return types.UDPNumber, nil
	case "icmp":
		return types.ICMPNumber, nil
	}
	return 0, common.WrapWithNFError(nil, "unknown protocol "+s, common.BadArgument)
}

// parseRanges parses range entries into a mutator of the port ranges.
func parseRanges(entries []string) (func(*ranges.Spec), error) {
	type set4 struct {
		id ranges.FieldID
		f  ranges.Field
	}
	type set6 struct {
		id ranges.Field6ID
		f  ranges.Field6
	}
	var v4 []set4
	var v6 []set6
	for _, entry := range entries {
		parts := strings.Fields(entry)
		if len(parts) != 5 {
			return nil, common.WrapWithNFError(nil, "range "+strconv.Quote(entry)+": expected field start min max inc",
				common.BadRange)
		}
		id, id6, isV6, err := ranges.LookupField(parts[0])
		if err != nil {
			return nil, err
		}
		if isV6 {
			f, err := parseField6(parts)
			if err != nil {
				return nil, err
			}
			v6 = append(v6, set6{id6, f})
			continue
		}
		f, err := parseField(id, parts)
		if err != nil {
			return nil, err
		}
		v4 = append(v4, set4{id, f})
	}
	return func(spec *ranges.Spec) {
		for _, s := range v4 {
			spec.Fields[s.id] = s.f
		}
		for _, s := range v6 {
			spec.Fields6[s.id] = s.f
		}
	}, nil
}

func parseField(id ranges.FieldID, parts []string) (ranges.Field, error) {
	var vals [3]uint64
	for i := range vals {
		v, err := parseRangeValue(id, parts[i+1])
		if err != nil {
			return ranges.Field{}, badValue(parts[0], parts[i+1], err)
		}
		vals[i] = v
	}
	inc, err := strconv.ParseInt(parts[4], 0, 64)
	if err != nil {
		return ranges.Field{}, badValue(parts[0], parts[4], err)
	}
	return ranges.Field{Start: vals[0], Min: vals[1], Max: vals[2], Inc: inc}, nil
}

func parseRangeValue(id ranges.FieldID, s string) (uint64, error) {
	switch id {
	case ranges.SrcIP, ranges.DstIP:
		addr, err := types.ParseIPv4(s)
		return uint64(addr), err
	case ranges.SrcMAC, ranges.DstMAC:
		mac, err := types.StringToMACAddress(s)
		return mac.Uint64(), err
	}
	return strconv.ParseUint(s, 0, 64)
}

func parseField6(parts []string) (ranges.Field6, error) {
	var vals [3]types.IPv6Address
	for i := range vals {
		addr, err := types.ParseIPv6(parts[i+1])
		if err != nil {
			return ranges.Field6{}, badValue(parts[0], parts[i+1], err)
		}
		vals[i] = addr
	}
	var inc types.IPv6Address
	if strings.Contains(parts[4], ":") {
		addr, err := types.ParseIPv6(parts[4])
		if err != nil {
			return ranges.Field6{}, badValue(parts[0], parts[4], err)
		}
		inc = addr
	} else {
		v, err := strconv.ParseUint(parts[4], 0, 64)
		if err != nil {
			return ranges.Field6{}, badValue(parts[0], parts[4], err)
		}
		inc = types.Uint64ToIPv6(v)
	}
	return ranges.Field6{Start: vals[0], Min: vals[1], Max: vals[2], Inc: inc}, nil
}

func parseBitfield(s string) (idx, offset int, mask string, err error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return 0, 0, "", common.WrapWithNFError(nil, "bitfield "+strconv.Quote(s)+": expected slot offset mask",
			common.BadBitfieldMask)
	}
	if idx, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, "", badValue("bitfield slot", parts[0], err)
	}
	if offset, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, "", badValue("bitfield offset", parts[1], err)
	}
	return idx, offset, parts[2], nil
}

func badValue(field, value string, err error) error {
	return common.WrapWithNFError(err, "bad "+field+" "+strconv.Quote(value), common.BadArgument)
}
