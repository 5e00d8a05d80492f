// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-pktgen/common"
)

const hz = 1000000000 // one tick per nanosecond

func probe(t *testing.T) ([]byte, int) {
	t.Helper()
	ip := &layers.IPv4{Version: 4, TTL: 4, Protocol: layers.IPProtocolUDP, SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}}
	udp := &layers.UDP{SrcPort: 1234, DstPort: 5678}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		&layers.Ethernet{SrcMAC: net.HardwareAddr{0, 0, 0, 0, 0, 1}, DstMAC: net.HardwareAddr{0, 0, 0, 0, 0, 2}, EthernetType: layers.EthernetTypeIPv4},
		ip, udp, gopacket.Payload(make([]byte, 32)))
	require.NoError(t, err)
	return buf.Bytes(), 14 + 20 + 8
}

func sendReceive(t *testing.T, st *State, idx, sent, now uint64) bool {
	pkt, off := probe(t)
	require.True(t, Stamp(pkt, off, sent, idx))
	return st.Receive(pkt, now)
}

func TestRingRetention(t *testing.T) {
	var r Ring
	k := 37
	for i := 0; i < RingSize+k; i++ {
		r.Push(uint64(i))
	}
	vals := r.Values()
	require.Len(t, vals, RingSize)
	for i, v := range vals {
		require.EqualValues(t, k+i, v)
	}
	r.Reset()
	assert.Empty(t, r.Values())
}

func TestReceiveAccounting(t *testing.T) {
	st := NewState(DefaultConfig(), hz, 1)
	assert.True(t, sendReceive(t, st, 0, 1000, 1500))
	assert.True(t, sendReceive(t, st, 1, 2000, 2700))
	assert.True(t, sendReceive(t, st, 2, 3000, 3600))

	s := st.Stats()
	assert.EqualValues(t, 3, s.Count)
	assert.EqualValues(t, 500, s.MinTicks)
	assert.EqualValues(t, 700, s.MaxTicks)
	assert.EqualValues(t, 600, s.AvgTicks)
	assert.EqualValues(t, 3, s.ExpectedIndex)
	assert.EqualValues(t, 600, s.AvgNs)
	assert.Equal(t, []uint64{500, 700, 600}, st.Recent())
}

func TestSequenceResync(t *testing.T) {
	st := NewState(DefaultConfig(), hz, 1)
	require.True(t, sendReceive(t, st, 0, 0, 100))
	before := st.Stats()

	require.True(t, sendReceive(t, st, 5, 0, 100000))
	s := st.Stats()
	assert.Equal(t, before.Skipped+1, s.Skipped)
	assert.EqualValues(t, 6, s.ExpectedIndex)
	assert.Equal(t, before.Count, s.Count)
	assert.Equal(t, before.AvgTicks, s.AvgTicks)
	assert.Equal(t, before.MaxTicks, s.MaxTicks)

	require.True(t, sendReceive(t, st, 6, 0, 200))
	assert.EqualValues(t, 2, st.Stats().Count)
}

func TestJitterThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JitterThresholdUs = 1 // 1000 ticks
	st := NewState(cfg, hz, 1)
	require.True(t, sendReceive(t, st, 0, 0, 5000))
	require.True(t, sendReceive(t, st, 1, 0, 5500)) // jitter 500
	require.True(t, sendReceive(t, st, 2, 0, 7000)) // jitter 1500
	require.True(t, sendReceive(t, st, 3, 0, 5000)) // jitter 2000
	assert.EqualValues(t, 2, st.Stats().JitterCount)
}

func TestProbeConsumedOnce(t *testing.T) {
	st := NewState(DefaultConfig(), hz, 1)
	pkt, off := probe(t)
	require.True(t, Stamp(pkt, off, 10, 0))
	assert.True(t, st.Receive(pkt, 20))
	assert.False(t, st.Receive(pkt, 30))
	assert.EqualValues(t, 1, st.Stats().Count)
}

func TestNonProbeIgnored(t *testing.T) {
	st := NewState(DefaultConfig(), hz, 1)
	pkt, _ := probe(t)
	assert.False(t, st.Receive(pkt, 10))
	assert.False(t, st.Receive(pkt[:20], 10))
	assert.Zero(t, st.Stats().Count)
}

func TestProbeSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Entropy = 4
	st := NewState(cfg, hz, 1)
	assert.True(t, st.ProbeDue(0))
	assert.EqualValues(t, 0, st.NextProbe(0))
	assert.False(t, st.ProbeDue(999999))
	assert.True(t, st.ProbeDue(1000000))
	assert.EqualValues(t, 1, st.NextProbe(1000000))
	assert.EqualValues(t, 1234+1, st.SourcePort(1234, 1))
	assert.EqualValues(t, 1234+1, st.SourcePort(1234, 5))
	assert.EqualValues(t, 2, st.Stats().SentProbes)
}

func TestSimpleSamplerCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampling = true
	cfg.SampleRate = 1000 // every 1e6 ticks
	cfg.NumSamples = 2
	st := NewState(cfg, hz, 1)
	for i := uint64(0); i < 5; i++ {
		now := i * 1000000
		require.True(t, sendReceive(t, st, i, now-now%1000000, now+100))
	}
	s := st.Stats()
	assert.Equal(t, 2, s.Samples)
	assert.EqualValues(t, 5, s.Count, "full sample buffer must not affect accounting")
}

func TestPoissonSamplerSpacing(t *testing.T) {
	s := NewSampler(SamplerPoisson, 1000, 100000, hz, 7)
	var sum float64
	n := 20000
	for i := 0; i < n; i++ {
		sum += float64(s.interval())
	}
	mean := sum / float64(n)
	assert.InDelta(t, 1e6, mean, 5e4)
}

func TestStopSamplingWritesCSV(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Sampling = true
	cfg.SampleRate = 1
	cfg.NumSamples = 10
	cfg.OutFile = filepath.Join(dir, "lat.csv")
	st := NewState(cfg, hz, 1)
	require.True(t, sendReceive(t, st, 0, 100, 350))
	require.NoError(t, st.StopSampling())

	data, err := os.ReadFile(cfg.OutFile)
	require.NoError(t, err)
	assert.Equal(t, "index,latency_ns\n0,250\n", string(data))
}

func TestWriteCSV(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteCSV(&b, []uint64{10, 20}))
	assert.Equal(t, 3, strings.Count(b.String(), "\n"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	cfg.ProbeIntervalUs = 0
	assert.Equal(t, common.BadLatencyConfig, common.GetNFErrorCode(cfg.Validate()))
	cfg = DefaultConfig()
	cfg.Sampling = true
	cfg.NumSamples = 0
	assert.Error(t, cfg.Validate())
	_, err := ParseSamplerType("uniform")
	assert.Error(t, err)
}
