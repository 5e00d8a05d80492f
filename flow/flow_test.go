// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/latency"
	"github.com/intel-go/nff-pktgen/low"
	"github.com/intel-go/nff-pktgen/packet"
	"github.com/intel-go/nff-pktgen/ranges"
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

const testHz = 1000000000

type testBed struct {
	eng   *Engine
	lb    *low.Loopback
	clock *low.ManualClock
}

func newTestBed(t *testing.T, ports int, cfg Config) *testBed {
	t.Helper()
	lb, err := low.NewLoopback(low.LoopbackConfig{Ports: ports, Queues: 2, RingSize: 256, PoolSize: 256})
	require.NoError(t, err)
	clock := low.NewManualClock(testHz)
	eng, err := NewEngine(cfg, lb, clock)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return &testBed{eng: eng, lb: lb, clock: clock}
}

func (tb *testBed) port(t *testing.T, id int) *Port {
	t.Helper()
	p, err := tb.eng.Port(id)
	require.NoError(t, err)
	return p
}

// txrx plans lcore 1 transmitting on port 0 queue 0 and lcore 2 receiving
// on port rxPort queue 0 without starting the lcores.
func (tb *testBed) txrx(t *testing.T, rxPort int) (*txQueue, *rxQueue) {
	t.Helper()
	plans, err := tb.eng.plan([]Assignment{
		{Lcore: 1, Mode: ModeTX, TX: []QueueRef{{Port: 0, Queue: 0}}},
		{Lcore: 2, Mode: ModeRX, RX: []QueueRef{{Port: rxPort, Queue: 0}}},
	})
	require.NoError(t, err)
	return plans[0].tx[0], plans[1].rx[0]
}

func (tb *testBed) step(q *txQueue) {
	q.transmit(tb.clock.Ticks(), q.port.Config())
}

func receiveAll(q *rxQueue, clock low.Clock) int {
	buf := make([]*low.Mbuf, 32)
	total := 0
	for {
		n := q.receive(buf, clock)
		if n == 0 {
			return total
		}
		total += n
	}
}

func dstPorts(t *testing.T, pool *low.Mempool) []uint16 {
	t.Helper()
	var ports []uint16
	require.NoError(t, pool.Each(func(m *low.Mbuf) error {
		pkt := packet.Parse(m.GetRawPacketBytes())
		require.NotNil(t, pkt.TCP)
		ports = append(ports, pkt.TCP.DstPort())
		return nil
	}))
	return ports
}

func TestRangeDstPortPrebake(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 5, TxPoolSize: 5})
	p := tb.port(t, 0)
	require.NoError(t, p.SetRange(func(s *ranges.Spec) {
		s.Fields[ranges.DstPort] = ranges.Field{Start: 1000, Min: 1000, Max: 1004, Inc: 1}
	}))
	require.NoError(t, p.SetFeature(FeatureRange, true))
	tx, rx := tb.txrx(t, 1)
	p.StartSending()

	tb.step(tx)
	assert.Equal(t, []uint16{1000, 1001, 1002, 1003, 1004}, dstPorts(t, tx.pools[poolRange]))

	tb.step(tx)
	assert.EqualValues(t, 5, tx.packets.Load())
	assert.Equal(t, 5, receiveAll(rx, tb.clock))
	assert.Equal(t, 5, tx.pools[poolRange].Free(), "sent mbufs are back in the pool")

	require.NoError(t, p.SetRate(50))
	tb.step(tx)
	assert.Equal(t, []uint16{1000, 1001, 1002, 1003, 1004}, dstPorts(t, tx.pools[poolRange]))
}

func TestSequencePrebake(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 4, TxPoolSize: 4})
	p := tb.port(t, 0)
	for i := 0; i < 3; i++ {
		port := uint16(2000 + i)
		require.NoError(t, p.UpdateSlot(template.SeqSlot(i), func(s *template.PacketSlot) { s.DstPort = port }))
	}
	require.NoError(t, p.SetSeqCount(3))
	require.NoError(t, p.SetFeature(FeatureSequence, true))
	tx, _ := tb.txrx(t, 1)
	p.StartSending()
	tb.step(tx)
	assert.Equal(t, []uint16{2000, 2001, 2002, 2000}, dstPorts(t, tx.pools[poolSequence]))

	require.NoError(t, p.SetRate(50))
	tb.step(tx)
	assert.Equal(t, []uint16{2001, 2002, 2000, 2001}, dstPorts(t, tx.pools[poolSequence]),
		"rotation continues on the next pass")
}

func TestRangeWalkContinuesAcrossPrebakes(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 3, TxPoolSize: 3})
	p := tb.port(t, 0)
	require.NoError(t, p.SetRange(func(s *ranges.Spec) {
		s.Fields[ranges.DstPort] = ranges.Field{Start: 1000, Min: 1000, Max: 1004, Inc: 1}
	}))
	require.NoError(t, p.SetFeature(FeatureRange, true))
	tx, _ := tb.txrx(t, 1)
	p.StartSending()

	tb.step(tx)
	assert.Equal(t, []uint16{1000, 1001, 1002}, dstPorts(t, tx.pools[poolRange]))

	require.NoError(t, p.SetRate(50))
	tb.step(tx)
	assert.Equal(t, []uint16{1003, 1004, 1000}, dstPorts(t, tx.pools[poolRange]))

	require.NoError(t, p.SetRange(func(s *ranges.Spec) {
		s.Fields[ranges.DstPort] = ranges.Field{Start: 2000, Min: 2000, Max: 2009, Inc: 1}
	}))
	tb.step(tx)
	assert.Equal(t, []uint16{2000, 2001, 2002}, dstPorts(t, tx.pools[poolRange]), "a new tuple restarts the field")
}

func TestSinglePoolUsesSingleSlot(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 2, TxPoolSize: 2})
	p := tb.port(t, 0)
	require.NoError(t, p.UpdateSlot(template.SlotSingle, func(s *template.PacketSlot) {
		s.DstPort = 7
		s.PktSize = 128
	}))
	tx, rx := tb.txrx(t, 1)
	p.StartSending()
	tb.step(tx)
	tb.step(tx)
	assert.Equal(t, 2, receiveAll(rx, tb.clock))
	st := tb.port(t, 1).Stats()
	assert.EqualValues(t, 2, st.Rx.Packets)
	assert.EqualValues(t, 256, st.Rx.Bytes)
	assert.EqualValues(t, 2, st.Ether.IPv4)
	assert.EqualValues(t, 2, st.Sizes.Size128To255)
	assert.Equal(t, []uint16{7, 7}, dstPorts(t, tx.pools[poolSingle]))
}

func TestExclusiveFeatures(t *testing.T) {
	fs := Features(0).With(FeatureRange, true).With(FeatureVLAN, true)
	fs = fs.With(FeatureSequence, true)
	assert.False(t, fs.Range())
	assert.True(t, fs.Sequence())
	fs = fs.With(FeatureQinQ, true)
	assert.False(t, fs.Has(FeatureVLAN))
	assert.Equal(t, "sequence,qinq", fs.String())
	assert.Equal(t, poolSequence, fs.poolMode())

	f, err := ParseFeature("GRE_ETH")
	require.NoError(t, err)
	assert.Equal(t, FeatureGREEther, f)
	_, err = ParseFeature("warp")
	assert.Equal(t, common.BadArgument, common.GetNFErrorCode(err))
	assert.Equal(t, "none", Features(0).String())
}

func TestSettersKeepSnapshotOnError(t *testing.T) {
	tb := newTestBed(t, 1, Config{})
	p := tb.port(t, 0)
	before := p.Config()

	err := p.UpdateSlot(template.SlotSingle, func(s *template.PacketSlot) { s.PktSize = 10 })
	assert.Equal(t, common.BadPktSize, common.GetNFErrorCode(err))
	err = p.UpdateSlot(template.SlotLatency, func(s *template.PacketSlot) { s.PktSize = types.MinPktSize })
	assert.Equal(t, common.BadPktSize, common.GetNFErrorCode(err))
	err = p.SetRange(func(s *ranges.Spec) { s.Fields[ranges.VlanID].Max = 5000 })
	assert.Equal(t, common.BadRange, common.GetNFErrorCode(err))
	err = p.SetBitfield(0, 0, "12")
	assert.Equal(t, common.BadBitfieldMask, common.GetNFErrorCode(err))
	assert.Error(t, p.SetRate(101))
	assert.Error(t, p.SetSeqCount(template.NumSeqPkts+1))
	assert.Error(t, p.SetPcapAverage(20))
	assert.Error(t, p.SetLatency(latency.Config{}))
	assert.Error(t, p.SetFeature(FeatureCapture, true), "capture needs a file")

	assert.Same(t, before, p.Config())
	require.NoError(t, p.SetRate(10))
	assert.Equal(t, before.Gen+1, p.Config().Gen)
	assert.EqualValues(t, 10, p.Config().Percent)
	assert.EqualValues(t, 100, before.Percent, "published snapshots are immutable")
}

func TestTxBudget(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 4, TxPoolSize: 8})
	p := tb.port(t, 0)
	p.SetTxCount(6)
	assert.False(t, p.Config().Features.SendForever())
	tx, rx := tb.txrx(t, 1)

	tb.step(tx)
	assert.EqualValues(t, 0, tx.packets.Load(), "nothing is sent before StartSending")

	p.StartSending()
	tb.step(tx) // pre-bake
	tb.step(tx)
	tb.step(tx)
	assert.False(t, p.Sending())
	tb.step(tx)
	assert.EqualValues(t, 6, tx.packets.Load())
	assert.Equal(t, 6, receiveAll(rx, tb.clock))

	p.StartSending()
	tb.step(tx)
	assert.EqualValues(t, 10, tx.packets.Load(), "StartSending restores the budget")

	p.SetTxCount(0)
	assert.True(t, p.Config().Features.SendForever())
}

func TestPacing(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 4, TxPoolSize: 8})
	p := tb.port(t, 0)
	tx, _ := tb.txrx(t, 1)
	p.StartSending()
	cycles := p.Config().Rate.TxCycles
	require.NotZero(t, cycles)

	tx.poll(tb.clock.Ticks()) // pre-bake
	tx.poll(tb.clock.Ticks())
	assert.EqualValues(t, 0, tx.packets.Load(), "next burst is not due yet")
	tb.clock.Advance(cycles)
	tx.poll(tb.clock.Ticks())
	assert.EqualValues(t, 4, tx.packets.Load())

	require.NoError(t, p.SetRate(0))
	assert.Zero(t, p.Config().Rate.TxCycles)
	assert.Zero(t, p.Config().Rate.TxPPS)
	tb.clock.Advance(cycles)
	tx.poll(tb.clock.Ticks()) // pre-bake
	for i := 0; i < 3; i++ {
		tx.poll(tb.clock.Ticks())
	}
	assert.EqualValues(t, 16, tx.packets.Load(), "zero rate sends a burst on every poll")
}

func TestRandomBitfield(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 2, TxPoolSize: 2})
	p := tb.port(t, 0)
	require.NoError(t, p.SetBitfield(0, 30, "11111111"))
	require.NoError(t, p.SetFeature(FeatureRandom, true))
	tx, _ := tb.txrx(t, 1)
	p.StartSending()
	tb.step(tx)
	tb.step(tx)

	buf := make([]*low.Mbuf, 4)
	n := tb.lb.Ports()[1].RxBurst(0, buf)
	require.Equal(t, 2, n)
	for _, m := range buf[:n] {
		assert.EqualValues(t, 0xff, m.GetRawPacketBytes()[30])
	}
	low.PutBulk(buf[:n])
}

func TestLatencyProbes(t *testing.T) {
	tb := newTestBed(t, 1, Config{BurstSize: 4, TxPoolSize: 4})
	p := tb.port(t, 0)
	require.NoError(t, p.SetFeature(FeatureLatency, true))
	plans, err := tb.eng.plan([]Assignment{{
		Lcore: 0, Mode: ModeRXTX,
		RX: []QueueRef{{Port: 0, Queue: 0}},
		TX: []QueueRef{{Port: 0, Queue: 0}},
	}})
	require.NoError(t, err)
	tx, rx := plans[0].tx[0], plans[0].rx[0]
	require.True(t, tx.lead)
	p.StartSending()

	tb.step(tx)
	tb.clock.Set(1000)
	tb.step(tx)
	tb.clock.Set(5000)
	assert.Equal(t, 5, receiveAll(rx, tb.clock))

	st := p.Stats()
	assert.EqualValues(t, 1, st.Probes)
	assert.EqualValues(t, 1, st.Latency.Count)
	assert.EqualValues(t, 1, st.Latency.SentProbes)
	assert.EqualValues(t, 4000, st.Latency.MinTicks)
	assert.EqualValues(t, 4000, st.Latency.MinNs)

	// Probe interval is 1 ms, the next burst comes too early for a probe.
	tb.step(tx)
	assert.Equal(t, 4, receiveAll(rx, tb.clock))
	tb.clock.Advance(latency.DefaultProbeIntervalUs * 1000)
	tb.step(tx)
	assert.Equal(t, 5, receiveAll(rx, tb.clock))
	assert.EqualValues(t, 2, p.Stats().Latency.Count)
}

func TestSetLatencyReplacesState(t *testing.T) {
	tb := newTestBed(t, 1, Config{})
	p := tb.port(t, 0)
	before := p.Latency()
	lc := latency.DefaultConfig()
	lc.ProbeIntervalUs = 500
	require.NoError(t, p.SetLatency(lc))

	after := p.Latency()
	assert.NotSame(t, before, after)
	assert.EqualValues(t, 500, after.Config().ProbeIntervalUs)
	assert.EqualValues(t, latency.DefaultProbeIntervalUs, before.Config().ProbeIntervalUs, "old state is left untouched")
	assert.Zero(t, after.Stats().SentProbes)
}

func TestSpecialPackets(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 4, TxPoolSize: 4})
	p := tb.port(t, 0)
	tx, rx := tb.txrx(t, 1)
	p.SendARP(ARPGratuitous)
	p.SendPing4()
	tx.poll(tb.clock.Ticks())
	tx.poll(tb.clock.Ticks())
	assert.Equal(t, 2, receiveAll(rx, tb.clock), "specials fire once without sending")

	st := tb.port(t, 1).Stats()
	assert.EqualValues(t, 1, st.Ether.ARP)
	assert.EqualValues(t, 1, st.Ether.IPv4)
	assert.EqualValues(t, 1, st.Sizes.Broadcast)
	assert.Equal(t, p.special.Size(), p.special.Free())
}

func TestCapture(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 3, TxPoolSize: 3})
	rxPort := tb.port(t, 1)
	path := filepath.Join(t.TempDir(), "rx.pcap")
	require.NoError(t, rxPort.SetCaptureFile(path))
	require.NoError(t, rxPort.SetFeature(FeatureCapture, true))
	tx, rx := tb.txrx(t, 1)
	tb.port(t, 0).StartSending()
	tb.step(tx)
	tb.step(tx)
	assert.Equal(t, 3, receiveAll(rx, tb.clock))
	require.NoError(t, rxPort.SetFeature(FeatureCapture, false))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	count := 0
	for {
		data, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		assert.Len(t, data, types.MinPktSize)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestAssignmentValidation(t *testing.T) {
	tb := newTestBed(t, 2, Config{BurstSize: 4, TxPoolSize: 4})
	bad := map[string][]Assignment{
		"empty":   nil,
		"no mode": {{Lcore: 1, TX: []QueueRef{{0, 0}}}},
		"missing port": {
			{Lcore: 1, Mode: ModeTX, TX: []QueueRef{{5, 0}}},
		},
		"missing queue": {
			{Lcore: 1, Mode: ModeRX, RX: []QueueRef{{0, 2}}},
		},
		"direction": {
			{Lcore: 1, Mode: ModeRX, TX: []QueueRef{{0, 0}}},
		},
		"shared queue": {
			{Lcore: 1, Mode: ModeTX, TX: []QueueRef{{0, 0}}},
			{Lcore: 2, Mode: ModeRXTX, TX: []QueueRef{{0, 0}}},
		},
		"shared lcore": {
			{Lcore: 1, Mode: ModeTX, TX: []QueueRef{{0, 0}}},
			{Lcore: 1, Mode: ModeRX, RX: []QueueRef{{0, 0}}},
		},
	}
	for name, assign := range bad {
		err := tb.eng.Start(assign)
		assert.Equal(t, common.InvalidLcoreAssignment, common.GetNFErrorCode(err), name)
		assert.False(t, tb.eng.Started(), name)
	}
}

func TestStartStop(t *testing.T) {
	lb, err := low.NewLoopback(low.LoopbackConfig{Ports: 2})
	require.NoError(t, err)
	eng, err := NewEngine(Config{BurstSize: 16, TxPoolSize: 64}, lb, low.NewMonotonicClock())
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Start([]Assignment{
		{Lcore: 0, Mode: ModeTX, TX: []QueueRef{{0, 0}}},
		{Lcore: 1, Mode: ModeRX, RX: []QueueRef{{1, 0}}},
	}))
	assert.Equal(t, common.EngineStarted, common.GetNFErrorCode(eng.Start(nil)))
	p0, _ := eng.Port(0)
	require.NoError(t, p0.SetRate(1))
	p0.StartSending()
	assert.True(t, p0.Features().Has(FeatureSending))

	require.Eventually(t, func() bool {
		return eng.Stats()[1].Rx.Packets > 0
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, eng.Stop())
	assert.False(t, p0.Sending())
	assert.Equal(t, common.EngineNotStarted, common.GetNFErrorCode(eng.Stop()))
	assert.NotZero(t, eng.Stats()[0].Tx.Packets)
}

func TestStatsHandler(t *testing.T) {
	tb := newTestBed(t, 2, Config{})
	srv := httptest.NewServer(tb.eng.Handler())
	defer srv.Close()

	get := func(path string) *http.Response {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		return resp
	}

	resp := get("/stats")
	var all []PortStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	resp.Body.Close()
	require.Len(t, all, 2)
	assert.Equal(t, "loop1", all[1].Name)

	resp = get("/stats/1")
	var one PortStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	resp.Body.Close()
	assert.Equal(t, 1, one.Port)
	assert.EqualValues(t, 100, one.Percent)

	for path, code := range map[string]int{
		"/stats/7":   http.StatusNotFound,
		"/stats/abc": http.StatusBadRequest,
		"/other":     http.StatusBadRequest,
		"/":          http.StatusOK,
	} {
		resp := get(path)
		resp.Body.Close()
		assert.Equal(t, code, resp.StatusCode, path)
	}
}

func TestRateSince(t *testing.T) {
	prev := PortStats{Tx: reportPair{Packets: 100, Bytes: 6000}}
	cur := PortStats{Tx: reportPair{Packets: 1100, Bytes: 131000}}
	r := cur.RateSince(prev, time.Second)
	assert.EqualValues(t, 1000, r.TxPPS)
	assert.InDelta(t, 1.0, r.TxMbps, 1e-9)
	assert.Zero(t, r.RxPPS)
}
