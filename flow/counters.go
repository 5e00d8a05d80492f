// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/latency"
	"github.com/intel-go/nff-pktgen/packet"
)

// Tuple of counted packets and bytes.
type reportPair struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// QueueStats are counters of one queue.
type QueueStats struct {
	Queue   int    `json:"queue"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
	Dropped uint64 `json:"dropped,omitempty"`
	NoMbufs uint64 `json:"no_mbufs,omitempty"`
}

// EtherStats count received frames by ether type.
type EtherStats struct {
	ARP   uint64 `json:"arp"`
	IPv4  uint64 `json:"ipv4"`
	IPv6  uint64 `json:"ipv6"`
	VLAN  uint64 `json:"vlan"`
	Other uint64 `json:"other"`
}

// SizeStats count received frames by size including FCS.
type SizeStats struct {
	Size64       uint64 `json:"64"`
	Size65To127  uint64 `json:"65_127"`
	Size128To255 uint64 `json:"128_255"`
	Size256To511 uint64 `json:"256_511"`
	Size512To1K  uint64 `json:"512_1023"`
	Size1KTo1518 uint64 `json:"1024_1518"`
	Runt         uint64 `json:"runt"`
	Jumbo        uint64 `json:"jumbo"`
	Broadcast    uint64 `json:"broadcast"`
	Multicast    uint64 `json:"multicast"`
}

// PortStats is a read only snapshot of port counters.
type PortStats struct {
	Port      int           `json:"port"`
	Name      string        `json:"name"`
	LinkUp    bool          `json:"link_up"`
	SpeedMbps uint32        `json:"speed_mbps"`
	Features  Features      `json:"features"`
	Percent   float64       `json:"rate_percent"`
	TxPPS     uint64        `json:"tx_pps"`
	TxCycles  uint64        `json:"tx_cycles"`
	Tx        reportPair    `json:"tx"`
	Rx        reportPair    `json:"rx"`
	TxDropped uint64        `json:"tx_dropped"`
	NoMbufs   uint64        `json:"no_mbufs"`
	Probes    uint64        `json:"probes"`
	Latency   latency.Stats `json:"latency"`
	Ether     EtherStats    `json:"ether"`
	Sizes     SizeStats     `json:"sizes"`
	Captured  uint64        `json:"captured"`
	CaptureDr uint64        `json:"capture_dropped"`
	TxQueues  []QueueStats  `json:"tx_queues"`
	RxQueues  []QueueStats  `json:"rx_queues"`
}

// Stats returns a snapshot of port counters.
func (p *Port) Stats() PortStats {
	cfg := p.cfg.Load()
	s := PortStats{
		Port:      p.id,
		Name:      p.info.Name,
		LinkUp:    p.info.Up,
		SpeedMbps: p.info.SpeedMbps,
		Features:  p.Features(),
		Percent:   cfg.Percent,
		TxPPS:     cfg.Rate.TxPPS,
		TxCycles:  cfg.Rate.TxCycles,
		Probes:    p.classes.probes.Load(),
		Latency:   p.lat.Load().Stats(),
	}
	p.ctl.Lock()
	txq, rxq := p.txq, p.rxq
	p.ctl.Unlock()
	for _, q := range txq {
		qs := QueueStats{
			Queue:   int(q.id),
			Packets: q.packets.Load(),
			Bytes:   q.bytes.Load(),
			Dropped: q.dropped.Load(),
			NoMbufs: q.noMbufs.Load(),
		}
		s.Tx.Packets += qs.Packets
		s.Tx.Bytes += qs.Bytes
		s.TxDropped += qs.Dropped
		s.NoMbufs += qs.NoMbufs
		s.TxQueues = append(s.TxQueues, qs)
	}
	for _, q := range rxq {
		qs := QueueStats{Queue: int(q.id), Packets: q.packets.Load(), Bytes: q.bytes.Load()}
		s.Rx.Packets += qs.Packets
		s.Rx.Bytes += qs.Bytes
		s.RxQueues = append(s.RxQueues, qs)
	}
	cc := &p.classes
	s.Ether = EtherStats{
		ARP:   cc.ether[packet.ClassARP].Load(),
		IPv4:  cc.ether[packet.ClassIPv4].Load(),
		IPv6:  cc.ether[packet.ClassIPv6].Load(),
		VLAN:  cc.ether[packet.ClassVLAN].Load(),
		Other: cc.ether[packet.ClassOther].Load(),
	}
	s.Sizes = SizeStats{
		Size64:       cc.size[packet.Size64].Load(),
		Size65To127:  cc.size[packet.Size65To127].Load(),
		Size128To255: cc.size[packet.Size128To255].Load(),
		Size256To511: cc.size[packet.Size256To511].Load(),
		Size512To1K:  cc.size[packet.Size512To1023].Load(),
		Size1KTo1518: cc.size[packet.Size1024To1518].Load(),
		Runt:         cc.size[packet.SizeRunt].Load(),
		Jumbo:        cc.size[packet.SizeJumbo].Load(),
		Broadcast:    cc.broadcast.Load(),
		Multicast:    cc.multicast.Load(),
	}
	s.Captured, s.CaptureDr = p.CaptureStats()
	return s
}

// Stats returns snapshots of every port.
func (e *Engine) Stats() []PortStats {
	stats := make([]PortStats, len(e.ports))
	for i, p := range e.ports {
		stats[i] = p.Stats()
	}
	return stats
}

// Rate is the traffic of one port between two snapshots.
type Rate struct {
	TxPPS  uint64
	RxPPS  uint64
	TxMbps float64
	RxMbps float64
}

func (current reportPair) normalize(prev reportPair, elapsed time.Duration) (pps uint64, mbps float64) {
	sec := elapsed.Seconds()
	if sec <= 0 {
		return 0, 0
	}
	if current.Packets < prev.Packets || current.Bytes < prev.Bytes {
		prev = reportPair{}
	}
	pps = uint64(float64(current.Packets-prev.Packets) / sec)
	mbps = float64(current.Bytes-prev.Bytes) * 8 / sec / 1e6
	return pps, mbps
}

// RateSince computes traffic since prev taken elapsed ago.
func (s PortStats) RateSince(prev PortStats, elapsed time.Duration) Rate {
	var r Rate
	r.TxPPS, r.TxMbps = s.Tx.normalize(prev.Tx, elapsed)
	r.RxPPS, r.RxMbps = s.Rx.normalize(prev.Rx, elapsed)
	return r
}

// Handler returns the HTTP handler of the statistics endpoint.
func (e *Engine) Handler() http.Handler {
	return http.HandlerFunc(e.handler)
}

func (e *Engine) handler(w http.ResponseWriter, r *http.Request) {
	url := strings.Split(strings.TrimSuffix(r.URL.Path, "/"), "/")
	if len(url) < 2 || url[1] == "" {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
/<a href="/stats">stats</a> for counters of all ports or /stats/id for an
individual port. Counters include sent and received packets and bytes,
pacing, latency and receive classification.
</body></html>`)
		return
	}

	enc := json.NewEncoder(w)

	if url[1] != "stats" {
		http.Error(w, "Bad request: "+url[1], http.StatusBadRequest)
		return
	}
	if len(url) > 2 {
		id, err := strconv.Atoi(url[2])
		if err != nil {
			http.Error(w, "Bad port: "+url[2], http.StatusBadRequest)
			return
		}
		p, err := e.Port(id)
		if err != nil {
			http.Error(w, "Bad port: "+url[2], http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		enc.Encode(p.Stats())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc.Encode(e.Stats())
}

// ServeStats serves the statistics endpoint on addr until the returned
// server is closed.
func (e *Engine) ServeStats(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/", e.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, common.WrapWithNFError(err, "can't listen on "+addr, common.BadArgument)
	}
	common.LogDebug(common.Initialization, "Serving statistics on", listener.Addr())

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			common.LogWarning(common.Initialization, "Error while serving HTTP requests:", err)
			server.Close()
		}
	}()

	return server, nil
}
