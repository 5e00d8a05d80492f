// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/golang-collections/go-datastructures/queue"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/multierr"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

const (
	initSizeCaptureQueue = 1024
	captureBatch         = 64
)

type capturedPacket struct {
	ts   time.Time
	data []byte
}

// flushMarker tells the writer that no more packets follow.
type flushMarker struct{}

// capture copies received packets to a queue drained by a writer goroutine
// into a pcap file.
type capture struct {
	path    string
	file    *os.File
	w       *pcapgo.Writer
	pkts    *queue.Queue
	limit   int64
	done    chan error
	written atomic.Uint64
	dropped atomic.Uint64
}

func openCapture(path string, limit int64) (*capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, common.WrapWithNFError(err, "can't create capture file "+path, common.FileErr)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(types.JumboSize, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, common.WrapWithNFError(err, "can't write pcap header to "+path, common.PcapWriteFail)
	}
	c := &capture{
		path:  path,
		file:  f,
		w:     w,
		pkts:  queue.New(initSizeCaptureQueue),
		limit: limit,
		done:  make(chan error, 1),
	}
	go c.run()
	return c, nil
}

// put is called by rx lcores. Packets beyond the queue limit are dropped.
func (c *capture) put(raw []byte, ts time.Time) {
	if c.limit > 0 && c.pkts.Len() >= c.limit {
		c.dropped.Add(1)
		return
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	if err := c.pkts.Put(capturedPacket{ts: ts, data: data}); err != nil {
		c.dropped.Add(1)
	}
}

func (c *capture) run() {
	var werr error
	for {
		items, err := c.pkts.Get(captureBatch)
		if err != nil {
			c.done <- werr
			return
		}
		for _, item := range items {
			switch pkt := item.(type) {
			case flushMarker:
				c.done <- werr
				return
			case capturedPacket:
				if werr != nil {
					c.dropped.Add(1)
					continue
				}
				ci := gopacket.CaptureInfo{
					Timestamp:     pkt.ts,
					CaptureLength: len(pkt.data),
					Length:        len(pkt.data),
				}
				if err := c.w.WritePacket(ci, pkt.data); err != nil {
					werr = common.WrapWithNFError(err, "can't write packet to "+c.path, common.PcapWriteFail)
					continue
				}
				c.written.Add(1)
			}
		}
	}
}

// close writes everything queued before it and closes the file.
func (c *capture) close() error {
	var err error
	if perr := c.pkts.Put(flushMarker{}); perr != nil {
		err = perr
	}
	err = multierr.Append(err, <-c.done)
	c.pkts.Dispose()
	if cerr := c.file.Close(); cerr != nil {
		err = multierr.Append(err, common.WrapWithNFError(cerr, "can't close "+c.path, common.FileErr))
	}
	common.LogDebug(common.Debug, "Capture", c.path, "closed with", c.written.Load(), "packets,", c.dropped.Load(), "dropped")
	return err
}

func (p *Port) openCaptureLocked() error {
	path := p.cfg.Load().CaptureFile
	if path == "" {
		return common.WrapWithNFError(nil, "port "+p.info.Name+" has no capture file", common.BadArgument)
	}
	c, err := openCapture(path, p.engine.config.CaptureQueueLimit)
	if err != nil {
		return err
	}
	if old := p.capture.Swap(c); old != nil {
		return old.close()
	}
	p.log.Info("capture started: " + path)
	return nil
}

func (p *Port) closeCapture() error {
	c := p.capture.Swap(nil)
	if c == nil {
		return nil
	}
	return c.close()
}

// CaptureStats returns the number of written and dropped packets of the
// running capture.
func (p *Port) CaptureStats() (written, dropped uint64) {
	if c := p.capture.Load(); c != nil {
		return c.written.Load(), c.dropped.Load()
	}
	return 0, 0
}
