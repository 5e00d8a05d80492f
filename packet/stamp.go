// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
)

// LatencyMagic marks a payload as a latency probe stamp.
const LatencyMagic uint32 = 'L'<<8 | 'y'

// StampLen is the size of the probe stamp: magic, reserved word, tick
// timestamp and probe index.
const StampLen = 24

// StampHdr is a view of a latency probe stamp placed right after the L4
// header of a probe.
type StampHdr []byte

// ToStamp returns a stamp view at offset off of b or nil if b is too short.
func ToStamp(b []byte, off int) StampHdr {
	if off < 0 || len(b) < off+StampLen {
		return nil
	}
	return StampHdr(b[off : off+StampLen])
}

// Magic returns the cookie word.
func (hdr StampHdr) Magic() uint32 { return binary.BigEndian.Uint32(hdr[0:4]) }

// Timestamp returns the transmit tick.
func (hdr StampHdr) Timestamp() uint64 { return binary.BigEndian.Uint64(hdr[8:16]) }

// Index returns the probe sequence number.
func (hdr StampHdr) Index() uint64 { return binary.BigEndian.Uint64(hdr[16:24]) }

// IsProbe reports whether the cookie is present.
func (hdr StampHdr) IsProbe() bool { return hdr.Magic() == LatencyMagic }

// Write fills the stamp.
func (hdr StampHdr) Write(ticks, index uint64) {
	binary.BigEndian.PutUint32(hdr[0:4], LatencyMagic)
	binary.BigEndian.PutUint32(hdr[4:8], 0)
	binary.BigEndian.PutUint64(hdr[8:16], ticks)
	binary.BigEndian.PutUint64(hdr[16:24], index)
}

// Clear removes the cookie so a probe is consumed only once.
func (hdr StampHdr) Clear() { binary.BigEndian.PutUint32(hdr[0:4], 0) }
