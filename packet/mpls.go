// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/intel-go/nff-pktgen/common"
)

// MPLSHdr is a view of one MPLS label stack entry.
type MPLSHdr []byte

// ToMPLS returns an MPLS view of b or nil.
func ToMPLS(b []byte) MPLSHdr {
	if len(b) < common.MPLSLen {
		return nil
	}
	return MPLSHdr(b[:common.MPLSLen])
}

func (hdr MPLSHdr) word() uint32 { return binary.BigEndian.Uint32(hdr) }

// GetMPLSLabel returns Label (20 first bits of MPLS header).
func (hdr MPLSHdr) GetMPLSLabel() uint32 { return hdr.word() >> 12 }

// Exp returns the traffic class bits.
func (hdr MPLSHdr) Exp() uint8 { return uint8(hdr.word()>>9) & 0x07 }

// BottomOfStack reports the S bit.
func (hdr MPLSHdr) BottomOfStack() bool { return hdr.word()&0x100 != 0 }

// TTL returns the label TTL.
func (hdr MPLSHdr) TTL() uint8 { return uint8(hdr.word()) }

func (hdr MPLSHdr) String() string {
	s := 0
	if hdr.BottomOfStack() {
		s = 1
	}
	return fmt.Sprintf(`MPLS: Label: %d, EXP: %d, S: %d TTL: %d`, hdr.GetMPLSLabel(), hdr.Exp(), s, hdr.TTL())
}
