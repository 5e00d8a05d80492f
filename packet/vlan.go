// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/intel-go/nff-pktgen/common"
)

// VLANHdr is a view of one 802.1Q tag following the TPID: TCI and the
// encapsulated ether type.
type VLANHdr []byte

// ToVLAN returns a VLAN tag view of b or nil.
func ToVLAN(b []byte) VLANHdr {
	if len(b) < common.VLANLen {
		return nil
	}
	return VLANHdr(b[:common.VLANLen])
}

// TCI returns the whole tag control information.
func (hdr VLANHdr) TCI() uint16 { return binary.BigEndian.Uint16(hdr[0:2]) }

// GetVLANTagIdentifier returns VID (12 bits of TCI).
func (hdr VLANHdr) GetVLANTagIdentifier() uint16 { return hdr.TCI() & 0x0fff }

// Priority returns PCP, also known as CoS.
func (hdr VLANHdr) Priority() uint8 { return uint8(hdr.TCI() >> 13) }

// EtherType is the type of the encapsulated frame.
func (hdr VLANHdr) EtherType() uint16 { return binary.BigEndian.Uint16(hdr[2:4]) }

func (hdr VLANHdr) String() string {
	return fmt.Sprintf("VLAN: VID %d, PCP %d, EtherType %#04x", hdr.GetVLANTagIdentifier(), hdr.Priority(), hdr.EtherType())
}

// MakeTCI packs VLAN id and CoS into TCI the way the constructor does.
func MakeTCI(vid uint16, cos uint8) uint16 {
	return vid&0x0fff | uint16(cos&0x07)<<13
}
