// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// EtherClass groups received frames by their outer ether type.
type EtherClass uint8

// Ether classes counted on receive.
const (
	ClassOther EtherClass = iota
	ClassARP
	ClassIPv4
	ClassIPv6
	ClassVLAN
	NumEtherClasses
)

// SizeClass groups received frames by size including FCS.
type SizeClass uint8

// Size classes counted on receive.
const (
	Size64 SizeClass = iota
	Size65To127
	Size128To255
	Size256To511
	Size512To1023
	Size1024To1518
	SizeRunt
	SizeJumbo
	NumSizeClasses
)

// Class is the classification of one received frame.
type Class struct {
	Ether     EtherClass
	Size      SizeClass
	Broadcast bool
	Multicast bool
}

// Classify looks only at the ethernet header and the frame length.
func Classify(raw []byte) Class {
	c := Class{Ether: ClassOther, Size: ClassifySize(len(raw))}
	if len(raw) < common.EtherLen {
		return c
	}
	switch binary.BigEndian.Uint16(raw[12:14]) {
	case types.ARPNumber:
		c.Ether = ClassARP
	case types.IPV4Number:
		c.Ether = ClassIPv4
	case types.IPV6Number:
		c.Ether = ClassIPv6
	case types.VLANNumber:
		c.Ether = ClassVLAN
	}
	switch {
	case raw[0]&raw[1]&raw[2]&raw[3]&raw[4]&raw[5] == 0xff:
		c.Broadcast = true
	case raw[0]&0x01 != 0:
		c.Multicast = true
	}
	return c
}

// ClassifySize buckets a frame length given without FCS.
func ClassifySize(length int) SizeClass {
	plen := length + common.FCSLen
	switch {
	case plen < 64:
		return SizeRunt
	case plen == 64:
		return Size64
	case plen < 128:
		return Size65To127
	case plen < 256:
		return Size128To255
	case plen < 512:
		return Size256To511
	case plen < 1024:
		return Size512To1023
	case plen <= types.JumboSize:
		return Size1024To1518
	default:
		return SizeJumbo
	}
}
