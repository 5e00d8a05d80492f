// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import (
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

// State holds cursors of every range field of one port. It belongs to
// whoever pre-bakes the port and is not safe for concurrent use.
type State struct {
	cursors  [NumFields]Cursor
	cursors6 [NumFields6]Cursor6
	spec     Spec
	synced   bool
}

// NewState creates cursors positioned at the start values of spec.
func NewState(spec *Spec) *State {
	st := &State{}
	st.Reset(spec)
	return st
}

// Reset moves every cursor back to its start value.
func (st *State) Reset(spec *Spec) {
	for i := range st.cursors {
		st.cursors[i].Reset(&spec.Fields[i])
	}
	for i := range st.cursors6 {
		st.cursors6[i].Reset(&spec.Fields6[i])
	}
	st.spec = *spec
	st.synced = true
}

// Sync restarts only the fields whose tuple differs from the spec seen by
// the previous Sync or Reset. Other fields continue from their cursor.
func (st *State) Sync(spec *Spec) {
	for i := range st.cursors {
		if !st.synced || st.spec.Fields[i] != spec.Fields[i] {
			st.cursors[i].Reset(&spec.Fields[i])
		}
	}
	for i := range st.cursors6 {
		if !st.synced || st.spec.Fields6[i] != spec.Fields6[i] {
			st.cursors6[i].Reset(&spec.Fields6[i])
		}
	}
	st.spec = *spec
	st.synced = true
}

// Current returns the value most recently written by Apply for id.
func (st *State) Current(id FieldID) uint64 {
	return st.cursors[id].Current()
}

// Current6 returns the address most recently written by Apply for id.
func (st *State) Current6(id Field6ID) types.IPv6Address {
	return st.cursors6[id].Current()
}

// Apply advances every field once and writes the values into slot. Each
// field depends only on its own cursor.
func (st *State) Apply(spec *Spec, slot *template.PacketSlot) {
	step := func(id FieldID) uint64 {
		return st.cursors[id].Step(&spec.Fields[id])
	}
	slot.SrcIP.Addr = types.IPv4Address(step(SrcIP))
	slot.DstIP = types.IPv4Address(step(DstIP))
	slot.SrcPort = uint16(step(SrcPort))
	slot.DstPort = uint16(step(DstPort))
	slot.VlanID = uint16(step(VlanID))
	slot.CoS = uint8(step(CoS))
	slot.TOS = uint8(step(TOS))
	slot.PktSize = uint16(step(PktSize))
	if slot.PktSize < slot.MinSize() {
		slot.PktSize = slot.MinSize()
	}
	slot.SrcMAC = types.Uint64ToMAC(step(SrcMAC))
	slot.DstMAC = types.Uint64ToMAC(step(DstMAC))
	slot.TTL = uint8(step(TTL))
	slot.TCPSeq = uint32(step(TCPSeq))
	slot.TCPAck = uint32(step(TCPAck))
	slot.TEID = uint32(step(TEID))
	slot.VxlanGID = uint16(step(VxlanGID))
	slot.VxlanVID = uint32(step(VxlanVID))
	slot.MPLSLabel = uint32(step(MPLSLabel))
	slot.QinQOuter = uint16(step(QinQOuter))
	slot.QinQInner = uint16(step(QinQInner))

	slot.SrcIP6 = st.cursors6[SrcIP6].Step(&spec.Fields6[SrcIP6])
	slot.DstIP6 = st.cursors6[DstIP6].Step(&spec.Fields6[DstIP6])
}
