// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bitfield implements random bit noise over transmitted packets.
// A mask string selects per bit whether it is forced to 0, forced to 1,
// kept or randomized on every packet.
package bitfield

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/intel-go/nff-pktgen/common"
)

// MaxSlots is the number of independent bitfield slots per port.
const MaxSlots = 32

// MaxMaskLen is the number of bits covered by one mask.
const MaxMaskLen = 32

// Source is a pseudo random generator, *math/rand.Rand satisfies it.
type Source interface {
	Uint32() uint32
}

// Spec is a compiled mask applied to the big endian 32 bit word at Offset.
type Spec struct {
	Offset  int
	AndMask uint32
	OrMask  uint32
	RndMask uint32
	mask    string
}

// Compile parses a mask of '0', '1', '.', 'X' and 'x' characters, most
// significant bit first. A mask shorter than 32 characters covers the most
// significant bits and leaves the remaining bits untouched.
func Compile(mask string, offset int) (Spec, error) {
	if offset < 0 {
		return Spec{}, common.WrapWithNFError(nil, fmt.Sprintf("bitfield offset %d is negative", offset), common.BadBitfieldMask)
	}
	if len(mask) > MaxMaskLen {
		return Spec{}, common.WrapWithNFError(nil, fmt.Sprintf("bitfield mask %q longer than %d bits", mask, MaxMaskLen), common.BadBitfieldMask)
	}
	var zeros, ones, rnd uint32
	for i, c := range []byte(mask) {
		bit := uint32(1) << uint(MaxMaskLen-1-i)
		switch c {
		case '0':
			zeros |= bit
		case '1':
			ones |= bit
		case 'X', 'x':
			rnd |= bit
		case '.':
		default:
			return Spec{}, common.WrapWithNFError(nil, fmt.Sprintf("bitfield mask %q: bad character %q", mask, c), common.BadBitfieldMask)
		}
	}
	return Spec{
		Offset:  offset,
		AndMask: ^(zeros | rnd),
		OrMask:  ones,
		RndMask: rnd,
		mask:    mask,
	}, nil
}

// Mask returns the source text of the spec.
func (s *Spec) Mask() string {
	return s.mask
}

// ApplyWord perturbs one word. src is used only when the mask has random
// bits.
func (s *Spec) ApplyWord(word uint32, src Source) uint32 {
	word = (word & s.AndMask) | s.OrMask
	if s.RndMask != 0 {
		word |= src.Uint32() & s.RndMask
	}
	return word
}

func (s *Spec) String() string {
	return fmt.Sprintf("offset %d mask %s (and %08x or %08x rnd %08x)", s.Offset, s.mask, s.AndMask, s.OrMask, s.RndMask)
}

// Set is the collection of bitfield slots of one port. It is a value type
// so a copy is an independent configuration snapshot.
type Set struct {
	slots  [MaxSlots]Spec
	active uint32
}

// Configure compiles mask into slot idx. An empty mask disables the slot.
// On error the previous slot content is kept.
func (set *Set) Configure(idx, offset int, mask string) error {
	if idx < 0 || idx >= MaxSlots {
		return common.WrapWithNFError(nil, fmt.Sprintf("bitfield slot %d out of [0, %d)", idx, MaxSlots), common.BadArgument)
	}
	mask = strings.TrimSpace(mask)
	if mask == "" {
		set.slots[idx] = Spec{}
		set.active &^= 1 << uint(idx)
		return nil
	}
	spec, err := Compile(mask, offset)
	if err != nil {
		return err
	}
	set.slots[idx] = spec
	set.active |= 1 << uint(idx)
	return nil
}

// ActiveMask has bit i set when slot i is enabled.
func (set *Set) ActiveMask() uint32 {
	return set.active
}

// Slot returns slot idx and whether it is enabled.
func (set *Set) Slot(idx int) (Spec, bool) {
	if idx < 0 || idx >= MaxSlots {
		return Spec{}, false
	}
	return set.slots[idx], set.active&(1<<uint(idx)) != 0
}

// Apply runs every enabled slot over pkt in increasing slot order. Slots
// whose word does not fit in pkt are skipped.
func (set *Set) Apply(pkt []byte, src Source) {
	for active, i := set.active, 0; active != 0; active, i = active>>1, i+1 {
		if active&1 == 0 {
			continue
		}
		s := &set.slots[i]
		if s.Offset+4 > len(pkt) {
			continue
		}
		w := pkt[s.Offset : s.Offset+4]
		binary.BigEndian.PutUint32(w, s.ApplyWord(binary.BigEndian.Uint32(w), src))
	}
}
