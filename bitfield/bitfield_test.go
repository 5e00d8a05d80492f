// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bitfield

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-pktgen/common"
)

func TestCompile(t *testing.T) {
	s, err := Compile("10.X", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Offset)
	assert.EqualValues(t, 0x80000000, s.OrMask)
	assert.EqualValues(t, 0x10000000, s.RndMask)
	assert.EqualValues(t, ^uint32(0x50000000), s.AndMask)

	full, err := Compile("00000000111111111111111100000000", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x00ffff00, full.OrMask)
	assert.EqualValues(t, 0x00ffff00, full.AndMask)
}

func TestCompileErrors(t *testing.T) {
	for _, mask := range []string{"01a", "1111111111111111111111111111111111", "1 0"} {
		_, err := Compile(mask, 0)
		assert.Equal(t, common.BadBitfieldMask, common.GetNFErrorCode(err), mask)
	}
}

func TestMasksAreDisjoint(t *testing.T) {
	s, err := Compile("01.Xx10.", 0)
	require.NoError(t, err)
	forcedZero := ^s.AndMask &^ s.RndMask
	assert.Zero(t, forcedZero&s.OrMask)
	assert.Zero(t, forcedZero&s.RndMask)
	assert.Zero(t, s.OrMask&s.RndMask)
}

func TestFixedBitsIndependentOfInput(t *testing.T) {
	s, err := Compile("1100..01", 0)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(13))
	want := s.ApplyWord(0, r) & 0xf3000000
	for i := 0; i < 1000; i++ {
		w := r.Uint32()
		got := s.ApplyWord(w, r)
		require.Equal(t, want, got&0xf3000000)
		// Untouched bits pass through.
		require.Equal(t, w&0x0cffffff, got&0x0cffffff)
	}
}

func TestRandomBitsVary(t *testing.T) {
	s, err := Compile("XXXX", 0)
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))
	seen := map[uint32]bool{}
	for i := 0; i < 1000; i++ {
		seen[s.ApplyWord(0x12345678, r)] = true
	}
	assert.Greater(t, len(seen), 1)
	for v := range seen {
		assert.EqualValues(t, 0x02345678, v&0x0fffffff)
	}
}

func TestSetApplyOrder(t *testing.T) {
	var set Set
	require.NoError(t, set.Configure(0, 0, "11111111"))
	require.NoError(t, set.Configure(1, 0, "00000000"))
	require.NoError(t, set.Configure(5, 2, "1"))
	pkt := []byte{0x5a, 0xa5, 0x00, 0x00, 0x00, 0x00}
	set.Apply(pkt, rand.New(rand.NewSource(1)))
	// Slot 1 runs after slot 0 and wins on the shared byte.
	assert.Equal(t, []byte{0x00, 0xa5, 0x80, 0x00, 0x00, 0x00}, pkt)
	assert.EqualValues(t, 0x23, set.ActiveMask())
}

func TestSetConfigureKeepsOldOnError(t *testing.T) {
	var set Set
	require.NoError(t, set.Configure(3, 10, "1."))
	require.Error(t, set.Configure(3, 11, "1z"))
	s, on := set.Slot(3)
	assert.True(t, on)
	assert.Equal(t, 10, s.Offset)
	assert.Equal(t, "1.", s.Mask())

	require.NoError(t, set.Configure(3, 0, ""))
	_, on = set.Slot(3)
	assert.False(t, on)
	assert.Error(t, set.Configure(MaxSlots, 0, "1"))
}

func TestSetApplySkipsShortPacket(t *testing.T) {
	var set Set
	require.NoError(t, set.Configure(0, 60, "1111"))
	pkt := make([]byte, 62)
	set.Apply(pkt, rand.New(rand.NewSource(1)))
	assert.Equal(t, make([]byte, 62), pkt)
}
