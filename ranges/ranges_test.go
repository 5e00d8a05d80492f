// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ranges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/template"
	"github.com/intel-go/nff-pktgen/types"
)

func walk(f Field, n int) []uint64 {
	var c Cursor
	c.Reset(&f)
	out := make([]uint64, n)
	for i := range out {
		out[i] = c.Step(&f)
	}
	return out
}

func TestWrapAround(t *testing.T) {
	fields := []Field{
		{Start: 1000, Min: 1000, Max: 1004, Inc: 1},
		{Start: 0, Min: 0, Max: 65535, Inc: 5},
		{Start: 10, Min: 10, Max: 40, Inc: 10},
		{Start: 2, Min: 1, Max: 4095, Inc: 7},
		{Start: 0xfffe, Min: 0, Max: 0xffff, Inc: 1},
	}
	for _, f := range fields {
		period := int((f.Max-f.Min)/uint64(f.Inc)) + 1
		vals := walk(f, 3*period+1)
		for _, v := range vals {
			require.True(t, v >= f.Min && v <= f.Max, "value %d outside [%d, %d]", v, f.Min, f.Max)
		}
		if (f.Max-f.Min)%uint64(f.Inc) == 0 && f.Start == f.Min {
			assert.Equal(t, f.Start, vals[period], "walk %+v does not return to start", f)
		}
	}
}

func TestUint16Boundary(t *testing.T) {
	vals := walk(Field{Start: 65534, Min: 0, Max: 65535, Inc: 1}, 4)
	assert.Equal(t, []uint64{65534, 65535, 0, 1}, vals)
}

func TestZeroIncrementHolds(t *testing.T) {
	for _, v := range walk(Field{Start: 7, Min: 0, Max: 10, Inc: 0}, 100) {
		require.EqualValues(t, 7, v)
	}
	// A held field may sit outside its bounds.
	f := Field{Start: 0xaabbcc, Min: 0, Max: 0, Inc: 0}
	require.NoError(t, f.Validate("mac", 1<<48-1))
	assert.Equal(t, []uint64{0xaabbcc, 0xaabbcc}, walk(f, 2))
}

func TestNegativeIncrement(t *testing.T) {
	assert.Equal(t, []uint64{3, 2, 1, 5, 4}, walk(Field{Start: 3, Min: 1, Max: 5, Inc: -1}, 5))
}

func TestFirstStepEmitsStart(t *testing.T) {
	assert.Equal(t, []uint64{1, 2, 3}, walk(Field{Start: 1, Min: 1, Max: 4095, Inc: 1}, 3))
	assert.Equal(t, []uint64{0, 1}, walk(Field{Start: 0, Min: 0, Max: 7, Inc: 1}, 2))
}

func TestValidate(t *testing.T) {
	err := Field{Start: 5, Min: 10, Max: 1}.Validate("x", 100)
	assert.Equal(t, common.BadRange, common.GetNFErrorCode(err))
	err = Field{Start: 5, Min: 10, Max: 20, Inc: 1}.Validate("x", 100)
	assert.Equal(t, common.BadRange, common.GetNFErrorCode(err))
	err = Field{Start: 5, Min: 0, Max: 200, Inc: 1}.Validate("x", 100)
	assert.Equal(t, common.BadRange, common.GetNFErrorCode(err))

	var s Spec
	prev := Field{Start: 1, Min: 1, Max: 2, Inc: 1}
	require.NoError(t, s.Set(VlanID, prev))
	require.Error(t, s.Set(VlanID, Field{Start: 1, Min: 1, Max: 5000, Inc: 1}))
	assert.Equal(t, prev, s.Fields[VlanID])
}

func TestIPv6Walk(t *testing.T) {
	min, _ := types.ParseIPv6("2001:db8::ffff:ffff:ffff:fffe")
	max, _ := types.ParseIPv6("2001:db8:0:1::1")
	f := Field6{Start: min, Min: min, Max: max, Inc: types.Uint64ToIPv6(1)}
	require.NoError(t, f.Validate("ip6"))
	var c Cursor6
	c.Reset(&f)
	want := []string{
		"2001:db8::ffff:ffff:ffff:fffe",
		"2001:db8::ffff:ffff:ffff:ffff",
		"2001:db8:0:1::",
		"2001:db8:0:1::1",
		"2001:db8::ffff:ffff:ffff:fffe",
	}
	for _, w := range want {
		assert.Equal(t, w, c.Step(&f).String())
	}
	bad := Field6{Start: max, Min: max, Max: min}
	assert.Equal(t, common.BadRange, common.GetNFErrorCode(bad.Validate("ip6")))
}

func TestApplyDstPortScenario(t *testing.T) {
	base := template.DefaultSlot(0, types.MACAddress{})
	spec := DefaultSpec(0, &base)
	require.NoError(t, spec.Set(DstPort, Field{Start: 1000, Min: 1000, Max: 1004, Inc: 1}))
	require.NoError(t, spec.Validate())
	st := NewState(&spec)

	var ports []uint16
	for pass := 0; pass < 2; pass++ {
		for i := 0; i < 5; i++ {
			slot := base
			st.Apply(&spec, &slot)
			ports = append(ports, slot.DstPort)
		}
	}
	assert.Equal(t, []uint16{1000, 1001, 1002, 1003, 1004, 1000, 1001, 1002, 1003, 1004}, ports)
}

func TestSyncRestartsChangedFieldsOnly(t *testing.T) {
	base := template.DefaultSlot(0, types.MACAddress{})
	spec := DefaultSpec(0, &base)
	require.NoError(t, spec.Set(DstPort, Field{Start: 1000, Min: 1000, Max: 1004, Inc: 1}))
	require.NoError(t, spec.Set(SrcPort, Field{Start: 10, Min: 10, Max: 90, Inc: 10}))
	st := NewState(&spec)

	walk := func(n int) (dst, src []uint16) {
		for i := 0; i < n; i++ {
			slot := base
			st.Apply(&spec, &slot)
			dst = append(dst, slot.DstPort)
			src = append(src, slot.SrcPort)
		}
		return dst, src
	}
	dst, _ := walk(3)
	assert.Equal(t, []uint16{1000, 1001, 1002}, dst)

	same := spec
	st.Sync(&same)
	dst, src := walk(3)
	assert.Equal(t, []uint16{1003, 1004, 1000}, dst, "unchanged spec continues the walk")
	assert.Equal(t, []uint16{40, 50, 60}, src)

	require.NoError(t, spec.Set(SrcPort, Field{Start: 5, Min: 5, Max: 7, Inc: 1}))
	st.Sync(&spec)
	dst, src = walk(2)
	assert.Equal(t, []uint16{1001, 1002}, dst, "other fields keep their cursor")
	assert.Equal(t, []uint16{5, 6}, src, "changed field restarts with the latch")
}

func TestApplyWritesEveryField(t *testing.T) {
	base := template.DefaultSlot(1, types.MACAddress{0, 0, 0, 0, 0, 0xff})
	spec := DefaultSpec(1, &base)
	require.NoError(t, spec.Validate())
	require.NoError(t, spec.Set(SrcMAC, Field{Start: 0xff, Min: 0, Max: 0x100, Inc: 1}))
	require.NoError(t, spec.Set(VxlanVID, Field{Start: 5, Min: 0, Max: 9, Inc: 2}))
	st := NewState(&spec)

	slot := base
	st.Apply(&spec, &slot)
	st.Apply(&spec, &slot)
	assert.Equal(t, types.BytesToIPv4(192, 168, 2, 2), slot.DstIP)
	assert.Equal(t, types.BytesToIPv4(192, 168, 1, 1), slot.SrcIP.Addr)
	assert.Equal(t, types.MACAddress{0, 0, 0, 0, 1, 0}, slot.SrcMAC)
	assert.EqualValues(t, 7, slot.VxlanVID)
	assert.EqualValues(t, 0, slot.VxlanGID)
	assert.EqualValues(t, 1, slot.DstPort)
	assert.Equal(t, "2001:db8:2::2", slot.DstIP6.String())
	assert.EqualValues(t, 7, st.Current(VxlanVID))
}

func TestLookupField(t *testing.T) {
	id, _, v6, err := LookupField("DST_PORT")
	require.NoError(t, err)
	assert.False(t, v6)
	assert.Equal(t, DstPort, id)
	_, id6, v6, err := LookupField("src_ip6")
	require.NoError(t, err)
	assert.True(t, v6)
	assert.Equal(t, SrcIP6, id6)
	_, _, _, err = LookupField("nope")
	assert.Error(t, err)
}
