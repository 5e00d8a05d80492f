// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const hz = 2000000000

func TestTenGigLineRate(t *testing.T) {
	assert.EqualValues(t, 672, WireBits(60))
	st := Calculate(Params{LinkSpeedMbps: 10000, Percent: 100, PktSize: 60, Queues: 1, Burst: 32, Hz: hz})
	assert.InDelta(t, 1.488e7, float64(st.TxPPS), 1e4)
	assert.EqualValues(t, (hz/st.TxPPS)*32, st.TxCycles)
}

func TestCyclesScaling(t *testing.T) {
	base := Params{LinkSpeedMbps: 10000, Percent: 10, PktSize: 60, Queues: 1, Burst: 16, Hz: hz}
	a := Calculate(base)
	base.Burst = 32
	b := Calculate(base)
	assert.Equal(t, 2*a.TxCycles, b.TxCycles)

	base.Burst = 16
	base.Percent = 5
	c := Calculate(base)
	assert.InDelta(t, float64(a.TxPPS)/2, float64(c.TxPPS), 1)
	assert.InDelta(t, float64(2*a.TxCycles), float64(c.TxCycles), float64(a.TxCycles)/50)
}

func TestQueuesSplitRate(t *testing.T) {
	one := Calculate(Params{LinkSpeedMbps: 1000, Percent: 100, PktSize: 1514, Queues: 1, Burst: 8, Hz: hz})
	four := Calculate(Params{LinkSpeedMbps: 1000, Percent: 100, PktSize: 1514, Queues: 4, Burst: 8, Hz: hz})
	assert.InDelta(t, float64(one.TxPPS)/4, float64(four.TxPPS), 1)
	assert.Equal(t, 4, four.Queues)
}

func TestPacingDisabled(t *testing.T) {
	for _, p := range []Params{
		{LinkSpeedMbps: 0, Percent: 100, PktSize: 60, Queues: 1, Burst: 32, Hz: hz},
		{LinkSpeedMbps: 10000, Percent: 0, PktSize: 60, Queues: 1, Burst: 32, Hz: hz},
	} {
		st := Calculate(p)
		assert.Zero(t, st.TxCycles)
		assert.Zero(t, st.TxPPS)
	}
}

func TestMinimumOnePPS(t *testing.T) {
	st := Calculate(Params{LinkSpeedMbps: 1, Percent: 0.0001, PktSize: 1514, Queues: 8, Burst: 1, Hz: hz})
	assert.EqualValues(t, 1, st.TxPPS)
	assert.EqualValues(t, hz*8, st.TxCycles)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(0))
	assert.NoError(t, Validate(100))
	assert.Error(t, Validate(101))
	assert.Error(t, Validate(-1))
}
