// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ranges walks packet fields between configured bounds while a
// packet pool is pre-materialized.
package ranges

import (
	"fmt"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// Field is the {start, min, max, inc} tuple of one integer field. MAC
// addresses use their 48 bit value and IPv4 addresses their host order
// 32 bit value.
type Field struct {
	Start uint64
	Min   uint64
	Max   uint64
	Inc   int64
}

// Validate checks bounds against the field width. A held field (Inc == 0)
// may keep Start outside [Min, Max].
func (f Field) Validate(name string, limit uint64) error {
	if f.Min > f.Max {
		return common.WrapWithNFError(nil, fmt.Sprintf("range %s: min %d exceeds max %d", name, f.Min, f.Max), common.BadRange)
	}
	if f.Max > limit || f.Start > limit {
		return common.WrapWithNFError(nil, fmt.Sprintf("range %s: value exceeds %d", name, limit), common.BadRange)
	}
	if f.Inc != 0 && (f.Start < f.Min || f.Start > f.Max) {
		return common.WrapWithNFError(nil, fmt.Sprintf("range %s: start %d outside [%d, %d]", name, f.Start, f.Min, f.Max), common.BadRange)
	}
	return nil
}

// Cursor is the walking position of one Field.
type Cursor struct {
	cur    uint64
	primed bool
}

// Reset restarts the walk at f.Start.
func (c *Cursor) Reset(f *Field) {
	c.cur = f.Start
	c.primed = false
}

// Current returns the last value produced by Step, or the start value
// before the first Step.
func (c *Cursor) Current() uint64 {
	return c.cur
}

// Step returns the next value of the walk. The first Step after Reset
// yields Start itself so the first packet carries the configured value.
func (c *Cursor) Step(f *Field) uint64 {
	if !c.primed {
		c.primed = true
		return c.cur
	}
	if f.Inc == 0 {
		return c.cur
	}
	// Fields are at most 48 bits wide, so int64 never overflows here.
	next := int64(c.cur) + f.Inc
	if next < int64(f.Min) {
		next = int64(f.Max)
	} else if next > int64(f.Max) {
		next = int64(f.Min)
	}
	c.cur = uint64(next)
	return c.cur
}

// Field6 is the IPv6 counterpart of Field. Inc is added as an unsigned
// 128 bit number.
type Field6 struct {
	Start types.IPv6Address
	Min   types.IPv6Address
	Max   types.IPv6Address
	Inc   types.IPv6Address
}

// Validate checks byte wise ordering of the bounds.
func (f Field6) Validate(name string) error {
	if f.Min.Compare(f.Max) > 0 {
		return common.WrapWithNFError(nil, fmt.Sprintf("range %s: min %v exceeds max %v", name, f.Min, f.Max), common.BadRange)
	}
	if !f.Inc.IsZero() && (f.Start.Compare(f.Min) < 0 || f.Start.Compare(f.Max) > 0) {
		return common.WrapWithNFError(nil, fmt.Sprintf("range %s: start %v outside [%v, %v]", name, f.Start, f.Min, f.Max), common.BadRange)
	}
	return nil
}

// Cursor6 is the walking position of one Field6.
type Cursor6 struct {
	cur    types.IPv6Address
	primed bool
}

// Reset restarts the walk at f.Start.
func (c *Cursor6) Reset(f *Field6) {
	c.cur = f.Start
	c.primed = false
}

// Current returns the last produced address.
func (c *Cursor6) Current() types.IPv6Address {
	return c.cur
}

// Step returns the next address, wrapping to Min past Max. Carry out of
// 128 bits also counts as passing Max.
func (c *Cursor6) Step(f *Field6) types.IPv6Address {
	if !c.primed {
		c.primed = true
		return c.cur
	}
	if f.Inc.IsZero() {
		return c.cur
	}
	next := c.cur.Add(f.Inc)
	if next.Compare(c.cur) < 0 || next.Compare(f.Max) > 0 || next.Compare(f.Min) < 0 {
		next = f.Min
	}
	c.cur = next
	return c.cur
}
