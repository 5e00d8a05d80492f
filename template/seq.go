// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

// Selector round robins over sequence slots [0, count).
type Selector struct {
	idx   int
	count int
}

// NewSelector creates selector over count slots.
func NewSelector(count int) Selector {
	return Selector{count: count}
}

// Next returns the current sequence index and advances it.
func (s *Selector) Next() int {
	if s.count <= 0 {
		return 0
	}
	i := s.idx
	s.idx = (s.idx + 1) % s.count
	return i
}

// SetCount changes number of slots, restarting from slot 0 when the
// current index falls outside.
func (s *Selector) SetCount(count int) {
	s.count = count
	if s.idx >= count {
		s.idx = 0
	}
}

// Index returns the index the next call of Next will return.
func (s *Selector) Index() int {
	return s.idx
}
