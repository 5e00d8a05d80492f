// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package latency

import (
	"encoding/csv"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/intel-go/nff-pktgen/common"
)

// SamplerType selects how sample instants are spaced.
type SamplerType uint8

// Sampler types.
const (
	SamplerSimple SamplerType = iota
	SamplerPoisson
)

func (t SamplerType) String() string {
	if t == SamplerPoisson {
		return "poisson"
	}
	return "simple"
}

// ParseSamplerType accepts "simple" and "poisson".
func ParseSamplerType(s string) (SamplerType, error) {
	switch s {
	case "simple", "":
		return SamplerSimple, nil
	case "poisson":
		return SamplerPoisson, nil
	}
	return SamplerSimple, common.WrapWithNFError(nil, "unknown sampler type "+strconv.Quote(s), common.BadLatencyConfig)
}

// Sampler records a bounded series of round trip times in nanoseconds.
type Sampler struct {
	typ     SamplerType
	rate    float64 // samples per second
	hz      uint64
	next    uint64
	samples []uint64
	rng     *rand.Rand
}

// NewSampler creates a sampler keeping at most capacity samples.
func NewSampler(typ SamplerType, rate uint64, capacity int, hz uint64, seed int64) *Sampler {
	return &Sampler{
		typ:     typ,
		rate:    float64(rate),
		hz:      hz,
		samples: make([]uint64, 0, capacity),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Due reports whether now reached the next sample instant.
func (s *Sampler) Due(now uint64) bool {
	return now >= s.next
}

// Record stores rttNs if capacity remains and schedules the next sample
// instant. It returns false when the buffer is full.
func (s *Sampler) Record(now, rttNs uint64) bool {
	s.next = now + s.interval()
	if len(s.samples) == cap(s.samples) {
		return false
	}
	s.samples = append(s.samples, rttNs)
	return true
}

// interval returns ticks until the next sample.
func (s *Sampler) interval() uint64 {
	if s.rate <= 0 {
		return 0
	}
	if s.typ == SamplerPoisson {
		// Exponential inter arrival time: -ln(1-U)/rate seconds.
		return uint64(-math.Log(1-s.rng.Float64()) / s.rate * float64(s.hz))
	}
	return uint64(float64(s.hz) / s.rate)
}

// Samples returns the recorded series.
func (s *Sampler) Samples() []uint64 {
	return s.samples
}

// Full reports whether no more samples fit.
func (s *Sampler) Full() bool {
	return len(s.samples) == cap(s.samples)
}

// WriteCSV writes "index,latency_ns" lines.
func WriteCSV(w io.Writer, samples []uint64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "latency_ns"}); err != nil {
		return err
	}
	for i, v := range samples {
		if err := cw.Write([]string{strconv.Itoa(i), strconv.FormatUint(v, 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes samples into path, replacing the file.
func WriteCSVFile(path string, samples []uint64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return common.WrapWithNFError(err, "cannot create latency sample file "+path, common.FileErr)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "close "+path)
		}
	}()
	if err = WriteCSV(f, samples); err != nil {
		return common.WrapWithNFError(err, "cannot write latency sample file "+path, common.FileErr)
	}
	return nil
}
