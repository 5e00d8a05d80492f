// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flow

import (
	"strings"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/construct"
)

// Features is the set of per port feature flags.
type Features uint32

// Port features.
const (
	FeatureRange Features = 1 << iota
	FeatureSequence
	FeatureRandom
	FeatureLatency
	FeaturePcap
	FeatureBonding
	FeatureVLAN
	FeatureMPLS
	FeatureQinQ
	FeatureGRE
	FeatureGREEther
	FeatureVxLAN
	FeatureCapture
	FeatureSendForever
	FeatureSending
)

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureRange, "range"},
	{FeatureSequence, "sequence"},
	{FeatureRandom, "random"},
	{FeatureLatency, "latency"},
	{FeaturePcap, "pcap"},
	{FeatureBonding, "bonding"},
	{FeatureVLAN, "vlan"},
	{FeatureMPLS, "mpls"},
	{FeatureQinQ, "qinq"},
	{FeatureGRE, "gre"},
	{FeatureGREEther, "gre_eth"},
	{FeatureVxLAN, "vxlan"},
	{FeatureCapture, "capture"},
	{FeatureSendForever, "send_forever"},
	{FeatureSending, "sending"},
}

// Features that exclude each other. Turning one on clears the rest of its
// group.
var exclusiveGroups = []Features{
	FeatureRange | FeatureSequence | FeaturePcap,
	FeatureVLAN | FeatureQinQ | FeatureMPLS,
	FeatureGRE | FeatureGREEther,
}

// ParseFeature returns feature by its name.
func ParseFeature(name string) (Features, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, fn := range featureNames {
		if fn.name == name {
			return fn.f, nil
		}
	}
	return 0, common.WrapWithNFError(nil, "unknown feature "+name, common.BadArgument)
}

// Has reports whether every feature of f is set.
func (fs Features) Has(f Features) bool {
	return fs&f == f
}

// With returns fs with f turned on or off. Turning on a feature clears the
// features it excludes.
func (fs Features) With(f Features, on bool) Features {
	if !on {
		return fs &^ f
	}
	for _, group := range exclusiveGroups {
		if group&f != 0 {
			fs &^= group
		}
	}
	return fs | f
}

// Range reports whether the range pool is transmitted.
func (fs Features) Range() bool { return fs.Has(FeatureRange) }

// Sequence reports whether the sequence pool is transmitted.
func (fs Features) Sequence() bool { return fs.Has(FeatureSequence) }

// Random reports whether bitfield noise is applied to every burst.
func (fs Features) Random() bool { return fs.Has(FeatureRandom) }

// Latency reports whether probes are injected.
func (fs Features) Latency() bool { return fs.Has(FeatureLatency) }

// Pcap reports whether the external capture size drives the rate.
func (fs Features) Pcap() bool { return fs.Has(FeaturePcap) }

// Bonding reports whether keep-alive bursts are sent.
func (fs Features) Bonding() bool { return fs.Has(FeatureBonding) }

// Capture reports whether received packets are written to a pcap file.
func (fs Features) Capture() bool { return fs.Has(FeatureCapture) }

// SendForever reports whether the transmit budget is ignored.
func (fs Features) SendForever() bool { return fs.Has(FeatureSendForever) }

// Encap maps encapsulation features onto constructor flags.
func (fs Features) Encap() construct.Encap {
	var enc construct.Encap
	if fs.Has(FeatureVLAN) {
		enc |= construct.EncapVLAN
	}
	if fs.Has(FeatureQinQ) {
		enc |= construct.EncapQinQ
	}
	if fs.Has(FeatureMPLS) {
		enc |= construct.EncapMPLS
	}
	if fs.Has(FeatureGRE) {
		enc |= construct.EncapGRE
	}
	if fs.Has(FeatureGREEther) {
		enc |= construct.EncapGREEther
	}
	if fs.Has(FeatureVxLAN) {
		enc |= construct.EncapVXLAN
	}
	return enc
}

type poolMode int

const (
	poolSingle poolMode = iota
	poolRange
	poolSequence
	numPoolModes
)

func (fs Features) poolMode() poolMode {
	switch {
	case fs.Range():
		return poolRange
	case fs.Sequence():
		return poolSequence
	}
	return poolSingle
}

func (m poolMode) String() string {
	switch m {
	case poolRange:
		return "range"
	case poolSequence:
		return "sequence"
	}
	return "single"
}

func (fs Features) String() string {
	var names []string
	for _, fn := range featureNames {
		if fs.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// MarshalText prints the set as comma separated names.
func (fs Features) MarshalText() ([]byte, error) {
	return []byte(fs.String()), nil
}

// UnmarshalText parses comma separated feature names.
func (fs *Features) UnmarshalText(b []byte) error {
	var set Features
	for _, name := range strings.Split(string(b), ",") {
		if name == "" || name == "none" {
			continue
		}
		f, err := ParseFeature(name)
		if err != nil {
			return err
		}
		set |= f
	}
	*fs = set
	return nil
}
