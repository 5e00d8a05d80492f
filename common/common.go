// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package common is used for combining common functions from other packages
// of the traffic generator: logging, error kinds and CPU list parsing.
package common

import (
	"strconv"
	"strings"
)

// Length of addresses.
const (
	EtherAddrLen = 6
	IPv4AddrLen  = 4
	IPv6AddrLen  = 16
)

// These constants keep length of supported headers in bytes.
//
// IPv6Len - minimum length of IPv6 header in bytes. Extension headers are
// never generated, so it is also the exact length for generated packets.
//
// GREKeyLen - length of a GRE header with the key field present.
const (
	EtherLen   = 14
	VLANLen    = 4
	MPLSLen    = 4
	IPv4MinLen = 20
	IPv6Len    = 40
	ICMPLen    = 8
	TCPMinLen  = 20
	UDPLen     = 8
	ARPLen     = 28
	GTPMinLen  = 8
	GRELen     = 4
	GREKeyLen  = 8
	VXLANLen   = 8
)

// Ethernet framing that occupies the wire but is not part of the frame
// handed to the NIC: preamble, start of frame delimiter, inter frame gap
// and frame check sequence.
const (
	PreambleLen = 7
	SFDLen      = 1
	IFGLen      = 12
	FCSLen      = 4

	WireOverhead = PreambleLen + SFDLen + IFGLen + FCSLen
)

// GetDefaultCPUs returns default core list {0, 1, ..., cpuNumber-1}
func GetDefaultCPUs(cpuNumber int) []int {
	cpus := make([]int, cpuNumber)
	for i := 0; i < cpuNumber; i++ {
		cpus[i] = i
	}
	return cpus
}

// ParseCPUs parses cpu list string like "1,3-5" into array of cpu numbers.
// Duplicates are removed and every cpu must be lower than maxCPU.
func ParseCPUs(s string, maxCPU int) ([]int, error) {
	nums, err := parseCPUs(s)
	if err != nil {
		return nil, WrapWithNFError(err, "failed to parse cpu list "+strconv.Quote(s), ParseCPUListErr)
	}
	nums = removeDuplicates(nums)
	for _, cpu := range nums {
		if cpu >= maxCPU {
			return nil, WrapWithNFError(nil, "requested cpu "+strconv.Itoa(cpu)+" exceeds maximum cores number on machine", MaxCPUExceedErr)
		}
	}
	return nums, nil
}

func parseCPUs(s string) ([]int, error) {
	nums := []int{}
	if s == "" {
		return nums, nil
	}
	for _, part := range strings.Split(s, ",") {
		bounds := strings.SplitN(part, "-", 2)
		first, err := strconv.Atoi(bounds[0])
		if err != nil {
			return nums, err
		}
		if len(bounds) == 1 {
			nums = append(nums, first)
			continue
		}
		last, err := strconv.Atoi(bounds[1])
		if err != nil {
			return nums, err
		}
		if first > last {
			return nums, WrapWithNFError(nil, "CPU range is invalid, min should not exceed max", InvalidCPURangeErr)
		}
		for k := first; k <= last; k++ {
			nums = append(nums, k)
		}
	}
	return nums, nil
}

func removeDuplicates(array []int) []int {
	result := []int{}
	seen := map[int]bool{}
	for _, val := range array {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}
