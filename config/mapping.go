// Copyright 2018 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"sort"
	"strings"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/flow"
)

// Limits of the lcore map.
const (
	MaxLcores = 256
	MaxPorts  = 64
)

// ParseMapping parses a pktgen style lcore map. Entries are separated by
// commas outside of brackets:
//
//	1.0          lcore 1 receives and transmits on port 0
//	[1:2].0      lcore 1 receives and lcore 2 transmits on port 0
//	[1-2:3-4].1  lcores 1 and 2 receive, 3 and 4 transmit on port 1
//	2.[0-1]      lcore 2 receives and transmits on ports 0 and 1
//
// Every lcore serving a port takes the next free queue of that port in
// its direction. An lcore with queues in both directions runs in RXTX mode.
func ParseMapping(s string) ([]flow.Assignment, error) {
	entries, err := splitEntries(s)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, badMapping(s, "empty map")
	}

	nextRx := make(map[int]int)
	nextTx := make(map[int]int)
	byLcore := make(map[int]*flow.Assignment)
	var order []int
	get := func(lcore int) *flow.Assignment {
		a, ok := byLcore[lcore]
		if !ok {
			a = &flow.Assignment{Lcore: lcore}
			byLcore[lcore] = a
			order = append(order, lcore)
		}
		return a
	}

	for _, entry := range entries {
		dot := strings.LastIndexByte(entry, '.')
		if dot <= 0 || dot == len(entry)-1 {
			return nil, badMapping(entry, "expected lcores.ports")
		}
		rxCores, txCores, err := parseLcores(entry[:dot])
		if err != nil {
			return nil, err
		}
		ports, err := parseList(entry[dot+1:], MaxPorts)
		if err != nil {
			return nil, err
		}
		for _, port := range ports {
			for _, lcore := range rxCores {
				a := get(lcore)
				a.RX = append(a.RX, flow.QueueRef{Port: port, Queue: nextRx[port]})
				nextRx[port]++
			}
			for _, lcore := range txCores {
				a := get(lcore)
				a.TX = append(a.TX, flow.QueueRef{Port: port, Queue: nextTx[port]})
				nextTx[port]++
			}
		}
	}

	sort.Ints(order)
	assign := make([]flow.Assignment, 0, len(order))
	for _, lcore := range order {
		a := byLcore[lcore]
		switch {
		case len(a.RX) != 0 && len(a.TX) != 0:
			a.Mode = flow.ModeRXTX
		case len(a.TX) != 0:
			a.Mode = flow.ModeTX
		default:
			a.Mode = flow.ModeRX
		}
		assign = append(assign, *a)
	}
	return assign, nil
}

// splitEntries splits s on commas that are not inside brackets.
func splitEntries(s string) ([]string, error) {
	var entries []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, badMapping(s, "unbalanced brackets")
			}
		case ',':
			if depth == 0 {
				entries = appendEntry(entries, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, badMapping(s, "unbalanced brackets")
	}
	return appendEntry(entries, s[start:]), nil
}

func appendEntry(entries []string, e string) []string {
	if e = strings.TrimSpace(e); e != "" {
		entries = append(entries, e)
	}
	return entries
}

// parseLcores parses "1", "1-3", "[1:2]" or "[1-2:3-4]".
func parseLcores(s string) (rx, tx []int, err error) {
	if !strings.HasPrefix(s, "[") {
		cores, err := parseList(s, MaxLcores)
		return cores, cores, err
	}
	if !strings.HasSuffix(s, "]") {
		return nil, nil, badMapping(s, "missing ]")
	}
	parts := strings.Split(s[1:len(s)-1], ":")
	switch len(parts) {
	case 1:
		cores, err := parseList(parts[0], MaxLcores)
		return cores, cores, err
	case 2:
		if rx, err = parseList(parts[0], MaxLcores); err != nil {
			return nil, nil, err
		}
		if tx, err = parseList(parts[1], MaxLcores); err != nil {
			return nil, nil, err
		}
		return rx, tx, nil
	}
	return nil, nil, badMapping(s, "expected [rx:tx]")
}

func parseList(s string, limit int) ([]int, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return nil, badMapping(s, "empty list")
	}
	nums, err := common.ParseCPUs(s, limit)
	if err != nil {
		return nil, common.WrapWithNFError(err, "bad lcore map list "+s, common.BadLcoreMapping)
	}
	return nums, nil
}

func badMapping(s, why string) error {
	return common.WrapWithNFError(nil, "bad lcore map "+s+": "+why, common.BadLcoreMapping)
}
