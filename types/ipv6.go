// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"

	"inet.af/netaddr"
)

// IPv6Address is a 16 byte address in wire order.
type IPv6Address [IPv6AddrLen]uint8

func (addr IPv6Address) String() string {
	return netaddr.IPFrom16(addr).String()
}

// ParseIPv6 parses IPv6 address text.
func ParseIPv6(s string) (IPv6Address, error) {
	ip, err := netaddr.ParseIP(s)
	if err != nil {
		return IPv6Address{}, err
	}
	if !ip.Is6() {
		return IPv6Address{}, fmt.Errorf("bad IPv6 address %s", s)
	}
	return ip.As16(), nil
}

// UnmarshalText parses IPv6 address.
func (addr *IPv6Address) UnmarshalText(b []byte) error {
	v, err := ParseIPv6(string(b))
	if err != nil {
		return err
	}
	*addr = v
	return nil
}

// MarshalText formats IPv6 address.
func (addr IPv6Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

func (addr IPv6Address) halves() (hi, lo uint64) {
	return binary.BigEndian.Uint64(addr[:8]), binary.BigEndian.Uint64(addr[8:])
}

func fromHalves(hi, lo uint64) (out IPv6Address) {
	binary.BigEndian.PutUint64(out[:8], hi)
	binary.BigEndian.PutUint64(out[8:], lo)
	return out
}

// Add returns addr + inc as 128 bit numbers, wrapping modulo 2^128.
func (addr IPv6Address) Add(inc IPv6Address) IPv6Address {
	ahi, alo := addr.halves()
	ihi, ilo := inc.halves()
	lo, carry := bits.Add64(alo, ilo, 0)
	hi, _ := bits.Add64(ahi, ihi, carry)
	return fromHalves(hi, lo)
}

// Sub returns addr - dec as 128 bit numbers, wrapping modulo 2^128.
func (addr IPv6Address) Sub(dec IPv6Address) IPv6Address {
	ahi, alo := addr.halves()
	dhi, dlo := dec.halves()
	lo, borrow := bits.Sub64(alo, dlo, 0)
	hi, _ := bits.Sub64(ahi, dhi, borrow)
	return fromHalves(hi, lo)
}

// Compare returns -1, 0 or 1 comparing addresses as big endian numbers.
func (addr IPv6Address) Compare(other IPv6Address) int {
	return bytes.Compare(addr[:], other[:])
}

// IsZero reports whether all bytes are zero.
func (addr IPv6Address) IsZero() bool {
	return addr == IPv6Address{}
}

// Uint64ToIPv6 places v in the low 64 bits of an address. Useful for small
// increments.
func Uint64ToIPv6(v uint64) IPv6Address {
	return fromHalves(0, v)
}
