// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"

	"inet.af/netaddr"
)

// IPv4Address keeps address in host order so that a.b.c.d+1 is a.b.c.(d+1).
type IPv4Address uint32

// BytesToIPv4 converts four element address to IPv4Address representation
func BytesToIPv4(a byte, b byte, c byte, d byte) IPv4Address {
	return IPv4Address(a)<<24 | IPv4Address(b)<<16 | IPv4Address(c)<<8 | IPv4Address(d)
}

// SliceToIPv4 converts four element wire order slice to IPv4Address representation
func SliceToIPv4(s []byte) IPv4Address {
	return BytesToIPv4(s[0], s[1], s[2], s[3])
}

// IPv4ToBytes returns address in wire order.
func IPv4ToBytes(v IPv4Address) [IPv4AddrLen]byte {
	return [IPv4AddrLen]uint8{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func (addr IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// NetaddrIP converts address into netaddr.IP.
func (addr IPv4Address) NetaddrIP() netaddr.IP {
	return netaddr.IPFrom4(IPv4ToBytes(addr))
}

// UnmarshalText parses IPv4 address.
func (addr *IPv4Address) UnmarshalText(b []byte) error {
	v, err := ParseIPv4(string(b))
	if err != nil {
		return err
	}
	*addr = v
	return nil
}

// MarshalText formats IPv4 address.
func (addr IPv4Address) MarshalText() ([]byte, error) {
	return []byte(addr.String()), nil
}

// ParseIPv4 parses dotted quad address.
func ParseIPv4(s string) (IPv4Address, error) {
	ip, err := netaddr.ParseIP(s)
	if err != nil {
		return 0, err
	}
	if !ip.Is4() {
		return 0, fmt.Errorf("bad IPv4 address %s", s)
	}
	return ArrayToIPv4(ip.As4()), nil
}

// ArrayToIPv4 converts four element wire order array to IPv4Address
func ArrayToIPv4(a [IPv4AddrLen]byte) IPv4Address {
	return BytesToIPv4(a[0], a[1], a[2], a[3])
}

// IPv4Prefix is an address with its prefix length, as used for the port
// source address.
type IPv4Prefix struct {
	Addr IPv4Address
	Bits uint8
}

// ParseIPv4Prefix parses "a.b.c.d/n". A bare address gets /32.
func ParseIPv4Prefix(s string) (IPv4Prefix, error) {
	p, err := netaddr.ParseIPPrefix(s)
	if err != nil {
		addr, err2 := ParseIPv4(s)
		if err2 != nil {
			return IPv4Prefix{}, err
		}
		return IPv4Prefix{Addr: addr, Bits: 32}, nil
	}
	if !p.IP().Is4() {
		return IPv4Prefix{}, fmt.Errorf("bad IPv4 prefix %s", s)
	}
	return IPv4Prefix{Addr: ArrayToIPv4(p.IP().As4()), Bits: p.Bits()}, nil
}

func (p IPv4Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.Addr, p.Bits)
}
