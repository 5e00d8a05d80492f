// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
)

// MACAddress is a 6 byte ethernet address in wire order.
type MACAddress [EtherAddrLen]uint8

// BroadcastMAC is ff:ff:ff:ff:ff:ff
var BroadcastMAC = MACAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// MACToString return MAC address like string
func (mac MACAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// UnmarshalText parses MAC address from string.
func (mac *MACAddress) UnmarshalText(b []byte) error {
	var err error
	*mac, err = StringToMACAddress(string(b))
	return err
}

// MarshalText formats MAC address as string.
func (mac MACAddress) MarshalText() ([]byte, error) {
	return []byte(mac.String()), nil
}

// Uint64 returns MAC address as 48 bit integer, first byte most significant.
func (mac MACAddress) Uint64() uint64 {
	return uint64(mac[0])<<40 | uint64(mac[1])<<32 | uint64(mac[2])<<24 |
		uint64(mac[3])<<16 | uint64(mac[4])<<8 | uint64(mac[5])
}

// Uint64ToMAC is the reverse of MACAddress.Uint64. Bits above 48 are dropped.
func Uint64ToMAC(v uint64) MACAddress {
	return MACAddress{byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// IsBroadcast is true for ff:ff:ff:ff:ff:ff
func (mac MACAddress) IsBroadcast() bool {
	return mac == BroadcastMAC
}

// IsMulticast checks the group bit of the first octet.
func (mac MACAddress) IsMulticast() bool {
	return mac[0]&0x01 != 0 && !mac.IsBroadcast()
}

// StringToMACAddress parses string and returns MACAddress.
func StringToMACAddress(str string) (MACAddress, error) {
	hw, err := net.ParseMAC(str)
	if err != nil {
		return MACAddress{}, err
	}
	if len(hw) != EtherAddrLen {
		return MACAddress{}, fmt.Errorf("bad MAC address length %s", str)
	}
	return NetHWAddressToMAC(hw), nil
}

// NetHWAddressToMAC converts net.HardwareAddr to MACAddress address.
func NetHWAddressToMAC(hw net.HardwareAddr) MACAddress {
	var out MACAddress
	copy(out[:], hw)
	return out
}

// MACAddressToNetHW converts MACAddress to net.HardwareAddr address.
func MACAddressToNetHW(mac MACAddress) net.HardwareAddr {
	out := make(net.HardwareAddr, EtherAddrLen)
	copy(out, mac[:])
	return out
}
