// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"math"
	"net"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"

	"github.com/intel-go/nff-pktgen/common"
	"github.com/intel-go/nff-pktgen/types"
)

// GetLinkInfo reads MAC, MTU and state of a kernel interface through
// netlink and its speed through ethtool. Unknown speed is reported as 0.
func GetLinkInfo(name string) (LinkInfo, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return LinkInfo{}, common.WrapWithNFError(err, "can't find interface "+name, common.FailToInitPort)
	}
	attrs := link.Attrs()
	info := LinkInfo{
		Name: attrs.Name,
		MAC:  types.NetHWAddressToMAC(attrs.HardwareAddr),
		MTU:  attrs.MTU,
		Up:   attrs.OperState == netlink.OperUp || (attrs.OperState == netlink.OperUnknown && attrs.Flags&net.FlagUp != 0),
	}
	info.SpeedMbps = linkSpeed(name)
	return info, nil
}

func linkSpeed(name string) uint32 {
	e, err := ethtool.NewEthtool()
	if err != nil {
		common.LogDebug(common.Debug, "ethtool is not available:", err)
		return 0
	}
	defer e.Close()
	m, err := e.CmdGetMapped(name)
	if err != nil {
		common.LogDebug(common.Debug, "ethtool can't read", name, "settings:", err)
		return 0
	}
	speed := m["Speed"]
	if speed == 0 || speed >= math.MaxUint16 {
		return 0
	}
	return uint32(speed)
}

func netlinkIndex(name string) (int, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, common.WrapWithNFError(err, "can't find interface "+name, common.FailToInitPort)
	}
	return link.Attrs().Index, nil
}
