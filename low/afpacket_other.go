// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package low

import (
	"github.com/intel-go/nff-pktgen/common"
)

// AFPacket is only available on Linux.
type AFPacket struct{}

// NewAFPacket always fails outside Linux.
func NewAFPacket(ifaces []string, txQueues int, poolSize uint) (*AFPacket, error) {
	return nil, common.WrapWithNFError(nil, "AF_PACKET ports need Linux", common.FailToInitPort)
}

// Ports returns nothing.
func (drv *AFPacket) Ports() []Port { return nil }

// Close does nothing.
func (drv *AFPacket) Close() error { return nil }

// GetLinkInfo is only available on Linux.
func GetLinkInfo(name string) (LinkInfo, error) {
	return LinkInfo{}, common.WrapWithNFError(nil, "link info needs Linux", common.FailToInitPort)
}
