// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLinkInfoLoopback(t *testing.T) {
	info, err := GetLinkInfo("lo")
	if err != nil {
		t.Skip("netlink is not available:", err)
	}
	assert.Equal(t, "lo", info.Name)
	assert.NotZero(t, info.MTU)
}

func TestGetLinkInfoMissing(t *testing.T) {
	_, err := GetLinkInfo("no-such-interface0")
	assert.Error(t, err)
}

func TestAFPacketLoopback(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root (AF_PACKET)")
	}
	drv, err := NewAFPacket([]string{"lo"}, 1, 64)
	require.NoError(t, err)
	defer drv.Close()
	port := drv.Ports()[0]

	tx, err := CreateMempool("afp-tx", 1)
	require.NoError(t, err)
	frame := make([]byte, 60)
	copy(frame[12:], []byte{0x88, 0xb5})
	copy(frame[14:], "nff-pktgen afpacket test")
	m := tx.Get()
	m.WriteData(frame)
	require.Equal(t, 1, port.TxBurst(0, []*Mbuf{m}))

	got := make([]*Mbuf, 16)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		n := port.RxBurst(0, got)
		for _, r := range got[:n] {
			found := bytes.Equal(r.GetRawPacketBytes(), frame)
			r.Free()
			if found {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("frame did not come back on lo")
}
