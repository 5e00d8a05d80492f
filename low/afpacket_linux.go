// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package low

import (
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/intel-go/nff-pktgen/common"
)

// DefaultAFPacketPoolSize is the receive pool size of an AF_PACKET port.
const DefaultAFPacketPoolSize = 4095

// AFPacket drives kernel interfaces through raw packet sockets. Every port
// has one rx queue and any number of tx queues sharing the socket.
type AFPacket struct {
	ports []*AFPacketPort
}

// AFPacketPort is one kernel interface.
type AFPacketPort struct {
	fd      int
	info    LinkInfo
	addr    unix.SockaddrLinklayer
	pool    *Mempool
	txQueue int
	closed  atomic.Bool
}

func htons(n uint16) uint16 {
	return n<<8 | n>>8
}

// NewAFPacket opens a raw socket on every named interface.
func NewAFPacket(ifaces []string, txQueues int, poolSize uint) (*AFPacket, error) {
	if poolSize == 0 {
		poolSize = DefaultAFPacketPoolSize
	}
	if txQueues <= 0 {
		txQueues = 1
	}
	drv := &AFPacket{}
	for _, name := range ifaces {
		p, err := openAFPacketPort(name, txQueues, poolSize)
		if err != nil {
			return nil, multierr.Append(err, drv.Close())
		}
		drv.ports = append(drv.ports, p)
	}
	return drv, nil
}

func openAFPacketPort(name string, txQueues int, poolSize uint) (*AFPacketPort, error) {
	info, err := GetLinkInfo(name)
	if err != nil {
		return nil, err
	}
	link, err := netlinkIndex(name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, common.WrapWithNFError(err, "AF_PACKET socket for "+name, common.BadSocket)
	}
	addr := unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: link}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, common.WrapWithNFError(err, "bind AF_PACKET socket to "+name, common.BadSocket)
	}
	pool, err := CreateMempool(name+"-rx", poolSize)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	common.LogDebug(common.Initialization, "Opened AF_PACKET port", info)
	return &AFPacketPort{fd: fd, info: info, addr: addr, pool: pool, txQueue: txQueues}, nil
}

// Ports returns the opened interfaces.
func (drv *AFPacket) Ports() []Port {
	ports := make([]Port, len(drv.ports))
	for i, p := range drv.ports {
		ports[i] = p
	}
	return ports
}

// Close closes every socket.
func (drv *AFPacket) Close() error {
	var err error
	for _, p := range drv.ports {
		err = multierr.Append(err, p.Close())
	}
	return err
}

// RxBurst reads frames that are ready without blocking. Frames sent by
// this host are skipped.
func (p *AFPacketPort) RxBurst(queue uint16, pkts []*Mbuf) int {
	if queue != 0 || p.closed.Load() {
		return 0
	}
	n := 0
	for n < len(pkts) {
		m := p.pool.Get()
		if m == nil {
			break
		}
		size, from, err := unix.Recvfrom(p.fd, m.Room(), unix.MSG_DONTWAIT)
		if err != nil {
			m.Free()
			break
		}
		if sll, ok := from.(*unix.SockaddrLinklayer); ok && sll.Pkttype == unix.PACKET_OUTGOING {
			m.Free()
			continue
		}
		m.SetLen(size)
		pkts[n] = m
		n++
	}
	return n
}

// TxBurst writes frames until the socket would block.
func (p *AFPacketPort) TxBurst(queue uint16, pkts []*Mbuf) int {
	if p.closed.Load() {
		return 0
	}
	n := 0
	for _, m := range pkts {
		if err := unix.Sendto(p.fd, m.GetRawPacketBytes(), 0, &p.addr); err != nil {
			break
		}
		n++
	}
	PutBulk(pkts[:n])
	return n
}

// Info returns link facts read at open time.
func (p *AFPacketPort) Info() LinkInfo {
	return p.info
}

// Queues returns one rx queue and the configured tx queues.
func (p *AFPacketPort) Queues() (rx, tx int) {
	return 1, p.txQueue
}

// Close closes the socket.
func (p *AFPacketPort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := unix.Close(p.fd); err != nil {
		return common.WrapWithNFError(err, "close "+p.info.Name, common.BadSocket)
	}
	return nil
}
