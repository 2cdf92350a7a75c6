// Copyright (c) 2023, The KLEM Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package link

import (
	"bytes"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/klemu/klem/logger"
)

const udpSenderTagLen = 6

// udpSocket emulates a shared medium with an IPv4 multicast group. Every datagram starts with
// the sender's link address so a radio can skip its own looped-back units.
type udpSocket struct {
	conn    *net.UDPConn
	group   *net.UDPAddr
	addr    net.HardwareAddr
	scratch []byte
}

func openUdpSocket(groupAddr string, ifname string, addr net.HardwareAddr) (Socket, error) {
	group, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve multicast group %s", groupAddr)
	}
	if !group.IP.IsMulticast() {
		return nil, errors.Errorf("%s is not a multicast group address", groupAddr)
	}

	var ifi *net.Interface
	if ifname != "" {
		if ifi, err = net.InterfaceByName(ifname); err != nil {
			return nil, errors.Wrapf(err, "lookup interface %s", ifname)
		}
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, errors.Wrapf(err, "join multicast group %s", groupAddr)
	}

	pc := ipv4.NewPacketConn(conn)
	if err = pc.SetMulticastLoopback(true); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "enable multicast loopback")
	}
	if err = pc.SetMulticastTTL(1); err != nil {
		logger.Warnf("udp link %s: set multicast TTL: %v", groupAddr, err)
	}
	if ifi != nil {
		if err = pc.SetMulticastInterface(ifi); err != nil {
			logger.Warnf("udp link %s: set multicast interface %s: %v", groupAddr, ifname, err)
		}
	}

	return &udpSocket{
		conn:  conn,
		group: group,
		addr:  addr,
	}, nil
}

func (s *udpSocket) Sendv(bufs [][]byte) (int, error) {
	n, err := s.conn.WriteToUDP(flatten(bufs, s.addr), s.group)
	if err != nil {
		if isClosedErr(err) {
			return 0, ErrSocketClosed
		}
		return 0, err
	}
	if n < udpSenderTagLen {
		return 0, nil
	}
	return n - udpSenderTagLen, nil
}

func (s *udpSocket) Recv(buf []byte) (int, error) {
	if len(s.scratch) < len(buf)+udpSenderTagLen {
		s.scratch = make([]byte, len(buf)+udpSenderTagLen)
	}
	scratch := s.scratch
	for {
		n, _, err := s.conn.ReadFromUDP(scratch)
		if err != nil {
			if isClosedErr(err) {
				return 0, ErrSocketClosed
			}
			return 0, err
		}
		if n < udpSenderTagLen || bytes.Equal(scratch[:udpSenderTagLen], s.addr) {
			continue
		}
		return copy(buf, scratch[udpSenderTagLen:n]), nil
	}
}

func (s *udpSocket) HardwareAddr() net.HardwareAddr {
	return s.addr
}

func (s *udpSocket) Close() error {
	err := s.conn.Close()
	if isClosedErr(err) {
		return nil
	}
	return err
}
