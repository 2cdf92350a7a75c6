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

//go:build linux

package link

import (
	"encoding/binary"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/klemu/klem/logger"
)

const ethPAll = unix.ETH_P_ALL

// packetSocket is an AF_PACKET raw socket bound to one device. The fd is non-blocking and
// registered with the runtime poller, so Close unblocks a pending Recv.
type packetSocket struct {
	file   *os.File
	rc     syscall.RawConn
	to     *unix.SockaddrLinklayer
	addr   net.HardwareAddr
	closed atomic.Bool
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

func openPacketSocket(device string, proto uint16, timeout time.Duration) (Socket, error) {
	ifi, err := net.InterfaceByName(device)
	if err != nil {
		return nil, errors.Wrapf(err, "lookup device %s", device)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, int(htons(proto)))
	if err != nil {
		return nil, errors.Wrapf(err, "create packet socket on %s", device)
	}

	sll := &unix.SockaddrLinklayer{Protocol: htons(proto), Ifindex: ifi.Index}
	if err = unix.Bind(fd, sll); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(err, "bind packet socket to %s", device)
	}

	if timeout > 0 {
		tv := unix.NsecToTimeval(timeout.Nanoseconds())
		if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			logger.Warnf("packet socket %s: SO_SNDTIMEO: %v", device, err)
		}
		if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			logger.Warnf("packet socket %s: SO_RCVTIMEO: %v", device, err)
		}
	}

	file := os.NewFile(uintptr(fd), "packet:"+device)
	rc, err := file.SyscallConn()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "packet socket %s", device)
	}

	s := &packetSocket{
		file: file,
		rc:   rc,
		to:   &unix.SockaddrLinklayer{Protocol: htons(proto), Ifindex: ifi.Index, Halen: 6},
	}
	if len(ifi.HardwareAddr) == 6 {
		s.addr = ifi.HardwareAddr
	}
	copy(s.to.Addr[:], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	return s, nil
}

func (s *packetSocket) Sendv(bufs [][]byte) (int, error) {
	var n int
	var serr error
	err := s.rc.Write(func(fd uintptr) bool {
		n, serr = unix.SendmsgBuffers(int(fd), bufs, nil, s.to, 0)
		return true
	})
	if err != nil {
		return 0, s.mapErr(err)
	}
	return n, serr
}

func (s *packetSocket) Recv(buf []byte) (int, error) {
	for {
		var n int
		var from unix.Sockaddr
		var rerr error
		err := s.rc.Read(func(fd uintptr) bool {
			n, from, rerr = unix.Recvfrom(int(fd), buf, 0)
			return rerr != unix.EAGAIN
		})
		if err != nil {
			return 0, s.mapErr(err)
		}
		if rerr != nil {
			return 0, rerr
		}
		if sll, ok := from.(*unix.SockaddrLinklayer); ok && sll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}
		return n, nil
	}
}

func (s *packetSocket) HardwareAddr() net.HardwareAddr {
	return s.addr
}

func (s *packetSocket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.file.Close()
}

func (s *packetSocket) mapErr(err error) error {
	if s.closed.Load() || isClosedErr(err) {
		return ErrSocketClosed
	}
	return err
}
