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
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/klemu/klem/prng"
)

// ErrSocketClosed is returned by Socket operations after Close.
var ErrSocketClosed = errors.New("socket closed")

// Socket is the datagram transport underneath a Conn.
type Socket interface {
	// Sendv writes the buffers, in order, as one unit. It may report a partial write.
	Sendv(bufs [][]byte) (int, error)
	// Recv blocks until one unit is available and copies it into buf. It returns
	// ErrSocketClosed once the socket is closed.
	Recv(buf []byte) (int, error)
	// HardwareAddr returns the link address of the underlying device, or nil if unknown.
	HardwareAddr() net.HardwareAddr
	Close() error
}

type Backend string

const (
	BackendPacket Backend = "packet"
	BackendUdp    Backend = "udp"
	BackendMem    Backend = "mem"
)

// ParseBackend returns the backend for a name; the empty name selects the packet backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(s)) {
	case "", BackendPacket:
		return BackendPacket, nil
	case BackendUdp:
		return BackendUdp, nil
	case BackendMem:
		return BackendMem, nil
	default:
		return "", errors.Errorf("unknown link backend: %s", s)
	}
}

// OpenSocket opens the backend socket described by cfg.
func OpenSocket(cfg *Config) (Socket, error) {
	switch cfg.Backend {
	case BackendPacket, "":
		proto := cfg.Protocol
		if !cfg.Mode.Framed() {
			proto = ethPAll
		}
		return openPacketSocket(cfg.Device, proto, cfg.Timeout)
	case BackendUdp:
		return openUdpSocket(cfg.Device, cfg.Interface, localAddrOrRandom(cfg.LocalAddr))
	case BackendMem:
		hub := cfg.Hub
		if hub == nil {
			hub = DefaultHub
		}
		return hub.Open(localAddrOrRandom(cfg.LocalAddr)), nil
	default:
		return nil, errors.Errorf("unknown link backend: %s", cfg.Backend)
	}
}

func localAddrOrRandom(addr net.HardwareAddr) net.HardwareAddr {
	if len(addr) == 6 {
		return addr
	}
	return prng.NewHardwareAddr()
}

func isClosedErr(err error) bool {
	return errors.Is(err, ErrSocketClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}

func flatten(bufs [][]byte, prefix []byte) []byte {
	n := len(prefix)
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix...)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}
