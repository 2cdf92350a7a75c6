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
	"sync"
)

const memInboundDepth = 256

// Hub is an in-process broadcast medium. Every unit sent by one member is delivered to all
// other members; a member whose inbound queue is full misses the unit.
type Hub struct {
	lock    sync.Mutex
	members map[*memSocket]struct{}
}

// DefaultHub serves mem-backend connections that do not name a hub.
var DefaultHub = NewHub()

func NewHub() *Hub {
	return &Hub{members: map[*memSocket]struct{}{}}
}

// Open adds a member with the given link address.
func (h *Hub) Open(addr net.HardwareAddr) Socket {
	s := &memSocket{
		hub:     h,
		addr:    addr,
		inbound: make(chan []byte, memInboundDepth),
		closed:  make(chan struct{}),
	}
	h.lock.Lock()
	h.members[s] = struct{}{}
	h.lock.Unlock()
	return s
}

// Size returns the number of open members.
func (h *Hub) Size() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.members)
}

func (h *Hub) broadcast(from *memSocket, unit []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for m := range h.members {
		if m == from {
			continue
		}
		select {
		case m.inbound <- unit:
		default:
		}
	}
}

type memSocket struct {
	hub       *Hub
	addr      net.HardwareAddr
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *memSocket) Sendv(bufs [][]byte) (int, error) {
	select {
	case <-s.closed:
		return 0, ErrSocketClosed
	default:
	}
	unit := flatten(bufs, nil)
	s.hub.broadcast(s, unit)
	return len(unit), nil
}

func (s *memSocket) Recv(buf []byte) (int, error) {
	select {
	case unit := <-s.inbound:
		return copy(buf, unit), nil
	case <-s.closed:
		return 0, ErrSocketClosed
	}
}

func (s *memSocket) HardwareAddr() net.HardwareAddr {
	return s.addr
}

func (s *memSocket) Close() error {
	s.closeOnce.Do(func() {
		s.hub.lock.Lock()
		delete(s.hub.members, s)
		s.hub.lock.Unlock()
		close(s.closed)
	})
	return nil
}
