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

// Package link implements the transport session between emulated radios: one socket, a single
// serialized sender with retrying scatter-send, and a dedicated receiver task.
package link

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/types"
)

const (
	DefaultTimeout      = 4 * time.Second
	DefaultMaxRetries   = 256
	DefaultBackoffUnit  = 32 * time.Millisecond
	DefaultStallBackoff = 500 * time.Millisecond
	DefaultMaxUnitSize  = 4096
)

// Deliverer receives every accepted inbound frame. Ownership of f passes to the callee. It is
// called from the receiver task and must not call Disconnect.
type Deliverer interface {
	Deliver(f *frame.Frame, capHdr *envelope.CapabilityHeader)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(f *frame.Frame, capHdr *envelope.CapabilityHeader)

func (fn DelivererFunc) Deliver(f *frame.Frame, capHdr *envelope.CapabilityHeader) {
	fn(f, capHdr)
}

type Config struct {
	Backend   Backend
	Device    string // device name, multicast group address or hub member label
	Interface string // multicast interface for the udp backend
	Mode      envelope.Mode
	Protocol  uint16
	PeerAddr  net.HardwareAddr
	LocalAddr net.HardwareAddr
	Hub       *Hub

	Timeout      time.Duration
	MaxRetries   int
	BackoffUnit  time.Duration
	StallBackoff time.Duration
	MaxUnitSize  int
}

func DefaultConfig() *Config {
	return &Config{
		Backend:      BackendPacket,
		Mode:         envelope.NewFramedMode(),
		Protocol:     envelope.Protocol,
		PeerAddr:     types.BroadcastAddr,
		Timeout:      DefaultTimeout,
		MaxRetries:   DefaultMaxRetries,
		BackoffUnit:  DefaultBackoffUnit,
		StallBackoff: DefaultStallBackoff,
		MaxUnitSize:  DefaultMaxUnitSize,
	}
}

// Counters are the monotonic counters of a connection.
type Counters struct {
	UnitsSent      uint64
	BytesSent      uint64
	SendFailures   uint64
	UnitsReceived  uint64
	UnitsDiscarded uint64
}

// Conn is one active link session.
type Conn struct {
	id        uuid.UUID
	cfg       Config
	sock      Socket
	mode      envelope.Mode
	local     net.HardwareAddr
	peer      net.HardwareAddr
	deliverer Deliverer
	connected atomic.Bool
	sendSem   chan struct{}
	recvDone  chan struct{}
	closeOnce sync.Once

	unitsSent      atomic.Uint64
	bytesSent      atomic.Uint64
	sendFailures   atomic.Uint64
	unitsReceived  atomic.Uint64
	unitsDiscarded atomic.Uint64
}

// Connect opens the socket described by cfg and starts the receiver task.
func Connect(cfg *Config, d Deliverer) (*Conn, error) {
	cfg = withDefaults(cfg)
	sock, err := OpenSocket(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s link %s", cfg.Backend, cfg.Device)
	}
	return ConnectSocket(sock, cfg, d), nil
}

// ConnectSocket runs a connection over an already opened socket.
func ConnectSocket(sock Socket, cfg *Config, d Deliverer) *Conn {
	cfg = withDefaults(cfg)
	c := &Conn{
		id:        uuid.New(),
		cfg:       *cfg,
		sock:      sock,
		mode:      cfg.Mode,
		peer:      cfg.PeerAddr,
		deliverer: d,
		sendSem:   make(chan struct{}, 1),
		recvDone:  make(chan struct{}),
	}

	switch {
	case len(cfg.LocalAddr) == 6:
		c.local = cfg.LocalAddr
	case len(sock.HardwareAddr()) == 6:
		c.local = sock.HardwareAddr()
	default:
		logger.Warnf("link %s: device %s has no hardware address, using broadcast", c.id, cfg.Device)
		c.local = types.BroadcastAddr
	}

	c.connected.Store(true)
	go c.receiveLoop()
	logger.Infof("link %s: connected %s device %s, mode %s, local %v", c.id, cfg.Backend, cfg.Device,
		c.mode.Name(), c.local)
	return c
}

func withDefaults(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	out := *cfg
	def := DefaultConfig()
	if out.Mode == nil {
		out.Mode = def.Mode
	}
	if out.Protocol == 0 {
		out.Protocol = def.Protocol
	}
	if len(out.PeerAddr) != 6 {
		out.PeerAddr = def.PeerAddr
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.BackoffUnit <= 0 {
		out.BackoffUnit = def.BackoffUnit
	}
	if out.StallBackoff <= 0 {
		out.StallBackoff = def.StallBackoff
	}
	if out.MaxUnitSize <= 0 {
		out.MaxUnitSize = def.MaxUnitSize
	}
	return &out
}

// Disconnect closes the socket and waits for the receiver task. It is safe to call more than once.
func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		if err := c.sock.Close(); err != nil {
			logger.Warnf("link %s: close socket: %v", c.id, err)
		}
		<-c.recvDone
		logger.Infof("link %s: disconnected", c.id)
	})
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

func (c *Conn) Connected() bool {
	return c.connected.Load()
}

func (c *Conn) Mode() envelope.Mode {
	return c.mode
}

func (c *Conn) LocalAddr() net.HardwareAddr {
	return c.local
}

func (c *Conn) PeerAddr() net.HardwareAddr {
	return c.peer
}

func (c *Conn) Device() string {
	return c.cfg.Device
}

func (c *Conn) Backend() Backend {
	return c.cfg.Backend
}

func (c *Conn) Counters() Counters {
	return Counters{
		UnitsSent:      c.unitsSent.Load(),
		BytesSent:      c.bytesSent.Load(),
		SendFailures:   c.sendFailures.Load(),
		UnitsReceived:  c.unitsReceived.Load(),
		UnitsDiscarded: c.unitsDiscarded.Load(),
	}
}

func (c *Conn) String() string {
	return fmt.Sprintf("link %s (%s %s, %s)", c.id, c.cfg.Backend, c.cfg.Device, c.mode.Name())
}

// Send transmits payload wrapped per the connection mode and returns the payload length on
// success, or 0. ctx is the hard-abort token: it can interrupt acquiring the send permit and
// stops retrying at the next retry boundary. Nothing else cancels a send in progress except
// the connection going down.
func (c *Conn) Send(ctx context.Context, capHdr *envelope.CapabilityHeader, payload []byte) int {
	select {
	case c.sendSem <- struct{}{}:
	case <-ctx.Done():
		return 0
	}
	defer func() { <-c.sendSem }()

	bufs := c.mode.BuildEnvelope(c.peer, c.local, capHdr, payload)
	total := 0
	for _, b := range bufs {
		total += len(b)
	}

	sent := c.sendv(ctx, bufs)
	if sent != total {
		c.sendFailures.Add(1)
		return 0
	}
	c.unitsSent.Add(1)
	c.bytesSent.Add(uint64(sent))
	return len(payload)
}

// sendv writes the scatter list with bounded retries and partial-write recovery. It returns
// the number of bytes written, or 0 after a fatal failure.
func (c *Conn) sendv(ctx context.Context, bufs [][]byte) int {
	remaining := 0
	for _, b := range bufs {
		remaining += len(b)
	}

	total := 0
	for remaining > 0 && c.connected.Load() && ctx.Err() == nil {
		n, err := c.sendAttempts(ctx, bufs)
		if n <= 0 {
			if err != nil && !isClosedErr(err) {
				logger.Debugf("%v: send failed: %v", c, err)
			}
			return 0
		}
		total += n
		remaining -= n
		bufs = advance(bufs, n)
	}
	return total
}

func (c *Conn) sendAttempts(ctx context.Context, bufs [][]byte) (int, error) {
	var n int
	var err error
	for attempt := 0; attempt < c.cfg.MaxRetries && c.connected.Load(); attempt++ {
		n, err = c.sock.Sendv(bufs)
		if ctx.Err() != nil {
			break
		}
		if err != nil && isTransient(err) {
			if !sleepCtx(ctx, c.cfg.BackoffUnit<<(attempt%4)) {
				break
			}
			continue
		}
		if err == nil && n == 0 {
			if !sleepCtx(ctx, c.cfg.StallBackoff) {
				break
			}
			continue
		}
		break
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// advance drops the first n bytes of the scatter list, shrinking a partially written buffer.
func advance(bufs [][]byte, n int) [][]byte {
	for len(bufs) > 0 && n > 0 {
		if n < len(bufs[0]) {
			out := make([][]byte, len(bufs))
			copy(out, bufs)
			out[0] = out[0][n:]
			return out
		}
		n -= len(bufs[0])
		bufs = bufs[1:]
	}
	return bufs
}

func isTransient(err error) bool {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOBUFS) || errors.Is(err, unix.ENOSPC) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) receiveLoop() {
	defer close(c.recvDone)
	defer logger.Debugf("%v: receiver exit", c)

	buf := make([]byte, c.cfg.MaxUnitSize)
	for c.connected.Load() {
		n, err := c.sock.Recv(buf)
		if err != nil {
			if !c.connected.Load() || isClosedErr(err) {
				return
			}
			if !isTransient(err) {
				logger.Warnf("%v: receive: %v", c, err)
				time.Sleep(c.cfg.BackoffUnit)
			}
			continue
		}

		payload, capHdr, err := c.mode.ParseEnvelope(buf[:n])
		if err != nil {
			c.unitsDiscarded.Add(1)
			logger.Tracef("%v: discard unit of %d bytes: %v", c, n, err)
			continue
		}

		c.unitsReceived.Add(1)
		if c.deliverer != nil {
			c.deliverer.Deliver(frame.New(append([]byte(nil), payload...)), capHdr)
		}
	}
}
