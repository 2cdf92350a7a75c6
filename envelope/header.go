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

// Package envelope encodes and decodes the link header and capability sub-header that wrap
// every frame on an emulated link, and implements the transport modes that decide whether a
// frame is wrapped at all.
package envelope

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pkg/errors"

	"github.com/klemu/klem/types"
)

const (
	Protocol uint16 = 0xdead
	Magic    uint32 = 0x6b6c656d // "klem"
	Version  uint32 = 1
)

// Wire sizes of the headers.
const (
	LinkHeaderLen       = 6 + 6 + 2 + 4 + 4
	CapabilityHeaderLen = 4 * 4
)

var (
	ErrShortUnit      = errors.New("unit shorter than link header")
	ErrShortSubHeader = errors.New("unit shorter than capability header")
	ErrHeaderMismatch = errors.New("link header mismatch")
)

// LinkHeader is the fixed header that starts each framed unit.
type LinkHeader struct {
	Dst      net.HardwareAddr
	Src      net.HardwareAddr
	Protocol uint16
	Magic    uint32
	Version  uint32
}

// NewLinkHeader returns a header with the default protocol, magic and version.
func NewLinkHeader(dst, src net.HardwareAddr) LinkHeader {
	return LinkHeader{
		Dst:      dst,
		Src:      src,
		Protocol: Protocol,
		Magic:    Magic,
		Version:  Version,
	}
}

// Serialize serializes the header in network byte order.
func (h *LinkHeader) Serialize() []byte {
	data := make([]byte, LinkHeaderLen)
	copy(data[0:6], h.Dst)
	copy(data[6:12], h.Src)
	binary.BigEndian.PutUint16(data[12:14], h.Protocol)
	binary.BigEndian.PutUint32(data[14:18], h.Magic)
	binary.BigEndian.PutUint32(data[18:22], h.Version)
	return data
}

// Deserialize parses the header from data and returns the number of bytes consumed.
func (h *LinkHeader) Deserialize(data []byte) (int, error) {
	if len(data) < LinkHeaderLen {
		return 0, ErrShortUnit
	}
	h.Dst = net.HardwareAddr(append([]byte(nil), data[0:6]...))
	h.Src = net.HardwareAddr(append([]byte(nil), data[6:12]...))
	h.Protocol = binary.BigEndian.Uint16(data[12:14])
	h.Magic = binary.BigEndian.Uint32(data[14:18])
	h.Version = binary.BigEndian.Uint32(data[18:22])
	return LinkHeaderLen, nil
}

// Matches reports whether protocol, magic and version are equal to those of other.
func (h *LinkHeader) Matches(other *LinkHeader) bool {
	return h.Protocol == other.Protocol && h.Magic == other.Magic && h.Version == other.Version
}

func (h LinkHeader) String() string {
	return fmt.Sprintf("LinkHeader{dst=%v,src=%v,proto=%#04x,magic=%#08x,ver=%d}", h.Dst, h.Src,
		h.Protocol, h.Magic, h.Version)
}

// CapabilityHeader carries the sender's radio configuration in framed mode.
type CapabilityHeader struct {
	Band      types.Band
	Frequency uint32
	Power     int32
	PeerId    uint32
}

// NewCapabilityHeader stamps a capability descriptor with the sending node id.
func NewCapabilityHeader(c types.Capability, id types.NodeId) *CapabilityHeader {
	return &CapabilityHeader{
		Band:      c.Band,
		Frequency: c.Frequency,
		Power:     c.Power,
		PeerId:    uint32(id),
	}
}

func (c *CapabilityHeader) Serialize() []byte {
	data := make([]byte, CapabilityHeaderLen)
	binary.BigEndian.PutUint32(data[0:4], uint32(c.Band))
	binary.BigEndian.PutUint32(data[4:8], c.Frequency)
	binary.BigEndian.PutUint32(data[8:12], uint32(c.Power))
	binary.BigEndian.PutUint32(data[12:16], c.PeerId)
	return data
}

func (c *CapabilityHeader) Deserialize(data []byte) (int, error) {
	if len(data) < CapabilityHeaderLen {
		return 0, ErrShortSubHeader
	}
	c.Band = types.Band(binary.BigEndian.Uint32(data[0:4]))
	c.Frequency = binary.BigEndian.Uint32(data[4:8])
	c.Power = int32(binary.BigEndian.Uint32(data[8:12]))
	c.PeerId = binary.BigEndian.Uint32(data[12:16])
	return CapabilityHeaderLen, nil
}

// Capability returns the radio configuration part of the header.
func (c *CapabilityHeader) Capability() types.Capability {
	return types.Capability{Band: c.Band, Frequency: c.Frequency, Power: c.Power}
}
