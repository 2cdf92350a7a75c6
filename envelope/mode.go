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

package envelope

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Mode decides how frames are wrapped on the link. It is chosen once per connection.
type Mode interface {
	// Name returns the control-surface name of the mode.
	Name() string
	// Framed reports whether units carry the link and capability headers.
	Framed() bool
	// BuildEnvelope returns the ordered scatter list for one frame. A framed mode writes a
	// zero capability header when capHdr is nil.
	BuildEnvelope(dst, src net.HardwareAddr, capHdr *CapabilityHeader, payload []byte) [][]byte
	// ParseEnvelope validates a received unit and returns its payload. The capability header is
	// nil for modes that do not carry one.
	ParseEnvelope(unit []byte) ([]byte, *CapabilityHeader, error)
}

const (
	FramedModeName = "lemu"
	BridgeModeName = "bridge"
)

// FramedMode wraps every frame in a link header and capability sub-header.
type FramedMode struct {
	Protocol uint16
	Magic    uint32
	Version  uint32
}

// NewFramedMode returns a FramedMode using the default protocol, magic and version.
func NewFramedMode() *FramedMode {
	return &FramedMode{Protocol: Protocol, Magic: Magic, Version: Version}
}

func (m *FramedMode) Name() string {
	return FramedModeName
}

func (m *FramedMode) Framed() bool {
	return true
}

func (m *FramedMode) BuildEnvelope(dst, src net.HardwareAddr, capHdr *CapabilityHeader, payload []byte) [][]byte {
	hdr := LinkHeader{Dst: dst, Src: src, Protocol: m.Protocol, Magic: m.Magic, Version: m.Version}
	if capHdr == nil {
		capHdr = &CapabilityHeader{}
	}
	return [][]byte{hdr.Serialize(), capHdr.Serialize(), payload}
}

func (m *FramedMode) ParseEnvelope(unit []byte) ([]byte, *CapabilityHeader, error) {
	var hdr LinkHeader
	n, err := hdr.Deserialize(unit)
	if err != nil {
		return nil, nil, err
	}
	expect := LinkHeader{Protocol: m.Protocol, Magic: m.Magic, Version: m.Version}
	if !hdr.Matches(&expect) {
		return nil, nil, errors.Wrapf(ErrHeaderMismatch, "%v", hdr)
	}

	capHdr := &CapabilityHeader{}
	c, err := capHdr.Deserialize(unit[n:])
	if err != nil {
		return nil, nil, err
	}
	return unit[n+c:], capHdr, nil
}

// BridgeMode carries frames unmodified.
type BridgeMode struct{}

func (BridgeMode) Name() string {
	return BridgeModeName
}

func (BridgeMode) Framed() bool {
	return false
}

func (BridgeMode) BuildEnvelope(_, _ net.HardwareAddr, _ *CapabilityHeader, payload []byte) [][]byte {
	return [][]byte{payload}
}

func (BridgeMode) ParseEnvelope(unit []byte) ([]byte, *CapabilityHeader, error) {
	return unit, nil, nil
}

// ParseMode returns the mode for a control-surface name.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FramedModeName, "framed":
		return NewFramedMode(), nil
	case BridgeModeName:
		return BridgeMode{}, nil
	default:
		return nil, errors.Errorf("unknown transport mode: %s", name)
	}
}
