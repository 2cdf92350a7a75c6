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
	"bytes"
	"encoding/hex"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/klemu/klem/types"
)

var (
	testSrc = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
)

func TestSerializeLinkHeader(t *testing.T) {
	hdr := NewLinkHeader(types.BroadcastAddr, testSrc)
	data := hdr.Serialize()
	assert.Equal(t, LinkHeaderLen, len(data))
	assert.Equal(t, "ffffffffffff020000000001dead6b6c656d00000001", hex.EncodeToString(data))
	assert.Equal(t, []byte("klem"), data[14:18])
}

func TestDeserializeLinkHeader(t *testing.T) {
	data, _ := hex.DecodeString("020000000001ffffffffffffdead6b6c656d00000001aabb")
	var hdr LinkHeader
	n, err := hdr.Deserialize(data)
	assert.Nil(t, err)
	assert.Equal(t, LinkHeaderLen, n)
	assert.Equal(t, testSrc, hdr.Dst)
	assert.Equal(t, types.BroadcastAddr, hdr.Src)
	assert.Equal(t, Protocol, hdr.Protocol)
	assert.Equal(t, Magic, hdr.Magic)
	assert.Equal(t, Version, hdr.Version)

	_, err = hdr.Deserialize(data[:LinkHeaderLen-1])
	assert.Equal(t, ErrShortUnit, err)
}

func TestCapabilityHeader(t *testing.T) {
	c := NewCapabilityHeader(types.Capability{Band: types.Band5GHz, Frequency: 5180, Power: -3}, 7)
	data := c.Serialize()
	assert.Equal(t, "000000010000143cfffffffd00000007", hex.EncodeToString(data))

	var parsed CapabilityHeader
	n, err := parsed.Deserialize(data)
	assert.Nil(t, err)
	assert.Equal(t, CapabilityHeaderLen, n)
	if diff := cmp.Diff(*c, parsed); diff != "" {
		t.Errorf("capability header mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int32(-3), parsed.Capability().Power)

	_, err = parsed.Deserialize(data[:10])
	assert.Equal(t, ErrShortSubHeader, err)
}

func TestFramedModeRoundTrip(t *testing.T) {
	m := NewFramedMode()
	capHdr := NewCapabilityHeader(types.DefaultCapability(), 3)
	payload := []byte("0123456789abcdef")

	bufs := m.BuildEnvelope(types.BroadcastAddr, testSrc, capHdr, payload)
	assert.Len(t, bufs, 3)
	unit := bytes.Join(bufs, nil)
	assert.Equal(t, LinkHeaderLen+CapabilityHeaderLen+len(payload), len(unit))

	got, gotCap, err := m.ParseEnvelope(unit)
	assert.Nil(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, capHdr, gotCap)

}

func TestFramedModeNilCapability(t *testing.T) {
	m := NewFramedMode()
	payload := []byte("no capability")

	bufs := m.BuildEnvelope(types.BroadcastAddr, testSrc, nil, payload)
	assert.Len(t, bufs, 3)
	assert.Len(t, bufs[1], CapabilityHeaderLen)

	got, gotCap, err := m.ParseEnvelope(bytes.Join(bufs, nil))
	assert.Nil(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, &CapabilityHeader{}, gotCap)
}

func TestFramedModeRejects(t *testing.T) {
	m := NewFramedMode()
	unit := bytes.Join(m.BuildEnvelope(types.BroadcastAddr, testSrc,
		NewCapabilityHeader(types.DefaultCapability(), 1), []byte("payload")), nil)

	_, _, err := m.ParseEnvelope(unit[:LinkHeaderLen-1])
	assert.Equal(t, ErrShortUnit, err)

	_, _, err = m.ParseEnvelope(unit[:LinkHeaderLen+4])
	assert.Equal(t, ErrShortSubHeader, err)

	badMagic := append([]byte(nil), unit...)
	badMagic[14] = 'm'
	_, _, err = m.ParseEnvelope(badMagic)
	assert.True(t, errors.Is(err, ErrHeaderMismatch))

	badVersion := append([]byte(nil), unit...)
	badVersion[21] = 2
	_, _, err = m.ParseEnvelope(badVersion)
	assert.True(t, errors.Is(err, ErrHeaderMismatch))

	badProto := append([]byte(nil), unit...)
	badProto[12] = 0xbe
	_, _, err = m.ParseEnvelope(badProto)
	assert.True(t, errors.Is(err, ErrHeaderMismatch))
}

func TestBridgeMode(t *testing.T) {
	var m Mode = BridgeMode{}
	payload := []byte("raw frame")
	bufs := m.BuildEnvelope(nil, nil, NewCapabilityHeader(types.DefaultCapability(), 1), payload)
	assert.Equal(t, [][]byte{payload}, bufs)

	got, capHdr, err := m.ParseEnvelope([]byte{1})
	assert.Nil(t, err)
	assert.Nil(t, capHdr)
	assert.Equal(t, []byte{1}, got)
	assert.False(t, m.Framed())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("lemu")
	assert.Nil(t, err)
	assert.True(t, m.Framed())
	assert.Equal(t, FramedModeName, m.Name())

	m, err = ParseMode(" Bridge ")
	assert.Nil(t, err)
	assert.Equal(t, BridgeModeName, m.Name())

	_, err = ParseMode("tap")
	assert.NotNil(t, err)
}
