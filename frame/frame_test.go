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

package frame

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSrc   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	testDst   = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	testBssid = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}
)

func TestFrameMove(t *testing.T) {
	f := NewWithFlags([]byte{1, 2, 3}, TxNoAck)
	g := f.Move()

	assert.False(t, f.Valid())
	assert.True(t, g.Valid())
	assert.Equal(t, []byte{1, 2, 3}, g.Data())
	assert.True(t, g.NoAck())
	assert.Equal(t, "Frame{moved}", f.String())

	assert.Panics(t, func() { _ = f.Data() })
	assert.Panics(t, func() { _ = f.Move() })

	g.Release()
	assert.False(t, g.Valid())
	g.Release()
}

func TestSetTxResult(t *testing.T) {
	f := New(make([]byte, 12))
	f.SetTxResult(true)
	assert.True(t, f.Acked())
	f.SetTxResult(false)
	assert.False(t, f.Acked())

	noAck := NewWithFlags(make([]byte, 12), TxNoAck)
	noAck.SetTxResult(true)
	assert.False(t, noAck.Acked())
}

func TestBuildQoSData(t *testing.T) {
	b := BuildQoSData(testDst, testSrc, testBssid, 77, 5, true, []byte("hello"))

	assert.True(t, IsQoSData(b))
	tid, ok := QoSTID(b)
	assert.True(t, ok)
	assert.Equal(t, uint8(5), tid)
	assert.True(t, RequestsNoAck(b))
	addr, ok := Addr2(b)
	assert.True(t, ok)
	assert.Equal(t, testSrc, addr)

	pkt := gopacket.NewPacket(b, layers.LayerTypeDot11, gopacket.Default)
	d11, ok := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	require.True(t, ok)
	assert.Equal(t, layers.Dot11TypeDataQOSData, d11.Type)
	assert.Equal(t, testDst, d11.Address1)
	assert.Equal(t, testSrc, d11.Address2)
	assert.Equal(t, uint16(77), d11.SequenceNumber)
	require.NotNil(t, d11.QOS)
	assert.Equal(t, uint8(5), d11.QOS.TID)
	assert.Equal(t, layers.Dot11AckPolicyNone, d11.QOS.AckPolicy)
	assert.Equal(t, []byte("hello"), d11.Payload)
	assert.True(t, d11.ChecksumValid())
}

func TestBuildBeacon(t *testing.T) {
	b := BuildBeacon(testSrc, 3, 123456, 100, "klem", 6)

	typ, ok := Type(b)
	assert.True(t, ok)
	assert.Equal(t, layers.Dot11TypeMgmtBeacon, typ)
	assert.False(t, IsQoSData(b))
	_, ok = QoSTID(b)
	assert.False(t, ok)
	assert.False(t, RequestsNoAck(b))

	pkt := gopacket.NewPacket(b, layers.LayerTypeDot11, gopacket.Default)
	d11, ok := pkt.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	require.True(t, ok)
	assert.Equal(t, testSrc, d11.Address2)
	assert.True(t, d11.ChecksumValid())

	beacon, ok := pkt.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon)
	require.True(t, ok)
	assert.Equal(t, uint16(100), beacon.Interval)
	assert.Equal(t, uint64(123456), beacon.Timestamp)

	var ssid string
	for _, l := range pkt.Layers() {
		if ie, ok := l.(*layers.Dot11InformationElement); ok && ie.ID == layers.Dot11InformationElementIDSSID {
			ssid = string(ie.Info)
		}
	}
	assert.Equal(t, "klem", ssid)
}

func TestShortFrames(t *testing.T) {
	_, ok := Type(nil)
	assert.False(t, ok)

	b := BuildQoSData(testDst, testSrc, testBssid, 0, 6, false, nil)
	_, ok = QoSTID(b[:dataHeaderLen+1])
	assert.False(t, ok)

	_, ok = Addr2(b[:MinFrameLen])
	assert.False(t, ok)
}
