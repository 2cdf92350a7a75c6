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
	"encoding/binary"
	"hash/crc32"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/klemu/klem/logger"
)

const (
	// MinFrameLen is the shortest 802.11 frame: frame control, duration and one address.
	MinFrameLen = 10

	dataHeaderLen = 24
	qosControlLen = 2
	fcsLen        = 4

	capabilityESS = 0x0001
	ackPolicyMask = 0x60
	ackPolicyNone = byte(layers.Dot11AckPolicyNone) << 5
)

var supportedRates = []byte{0x82, 0x84, 0x8b, 0x96}

// Type returns the 802.11 type/subtype of a raw frame.
func Type(data []byte) (layers.Dot11Type, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return layers.Dot11Type(data[0]&0xFC) >> 2, true
}

// IsQoSData reports whether data is a QoS data frame.
func IsQoSData(data []byte) bool {
	t, ok := Type(data)
	return ok && t.MainType() == layers.Dot11TypeData && t.QOS()
}

// QoSTID returns the 4-bit traffic identifier of a QoS data frame.
func QoSTID(data []byte) (uint8, bool) {
	off, ok := qosControlOffset(data)
	if !ok {
		return 0, false
	}
	return data[off] & 0x0F, true
}

func qosControlOffset(data []byte) (int, bool) {
	if !IsQoSData(data) {
		return 0, false
	}
	off := dataHeaderLen
	flags := layers.Dot11Flags(data[1])
	if flags.ToDS() && flags.FromDS() {
		off += 6
	}
	if len(data) < off+qosControlLen {
		return 0, false
	}
	return off, true
}

// Addr2 returns the transmitter address of a management or data frame.
func Addr2(data []byte) (net.HardwareAddr, bool) {
	t, ok := Type(data)
	if !ok || t.MainType() == layers.Dot11TypeCtrl || len(data) < 16 {
		return nil, false
	}
	return net.HardwareAddr(data[10:16]), true
}

// BuildBeacon assembles a beacon frame, including the FCS.
func BuildBeacon(src net.HardwareAddr, seq uint16, timestamp uint64, intervalTU uint16, ssid string, channel int) []byte {
	return serialize(
		&layers.Dot11{
			Type:           layers.Dot11TypeMgmtBeacon,
			Address1:       layers.EthernetBroadcast,
			Address2:       src,
			Address3:       src,
			SequenceNumber: seq,
		},
		&layers.Dot11MgmtBeacon{Timestamp: timestamp, Interval: intervalTU, Flags: capabilityESS},
		&layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDSSID, Info: []byte(ssid)},
		&layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDRates, Info: supportedRates},
		&layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDDSSet, Info: []byte{byte(channel)}},
	)
}

// BuildQoSData assembles a QoS data frame carrying payload, including the FCS.
func BuildQoSData(dst, src, bssid net.HardwareAddr, seq uint16, tid uint8, noAck bool, payload []byte) []byte {
	qos := tid & 0x0F
	if noAck {
		qos |= ackPolicyNone
	}
	return serialize(
		&layers.Dot11{
			Type:           layers.Dot11TypeDataQOSData,
			Address1:       dst,
			Address2:       src,
			Address3:       bssid,
			SequenceNumber: seq,
		},
		// Dot11 serializes the fixed header only; the QoS control field leads the body
		gopacket.Payload(append([]byte{qos, 0}, payload...)),
	)
}

// RequestsNoAck reports whether a QoS data frame carries the no-ack policy.
func RequestsNoAck(data []byte) bool {
	off, ok := qosControlOffset(data)
	return ok && data[off]&ackPolicyMask == ackPolicyNone
}

// serialize lays out the frame and appends the FCS, which layers.Dot11 does not write.
func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	logger.PanicIfError(gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, ls...))
	fcs, err := buf.AppendBytes(fcsLen)
	logger.PanicIfError(err)
	b := buf.Bytes()
	binary.LittleEndian.PutUint32(fcs, crc32.ChecksumIEEE(b[:len(b)-fcsLen]))
	return b
}
