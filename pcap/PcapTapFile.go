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

package pcap

import (
	"encoding/binary"

	"github.com/klemu/klem/types"
)

// Radiotap header layout: https://www.radiotap.org
const (
	radiotapHeaderLen = 15

	radiotapPresentFlags   = 1 << 1
	radiotapPresentChannel = 1 << 3
	radiotapPresentSignal  = 1 << 5

	radiotapFlagFCS     = 0x10
	radiotapChannelOFDM = 0x0040
	radiotapChannel2GHz = 0x0080
	radiotapChannel5GHz = 0x0100
)

// encodeRadiotap prefixes the frame with flags, channel and antenna signal fields.
func encodeRadiotap(frame Frame) []byte {
	data := make([]byte, radiotapHeaderLen, radiotapHeaderLen+len(frame.Data))
	data[0] = 0 // version
	binary.LittleEndian.PutUint16(data[2:4], radiotapHeaderLen)
	binary.LittleEndian.PutUint32(data[4:8], radiotapPresentFlags|radiotapPresentChannel|radiotapPresentSignal)

	data[8] = radiotapFlagFCS
	// data[9] pads the channel field to 2-byte alignment
	binary.LittleEndian.PutUint16(data[10:12], uint16(frame.Frequency))
	chanFlags := uint16(radiotapChannelOFDM | radiotapChannel2GHz)
	if frame.Band == types.Band5GHz {
		chanFlags = radiotapChannelOFDM | radiotapChannel5GHz
	}
	binary.LittleEndian.PutUint16(data[12:14], chanFlags)
	data[14] = byte(clampSignal(frame.Signal))

	return append(data, frame.Data...)
}

func clampSignal(dbm int32) int8 {
	if dbm < -128 {
		return -128
	}
	if dbm > 127 {
		return 127
	}
	return int8(dbm)
}
