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

// Package pcap writes captures of the 802.11 frames passing through a radio.
package pcap

import (
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/klemu/klem/types"
)

type FrameType int

const (
	FrameTypeOff FrameType = iota
	FrameTypeDot11
	FrameTypeRadiotap
	FrameTypeUnknown
)

const (
	FrameTypeOffStr      string = "off"
	FrameTypeDot11Str    string = "dot11"
	FrameTypeRadiotapStr string = "radiotap"
)

const snapLen = 65535

// File represents a PCAP file. It is safe for concurrent use.
type File interface {
	AppendFrame(frame Frame) error
	Sync() error
	Close() error
}

// Frame represents a single 802.11 frame, including its FCS, that can be added to a PCAP file.
type Frame struct {
	Timestamp time.Time
	Data      []byte
	Band      types.Band
	Frequency uint32
	Signal    int32 // dBm
}

type encodeFunc func(frame Frame) []byte

type pcapFile struct {
	lock   sync.Mutex
	fd     *os.File
	w      *pcapgo.Writer
	encode encodeFunc
}

// NewFile creates a new PCAP file with all frames using specified frameType.
func NewFile(filename string, frameType FrameType) (File, error) {
	switch frameType {
	case FrameTypeDot11:
		return newPcapFile(filename, layers.LinkTypeIEEE802_11, func(frame Frame) []byte {
			return frame.Data
		})
	case FrameTypeRadiotap:
		return newPcapFile(filename, layers.LinkTypeIEEE80211Radio, encodeRadiotap)
	default:
		return nil, errors.Errorf("invalid PCAP frame type: %d", frameType)
	}
}

func ParseFrameTypeStr(tp string) FrameType {
	switch tp {
	case FrameTypeOffStr, "":
		return FrameTypeOff
	case FrameTypeDot11Str:
		return FrameTypeDot11
	case FrameTypeRadiotapStr:
		return FrameTypeRadiotap
	default:
		return FrameTypeUnknown
	}
}

func newPcapFile(filename string, linkType layers.LinkType, encode encodeFunc) (File, error) {
	fd, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "create pcap file %s", filename)
	}

	pf := &pcapFile{
		fd:     fd,
		w:      pcapgo.NewWriter(fd),
		encode: encode,
	}
	if err = pf.w.WriteFileHeader(snapLen, linkType); err != nil {
		_ = fd.Close()
		return nil, errors.Wrapf(err, "write pcap header to %s", filename)
	}
	if err = fd.Sync(); err != nil {
		_ = fd.Close()
		return nil, err
	}
	return pf, nil
}

func (pf *pcapFile) AppendFrame(frame Frame) error {
	data := pf.encode(frame)
	ci := gopacket.CaptureInfo{
		Timestamp:     frame.Timestamp,
		CaptureLength: len(data),
		Length:        len(data),
	}

	pf.lock.Lock()
	defer pf.lock.Unlock()
	return pf.w.WritePacket(ci, data)
}

func (pf *pcapFile) Sync() error {
	pf.lock.Lock()
	defer pf.lock.Unlock()
	return pf.fd.Sync()
}

func (pf *pcapFile) Close() error {
	pf.lock.Lock()
	defer pf.lock.Unlock()
	return pf.fd.Close()
}
