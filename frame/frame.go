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

// Package frame holds the 802.11 frame buffer passed between the wireless stack, the radio
// scheduler and the link transport.
//
// A Frame has exactly one owner at a time. Handing a frame to another component is done with
// Move, which leaves the previous handle empty; touching an empty handle panics.
package frame

import (
	"fmt"

	"github.com/pkg/errors"
)

// TxFlags are the transmit control flags requested by the wireless stack.
type TxFlags uint8

const (
	TxNoAck TxFlags = 1 << iota
)

// TxStatus are the transmit status marks reported back to the wireless stack.
type TxStatus uint8

const (
	StatusAcked TxStatus = 1 << iota
)

type Frame struct {
	data   []byte
	flags  TxFlags
	status TxStatus
	valid  bool
}

// New wraps data in a frame. The frame takes ownership of data.
func New(data []byte) *Frame {
	return &Frame{data: data, valid: true}
}

// NewWithFlags wraps data in a frame with transmit control flags.
func NewWithFlags(data []byte, flags TxFlags) *Frame {
	return &Frame{data: data, flags: flags, valid: true}
}

// Move transfers ownership to a new handle. The receiver is empty afterwards.
func (f *Frame) Move() *Frame {
	f.mustBeValid()
	moved := &Frame{data: f.data, flags: f.flags, status: f.status, valid: true}
	f.data, f.flags, f.status, f.valid = nil, 0, 0, false
	return moved
}

// Release drops the frame contents. Releasing an empty handle is a no-op.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	f.data, f.valid = nil, false
}

// Valid reports whether the handle still owns its frame.
func (f *Frame) Valid() bool {
	return f != nil && f.valid
}

func (f *Frame) Data() []byte {
	f.mustBeValid()
	return f.data
}

func (f *Frame) Len() int {
	f.mustBeValid()
	return len(f.data)
}

func (f *Frame) Flags() TxFlags {
	f.mustBeValid()
	return f.flags
}

func (f *Frame) NoAck() bool {
	return f.Flags()&TxNoAck != 0
}

func (f *Frame) Status() TxStatus {
	f.mustBeValid()
	return f.status
}

func (f *Frame) Acked() bool {
	return f.Status()&StatusAcked != 0
}

// SetTxResult clears earlier status marks and records the transmit outcome. The acked mark is
// only set if the frame did not ask for no-ack.
func (f *Frame) SetTxResult(acked bool) {
	f.mustBeValid()
	f.status = 0
	if acked && f.flags&TxNoAck == 0 {
		f.status |= StatusAcked
	}
}

func (f *Frame) String() string {
	if !f.Valid() {
		return "Frame{moved}"
	}
	return fmt.Sprintf("Frame{len=%d,flags=%#x,status=%#x}", len(f.data), f.flags, f.status)
}

func (f *Frame) mustBeValid() {
	if !f.Valid() {
		panic(errors.New("use of moved or released frame"))
	}
}
