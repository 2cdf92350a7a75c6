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

package types

import (
	"fmt"
	"net"
)

// NodeId identifies an emulated radio on the shared medium. It travels as the peer id of the
// capability sub-header.
type NodeId = int

const (
	DefaultNodeId NodeId = 0
	MaxNodeId     NodeId = 255
	NumNodeIds           = MaxNodeId + 1
)

// PriorityClass is one of the four traffic buckets used for both the transmit queues and
// received frames. Class 0 has the highest priority.
type PriorityClass uint8

const (
	PriorityVoice PriorityClass = iota
	PriorityVideo
	PriorityBestEffort
	PriorityBackground

	NumPriorityClasses = 4
)

func (c PriorityClass) String() string {
	switch c {
	case PriorityVoice:
		return "voice"
	case PriorityVideo:
		return "video"
	case PriorityBestEffort:
		return "best-effort"
	case PriorityBackground:
		return "background"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Valid reports whether c names one of the four queues.
func (c PriorityClass) Valid() bool {
	return c < NumPriorityClasses
}

// BroadcastAddr is the all-ones link address.
var BroadcastAddr = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// QueueParams are the contention parameters configured per transmit queue. They are recorded
// for introspection only.
type QueueParams struct {
	Aifs  uint8  `yaml:"aifs"`
	CwMin uint16 `yaml:"cw_min"`
	CwMax uint16 `yaml:"cw_max"`
	Txop  uint16 `yaml:"txop"`
}

// QueueCounters are the monotonic per-queue counters.
type QueueCounters struct {
	Received   uint64
	Sent       uint64
	SendErrors uint64
	Dropped    uint64
}

// QueueStats is a snapshot of one transmit queue.
type QueueStats struct {
	Class   PriorityClass
	Params  QueueParams
	Depth   int
	Blocked bool
	QueueCounters
}

// RadioStats is a snapshot of a radio instance.
type RadioStats struct {
	Active      bool
	Powered     bool
	Idle        bool
	Addr        net.HardwareAddr
	BeaconCount uint64
	RuntDropped uint64
	Queues      [NumPriorityClasses]QueueStats
}

// RxMetadata accompanies every frame delivered to the wireless stack.
type RxMetadata struct {
	Band      Band
	Frequency uint32
	Signal    int32
	PeerId    NodeId
	RateIndex int
	Class     PriorityClass
}
