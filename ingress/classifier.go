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

// Package ingress validates frames arriving from the link against the peer filter, classifies
// them into priority classes and hands them to the wireless stack with receive metadata.
package ingress

import (
	"sync/atomic"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/types"
)

// RxRateIndex is reported for every received frame.
const RxRateIndex = 1

// Receiver is the wireless stack's receive entry. It owns f afterwards.
type Receiver interface {
	Receive(f *frame.Frame, md types.RxMetadata)
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(f *frame.Frame, md types.RxMetadata)

func (fn ReceiverFunc) Receive(f *frame.Frame, md types.RxMetadata) {
	fn(f, md)
}

// RadioView is the part of the radio the classifier consults. *radio.Radio implements it.
type RadioView interface {
	Powered() bool
	Capability() types.Capability
	CountReceived(class types.PriorityClass)
}

// Counters of the classifier.
type Counters struct {
	Delivered        uint64
	Filtered         uint64
	DroppedUnpowered uint64
}

type Classifier struct {
	radio    RadioView
	filter   *FilterSet
	receiver Receiver

	delivered        atomic.Uint64
	filtered         atomic.Uint64
	droppedUnpowered atomic.Uint64
}

// NewClassifier creates a classifier. A nil filter accepts every peer.
func NewClassifier(radio RadioView, filter *FilterSet, receiver Receiver) *Classifier {
	if filter == nil {
		filter = NewFilterSet()
	}
	return &Classifier{radio: radio, filter: filter, receiver: receiver}
}

// ClassForTID maps an 802.11 traffic identifier to a priority class.
func ClassForTID(tid uint8) types.PriorityClass {
	switch tid {
	case 6, 7:
		return types.PriorityVoice
	case 4, 5:
		return types.PriorityVideo
	case 0, 3:
		return types.PriorityBestEffort
	case 1, 2:
		return types.PriorityBackground
	default:
		return types.PriorityVoice
	}
}

// Classify returns the class of a raw 802.11 frame; anything but QoS data is class 0.
func Classify(data []byte) types.PriorityClass {
	tid, ok := frame.QoSTID(data)
	if !ok {
		return types.PriorityVoice
	}
	return ClassForTID(tid)
}

// Deliver implements link.Deliverer. capHdr is nil for links in bridge mode; the metadata then
// comes from the radio's own configuration.
func (c *Classifier) Deliver(f *frame.Frame, capHdr *envelope.CapabilityHeader) {
	f = f.Move()
	if !c.radio.Powered() {
		c.droppedUnpowered.Add(1)
		f.Release()
		return
	}

	var md types.RxMetadata
	if capHdr != nil {
		if c.filter.Contains(int(capHdr.PeerId)) {
			c.filtered.Add(1)
			logger.Tracef("ingress: filtered frame from peer %d", capHdr.PeerId)
			f.Release()
			return
		}
		md = types.RxMetadata{
			Band:      capHdr.Band,
			Frequency: capHdr.Frequency,
			Signal:    capHdr.Power,
			PeerId:    types.NodeId(capHdr.PeerId),
		}
	} else {
		own := c.radio.Capability()
		md = types.RxMetadata{
			Band:      own.Band,
			Frequency: own.Frequency,
			Signal:    own.Power,
			PeerId:    types.DefaultNodeId,
		}
	}
	md.RateIndex = RxRateIndex
	md.Class = Classify(f.Data())

	c.radio.CountReceived(md.Class)
	c.delivered.Add(1)
	if c.receiver != nil {
		c.receiver.Receive(f, md)
	} else {
		f.Release()
	}
}

func (c *Classifier) Filter() *FilterSet {
	return c.filter
}

func (c *Classifier) Counters() Counters {
	return Counters{
		Delivered:        c.delivered.Load(),
		Filtered:         c.filtered.Load(),
		DroppedUnpowered: c.droppedUnpowered.Load(),
	}
}
