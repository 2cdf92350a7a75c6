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

package radio

import (
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/types"
)

const (
	QueueCapacity = 32
	HighWatermark = 16
	LowWatermark  = 8
)

// txQueue is one bounded transmit FIFO. All fields are guarded by the radio lock.
type txQueue struct {
	class    types.PriorityClass
	params   types.QueueParams
	frames   []*frame.Frame
	blocked  bool
	counters types.QueueCounters
}

func newTxQueue(class types.PriorityClass) *txQueue {
	return &txQueue{
		class:  class,
		frames: make([]*frame.Frame, 0, QueueCapacity),
	}
}

func (q *txQueue) depth() int {
	return len(q.frames)
}

func (q *txQueue) full() bool {
	return len(q.frames) >= QueueCapacity
}

func (q *txQueue) push(f *frame.Frame) {
	q.frames = append(q.frames, f)
}

func (q *txQueue) pop() *frame.Frame {
	if len(q.frames) == 0 {
		return nil
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	if len(q.frames) == 0 {
		q.frames = q.frames[:0:0]
	}
	return f
}

// drain removes every queued frame.
func (q *txQueue) drain() []*frame.Frame {
	out := q.frames
	q.frames = make([]*frame.Frame, 0, QueueCapacity)
	q.blocked = false
	return out
}

// reachedHigh reports the transition into the blocked state.
func (q *txQueue) reachedHigh() bool {
	if !q.blocked && q.depth() >= HighWatermark {
		q.blocked = true
		return true
	}
	return false
}

// reachedLow reports the transition out of the blocked state.
func (q *txQueue) reachedLow() bool {
	if q.blocked && q.depth() <= LowWatermark {
		q.blocked = false
		return true
	}
	return false
}

func (q *txQueue) stats() types.QueueStats {
	return types.QueueStats{
		Class:         q.class,
		Params:        q.params,
		Depth:         q.depth(),
		Blocked:       q.blocked,
		QueueCounters: q.counters,
	}
}
