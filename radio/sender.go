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
	"time"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/types"
)

// run is the sender task. Queued frames are sent in strict priority order as long as the
// beacon deadline has not passed; once it has, every active interface beacons and the deadline
// moves one interval ahead.
func (r *Radio) run() {
	defer close(r.done)
	defer logger.Debugf("radio %v: sender exit", r.addr)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	deadline := time.Now().Add(r.BeaconInterval())
	for {
		r.lock.Lock()
		active := r.state == stateActive
		sendable := !r.idle && r.powered
		pending := sendable && r.pendingLocked()
		interval := r.interval
		r.lock.Unlock()

		timedOut := false
		if active && !pending {
			wait := interval
			if sendable {
				if d := time.Until(deadline); d < wait {
					wait = d
				}
			}
			if wait <= 0 {
				timedOut = true
			} else {
				timer.Reset(wait)
				select {
				case <-r.wake:
					timer.Stop()
				case <-timer.C:
					timedOut = true
				}
			}
		}

		r.lock.Lock()
		if r.state != stateActive {
			drained := r.drainLocked()
			r.lock.Unlock()
			r.discard(drained)
			return
		}
		if r.idle || !r.powered {
			r.lock.Unlock()
			continue
		}

		if timedOut || !time.Now().Before(deadline) {
			ifaces := r.activeInterfacesLocked()
			capHdr := r.capHeaderLocked()
			interval = r.interval
			r.lock.Unlock()

			r.sendBeacons(ifaces, capHdr)
			deadline = time.Now().Add(interval)

			r.lock.Lock()
			r.beaconCount++
			r.lock.Unlock()
			continue
		}

		q := r.nextQueueLocked()
		if q == nil {
			r.lock.Unlock()
			continue
		}
		f := q.pop()
		if q.reachedLow() {
			r.stack.WakeQueue(q.class)
		}
		q.counters.Sent++
		capHdr := r.capHeaderLocked()
		r.lock.Unlock()

		r.sendFrame(q, f, capHdr)
	}
}

func (r *Radio) pendingLocked() bool {
	return r.nextQueueLocked() != nil
}

// nextQueueLocked returns the lowest-index non-empty queue.
func (r *Radio) nextQueueLocked() *txQueue {
	for _, q := range r.queues {
		if q.depth() > 0 {
			return q
		}
	}
	return nil
}

func (r *Radio) sendFrame(q *txQueue, f *frame.Frame, capHdr *envelope.CapabilityHeader) {
	if r.tx.Send(r.abort, capHdr, f.Data()) == 0 {
		r.lock.Lock()
		q.counters.SendErrors++
		r.lock.Unlock()
		logger.Tracef("radio %v: %s send failed for %v", r.addr, q.class, f)
	}
	r.complete(f, q.class, true)
}

func (r *Radio) sendBeacons(ifaces []Interface, capHdr *envelope.CapabilityHeader) {
	for _, iface := range ifaces {
		b := r.stack.Beacon(iface)
		if b == nil {
			continue
		}
		r.tx.Send(r.abort, capHdr, b.Data())
		b.Release()
	}
}

type drainedFrame struct {
	class types.PriorityClass
	frame *frame.Frame
}

func (r *Radio) drainLocked() []drainedFrame {
	var out []drainedFrame
	for _, q := range r.queues {
		for _, f := range q.drain() {
			out = append(out, drainedFrame{class: q.class, frame: f})
		}
	}
	return out
}

func (r *Radio) discard(drained []drainedFrame) {
	if len(drained) > 0 {
		logger.Debugf("radio %v: discard %d queued frames", r.addr, len(drained))
	}
	for _, d := range drained {
		if r.completeOnDrain {
			r.complete(d.frame, d.class, false)
		} else {
			d.frame.Release()
		}
	}
}
