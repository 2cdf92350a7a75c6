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

package ctrl

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/ingress"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/pcap"
	"github.com/klemu/klem/radio"
	"github.com/klemu/klem/types"
)

// StationCounters are the counters of the station side of a radio.
type StationCounters struct {
	Beacons   uint64
	Received  uint64
	Completed uint64
	Acked     uint64
}

// Station is the wireless stack of the daemon. It produces beacons for the radio's
// interfaces, consumes transmit completions, accepts received frames and mirrors all of them
// into the capture file. An optional upper receiver gets the received frames.
type Station struct {
	lock       sync.Mutex
	capability types.Capability
	channel    int
	intervalTU int
	paused     [types.NumPriorityClasses]bool
	capture    pcap.File
	upper      ingress.Receiver
	started    time.Time

	seq       atomic.Uint32
	beacons   atomic.Uint64
	received  atomic.Uint64
	completed atomic.Uint64
	acked     atomic.Uint64
}

func NewStation(capture pcap.File, upper ingress.Receiver) *Station {
	return &Station{
		capability: types.DefaultCapability(),
		channel:    1,
		intervalTU: radio.DefaultBeaconIntervalTU,
		capture:    capture,
		upper:      upper,
		started:    time.Now(),
	}
}

func (s *Station) configure(c types.Capability, channel int, intervalTU int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.capability = c
	s.channel = channel
	s.intervalTU = intervalTU
}

func (s *Station) setIntervalTU(tu int) {
	s.lock.Lock()
	s.intervalTU = tu
	s.lock.Unlock()
}

func (s *Station) StopQueue(class types.PriorityClass) {
	s.lock.Lock()
	s.paused[class] = true
	s.lock.Unlock()
	logger.Debugf("station: %s queue paused", class)
}

func (s *Station) WakeQueue(class types.PriorityClass) {
	s.lock.Lock()
	s.paused[class] = false
	s.lock.Unlock()
	logger.Debugf("station: %s queue resumed", class)
}

// Paused reports whether the radio asked to hold back frames of a class.
func (s *Station) Paused(class types.PriorityClass) bool {
	if !class.Valid() {
		return false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.paused[class]
}

func (s *Station) nextSeq() uint16 {
	return uint16(s.seq.Add(1) & 0x0fff)
}

func (s *Station) Beacon(iface radio.Interface) *frame.Frame {
	s.lock.Lock()
	channel, intervalTU, c := s.channel, s.intervalTU, s.capability
	s.lock.Unlock()

	ts := uint64(time.Since(s.started).Microseconds())
	data := frame.BuildBeacon(iface.Addr, s.nextSeq(), ts, uint16(intervalTU), iface.SSID, channel)
	s.beacons.Add(1)
	s.capturePacket(data, c)
	return frame.New(data)
}

func (s *Station) Receive(f *frame.Frame, md types.RxMetadata) {
	s.received.Add(1)
	s.capturePacket(f.Data(), types.Capability{Band: md.Band, Frequency: md.Frequency, Power: md.Signal})
	if addr, ok := frame.Addr2(f.Data()); ok {
		logger.Tracef("station: rx %d bytes from %v peer %d class %s", f.Len(), addr, md.PeerId, md.Class)
	}
	if s.upper != nil {
		s.upper.Receive(f.Move(), md)
		return
	}
	f.Release()
}

// serveCompletions consumes transmit results until done is closed, then drains what is left.
func (s *Station) serveCompletions(cq *radio.CompletionQueue, done <-chan struct{}) {
	for {
		select {
		case <-cq.Notify():
			s.handleCompletions(cq.PopAll())
		case <-done:
			s.handleCompletions(cq.PopAll())
			return
		}
	}
}

func (s *Station) handleCompletions(statuses []radio.TxStatus) {
	s.lock.Lock()
	c := s.capability
	s.lock.Unlock()

	for _, st := range statuses {
		s.completed.Add(1)
		if st.Acked {
			s.acked.Add(1)
			s.capturePacket(st.Frame.Data(), c)
		}
		st.Frame.Release()
	}
}

func (s *Station) capturePacket(data []byte, c types.Capability) {
	if s.capture == nil {
		return
	}
	err := s.capture.AppendFrame(pcap.Frame{
		Timestamp: time.Now(),
		Data:      data,
		Band:      c.Band,
		Frequency: c.Frequency,
		Signal:    c.Power,
	})
	if err != nil {
		logger.Warnf("station: capture: %v", err)
	}
}

func (s *Station) Counters() StationCounters {
	return StationCounters{
		Beacons:   s.beacons.Load(),
		Received:  s.received.Load(),
		Completed: s.completed.Load(),
		Acked:     s.acked.Load(),
	}
}
