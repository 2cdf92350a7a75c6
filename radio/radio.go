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

// Package radio implements the virtual radio: four strict-priority transmit queues with
// watermark flow control, a single sender task that interleaves queued frames with periodic
// beacons, and the completion queue reporting results back to the wireless stack.
package radio

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/prng"
	"github.com/klemu/klem/types"
)

const (
	DefaultBeaconIntervalTU = 1024
	Tick                    = time.Millisecond
)

// Transmitter ships one frame on the link and returns the payload bytes sent, 0 on failure.
// *link.Conn implements it.
type Transmitter interface {
	Send(ctx context.Context, capHdr *envelope.CapabilityHeader, payload []byte) int
}

// FlowControl pauses and resumes the upstream queue of a priority class. Both calls are made
// with the radio lock held and must not call back into the radio.
type FlowControl interface {
	StopQueue(class types.PriorityClass)
	WakeQueue(class types.PriorityClass)
}

// BeaconSource produces the beacon of a logical interface, or nil to skip it.
type BeaconSource interface {
	Beacon(iface Interface) *frame.Frame
}

// Stack is the wireless stack above the radio.
type Stack interface {
	FlowControl
	BeaconSource
}

type Config struct {
	Addr             net.HardwareAddr
	NodeId           types.NodeId
	Capability       types.Capability
	BeaconIntervalTU int
	Queues           [types.NumPriorityClasses]types.QueueParams
	// CompleteOnDrain reports frames discarded at shutdown as failed transmissions instead of
	// freeing them silently.
	CompleteOnDrain bool
}

func DefaultConfig() *Config {
	return &Config{
		Capability:       types.DefaultCapability(),
		BeaconIntervalTU: DefaultBeaconIntervalTU,
	}
}

type state int

const (
	stateNew state = iota
	stateActive
	stateStopped
)

type Radio struct {
	lock            sync.Mutex
	state           state
	powered         bool
	idle            bool
	addr            net.HardwareAddr
	nodeId          types.NodeId
	capability      types.Capability
	interval        time.Duration
	completeOnDrain bool
	queues          [types.NumPriorityClasses]*txQueue
	ifaces          []Interface
	beaconCount     uint64
	runtDropped     uint64

	stack       Stack
	tx          Transmitter
	completions *CompletionQueue
	wake        chan struct{}
	abort       context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// IntervalTicks converts a beacon interval in TU to ticks, never less than one.
func IntervalTicks(tu int) int {
	ticks := tu * 1000 >> 10
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// New creates an inactive radio. stack may be nil.
func New(cfg *Config, stack Stack) *Radio {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if stack == nil {
		stack = nopStack{}
	}
	r := &Radio{
		addr:            cfg.Addr,
		nodeId:          cfg.NodeId,
		capability:      cfg.Capability,
		interval:        time.Duration(IntervalTicks(cfg.BeaconIntervalTU)) * Tick,
		completeOnDrain: cfg.CompleteOnDrain,
		stack:           stack,
		completions:     newCompletionQueue(),
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	if cfg.BeaconIntervalTU <= 0 {
		r.interval = time.Duration(IntervalTicks(DefaultBeaconIntervalTU)) * Tick
	}
	if len(r.addr) != 6 {
		r.addr = prng.NewHardwareAddr()
	}
	for i := range r.queues {
		r.queues[i] = newTxQueue(types.PriorityClass(i))
		r.queues[i].params = cfg.Queues[i]
	}
	r.abort, r.cancel = context.WithCancel(context.Background())
	return r
}

// Start activates the radio, unpowered, and spawns the sender task. A stopped radio cannot be
// started again.
func (r *Radio) Start(tx Transmitter) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	switch r.state {
	case stateActive:
		return errors.Errorf("radio %v already started", r.addr)
	case stateStopped:
		return errors.Errorf("radio %v was stopped", r.addr)
	}
	if tx == nil {
		tx = discardTransmitter{}
	}
	r.tx = tx
	r.state = stateActive
	r.powered = false
	go r.run()
	logger.Infof("radio %v started, beacon interval %v", r.addr, r.interval)
	return nil
}

// Stop deactivates the radio, aborts an in-flight send and waits for the sender task, which
// discards all queued frames.
func (r *Radio) Stop() {
	r.lock.Lock()
	if r.state != stateActive {
		r.state = stateStopped
		r.lock.Unlock()
		return
	}
	r.state = stateStopped
	r.powered = false
	r.lock.Unlock()

	r.cancel()
	r.wakeSender()
	<-r.done
	logger.Infof("radio %v stopped", r.addr)
}

// Transmit enqueues a frame with the class chosen by the stack's queue mapping. The radio
// takes ownership of f.
func (r *Radio) Transmit(f *frame.Frame, class types.PriorityClass) {
	f = f.Move()
	if f.Len() < frame.MinFrameLen {
		r.lock.Lock()
		r.runtDropped++
		r.lock.Unlock()
		f.Release()
		return
	}
	class = resolveClass(f.Data(), class)

	r.lock.Lock()
	if r.state != stateActive || !r.powered {
		r.lock.Unlock()
		r.complete(f, class, false)
		return
	}

	q := r.queues[class]
	if q.full() {
		q.counters.Dropped++
		r.lock.Unlock()
		logger.Tracef("radio %v: %s queue full, drop %v", r.addr, class, f)
		f.Release()
		return
	}
	q.push(f)
	if q.reachedHigh() {
		r.stack.StopQueue(class)
	}
	r.lock.Unlock()

	r.wakeSender()
}

// resolveClass picks the queue of a frame: QoS data frames keep the requested class, all other
// frames and out-of-range classes go to class 0.
func resolveClass(data []byte, requested types.PriorityClass) types.PriorityClass {
	if !frame.IsQoSData(data) || !requested.Valid() {
		return types.PriorityVoice
	}
	return requested
}

func (r *Radio) complete(f *frame.Frame, class types.PriorityClass, acked bool) {
	f.SetTxResult(acked)
	r.completions.push(TxStatus{Frame: f, Class: class, Acked: f.Acked()})
}

// Completions returns the queue on which transmit results are reported.
func (r *Radio) Completions() *CompletionQueue {
	return r.completions
}

func (r *Radio) wakeSender() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Radio) SetPowered(powered bool) {
	r.lock.Lock()
	if r.state == stateActive {
		r.powered = powered
	}
	r.lock.Unlock()
	r.wakeSender()
}

func (r *Radio) Powered() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state == stateActive && r.powered
}

func (r *Radio) Active() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state == stateActive
}

// SetIdle suspends or resumes the sender. Frames keep queueing while idle.
func (r *Radio) SetIdle(idle bool) {
	r.lock.Lock()
	r.idle = idle
	r.lock.Unlock()
	r.wakeSender()
}

func (r *Radio) SetBeaconInterval(tu int) {
	r.lock.Lock()
	r.interval = time.Duration(IntervalTicks(tu)) * Tick
	r.lock.Unlock()
	r.wakeSender()
}

func (r *Radio) BeaconInterval() time.Duration {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.interval
}

// ConfigureQueue records the contention parameters of a queue. They do not affect scheduling.
func (r *Radio) ConfigureQueue(class types.PriorityClass, params types.QueueParams) error {
	if !class.Valid() {
		return errors.Errorf("invalid queue %d", class)
	}
	r.lock.Lock()
	r.queues[class].params = params
	r.lock.Unlock()
	logger.Debugf("radio %v: %s queue aifs=%d cw_min=%d cw_max=%d txop=%d", r.addr, class,
		params.Aifs, params.CwMin, params.CwMax, params.Txop)
	return nil
}

func (r *Radio) SetCapability(c types.Capability) {
	r.lock.Lock()
	r.capability = c
	r.lock.Unlock()
}

func (r *Radio) Capability() types.Capability {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.capability
}

func (r *Radio) SetNodeId(id types.NodeId) {
	r.lock.Lock()
	r.nodeId = id
	r.lock.Unlock()
}

func (r *Radio) NodeId() types.NodeId {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.nodeId
}

func (r *Radio) Addr() net.HardwareAddr {
	return r.addr
}

// CountReceived increments the receive counter of a class.
func (r *Radio) CountReceived(class types.PriorityClass) {
	if !class.Valid() {
		class = types.PriorityVoice
	}
	r.lock.Lock()
	r.queues[class].counters.Received++
	r.lock.Unlock()
}

func (r *Radio) Stats() types.RadioStats {
	r.lock.Lock()
	defer r.lock.Unlock()
	st := types.RadioStats{
		Active:      r.state == stateActive,
		Powered:     r.state == stateActive && r.powered,
		Idle:        r.idle,
		Addr:        r.addr,
		BeaconCount: r.beaconCount,
		RuntDropped: r.runtDropped,
	}
	for i, q := range r.queues {
		st.Queues[i] = q.stats()
	}
	return st
}

func (r *Radio) capHeaderLocked() *envelope.CapabilityHeader {
	return envelope.NewCapabilityHeader(r.capability, r.nodeId)
}

type nopStack struct{}

func (nopStack) StopQueue(types.PriorityClass) {}

func (nopStack) WakeQueue(types.PriorityClass) {}

func (nopStack) Beacon(Interface) *frame.Frame {
	return nil
}

// discardTransmitter stands in when the radio runs without a link; every send fails.
type discardTransmitter struct{}

func (discardTransmitter) Send(context.Context, *envelope.CapabilityHeader, []byte) int {
	return 0
}
