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
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/types"
)

var (
	staAddr   = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	apAddr    = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	radioAddr = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x03}
)

type recordingStack struct {
	lock    sync.Mutex
	events  []string
	beacons int
}

func (s *recordingStack) record(e string) {
	s.lock.Lock()
	s.events = append(s.events, e)
	s.lock.Unlock()
}

func (s *recordingStack) StopQueue(class types.PriorityClass) {
	s.record(fmt.Sprintf("stop %d", class))
}

func (s *recordingStack) WakeQueue(class types.PriorityClass) {
	s.record(fmt.Sprintf("wake %d", class))
}

func (s *recordingStack) Beacon(iface Interface) *frame.Frame {
	s.lock.Lock()
	s.beacons++
	s.lock.Unlock()
	return frame.New(frame.BuildBeacon(iface.Addr, 0, 0, 100, iface.SSID, 1))
}

func (s *recordingStack) Events() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.events...)
}

// recordingTx remembers every payload and returns the configured result.
type recordingTx struct {
	lock     sync.Mutex
	payloads [][]byte
	capHdrs  []*envelope.CapabilityHeader
	fail     bool
}

func (t *recordingTx) Send(_ context.Context, capHdr *envelope.CapabilityHeader, payload []byte) int {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.payloads = append(t.payloads, append([]byte(nil), payload...))
	t.capHdrs = append(t.capHdrs, capHdr)
	if t.fail {
		return 0
	}
	return len(payload)
}

func (t *recordingTx) Payloads() [][]byte {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([][]byte(nil), t.payloads...)
}

// gatedTx blocks every send until the test releases it.
type gatedTx struct {
	entered chan []byte
	release chan struct{}
}

func newGatedTx() *gatedTx {
	return &gatedTx{entered: make(chan []byte), release: make(chan struct{})}
}

func (t *gatedTx) Send(ctx context.Context, _ *envelope.CapabilityHeader, payload []byte) int {
	select {
	case t.entered <- payload:
	case <-ctx.Done():
		return 0
	}
	select {
	case <-t.release:
		return len(payload)
	case <-ctx.Done():
		return 0
	}
}

// dataFrame builds a QoS data frame whose payload carries a sequence marker.
func dataFrame(marker uint16, tid uint8) *frame.Frame {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint16(payload, marker)
	return frame.New(frame.BuildQoSData(apAddr, staAddr, apAddr, marker, tid, false, payload))
}

func frameMarker(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data[22:24]) >> 4
}

func newTestRadio(t *testing.T, stack Stack, tx Transmitter, mutate func(cfg *Config)) *Radio {
	cfg := DefaultConfig()
	cfg.Addr = radioAddr
	cfg.NodeId = 7
	if mutate != nil {
		mutate(cfg)
	}
	r := New(cfg, stack)
	require.Nil(t, r.Start(tx))
	t.Cleanup(r.Stop)
	return r
}

func TestIntervalTicks(t *testing.T) {
	assert.Equal(t, 1000, IntervalTicks(1024))
	assert.Equal(t, 97, IntervalTicks(100))
	assert.Equal(t, 1, IntervalTicks(1))
	assert.Equal(t, 1, IntervalTicks(0))
}

func TestResolveClass(t *testing.T) {
	qos := dataFrame(1, 5).Data()
	assert.Equal(t, types.PriorityBackground, resolveClass(qos, types.PriorityBackground))
	assert.Equal(t, types.PriorityVoice, resolveClass(qos, types.PriorityClass(9)))

	plain := frame.BuildBeacon(staAddr, 1, 0, 100, "klem", 1)
	assert.Equal(t, types.PriorityVoice, resolveClass(plain, types.PriorityBackground))
}

func TestStartStopLifecycle(t *testing.T) {
	r := New(nil, nil)
	assert.False(t, r.Active())
	require.Nil(t, r.Start(&recordingTx{}))
	assert.True(t, r.Active())
	assert.False(t, r.Powered())
	assert.NotNil(t, r.Start(&recordingTx{}))

	r.SetPowered(true)
	assert.True(t, r.Powered())
	r.Stop()
	r.Stop()
	assert.False(t, r.Active())
	assert.False(t, r.Powered())
	assert.NotNil(t, r.Start(&recordingTx{}))
}

func TestTransmitInactiveCompletesFailed(t *testing.T) {
	r := New(nil, nil)
	f := dataFrame(1, 0)
	r.Transmit(f, types.PriorityVoice)
	assert.False(t, f.Valid())

	s, ok := r.Completions().Pop()
	require.True(t, ok)
	assert.False(t, s.Acked)
	assert.False(t, s.Frame.Acked())
}

func TestTransmitUnpoweredNeverQueues(t *testing.T) {
	tx := &recordingTx{}
	r := newTestRadio(t, nil, tx, nil)

	for i := 0; i < 40; i++ {
		r.Transmit(dataFrame(uint16(i), 0), types.PriorityVoice)
	}
	assert.Equal(t, 40, r.Completions().Len())
	for _, s := range r.Completions().PopAll() {
		assert.False(t, s.Acked)
	}
	for _, q := range r.Stats().Queues {
		assert.Equal(t, 0, q.Depth)
		assert.Equal(t, uint64(0), q.Dropped)
	}
	assert.Len(t, tx.Payloads(), 0)
}

func TestTransmitRuntDropped(t *testing.T) {
	r := newTestRadio(t, nil, &recordingTx{}, nil)
	r.SetPowered(true)

	r.Transmit(frame.New(make([]byte, frame.MinFrameLen-1)), types.PriorityVoice)
	assert.Equal(t, uint64(1), r.Stats().RuntDropped)
	assert.Equal(t, 0, r.Completions().Len())
}

func TestQueueWatermarks(t *testing.T) {
	stack := &recordingStack{}
	tx := newGatedTx()
	r := newTestRadio(t, stack, tx, nil)
	r.SetPowered(true)
	r.SetIdle(true)

	for i := 0; i < 40; i++ {
		r.Transmit(dataFrame(uint16(i), 0), types.PriorityBestEffort)
		st := r.Stats().Queues[types.PriorityBestEffort]
		assert.LessOrEqual(t, st.Depth, QueueCapacity)
		assert.Equal(t, i+1 >= HighWatermark, st.Blocked, "after %d frames", i+1)
		if i+1 == HighWatermark {
			assert.Equal(t, []string{"stop 2"}, stack.Events())
		}
	}
	st := r.Stats().Queues[types.PriorityBestEffort]
	assert.Equal(t, QueueCapacity, st.Depth)
	assert.Equal(t, uint64(40-QueueCapacity), st.Dropped)
	assert.Equal(t, []string{"stop 2"}, stack.Events())

	r.SetIdle(false)
	for k := 1; k <= QueueCapacity; k++ {
		<-tx.entered
		st = r.Stats().Queues[types.PriorityBestEffort]
		assert.Equal(t, QueueCapacity-k, st.Depth)
		assert.Equal(t, QueueCapacity-k > LowWatermark, st.Blocked, "after %d sends", k)
		tx.release <- struct{}{}
	}
	assert.Equal(t, []string{"stop 2", "wake 2"}, stack.Events())
}

func TestStrictPriorityAndFifo(t *testing.T) {
	tx := &recordingTx{}
	r := newTestRadio(t, nil, tx, nil)
	r.SetPowered(true)
	r.SetIdle(true)

	classes := []types.PriorityClass{3, 1, 0, 3, 1, 0, 2, 0}
	for i, c := range classes {
		r.Transmit(dataFrame(uint16(i), uint8(c)), c)
	}
	r.SetIdle(false)

	require.Eventually(t, func() bool {
		return r.Completions().Len() == len(classes)
	}, time.Second, time.Millisecond)

	var got []uint16
	for _, p := range tx.Payloads() {
		got = append(got, frameMarker(p))
	}
	assert.Equal(t, []uint16{2, 5, 7, 1, 4, 6, 0, 3}, got)

	st := r.Stats()
	assert.Equal(t, uint64(3), st.Queues[0].Sent)
	assert.Equal(t, uint64(2), st.Queues[1].Sent)
	assert.Equal(t, uint64(1), st.Queues[2].Sent)
	assert.Equal(t, uint64(2), st.Queues[3].Sent)

	statuses := r.Completions().PopAll()
	require.Len(t, statuses, len(classes))
	for _, s := range statuses {
		assert.True(t, s.Acked)
	}
}

func TestSendErrorStillCompletesSuccess(t *testing.T) {
	tx := &recordingTx{fail: true}
	r := newTestRadio(t, nil, tx, nil)
	r.SetPowered(true)

	r.Transmit(dataFrame(1, 0), types.PriorityVoice)
	require.Eventually(t, func() bool {
		return r.Completions().Len() == 1
	}, time.Second, time.Millisecond)

	s, _ := r.Completions().Pop()
	assert.True(t, s.Acked)
	assert.Equal(t, uint64(1), r.Stats().Queues[0].SendErrors)
	assert.Equal(t, uint64(1), r.Stats().Queues[0].Sent)
}

func TestNoAckFrameNeverAcked(t *testing.T) {
	tx := &recordingTx{}
	r := newTestRadio(t, nil, tx, nil)
	r.SetPowered(true)

	data := frame.BuildQoSData(apAddr, staAddr, apAddr, 1, 0, true, []byte("noack"))
	r.Transmit(frame.NewWithFlags(data, frame.TxNoAck), types.PriorityVoice)
	require.Eventually(t, func() bool {
		return r.Completions().Len() == 1
	}, time.Second, time.Millisecond)

	s, _ := r.Completions().Pop()
	assert.False(t, s.Acked)
}

func TestSendCarriesCapability(t *testing.T) {
	tx := &recordingTx{}
	r := newTestRadio(t, nil, tx, nil)
	r.SetCapability(types.Capability{Band: types.Band5GHz, Frequency: 5180, Power: -3})
	r.SetPowered(true)

	r.Transmit(dataFrame(1, 0), types.PriorityVoice)
	require.Eventually(t, func() bool {
		return len(tx.Payloads()) == 1
	}, time.Second, time.Millisecond)

	tx.lock.Lock()
	defer tx.lock.Unlock()
	assert.Equal(t, &envelope.CapabilityHeader{Band: types.Band5GHz, Frequency: 5180, Power: -3, PeerId: 7},
		tx.capHdrs[0])
}

func TestStopDrainsQueues(t *testing.T) {
	for _, completeOnDrain := range []bool{false, true} {
		t.Run(fmt.Sprintf("completeOnDrain=%v", completeOnDrain), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.CompleteOnDrain = completeOnDrain
			r := New(cfg, &recordingStack{})
			require.Nil(t, r.Start(&recordingTx{}))
			r.SetPowered(true)
			r.SetIdle(true)

			for c := 0; c < types.NumPriorityClasses; c++ {
				for i := 0; i < QueueCapacity; i++ {
					r.Transmit(dataFrame(uint16(i), uint8(c)), types.PriorityClass(c))
				}
			}
			for _, q := range r.Stats().Queues {
				assert.Equal(t, QueueCapacity, q.Depth)
			}

			r.Stop()
			for _, q := range r.Stats().Queues {
				assert.Equal(t, 0, q.Depth)
			}
			if completeOnDrain {
				statuses := r.Completions().PopAll()
				assert.Len(t, statuses, types.NumPriorityClasses*QueueCapacity)
				for _, s := range statuses {
					assert.False(t, s.Acked)
				}
			} else {
				assert.Equal(t, 0, r.Completions().Len())
			}
		})
	}
}

func TestStopAbortsBlockedSend(t *testing.T) {
	tx := newGatedTx()
	r := New(nil, nil)
	require.Nil(t, r.Start(tx))
	r.SetPowered(true)
	r.Transmit(dataFrame(1, 0), types.PriorityVoice)
	<-tx.entered

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop blocked on an in-flight send")
	}
}

func TestBeaconsWhenIdleOfData(t *testing.T) {
	stack := &recordingStack{}
	tx := &recordingTx{}
	r := newTestRadio(t, stack, tx, func(cfg *Config) {
		cfg.BeaconIntervalTU = 10
	})
	require.Nil(t, r.AddInterface(Interface{Name: "ap0", SSID: "klem", Active: true}))
	require.Nil(t, r.AddInterface(Interface{Name: "ap1", SSID: "off"}))
	assert.NotNil(t, r.AddInterface(Interface{Name: "ap0"}))
	r.SetPowered(true)

	interval := r.BeaconInterval()
	assert.Equal(t, 9*time.Millisecond, interval)
	time.Sleep(30 * interval)
	r.Stop()

	st := r.Stats()
	assert.GreaterOrEqual(t, st.BeaconCount, uint64(10))
	payloads := tx.Payloads()
	require.NotEmpty(t, payloads)
	for _, p := range payloads {
		typ, ok := frame.Type(p)
		require.True(t, ok)
		assert.Equal(t, layers.Dot11TypeMgmtBeacon, typ)
	}
	assert.Equal(t, int(st.BeaconCount), len(payloads), "one beacon per active interface per interval")
}

func TestNoBeaconsWhileIdleOrUnpowered(t *testing.T) {
	tx := &recordingTx{}
	r := newTestRadio(t, &recordingStack{}, tx, func(cfg *Config) {
		cfg.BeaconIntervalTU = 5
	})
	require.Nil(t, r.AddInterface(Interface{Name: "ap0", Active: true}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), r.Stats().BeaconCount)

	r.SetIdle(true)
	r.SetPowered(true)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), r.Stats().BeaconCount)
	assert.Len(t, tx.Payloads(), 0)
}

func TestInterfaces(t *testing.T) {
	r := New(nil, nil)
	require.Nil(t, r.AddInterface(Interface{Name: "ap0"}))
	require.Nil(t, r.SetInterfaceActive("ap0", true))
	assert.NotNil(t, r.SetInterfaceActive("ap9", true))

	ifaces := r.Interfaces()
	require.Len(t, ifaces, 1)
	assert.Equal(t, r.Addr(), ifaces[0].Addr)
	assert.True(t, ifaces[0].Active)

	assert.True(t, r.RemoveInterface("ap0"))
	assert.False(t, r.RemoveInterface("ap0"))
}

func TestConfigureQueue(t *testing.T) {
	r := New(nil, nil)
	params := types.QueueParams{Aifs: 2, CwMin: 3, CwMax: 7, Txop: 47}
	require.Nil(t, r.ConfigureQueue(types.PriorityVideo, params))
	assert.NotNil(t, r.ConfigureQueue(types.PriorityClass(4), params))
	assert.Equal(t, params, r.Stats().Queues[types.PriorityVideo].Params)
}

func TestCountReceived(t *testing.T) {
	r := New(nil, nil)
	r.CountReceived(types.PriorityVideo)
	r.CountReceived(types.PriorityClass(7))
	st := r.Stats()
	assert.Equal(t, uint64(1), st.Queues[types.PriorityVideo].Received)
	assert.Equal(t, uint64(1), st.Queues[types.PriorityVoice].Received)
}
