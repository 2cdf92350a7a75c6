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

package ingress

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/link"
	"github.com/klemu/klem/types"
)

var (
	staAddr = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	apAddr  = net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
)

type fakeRadio struct {
	lock     sync.Mutex
	powered  bool
	capab    types.Capability
	received [types.NumPriorityClasses]int
}

func (r *fakeRadio) Powered() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.powered
}

func (r *fakeRadio) Capability() types.Capability {
	return r.capab
}

func (r *fakeRadio) CountReceived(class types.PriorityClass) {
	r.lock.Lock()
	r.received[class]++
	r.lock.Unlock()
}

type delivery struct {
	data []byte
	md   types.RxMetadata
}

func collect(ch chan delivery) Receiver {
	return ReceiverFunc(func(f *frame.Frame, md types.RxMetadata) {
		ch <- delivery{data: f.Data(), md: md}
	})
}

func qosFrame(tid uint8) []byte {
	return frame.BuildQoSData(apAddr, staAddr, apAddr, 1, tid, false, []byte("payload"))
}

func TestClassForTID(t *testing.T) {
	want := map[uint8]types.PriorityClass{
		0: types.PriorityBestEffort,
		1: types.PriorityBackground,
		2: types.PriorityBackground,
		3: types.PriorityBestEffort,
		4: types.PriorityVideo,
		5: types.PriorityVideo,
		6: types.PriorityVoice,
		7: types.PriorityVoice,
		9: types.PriorityVoice,
	}
	for tid, class := range want {
		assert.Equal(t, class, ClassForTID(tid), "tid %d", tid)
	}
	assert.Equal(t, types.PriorityVoice, ClassForTID(15))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, types.PriorityVideo, Classify(qosFrame(5)))
	assert.Equal(t, types.PriorityVoice, Classify(qosFrame(9)))
	assert.Equal(t, types.PriorityVoice, Classify(frame.BuildBeacon(staAddr, 1, 0, 100, "klem", 1)))
	assert.Equal(t, types.PriorityVoice, Classify([]byte{0x88}))
}

func TestDeliverFramed(t *testing.T) {
	r := &fakeRadio{powered: true}
	rx := make(chan delivery, 1)
	c := NewClassifier(r, nil, collect(rx))

	capHdr := &envelope.CapabilityHeader{Band: types.Band5GHz, Frequency: 5200, Power: -40, PeerId: 12}
	f := frame.New(qosFrame(2))
	c.Deliver(f, capHdr)
	assert.False(t, f.Valid())

	d := <-rx
	assert.Equal(t, qosFrame(2), d.data)
	assert.Equal(t, types.RxMetadata{
		Band:      types.Band5GHz,
		Frequency: 5200,
		Signal:    -40,
		PeerId:    12,
		RateIndex: RxRateIndex,
		Class:     types.PriorityBackground,
	}, d.md)
	assert.Equal(t, 1, r.received[types.PriorityBackground])
	assert.Equal(t, uint64(1), c.Counters().Delivered)
}

func TestDeliverBridgeUsesRadioCapability(t *testing.T) {
	r := &fakeRadio{powered: true, capab: types.Capability{Band: types.Band2GHz, Frequency: 2437, Power: 15}}
	rx := make(chan delivery, 1)
	filter := NewFilterSet()
	require.Nil(t, filter.Filter(0))
	c := NewClassifier(r, filter, collect(rx))

	c.Deliver(frame.New(qosFrame(6)), nil)
	d := <-rx
	assert.Equal(t, uint32(2437), d.md.Frequency)
	assert.Equal(t, int32(15), d.md.Signal)
	assert.Equal(t, RxRateIndex, d.md.RateIndex)
	assert.Equal(t, types.PriorityVoice, d.md.Class)
}

func TestDeliverFiltered(t *testing.T) {
	r := &fakeRadio{powered: true}
	rx := make(chan delivery, 4)
	c := NewClassifier(r, nil, collect(rx))
	require.Nil(t, c.Filter().Filter(3))

	c.Deliver(frame.New(qosFrame(0)), &envelope.CapabilityHeader{PeerId: 3})
	c.Deliver(frame.New(qosFrame(0)), &envelope.CapabilityHeader{PeerId: 256})
	c.Deliver(frame.New(qosFrame(0)), &envelope.CapabilityHeader{PeerId: 0xffffffff})
	assert.Len(t, rx, 0)
	assert.Equal(t, uint64(3), c.Counters().Filtered)

	require.Nil(t, c.Filter().Accept(3))
	c.Deliver(frame.New(qosFrame(0)), &envelope.CapabilityHeader{PeerId: 3})
	assert.Len(t, rx, 1)
}

func TestDeliverUnpoweredDrops(t *testing.T) {
	r := &fakeRadio{}
	rx := make(chan delivery, 1)
	c := NewClassifier(r, nil, collect(rx))

	c.Deliver(frame.New(qosFrame(0)), nil)
	assert.Len(t, rx, 0)
	assert.Equal(t, uint64(1), c.Counters().DroppedUnpowered)
	assert.Equal(t, [types.NumPriorityClasses]int{}, r.received)
}

func TestFilterSet(t *testing.T) {
	s := NewFilterSet()
	assert.NotNil(t, s.Filter(-1))
	assert.NotNil(t, s.Filter(256))
	assert.NotNil(t, s.Accept(300))
	assert.True(t, s.Contains(256))
	assert.True(t, s.Contains(-5))

	require.Nil(t, s.Filter(200))
	require.Nil(t, s.Filter(4))
	assert.Equal(t, []types.NodeId{4, 200}, s.List())
	s.Clear()
	assert.Empty(t, s.List())
	assert.False(t, s.Contains(4))
}

func TestLinkToClassifier(t *testing.T) {
	hub := link.NewHub()
	r := &fakeRadio{powered: true}
	rx := make(chan delivery, 4)
	c := NewClassifier(r, nil, collect(rx))

	mk := func(d link.Deliverer) *link.Conn {
		cfg := link.DefaultConfig()
		cfg.Backend = link.BackendMem
		cfg.Hub = hub
		conn, err := link.Connect(cfg, d)
		require.Nil(t, err)
		t.Cleanup(conn.Disconnect)
		return conn
	}
	sender := mk(nil)
	mk(c)

	payload := qosFrame(5)
	capHdr := envelope.NewCapabilityHeader(types.DefaultCapability(), 21)
	assert.Equal(t, len(payload), sender.Send(context.Background(), capHdr, payload))

	select {
	case d := <-rx:
		assert.True(t, bytes.Equal(payload, d.data))
		assert.Equal(t, types.PriorityVideo, d.md.Class)
		assert.Equal(t, 21, d.md.PeerId)
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}
