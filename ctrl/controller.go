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

// Package ctrl owns the lifecycle of one emulated radio and its link. Start and stop requests
// run on a single worker goroutine in the order they were posted; device settings can be
// changed at any time and apply to the next start unless noted otherwise.
package ctrl

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/klemu/klem/config"
	"github.com/klemu/klem/envelope"
	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/ingress"
	"github.com/klemu/klem/link"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/pcap"
	"github.com/klemu/klem/radio"
	"github.com/klemu/klem/types"
)

var ErrNotRunning = errors.New("radio is not running")

// Options carry the process-level collaborators of a Controller.
type Options struct {
	// Hub is used by links on the mem backend; link.DefaultHub when nil.
	Hub *link.Hub
	// Upper receives frames delivered by the radio; they are dropped when nil.
	Upper ingress.Receiver
}

type task struct {
	name   string
	fn     func() error
	result chan error
}

type Controller struct {
	cfg  *config.Config
	opts Options

	tasks     chan task
	done      chan struct{}
	postLock  sync.RWMutex
	closed    bool
	closeOnce sync.Once

	lock       sync.Mutex
	device     string
	id         types.NodeId
	mode       envelope.Mode
	beaconTU   int
	filter     *ingress.FilterSet
	station    *Station
	capture    pcap.File
	conn       *link.Conn
	radio      *radio.Radio
	classifier *ingress.Classifier
	complDone  chan struct{}
	complExit  chan struct{}
}

// New creates a controller from a validated configuration and starts its worker.
func New(cfg *config.Config, opts Options) (*Controller, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := envelope.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		opts:     opts,
		tasks:    make(chan task),
		done:     make(chan struct{}),
		device:   cfg.Device,
		id:       cfg.Id,
		mode:     mode,
		beaconTU: cfg.Radio.BeaconIntervalTU,
		filter:   ingress.NewFilterSet(),
	}
	for _, id := range cfg.Filter {
		logger.PanicIfError(c.filter.Filter(id))
	}

	if ft := pcap.ParseFrameTypeStr(cfg.Pcap.Format); ft != pcap.FrameTypeOff {
		if c.capture, err = pcap.NewFile(cfg.Pcap.File, ft); err != nil {
			return nil, err
		}
	}
	c.station = NewStation(c.capture, opts.Upper)

	go c.run()
	return c, nil
}

func (c *Controller) run() {
	defer close(c.done)
	for t := range c.tasks {
		logger.Debugf("ctrl: %s", t.name)
		err := t.fn()
		if err != nil {
			logger.Warnf("ctrl: %s failed: %v", t.name, err)
		}
		t.result <- err
	}
}

// post queues fn on the worker and waits for its result.
func (c *Controller) post(name string, fn func() error) error {
	c.postLock.RLock()
	if c.closed {
		c.postLock.RUnlock()
		return errors.Errorf("controller closed, dropping %s", name)
	}
	result := make(chan error, 1)
	c.tasks <- task{name: name, fn: fn, result: result}
	c.postLock.RUnlock()
	return <-result
}

// Close stops a running radio, then the worker, and closes the capture file.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		_ = c.post("stop", c.stop)

		c.postLock.Lock()
		c.closed = true
		close(c.tasks)
		c.postLock.Unlock()
		<-c.done

		if c.capture != nil {
			logger.PanicIfError(c.capture.Sync())
			if err := c.capture.Close(); err != nil {
				logger.Warnf("ctrl: close capture: %v", err)
			}
		}
	})
}

// Start connects the link when a device is configured and brings up a powered radio.
func (c *Controller) Start() error {
	return c.post("start", c.start)
}

// Stop powers off and tears down the radio, then disconnects the link.
func (c *Controller) Stop() error {
	return c.post("stop", c.stop)
}

func (c *Controller) start() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.radio != nil {
		return errors.New("radio already running")
	}

	capability, err := c.cfg.Radio.Capability()
	if err != nil {
		return err
	}
	addr, err := c.cfg.Radio.HardwareAddr()
	if err != nil {
		return err
	}

	rcfg := radio.DefaultConfig()
	rcfg.Addr = addr
	rcfg.NodeId = c.id
	rcfg.Capability = capability
	rcfg.BeaconIntervalTU = c.beaconTU
	rcfg.CompleteOnDrain = c.cfg.Radio.CompleteOnDrain
	for _, q := range c.cfg.Radio.Queues {
		rcfg.Queues[q.Class] = q.QueueParams
	}
	c.station.configure(capability, c.cfg.Radio.Channel, c.beaconTU)

	r := radio.New(rcfg, c.station)
	for _, iface := range c.cfg.Radio.Interfaces {
		if err = r.AddInterface(radio.Interface{Name: iface.Name, SSID: iface.SSID, Active: iface.Active}); err != nil {
			return err
		}
	}
	classifier := ingress.NewClassifier(r, c.filter, c.station)

	var conn *link.Conn
	if c.device != "" {
		lcfg, err := c.linkConfigLocked()
		if err != nil {
			return err
		}
		if conn, err = link.Connect(lcfg, classifier); err != nil {
			return err
		}
	} else {
		logger.Warnf("ctrl: no device configured, radio runs without a link")
	}

	var tx radio.Transmitter
	if conn != nil {
		tx = conn
	}
	if err = r.Start(tx); err != nil {
		if conn != nil {
			conn.Disconnect()
		}
		return err
	}
	r.SetPowered(true)

	c.complDone = make(chan struct{})
	c.complExit = make(chan struct{})
	go func(done <-chan struct{}, exit chan<- struct{}) {
		defer close(exit)
		c.station.serveCompletions(r.Completions(), done)
	}(c.complDone, c.complExit)

	c.conn, c.radio, c.classifier = conn, r, classifier
	logger.Infof("ctrl: started radio %v id %d mode %s device %q", r.Addr(), c.id, c.mode.Name(), c.device)
	return nil
}

func (c *Controller) stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.radio == nil {
		return nil
	}
	c.radio.SetPowered(false)
	c.radio.Stop()
	close(c.complDone)
	<-c.complExit

	if c.conn != nil {
		c.conn.Disconnect()
	} else {
		logger.Debugf("ctrl: link was never connected")
	}
	logger.Infof("ctrl: stopped radio %v", c.radio.Addr())
	c.conn, c.radio, c.classifier = nil, nil, nil
	return nil
}

func (c *Controller) linkConfigLocked() (*link.Config, error) {
	backend, err := link.ParseBackend(c.cfg.Link.Backend)
	if err != nil {
		return nil, err
	}
	peer, err := c.cfg.Link.PeerAddr()
	if err != nil {
		return nil, err
	}
	lcfg := link.DefaultConfig()
	lcfg.Backend = backend
	lcfg.Device = c.device
	lcfg.Interface = c.cfg.Link.Interface
	lcfg.Mode = c.mode
	lcfg.PeerAddr = peer
	lcfg.Hub = c.opts.Hub
	lcfg.Timeout = c.cfg.Link.Timeout
	lcfg.MaxRetries = c.cfg.Link.MaxRetries
	lcfg.BackoffUnit = c.cfg.Link.BackoffUnit
	lcfg.StallBackoff = c.cfg.Link.StallBackoff
	return lcfg, nil
}

func (c *Controller) Running() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.radio != nil
}

// SetDevice names the link device used by the next start.
func (c *Controller) SetDevice(name string) {
	c.lock.Lock()
	c.device = name
	c.lock.Unlock()
}

// SetId sets the node id stamped on emitted frames; it applies immediately. Ids outside
// 0..255 select id 0 and are reported as an error.
func (c *Controller) SetId(id int) error {
	var err error
	if id < 0 || id > types.MaxNodeId {
		err = errors.Errorf("device id %d must be between 0-%d, using %d", id, types.MaxNodeId, types.DefaultNodeId)
		id = types.DefaultNodeId
	}
	c.lock.Lock()
	c.id = id
	if c.radio != nil {
		c.radio.SetNodeId(id)
	}
	c.lock.Unlock()
	return err
}

// Filter drops frames from peer id; it applies immediately.
func (c *Controller) Filter(id int) error {
	return c.filter.Filter(id)
}

// Accept stops filtering peer id; it applies immediately.
func (c *Controller) Accept(id int) error {
	return c.filter.Accept(id)
}

// SetMode selects the transport mode used by the next start.
func (c *Controller) SetMode(name string) error {
	mode, err := envelope.ParseMode(name)
	if err != nil {
		return err
	}
	c.lock.Lock()
	c.mode = mode
	c.lock.Unlock()
	return nil
}

func (c *Controller) withRadio(fn func(r *radio.Radio) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.radio == nil {
		return ErrNotRunning
	}
	return fn(c.radio)
}

func (c *Controller) SetPowered(powered bool) error {
	return c.withRadio(func(r *radio.Radio) error {
		r.SetPowered(powered)
		return nil
	})
}

func (c *Controller) SetIdle(idle bool) error {
	return c.withRadio(func(r *radio.Radio) error {
		r.SetIdle(idle)
		return nil
	})
}

// SetBeaconInterval changes the beacon interval, of the running radio and of later starts.
func (c *Controller) SetBeaconInterval(tu int) error {
	if tu <= 0 || tu > 0xffff {
		return errors.Errorf("beacon interval %d TU out of range", tu)
	}
	c.lock.Lock()
	c.beaconTU = tu
	if c.radio != nil {
		c.radio.SetBeaconInterval(tu)
	}
	c.lock.Unlock()
	c.station.setIntervalTU(tu)
	return nil
}

// Transmit hands a frame to the running radio, as the wireless stack would. A QoS data frame
// carrying the no-ack policy never completes as acked.
func (c *Controller) Transmit(data []byte, class types.PriorityClass) error {
	var flags frame.TxFlags
	if frame.RequestsNoAck(data) {
		flags |= frame.TxNoAck
	}
	return c.withRadio(func(r *radio.Radio) error {
		r.Transmit(frame.NewWithFlags(data, flags), class)
		return nil
	})
}

func (c *Controller) Station() *Station {
	return c.station
}
