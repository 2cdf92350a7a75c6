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
	"fmt"
	"strings"

	"github.com/klemu/klem/ingress"
	"github.com/klemu/klem/link"
	"github.com/klemu/klem/types"
)

var Version = "1.0.0"

const filterIdsPerLine = 8

// Status is a snapshot of the controller, its link and its radio. Link, Radio and Ingress are
// nil while no radio is running.
type Status struct {
	Version string
	Device  string
	Running bool
	Socket  string
	Id      types.NodeId
	Mode    string
	Filter  []types.NodeId
	Link    *link.Counters
	Radio   *types.RadioStats
	Ingress *ingress.Counters
	Station StationCounters
}

func (c *Controller) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	st := Status{
		Version: Version,
		Device:  c.device,
		Running: c.radio != nil,
		Socket:  "null",
		Id:      c.id,
		Mode:    c.mode.Name(),
		Filter:  c.filter.List(),
		Station: c.station.Counters(),
	}
	if c.conn != nil {
		st.Socket = c.conn.ID().String()
		counters := c.conn.Counters()
		st.Link = &counters
	}
	if c.radio != nil {
		stats := c.radio.Stats()
		st.Radio = &stats
		counters := c.classifier.Counters()
		st.Ingress = &counters
	}
	return st
}

// StatusText renders the status dump read by operators.
func (c *Controller) StatusText() string {
	return c.Status().Text()
}

func (st Status) Text() string {
	var b strings.Builder
	line := func(label string, value interface{}) {
		fmt.Fprintf(&b, "%-22s%v\n", label+":", value)
	}

	b.WriteString("KLEM Control Interface\n\n")
	line("Version", st.Version)
	line("raw-device", st.Device)
	line("raw-socket", st.Socket)
	line("device-id", st.Id)
	line("mode", st.Mode)

	fmt.Fprintf(&b, "%-22s", "filter:")
	for i, id := range st.Filter {
		fmt.Fprintf(&b, "%03d ", id)
		if (i+1)%filterIdsPerLine == 0 && i+1 < len(st.Filter) {
			fmt.Fprintf(&b, "\n%-22s", "filter:")
		}
	}
	b.WriteString("\n")

	if st.Radio == nil {
		return b.String()
	}
	line("MAC Address", st.Radio.Addr)
	line("beacon count", st.Radio.BeaconCount)
	for i, q := range st.Radio.Queues {
		prefix := fmt.Sprintf("qos [%d] ", i)
		line(prefix+"aifs", q.Params.Aifs)
		line(prefix+"cw_min", q.Params.CwMin)
		line(prefix+"cw_max", q.Params.CwMax)
		line(prefix+"txop", q.Params.Txop)
		line(prefix+"recv", q.Received)
		line(prefix+"sent", q.Sent)
		line(prefix+"sent error", q.SendErrors)
		line(prefix+"sent drop", q.Dropped)
	}
	return b.String()
}
