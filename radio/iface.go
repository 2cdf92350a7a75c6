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
	"net"

	"github.com/pkg/errors"
)

// Interface is a logical interface (BSS) hosted by a radio. Active interfaces get one beacon
// per beacon interval.
type Interface struct {
	Name   string
	Addr   net.HardwareAddr
	SSID   string
	Active bool
}

// AddInterface registers a logical interface. Names are unique per radio.
func (r *Radio) AddInterface(iface Interface) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, existing := range r.ifaces {
		if existing.Name == iface.Name {
			return errors.Errorf("interface %s already exists", iface.Name)
		}
	}
	if len(iface.Addr) != 6 {
		iface.Addr = r.addr
	}
	r.ifaces = append(r.ifaces, iface)
	return nil
}

// RemoveInterface deletes the named interface and reports whether it existed.
func (r *Radio) RemoveInterface(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i, iface := range r.ifaces {
		if iface.Name == name {
			r.ifaces = append(r.ifaces[:i], r.ifaces[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Radio) SetInterfaceActive(name string, active bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for i := range r.ifaces {
		if r.ifaces[i].Name == name {
			r.ifaces[i].Active = active
			return nil
		}
	}
	return errors.Errorf("interface %s not found", name)
}

// Interfaces returns a copy of the registered interfaces.
func (r *Radio) Interfaces() []Interface {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Interface(nil), r.ifaces...)
}

func (r *Radio) activeInterfacesLocked() []Interface {
	var out []Interface
	for _, iface := range r.ifaces {
		if iface.Active {
			out = append(out, iface)
		}
	}
	return out
}
