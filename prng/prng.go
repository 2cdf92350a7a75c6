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

package prng

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

var (
	lock         sync.Mutex
	macGenerator *rand.Rand
)

func init() {
	Init(0)
}

// Init initializes the prng package, either with a fixed PRNG seed (rootSeed != 0) or a
// time-based seed (rootSeed == 0).
func Init(rootSeed int64) {
	if rootSeed == 0 {
		rootSeed = time.Now().UnixNano()
	}
	root := rand.New(rand.NewSource(rootSeed))

	lock.Lock()
	defer lock.Unlock()
	macGenerator = rand.New(rand.NewSource(root.Int63()))
}

// NewHardwareAddr returns a random unicast, locally administered MAC address.
func NewHardwareAddr() net.HardwareAddr {
	lock.Lock()
	defer lock.Unlock()

	addr := make(net.HardwareAddr, 6)
	_, _ = macGenerator.Read(addr)
	addr[0] &^= 0x01 // unicast
	addr[0] |= 0x02  // locally administered
	return addr
}
