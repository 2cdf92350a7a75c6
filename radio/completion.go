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
	"sync"

	"github.com/klemu/klem/frame"
	"github.com/klemu/klem/types"
)

// TxStatus reports one frame leaving the radio back to the wireless stack.
type TxStatus struct {
	Frame *frame.Frame
	Class types.PriorityClass
	Acked bool
}

// CompletionQueue hands transmit results to the wireless stack. Pushing never blocks; the
// consumer waits on Notify and pops until the queue is empty.
type CompletionQueue struct {
	lock   sync.Mutex
	items  []TxStatus
	notify chan struct{}
}

func newCompletionQueue() *CompletionQueue {
	return &CompletionQueue{notify: make(chan struct{}, 1)}
}

func (q *CompletionQueue) push(s TxStatus) {
	q.lock.Lock()
	q.items = append(q.items, s)
	q.lock.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify is signalled after pushes. One signal may cover several items.
func (q *CompletionQueue) Notify() <-chan struct{} {
	return q.notify
}

// Pop removes the oldest result.
func (q *CompletionQueue) Pop() (TxStatus, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if len(q.items) == 0 {
		return TxStatus{}, false
	}
	s := q.items[0]
	q.items[0] = TxStatus{}
	q.items = q.items[1:]
	return s, true
}

// PopAll removes and returns every pending result in order.
func (q *CompletionQueue) PopAll() []TxStatus {
	q.lock.Lock()
	defer q.lock.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *CompletionQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return len(q.items)
}
