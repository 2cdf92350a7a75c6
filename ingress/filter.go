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
	"sync"

	"github.com/pkg/errors"

	"github.com/klemu/klem/types"
)

// FilterSet is the set of peer ids whose frames are rejected. Ids outside 0..255 are always
// considered filtered.
type FilterSet struct {
	lock    sync.RWMutex
	members [types.NumNodeIds]bool
}

func NewFilterSet() *FilterSet {
	return &FilterSet{}
}

func validId(id int) bool {
	return id >= 0 && id < types.NumNodeIds
}

// Filter rejects frames from id.
func (s *FilterSet) Filter(id types.NodeId) error {
	if !validId(id) {
		return errors.Errorf("peer id %d out of range 0..%d", id, types.MaxNodeId)
	}
	s.lock.Lock()
	s.members[id] = true
	s.lock.Unlock()
	return nil
}

// Accept removes id from the set.
func (s *FilterSet) Accept(id types.NodeId) error {
	if !validId(id) {
		return errors.Errorf("peer id %d out of range 0..%d", id, types.MaxNodeId)
	}
	s.lock.Lock()
	s.members[id] = false
	s.lock.Unlock()
	return nil
}

func (s *FilterSet) Contains(id int) bool {
	if !validId(id) {
		return true
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.members[id]
}

// List returns the filtered ids in ascending order.
func (s *FilterSet) List() []types.NodeId {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var ids []types.NodeId
	for id, filtered := range s.members {
		if filtered {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *FilterSet) Clear() {
	s.lock.Lock()
	s.members = [types.NumNodeIds]bool{}
	s.lock.Unlock()
}
