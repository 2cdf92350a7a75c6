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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityClass(t *testing.T) {
	assert.Equal(t, "voice", PriorityVoice.String())
	assert.Equal(t, "background", PriorityBackground.String())
	assert.Equal(t, "class(7)", PriorityClass(7).String())
	assert.True(t, PriorityBackground.Valid())
	assert.False(t, PriorityClass(NumPriorityClasses).Valid())
}

func TestLookupChannel(t *testing.T) {
	ch, err := LookupChannel(Band2GHz, 6)
	assert.Nil(t, err)
	assert.Equal(t, uint32(2437), ch.Frequency)

	ch, err = LookupChannel(Band5GHz, 165)
	assert.Nil(t, err)
	assert.Equal(t, uint32(5825), ch.Frequency)

	_, err = LookupChannel(Band2GHz, 36)
	assert.NotNil(t, err)

	assert.Len(t, Channels(Band2GHz), 14)
	assert.Nil(t, Channels(Band(9)))
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand("5GHz")
	assert.Nil(t, err)
	assert.Equal(t, Band5GHz, b)

	b, err = ParseBand("2g")
	assert.Nil(t, err)
	assert.Equal(t, Band2GHz, b)

	_, err = ParseBand("60g")
	assert.NotNil(t, err)
}
