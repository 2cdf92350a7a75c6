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
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Band is the radio band, numbered as on the wire.
type Band uint32

const (
	Band2GHz Band = 0
	Band5GHz Band = 1
)

func (b Band) String() string {
	switch b {
	case Band2GHz:
		return "2.4GHz"
	case Band5GHz:
		return "5GHz"
	default:
		return fmt.Sprintf("band(%d)", uint32(b))
	}
}

// ParseBand accepts "2g", "2.4ghz", "5g" and "5ghz".
func ParseBand(s string) (Band, error) {
	switch strings.ToLower(s) {
	case "2", "2g", "2.4", "2.4g", "2.4ghz", "2ghz":
		return Band2GHz, nil
	case "5", "5g", "5ghz":
		return Band5GHz, nil
	default:
		return 0, errors.Errorf("unknown band: %s", s)
	}
}

// Channel is one entry of the supported channel tables.
type Channel struct {
	Band      Band
	Number    int
	Frequency uint32 // MHz
}

var channels2GHz = []Channel{
	{Band2GHz, 1, 2412}, {Band2GHz, 2, 2417}, {Band2GHz, 3, 2422}, {Band2GHz, 4, 2427},
	{Band2GHz, 5, 2432}, {Band2GHz, 6, 2437}, {Band2GHz, 7, 2442}, {Band2GHz, 8, 2447},
	{Band2GHz, 9, 2452}, {Band2GHz, 10, 2457}, {Band2GHz, 11, 2462}, {Band2GHz, 12, 2467},
	{Band2GHz, 13, 2472}, {Band2GHz, 14, 2484},
}

var channels5GHz = []Channel{
	{Band5GHz, 34, 5170}, {Band5GHz, 36, 5180}, {Band5GHz, 38, 5190}, {Band5GHz, 40, 5200},
	{Band5GHz, 42, 5210}, {Band5GHz, 44, 5220}, {Band5GHz, 46, 5230}, {Band5GHz, 48, 5240},
	{Band5GHz, 52, 5260}, {Band5GHz, 56, 5280}, {Band5GHz, 60, 5300}, {Band5GHz, 64, 5320},
	{Band5GHz, 100, 5500}, {Band5GHz, 104, 5520}, {Band5GHz, 108, 5540}, {Band5GHz, 112, 5560},
	{Band5GHz, 116, 5580}, {Band5GHz, 120, 5600}, {Band5GHz, 124, 5620}, {Band5GHz, 128, 5640},
	{Band5GHz, 132, 5660}, {Band5GHz, 136, 5680}, {Band5GHz, 140, 5700}, {Band5GHz, 149, 5745},
	{Band5GHz, 153, 5765}, {Band5GHz, 157, 5785}, {Band5GHz, 161, 5805}, {Band5GHz, 165, 5825},
}

// Channels returns the channel table of a band.
func Channels(b Band) []Channel {
	switch b {
	case Band2GHz:
		return channels2GHz
	case Band5GHz:
		return channels5GHz
	default:
		return nil
	}
}

// LookupChannel finds a channel by band and number.
func LookupChannel(b Band, number int) (Channel, error) {
	for _, ch := range Channels(b) {
		if ch.Number == number {
			return ch, nil
		}
	}
	return Channel{}, errors.Errorf("channel %d not supported in band %v", number, b)
}

// Capability is the descriptor stamped onto every emitted frame in framed mode.
type Capability struct {
	Band      Band
	Frequency uint32
	Power     int32 // dBm
}

// DefaultCapability is channel 1 at 20 dBm.
func DefaultCapability() Capability {
	return Capability{
		Band:      Band2GHz,
		Frequency: channels2GHz[0].Frequency,
		Power:     20,
	}
}
