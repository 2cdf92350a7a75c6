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

package klem_main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klemu/klem/pcap"
)

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "klem.yaml")
	require.Nil(t, os.WriteFile(path, []byte("device: wlan9\nid: 5\nmode: bridge\n"), 0644))

	args = MainArgs{ConfigFile: path, Id: 9, PcapFile: filepath.Join(dir, "out.pcap")}
	defer func() { args = MainArgs{} }()

	cfg, err := loadConfig(map[string]bool{"id": true, "pcap": true})
	require.Nil(t, err)
	assert.Equal(t, "wlan9", cfg.Device)
	assert.Equal(t, 9, cfg.Id)
	assert.Equal(t, "bridge", cfg.Mode)
	assert.Equal(t, pcap.FrameTypeDot11Str, cfg.Pcap.Format)
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	args = MainArgs{Id: 300}
	defer func() { args = MainArgs{} }()

	_, err := loadConfig(map[string]bool{"id": true})
	assert.NotNil(t, err)
}
