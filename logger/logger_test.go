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

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelString(t *testing.T) {
	for _, lv := range []Level{TraceLevel, DebugLevel, InfoLevel, NoteLevel, WarnLevel, ErrorLevel, OffLevel} {
		parsed, err := ParseLevelString(GetLevelString(lv))
		assert.Nil(t, err)
		assert.Equal(t, lv, parsed)
	}

	lv, err := ParseLevelString("verbose")
	assert.NotNil(t, err)
	assert.Equal(t, DefaultLevel, lv)
}

func TestSetLevel(t *testing.T) {
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, GetLevel())
	Infof("not logged at %s", GetLevelString(WarnLevel))
}

func TestPanicLevelPanics(t *testing.T) {
	assert.Panics(t, func() {
		Panicf("boom %d", 1)
	})
	assert.Panics(t, func() {
		AssertTrue(false, "must be true")
	})
	assert.NotPanics(t, func() {
		AssertEqual(1, 1)
	})
}

func TestSetOutputFile(t *testing.T) {
	prev := GetLevel()
	defer SetLevel(prev)
	SetLevel(InfoLevel)

	fn := filepath.Join(t.TempDir(), "klem.log")
	SetOutputFile(FileOptions{Filename: fn, MaxSizeMB: 1})
	defer SetOutputFile(FileOptions{})

	Infof("written to %s", "file")
	Sync()

	data, err := os.ReadFile(fn)
	require.Nil(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestParseLevelAliases(t *testing.T) {
	for s, want := range map[string]Level{
		"W":       WarnLevel,
		"Warning": WarnLevel,
		"crit":    ErrorLevel,
		"none":    OffLevel,
		"def":     DefaultLevel,
		" debug ": DebugLevel,
	} {
		lv, err := ParseLevelString(s)
		assert.Nil(t, err, s)
		assert.Equal(t, want, lv, s)
	}

	_, err := ParseLevelString("panic")
	assert.NotNil(t, err)
	assert.Equal(t, "level(9)", GetLevelString(Level(9)))
}
