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
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

const (
	OffLevelString     = "off"
	DefaultLevelString = "default"
)

// levelTable is indexed by Level-MinLevel.
var levelTable = [...]struct {
	name    string
	aliases []string
	zap     zapcore.Level
}{
	{OffLevelString, []string{"none"}, zapcore.FatalLevel + 1},
	{"fatal", nil, zapcore.FatalLevel},
	{"panic", nil, zapcore.PanicLevel},
	{"error", []string{"err", "crit", "critical", "e", "c"}, zapcore.ErrorLevel},
	{"warn", []string{"warning", "w"}, zapcore.WarnLevel},
	{"note", []string{"n"}, zapcore.InfoLevel},
	{"info", []string{"i"}, zapcore.InfoLevel},
	{"debug", []string{"d"}, zapcore.DebugLevel},
	{"trace", []string{"t"}, zapcore.DebugLevel},
}

// ParseLevelString accepts level names and their short forms in any case. The fatal and panic
// levels are not selectable.
func ParseLevelString(level string) (Level, error) {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == DefaultLevelString || s == "def" {
		return DefaultLevel, nil
	}
	for i, l := range levelTable {
		lv := Level(i) + MinLevel
		if lv == FatalLevel || lv == PanicLevel {
			continue
		}
		if s == l.name {
			return lv, nil
		}
		for _, a := range l.aliases {
			if s == a {
				return lv, nil
			}
		}
	}
	return DefaultLevel, errors.Errorf("invalid log level string: %s", level)
}

func GetLevelString(level Level) string {
	if i := int(level - MinLevel); i >= 0 && i < len(levelTable) {
		return levelTable[i].name
	}
	return fmt.Sprintf("level(%d)", level)
}
