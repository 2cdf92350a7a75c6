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

package cli

import (
	"strconv"

	"github.com/alecthomas/participle"
)

// Command is one CLI line. Settings accept both the `key value` and the `key=value` form.
// noinspection GoStructTag
type Command struct {
	Accept   *AcceptCmd   `  @@` //nolint
	Beacon   *BeaconCmd   `| @@` //nolint
	Control  *ControlCmd  `| @@` //nolint
	Counters *CountersCmd `| @@` //nolint
	Device   *DeviceCmd   `| @@` //nolint
	Exec     *ExecCmd     `| @@` //nolint
	Exit     *ExitCmd     `| @@` //nolint
	Filter   *FilterCmd   `| @@` //nolint
	Help     *HelpCmd     `| @@` //nolint
	Id       *IdCmd       `| @@` //nolint
	Idle     *IdleCmd     `| @@` //nolint
	LogLevel *LogLevelCmd `| @@` //nolint
	Mode     *ModeCmd     `| @@` //nolint
	Power    *PowerCmd    `| @@` //nolint
	Start    *StartCmd    `| @@` //nolint
	Status   *StatusCmd   `| @@` //nolint
	Stop     *StopCmd     `| @@` //nolint
}

// noinspection GoStructTag
type OnFlag struct {
	Dummy struct{} `"on"` //nolint
}

// noinspection GoStructTag
type OffFlag struct {
	Dummy struct{} `"off"` //nolint
}

// noinspection GoStructTag
type OnOrOffFlag struct {
	On  *OnFlag  `( @@`   //nolint
	Off *OffFlag `| @@ )` //nolint
}

// noinspection GoStructTag
type StartCmd struct {
	Cmd struct{} `"start"` //nolint
}

// noinspection GoStructTag
type StopCmd struct {
	Cmd struct{} `"stop"` //nolint
}

// ControlCmd is the `command=start|stop` form of start and stop.
// noinspection GoStructTag
type ControlCmd struct {
	Cmd    struct{} `"command" [ "=" ]`     //nolint
	Action string   `@( "start" | "stop" )` //nolint
}

// noinspection GoStructTag
type DeviceCmd struct {
	Cmd  struct{} `"device"`                        //nolint
	Name *string  `[ [ "=" ] @( Ident | String ) ]` //nolint
}

// noinspection GoStructTag
type IdCmd struct {
	Cmd struct{} `"id"`             //nolint
	Val *int     `[ [ "=" ] @Int ]` //nolint
}

// noinspection GoStructTag
type FilterCmd struct {
	Cmd struct{} `"filter"`         //nolint
	Val *int     `[ [ "=" ] @Int ]` //nolint
}

// noinspection GoStructTag
type AcceptCmd struct {
	Cmd struct{} `"accept" [ "=" ]` //nolint
	Val int      `@Int`             //nolint
}

// noinspection GoStructTag
type ModeCmd struct {
	Cmd  struct{} `"mode"`             //nolint
	Name *string  `[ [ "=" ] @Ident ]` //nolint
}

// noinspection GoStructTag
type PowerCmd struct {
	Cmd   struct{}    `"power" [ "=" ]` //nolint
	State OnOrOffFlag `@@`              //nolint
}

// noinspection GoStructTag
type IdleCmd struct {
	Cmd   struct{}    `"idle" [ "=" ]` //nolint
	State OnOrOffFlag `@@`             //nolint
}

// noinspection GoStructTag
type BeaconCmd struct {
	Cmd      struct{} `"beacon"`         //nolint
	Interval *int     `[ [ "=" ] @Int ]` //nolint
}

// noinspection GoStructTag
type ExecCmd struct {
	Cmd  struct{} `"exec"`  //nolint
	Line string   `@String` //nolint
}

// noinspection GoStructTag
type StatusCmd struct {
	Cmd struct{} `"status"` //nolint
}

// noinspection GoStructTag
type CountersCmd struct {
	Cmd struct{} `"counters"` //nolint
}

// noinspection GoStructTag
type LogLevelCmd struct {
	Cmd   struct{} `"log" [ "=" ]` //nolint
	Level string   `[ @Ident ]`    //nolint
}

// noinspection GoStructTag
type HelpCmd struct {
	Cmd       struct{} `"help"`       //nolint
	HelpTopic string   `[ (@Ident) ]` //nolint
}

// noinspection GoStructTag
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

var (
	commandParser = participle.MustBuild(&Command{})
)

func ParseBytes(b []byte, cmd *Command) error {
	return commandParser.ParseBytes(b, cmd)
}

// unquote strips the quotes of a String token; identifiers pass unchanged.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
