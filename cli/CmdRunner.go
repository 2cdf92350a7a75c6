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

// Package cli implements the klem control CLI. It parses and executes CLI commands against a
// controller.
package cli

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/klemu/klem/ctrl"
	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/progctx"
)

const (
	Prompt = "klem> "
)

type CommandContext struct {
	context.Context
	*Command
	rt     *CmdRunner
	err    error
	output io.Writer
}

func (cc *CommandContext) outputStr(msg string) {
	_, _ = fmt.Fprint(cc.output, msg)
}

func (cc *CommandContext) outputf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cc.output, format, args...)
}

func (cc *CommandContext) errorf(format string, args ...interface{}) {
	cc.error(errors.Errorf(format, args...))
}

func (cc *CommandContext) error(err error) {
	if err != nil {
		if cc.err != nil { // if previous error, print it now and keep the last.
			cc.outputf("Error: %s\n", cc.err)
		}
		cc.err = err
	}
}

// Err returns the last error that occurred during command execution.
func (cc *CommandContext) Err() error {
	return cc.err
}

func (cc *CommandContext) outputItemsAsYaml(items interface{}) {
	var itemsYaml yaml.Node

	err := itemsYaml.Encode(items)
	logger.PanicIfError(err)

	for _, content := range itemsYaml.Content {
		content.Style = yaml.FlowStyle
	}
	itemsYaml.Style = yaml.FlowStyle

	data, err := yaml.Marshal(&itemsYaml)
	logger.PanicIfError(err)

	_, err = cc.output.Write(data)
	logger.PanicIfError(err)
}

func (cc *CommandContext) outputCounters(title string, counters interface{}) {
	val := reflect.ValueOf(counters)
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		cc.outputf("%-40s %v\n", title+"."+typ.Field(i).Name, val.Field(i).Uint())
	}
}

// CmdRunner executes one command at a time; the console and the gRPC service share it.
type CmdRunner struct {
	lock sync.Mutex
	ctx  *progctx.ProgCtx
	ctrl *ctrl.Controller
	help Help
}

func NewCmdRunner(ctx *progctx.ProgCtx, c *ctrl.Controller) *CmdRunner {
	return &CmdRunner{
		ctx:  ctx,
		ctrl: c,
		help: newHelp(),
	}
}

// HandleCommand runs one CLI line and writes its output, ending with Done or Error. The
// returned error is only set once the program is exiting.
func (rt *CmdRunner) HandleCommand(cmdline string, output io.Writer) error {
	rt.lock.Lock()
	defer rt.lock.Unlock()

	if rt.ctx.Err() == nil {
		cmd := Command{}
		if err := ParseBytes([]byte(cmdline), &cmd); err != nil {
			if _, err := fmt.Fprintf(output, "Error: %v\n", err); err != nil {
				return err
			}
		} else {
			rt.execute(&cmd, output)
		}
	}
	return rt.ctx.Err()
}

func (rt *CmdRunner) GetPrompt() string {
	return Prompt
}

func (rt *CmdRunner) execute(cmd *Command, output io.Writer) {
	cc := &CommandContext{
		Context: rt.ctx,
		Command: cmd,
		rt:      rt,
		output:  output,
	}

	defer func() {
		if cc.Err() != nil {
			cc.outputf("Error: %v\n", cc.Err())
		} else {
			cc.outputf("Done\n")
		}
	}()

	defer func() {
		rerr := recover()

		if rerr != nil {
			if err, ok := rerr.(error); ok {
				cc.err = errors.Wrapf(err, "panic: %v", err)
			} else {
				cc.err = errors.Errorf("panic: %v", rerr)
			}
		}
	}()

	if cmd.Start != nil {
		cc.error(rt.ctrl.Start())
	} else if cmd.Stop != nil {
		cc.error(rt.ctrl.Stop())
	} else if cmd.Control != nil {
		cc.error(rt.ctrl.Set("command", cmd.Control.Action))
	} else if cmd.Device != nil {
		rt.executeDevice(cc, cmd.Device)
	} else if cmd.Id != nil {
		rt.executeId(cc, cmd.Id)
	} else if cmd.Filter != nil {
		rt.executeFilter(cc, cmd.Filter)
	} else if cmd.Accept != nil {
		cc.error(rt.ctrl.Accept(cmd.Accept.Val))
	} else if cmd.Mode != nil {
		rt.executeMode(cc, cmd.Mode)
	} else if cmd.Power != nil {
		cc.error(rt.ctrl.SetPowered(cmd.Power.State.On != nil))
	} else if cmd.Idle != nil {
		cc.error(rt.ctrl.SetIdle(cmd.Idle.State.On != nil))
	} else if cmd.Beacon != nil {
		rt.executeBeacon(cc, cmd.Beacon)
	} else if cmd.Exec != nil {
		cc.error(rt.ctrl.Exec(unquote(cmd.Exec.Line)))
	} else if cmd.Status != nil {
		cc.outputStr(rt.ctrl.StatusText())
	} else if cmd.Counters != nil {
		rt.executeCounters(cc)
	} else if cmd.LogLevel != nil {
		rt.executeLogLevel(cc, cmd.LogLevel)
	} else if cmd.Help != nil {
		rt.executeHelp(cc, cmd.Help)
	} else if cmd.Exit != nil {
		rt.executeExit(cc)
	} else {
		logger.Panicf("unimplemented command: %#v", cmd)
	}
}

func (rt *CmdRunner) executeDevice(cc *CommandContext, cmd *DeviceCmd) {
	if cmd.Name == nil {
		cc.outputf("%s\n", rt.ctrl.Status().Device)
		return
	}
	rt.ctrl.SetDevice(unquote(*cmd.Name))
}

func (rt *CmdRunner) executeId(cc *CommandContext, cmd *IdCmd) {
	if cmd.Val == nil {
		cc.outputf("%d\n", rt.ctrl.Status().Id)
		return
	}
	cc.error(rt.ctrl.SetId(*cmd.Val))
}

func (rt *CmdRunner) executeFilter(cc *CommandContext, cmd *FilterCmd) {
	if cmd.Val == nil {
		cc.outputItemsAsYaml(rt.ctrl.Status().Filter)
		return
	}
	cc.error(rt.ctrl.Filter(*cmd.Val))
}

func (rt *CmdRunner) executeMode(cc *CommandContext, cmd *ModeCmd) {
	if cmd.Name == nil {
		cc.outputf("%s\n", rt.ctrl.Status().Mode)
		return
	}
	cc.error(rt.ctrl.SetMode(*cmd.Name))
}

func (rt *CmdRunner) executeBeacon(cc *CommandContext, cmd *BeaconCmd) {
	if cmd.Interval == nil {
		st := rt.ctrl.Status()
		if st.Radio == nil {
			cc.error(ctrl.ErrNotRunning)
			return
		}
		cc.outputf("%d\n", st.Radio.BeaconCount)
		return
	}
	cc.error(rt.ctrl.SetBeaconInterval(*cmd.Interval))
}

func (rt *CmdRunner) executeCounters(cc *CommandContext) {
	st := rt.ctrl.Status()
	cc.outputCounters("station", st.Station)
	if st.Link != nil {
		cc.outputCounters("link", *st.Link)
	}
	if st.Ingress != nil {
		cc.outputCounters("ingress", *st.Ingress)
	}
}

func (rt *CmdRunner) executeLogLevel(cc *CommandContext, cmd *LogLevelCmd) {
	if cmd.Level == "" {
		cc.outputf("%v\n", logger.GetLevelString(logger.GetLevel()))
		return
	}
	lv, err := logger.ParseLevelString(cmd.Level)
	if err != nil {
		cc.error(err)
		return
	}
	logger.SetLevel(lv)
}

func (rt *CmdRunner) executeHelp(cc *CommandContext, cmd *HelpCmd) {
	if len(cmd.HelpTopic) > 0 {
		cc.outputStr(rt.help.outputCommandHelp(cmd.HelpTopic))
	} else {
		cc.outputStr(rt.help.outputGeneralHelp())
	}
}

func (rt *CmdRunner) executeExit(cc *CommandContext) {
	rt.ctx.Cancel("exit")
}
