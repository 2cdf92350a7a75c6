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
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"

	"github.com/klemu/klem/logger"
	"github.com/klemu/klem/progctx"
)

type CliHandler interface {
	HandleCommand(cmd string, output io.Writer) error
	GetPrompt() string
}

type CliOptions struct {
	// EchoInput writes each line back, for scripted input.
	EchoInput   bool
	HistoryFile string
	Stdin       *os.File
	Stdout      *os.File
}

func DefaultCliOptions() *CliOptions {
	return &CliOptions{
		HistoryFile: "/tmp/klem-cmds.tmp",
	}
}

// Console is one interactive readline session.
type Console struct {
	handler CliHandler
	opts    CliOptions
	rl      *readline.Instance
}

func newConsole(handler CliHandler, options *CliOptions) *Console {
	opts := DefaultCliOptions()
	if options != nil {
		opts = options
	}
	c := &Console{handler: handler, opts: *opts}
	if c.opts.Stdin == nil {
		c.opts.Stdin = os.Stdin
	}
	if c.opts.Stdout == nil {
		c.opts.Stdout = os.Stdout
	}
	return c
}

// RunCli runs the console until stdin closes or the handler reports the program is exiting,
// then cancels ctx.
func RunCli(ctx *progctx.ProgCtx, handler CliHandler, options *CliOptions) {
	ctx.WaitAdd("cli", 1)
	defer ctx.WaitDone("cli")

	c := newConsole(handler, options)
	logger.SetStdoutCallback(c)
	defer logger.SetStdoutCallback(nil)

	err := c.run()
	logger.Debugf("console exit: %v", err)
	ctx.Cancel(errors.Wrap(err, "console exit"))
}

// OnStdout redraws the prompt after log output.
func (c *Console) OnStdout() {
	if c.rl != nil {
		c.rl.Refresh()
	}
}

// saveTerminal returns a function restoring the terminal state of the console's files.
func (c *Console) saveTerminal() (func(), error) {
	var restore []func()
	for _, f := range []*os.File{c.opts.Stdin, c.opts.Stdout} {
		fd := int(f.Fd())
		if !readline.IsTerminal(fd) {
			continue
		}
		st, err := readline.GetState(fd)
		if err != nil {
			return nil, err
		}
		restore = append(restore, func() { _ = readline.Restore(fd, st) })
	}
	return func() {
		for _, r := range restore {
			r()
		}
	}, nil
}

func (c *Console) run() error {
	restore, err := c.saveTerminal()
	if err != nil {
		return err
	}
	defer restore()

	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:            c.handler.GetPrompt(),
		HistoryFile:       c.opts.HistoryFile,
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		Stdin:             c.opts.Stdin,
		Stdout:            c.opts.Stdout,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			// no job control
			return r, r != readline.CharCtrlZ
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = c.rl.Close()
	}()

	for {
		line, done, err := c.readLine()
		if done || err != nil {
			return err
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		err = c.handler.HandleCommand(line, c.rl.Stdout())
		_ = c.opts.Stdout.Sync()
		if err != nil {
			return err
		}
	}
}

// readLine reads one trimmed command line. Ctrl-C on an empty line and EOF end the session,
// Ctrl-C while editing only drops the line.
func (c *Console) readLine() (string, bool, error) {
	c.rl.SetPrompt(c.handler.GetPrompt())
	line, err := c.rl.Readline()
	switch {
	case errors.Is(err, readline.ErrInterrupt):
		return "", len(line) == 0, nil
	case err == io.EOF:
		return "", true, nil
	case err != nil:
		return "", true, err
	case len(line) > 0 && line[0] == readline.CharInterrupt:
		return "", true, nil
	}

	if c.opts.EchoInput {
		if _, err := c.opts.Stdout.WriteString(line + "\n"); err != nil {
			return "", true, err
		}
	}
	return strings.TrimSpace(line), false, nil
}
