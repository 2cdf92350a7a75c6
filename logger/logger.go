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

// Package logger is the process-wide leveled logger of klem. Records go to stderr through zap
// and, optionally, to a rotated log file; console writes keep the CLI prompt intact.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a log level. Higher values are more verbose.
type Level int8

const (
	TraceLevel   Level = 6
	DebugLevel   Level = 5
	InfoLevel    Level = 4
	NoteLevel    Level = 3
	WarnLevel    Level = 2
	ErrorLevel   Level = 1
	PanicLevel   Level = 0
	FatalLevel   Level = -1
	OffLevel     Level = -2
	MinLevel           = OffLevel
	DefaultLevel       = InfoLevel
)

// StdoutCallback is told after each console write, so an interactive prompt can be redrawn.
type StdoutCallback interface {
	OnStdout()
}

// FileOptions configures rotation of the optional log file.
type FileOptions struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const timeLayout = "2006-01-02 15:04:05.000"

var (
	lock         sync.RWMutex
	currentLevel = DefaultLevel
	zl           *zap.Logger
	fileWriter   *lumberjack.Logger
	console      = newConsoleWriter(os.Stderr)
)

func init() {
	rebuildLogger()
}

// consoleWriter writes log records to the terminal. On a terminal it clears the current line
// before each record and notifies the stdout callback afterwards.
type consoleWriter struct {
	out      io.Writer
	terminal bool
	cb       atomic.Value // callbackHolder
}

type callbackHolder struct {
	cb StdoutCallback
}

func newConsoleWriter(f *os.File) *consoleWriter {
	w := &consoleWriter{out: f}
	if st, err := f.Stat(); err == nil && st.Mode()&os.ModeCharDevice != 0 {
		w.terminal = true
	}
	w.cb.Store(callbackHolder{})
	return w
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	if w.terminal {
		_, _ = io.WriteString(w.out, "\033[2K\r")
	}
	n, err := w.out.Write(p)
	if h := w.cb.Load().(callbackHolder); w.terminal && h.cb != nil {
		h.cb.OnStdout()
	}
	return n, err
}

func (w *consoleWriter) Sync() error {
	return nil
}

func rebuildLogger() {
	encCfg := zapcore.EncoderConfig{
		TimeKey:     "time",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeLevel: zapcore.CapitalLevelEncoder,
	}
	sinks := []zapcore.WriteSyncer{zapcore.Lock(zapcore.AddSync(console))}
	if fileWriter != nil {
		sinks = append(sinks, zapcore.AddSync(fileWriter))
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.NewMultiWriteSyncer(sinks...),
		zapcore.DebugLevel)
	if zl != nil {
		_ = zl.Sync()
	}
	zl = zap.New(core)
}

func SetLevel(lv Level) {
	lock.Lock()
	currentLevel = lv
	lock.Unlock()
}

func GetLevel() Level {
	lock.RLock()
	defer lock.RUnlock()
	return currentLevel
}

// SetStdoutCallback sets the callback notified after log records are written to the terminal.
func SetStdoutCallback(cb StdoutCallback) {
	console.cb.Store(callbackHolder{cb: cb})
}

// SetOutputFile adds a rotated log file next to stderr. An empty filename removes it.
func SetOutputFile(opts FileOptions) {
	lock.Lock()
	defer lock.Unlock()

	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	if opts.Filename != "" {
		fileWriter = &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
	}
	rebuildLogger()
}

// Sync flushes buffered log output.
func Sync() {
	lock.RLock()
	defer lock.RUnlock()
	_ = zl.Sync()
}

// logAt writes one record; zap panics after PanicLevel records and exits after FatalLevel ones.
func logAt(level Level, msg func() string) {
	lock.RLock()
	if level > currentLevel || level <= OffLevel {
		lock.RUnlock()
		return
	}
	l := zl
	lock.RUnlock()

	l.Log(levelTable[level-MinLevel].zap, msg())
}

func logf(level Level, format string, args []interface{}) {
	logAt(level, func() string {
		if len(args) == 0 {
			return format
		}
		return fmt.Sprintf(format, args...)
	})
}

func Tracef(format string, args ...interface{}) {
	logf(TraceLevel, format, args)
}

func Debugf(format string, args ...interface{}) {
	logf(DebugLevel, format, args)
}

func Infof(format string, args ...interface{}) {
	logf(InfoLevel, format, args)
}

// Notef logs between info and warn, for events an operator usually wants to see.
func Notef(format string, args ...interface{}) {
	logf(NoteLevel, format, args)
}

func Warnf(format string, args ...interface{}) {
	logf(WarnLevel, format, args)
}

func Errorf(format string, args ...interface{}) {
	logf(ErrorLevel, format, args)
}

func Panicf(format string, args ...interface{}) {
	logf(PanicLevel, format, args)
}

func Fatalf(format string, args ...interface{}) {
	logf(FatalLevel, format, args)
}

// PanicIfError panics with err, or with args when given, if err is not nil.
func PanicIfError(err error, args ...interface{}) {
	if err != nil {
		logAt(PanicLevel, errMessage(err, args))
	}
}

// FatalIfError exits the process with err, or with args when given, if err is not nil.
func FatalIfError(err error, args ...interface{}) {
	if err != nil {
		logAt(FatalLevel, errMessage(err, args))
	}
}

func errMessage(err error, args []interface{}) func() string {
	return func() string {
		if len(args) == 0 {
			return err.Error()
		}
		return fmt.Sprint(args...)
	}
}

// panicT routes testify assertion failures to Panicf.
type panicT struct{}

func (panicT) Errorf(format string, args ...interface{}) {
	Panicf(format, args...)
}

func AssertEqual(expected, actual interface{}, msgAndArgs ...interface{}) bool {
	return assert.Equal(panicT{}, expected, actual, msgAndArgs...)
}

func AssertTrue(value bool, msgAndArgs ...interface{}) bool {
	return assert.True(panicT{}, value, msgAndArgs...)
}
