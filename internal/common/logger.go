// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
)

type LogLevel uint8

const (
	LogNone LogLevel = iota
	LogFatal
	LogPanic
	LogError
	LogWarning
	LogInfo
	LogDebug
)

var ELogLevel = LogLevel(LogNone)

func (LogLevel) None() LogLevel    { return LogLevel(LogNone) }
func (LogLevel) Fatal() LogLevel   { return LogLevel(LogFatal) }
func (LogLevel) Panic() LogLevel   { return LogLevel(LogPanic) }
func (LogLevel) Error() LogLevel   { return LogLevel(LogError) }
func (LogLevel) Warning() LogLevel { return LogLevel(LogWarning) }
func (LogLevel) Info() LogLevel    { return LogLevel(LogInfo) }
func (LogLevel) Debug() LogLevel   { return LogLevel(LogDebug) }

func (ll *LogLevel) Parse(s string) error {
	val, err := EnumHelper{}.Parse(reflect.TypeOf(ll), s, true)
	if err == nil {
		*ll = val.(LogLevel)
	}
	return err
}

func (ll LogLevel) String() string {
	switch ll {
	case ELogLevel.None():
		return "NONE"
	case ELogLevel.Fatal():
		return "FATAL"
	case ELogLevel.Panic():
		return "PANIC"
	case ELogLevel.Error():
		return "ERR"
	case ELogLevel.Warning():
		return "WARN"
	case ELogLevel.Info():
		return "INFO"
	case ELogLevel.Debug():
		return "DBG"
	default:
		return EnumHelper{}.StringInteger(ll, reflect.TypeOf(ll))
	}
}

// ILogger is the minimal logging surface a pipeline component writes through.
type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

type ILoggerResetable interface {
	OpenLog()
	MinimumLogLevel() LogLevel
	ILoggerCloser
}

// LogLevelOverrideLogger lets a subscriber or test raise/lower the effective
// level of an existing logger without replacing it.
type LogLevelOverrideLogger struct {
	ILoggerResetable
	MinimumLevelToLog LogLevel
}

func (l LogLevelOverrideLogger) MinimumLogLevel() LogLevel {
	return l.MinimumLevelToLog
}

func (l LogLevelOverrideLogger) ShouldLog(level LogLevel) bool {
	if level == LogNone {
		return false
	}
	return level <= l.MinimumLevelToLog
}

const maxLogSize = 64 * 1024 * 1024

// PipelineLogger is a per-pipeline-instance logger writing to a rotating
// file, modeled on the teacher's per-job logger but scoped to one pipeline
// instance rather than one transfer job.
type PipelineLogger struct {
	name              string
	minimumLevelToLog LogLevel
	folder            string
	file              io.WriteCloser
	logger            *log.Logger
}

func NewPipelineLogger(name string, minimumLevelToLog LogLevel, folder string) ILoggerResetable {
	return &PipelineLogger{
		name:              name,
		minimumLevelToLog: minimumLevelToLog,
		folder:            folder,
	}
}

func (pl *PipelineLogger) OpenLog() {
	if pl.minimumLevelToLog == LogNone {
		return
	}
	if pl.folder == "" {
		pl.logger = log.New(os.Stderr, "", log.LstdFlags|log.LUTC)
		return
	}
	w, err := NewRotatingWriter(pl.folder+string(os.PathSeparator)+pl.name+".log", maxLogSize)
	if err != nil {
		pl.logger = log.New(os.Stderr, "", log.LstdFlags|log.LUTC)
		return
	}
	pl.file = w
	pl.logger = log.New(pl.file, "", log.LstdFlags|log.LUTC)
}

func (pl *PipelineLogger) MinimumLogLevel() LogLevel { return pl.minimumLevelToLog }

func (pl *PipelineLogger) ShouldLog(level LogLevel) bool {
	if level == LogNone {
		return false
	}
	return level <= pl.minimumLevelToLog
}

func (pl *PipelineLogger) CloseLog() {
	if pl.minimumLevelToLog == LogNone || pl.file == nil {
		return
	}
	pl.logger.Println("closing log")
	_ = pl.file.Close()
}

func (pl *PipelineLogger) Log(level LogLevel, msg string) {
	if !pl.ShouldLog(level) || pl.logger == nil {
		return
	}
	pl.logger.Println(RedactSecretQueryParamsForLogging(msg))
}

func (pl *PipelineLogger) Panic(err error) {
	if pl.logger != nil {
		pl.logger.Println(err)
	}
	panic(err)
}

// Cause walks a chain of errors exposing Cause() (as github.com/pkg/errors
// does) and returns the original error at the bottom of the chain.
func Cause(err error) error {
	type causer interface{ Cause() error }
	for err != nil {
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return err
}

// LogWithPrefix adds a severity prefix to warning-and-above messages so they
// stand out in an otherwise uncluttered info-level log.
func LogWithPrefix(logger ILogger, level LogLevel, msg string) {
	if logger == nil {
		return
	}
	prefix := ""
	if level <= LogWarning {
		prefix = fmt.Sprintf("%s: ", level)
	}
	logger.Log(level, prefix+msg)
}
