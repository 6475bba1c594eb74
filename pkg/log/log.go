// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides a leveled logger whose severity threshold and
// output targets are driven by the two config keys vklogd exposes:
// log.level (0-7, syslog severity numbering) and log.to (a bitmask
// selecting stderr and/or syslog). Time/date are omitted from the stderr
// writers by default since systemd or the enclosing supervisor usually
// adds them.
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package log

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
)

// Output target bits for the log.to config key.
const (
	ToStderr = 1 << iota
	ToSyslog
)

// Severity levels, numbered the syslog way (0 = most severe). log.level
// in the config file selects the minimum level that is not discarded;
// anything numerically higher than the configured level is suppressed.
const (
	LevelEmerg = iota
	LevelAlert
	LevelCrit
	LevelErr
	LevelWarning
	LevelNotice
	LevelInfo
	LevelDebug
)

var logDateTime bool
var level = LevelDebug

var (
	DebugWriter io.Writer = os.Stderr
	NoteWriter  io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
	CritWriter  io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]    "
	InfoPrefix  string = "<6>[INFO]     "
	NotePrefix  string = "<5>[NOTICE]   "
	WarnPrefix  string = "<4>[WARNING]  "
	ErrPrefix   string = "<3>[ERROR]    "
	CritPrefix  string = "<2>[CRITICAL] "
)

var (
	DebugLog *log.Logger = log.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *log.Logger = log.New(InfoWriter, InfoPrefix, 0)
	NoteLog  *log.Logger = log.New(NoteWriter, NotePrefix, 0)
	WarnLog  *log.Logger = log.New(WarnWriter, WarnPrefix, 0)
	ErrLog   *log.Logger = log.New(ErrWriter, ErrPrefix, 0)
	CritLog  *log.Logger = log.New(CritWriter, CritPrefix, 0)
)

// SetLevel sets the minimum severity (0-7, see the Level* constants)
// that will actually be written. Implements the log.level config key.
func SetLevel(lvl int) {
	level = lvl
}

// SetLogDateTime turns the stdlib-date prefix on the writers on or off.
func SetLogDateTime(logdate bool) {
	logDateTime = logdate
	flags := 0
	if logdate {
		flags = log.LstdFlags
	}
	for _, l := range []*log.Logger{DebugLog, InfoLog, NoteLog, WarnLog, ErrLog, CritLog} {
		l.SetFlags(flags)
	}
}

// SetOutputs wires the six severity writers according to the log.to
// bitmask (ToStderr | ToSyslog). A syslog writer that fails to open
// (no local syslog daemon, e.g. in a container or during tests) falls
// back to stderr rather than aborting startup.
func SetOutputs(bitmask int, tag string) error {
	var writers []io.Writer
	if bitmask&ToStderr != 0 || bitmask == 0 {
		writers = append(writers, os.Stderr)
	}
	if bitmask&ToSyslog != 0 {
		w, err := syslog.New(syslog.LOG_DAEMON, tag)
		if err != nil {
			writers = append(writers, os.Stderr)
		} else {
			writers = append(writers, w)
		}
	}

	out := io.MultiWriter(writers...)
	DebugWriter, InfoWriter, NoteWriter, WarnWriter, ErrWriter, CritWriter = out, out, out, out, out, out
	DebugLog.SetOutput(DebugWriter)
	InfoLog.SetOutput(InfoWriter)
	NoteLog.SetOutput(NoteWriter)
	WarnLog.SetOutput(WarnWriter)
	ErrLog.SetOutput(ErrWriter)
	CritLog.SetOutput(CritWriter)
	return nil
}

func printStr(v ...interface{}) string {
	return fmt.Sprint(v...)
}

func printfStr(format string, v ...interface{}) string {
	return fmt.Sprintf(format, v...)
}

func Print(v ...interface{}) { Info(v...) }

func Debug(v ...interface{}) {
	if level >= LevelDebug {
		DebugLog.Output(2, printStr(v...))
	}
}

func Info(v ...interface{}) {
	if level >= LevelInfo {
		InfoLog.Output(2, printStr(v...))
	}
}

func Note(v ...interface{}) {
	if level >= LevelNotice {
		NoteLog.Output(2, printStr(v...))
	}
}

func Warn(v ...interface{}) {
	if level >= LevelWarning {
		WarnLog.Output(2, printStr(v...))
	}
}

func Error(v ...interface{}) {
	if level >= LevelErr {
		ErrLog.Output(2, printStr(v...))
	}
}

// Panic writes an error log entry and then panics.
func Panic(v ...interface{}) {
	Error(v...)
	panic("vklogd: panic triggered")
}

// Fatal writes an error log entry and exits the process with status 1,
// matching the exit code contract for startup/configuration errors.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Crit(v ...interface{}) {
	if level >= LevelCrit {
		CritLog.Output(2, printStr(v...))
	}
}

func Printf(format string, v ...interface{}) { Infof(format, v...) }

func Debugf(format string, v ...interface{}) {
	if level >= LevelDebug {
		DebugLog.Output(2, printfStr(format, v...))
	}
}

func Infof(format string, v ...interface{}) {
	if level >= LevelInfo {
		InfoLog.Output(2, printfStr(format, v...))
	}
}

func Notef(format string, v ...interface{}) {
	if level >= LevelNotice {
		NoteLog.Output(2, printfStr(format, v...))
	}
}

func Warnf(format string, v ...interface{}) {
	if level >= LevelWarning {
		WarnLog.Output(2, printfStr(format, v...))
	}
}

func Errorf(format string, v ...interface{}) {
	if level >= LevelErr {
		ErrLog.Output(2, printfStr(format, v...))
	}
}

func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic("vklogd: panic triggered")
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

func Critf(format string, v ...interface{}) {
	if level >= LevelCrit {
		CritLog.Output(2, printfStr(format, v...))
	}
}
