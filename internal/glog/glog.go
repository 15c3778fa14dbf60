// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package glog is a condensed port of the teacher's logger/glog,
// itself modeled on Google's glog: leveled logging with a global
// verbosity ceiling plus optional per-file overrides via -vmodule.
// Trimmed down from the teacher's ~1800 lines of log-file rotation and
// buffered-I/O plumbing (this repo always logs to stderr) to the
// public surface every other package in this repo actually calls:
// V(n), Info*, Warning*, Error*, Fatal*, SetV, SetToStderr, SetVModule.
package glog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type severity int32

const (
	infoLog severity = iota
	warningLog
	errorLog
	fatalLog
)

var severityChar = [...]byte{'I', 'W', 'E', 'F'}
var severityColor = [...]string{"\x1b[2m", "\x1b[33m", "\x1b[31m", "\x1b[35m"}
var colorReset = "\x1b[0m"

var (
	verbosity  int32 // global -v ceiling
	toStderr   = true
	colorOut   = true
	mu         sync.Mutex
	vmodule    = map[string]int32{} // basename (no extension) -> level
	vmoduleRE  []vmodulePattern
	outputLock sync.Mutex
	out        = os.Stderr
)

type vmodulePattern struct {
	re    *regexp.Regexp
	level int32
}

// SetV sets the global verbosity ceiling.
func SetV(v int) { atomic.StoreInt32(&verbosity, int32(v)) }

// SetToStderr toggles whether output goes to stderr (true) or is
// discarded (false is used in tests that want a quiet run).
func SetToStderr(v bool) {
	mu.Lock()
	defer mu.Unlock()
	toStderr = v
}

// SetColor toggles ANSI color codes in the output. Color is on by
// default, whatever the output stream is.
func SetColor(v bool) {
	mu.Lock()
	defer mu.Unlock()
	colorOut = v
}

// SetVModule parses a comma-separated file=level list, e.g.
// "routing=4,lookup=6", and installs per-file verbosity overrides.
func SetVModule(spec string) error {
	mu.Lock()
	defer mu.Unlock()
	if spec == "" {
		vmoduleRE = nil
		return nil
	}
	var pats []vmodulePattern
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("glog: bad vmodule clause %q", part)
		}
		level, err := strconv.Atoi(kv[1])
		if err != nil {
			return fmt.Errorf("glog: bad vmodule level in %q: %w", part, err)
		}
		pattern := strings.NewReplacer("*", ".*", "?", ".").Replace(kv[0])
		re, err := regexp.Compile("^" + pattern + "$")
		if err != nil {
			return fmt.Errorf("glog: bad vmodule pattern %q: %w", part, err)
		}
		pats = append(pats, vmodulePattern{re: re, level: int32(level)})
	}
	vmoduleRE = pats
	return nil
}

// Verbose is the boolean type returned by V; it's also callable as
// Verbose(true/false) wouldn't make sense, but carries Info*/Warning*
// methods so callers write `glog.V(2).Infof(...)`.
type Verbose bool

// V reports whether verbosity at level is enabled for the caller's
// file, honoring both the global ceiling and any -vmodule override.
func V(level int32) Verbose {
	if level <= atomic.LoadInt32(&verbosity) {
		return Verbose(true)
	}
	if len(vmoduleRE) == 0 {
		return Verbose(false)
	}
	file := callerBase(2)
	for _, p := range vmoduleRE {
		if p.re.MatchString(file) {
			return Verbose(level <= p.level)
		}
	}
	return Verbose(false)
}

func callerBase(skip int) string {
	_, file, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (v Verbose) Infof(format string, args ...interface{}) {
	if v {
		logf(infoLog, format, args...)
	}
}
func (v Verbose) Info(args ...interface{}) {
	if v {
		logln(infoLog, args...)
	}
}

func Infof(format string, args ...interface{})    { logf(infoLog, format, args...) }
func Info(args ...interface{})                     { logln(infoLog, args...) }
func Warningf(format string, args ...interface{})  { logf(warningLog, format, args...) }
func Warning(args ...interface{})                  { logln(warningLog, args...) }
func Errorf(format string, args ...interface{})    { logf(errorLog, format, args...) }
func Error(args ...interface{})                    { logln(errorLog, args...) }
func Fatalf(format string, args ...interface{}) {
	logf(fatalLog, format, args...)
	os.Exit(1)
}
func Fatal(args ...interface{}) {
	logln(fatalLog, args...)
	os.Exit(1)
}

func logf(s severity, format string, args ...interface{}) {
	write(s, fmt.Sprintf(format, args...))
}

func logln(s severity, args ...interface{}) {
	write(s, fmt.Sprintln(args...))
}

func write(s severity, msg string) {
	mu.Lock()
	quiet := !toStderr
	color := colorOut
	mu.Unlock()
	if quiet {
		return
	}
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file, line = "???", 0
	} else {
		file = filepath.Base(file)
	}
	now := time.Now()
	prefix := fmt.Sprintf("%c%s %02d:%02d:%02d %s:%d] ",
		severityChar[s], now.Format("0102"), now.Hour(), now.Minute(), now.Second(), file, line)

	outputLock.Lock()
	defer outputLock.Unlock()
	if color {
		fmt.Fprint(out, severityColor[s], prefix, strings.TrimSuffix(msg, "\n"), colorReset, "\n")
	} else {
		fmt.Fprint(out, prefix, strings.TrimSuffix(msg, "\n"), "\n")
	}
}
