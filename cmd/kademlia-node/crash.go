// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/maruel/panicparse/stack"
)

// reportCrash recovers a panic from main, runs the goroutine dump
// through panicparse for a deduplicated, colorized trace instead of
// Go's raw dump, and re-panics so the process still exits non-zero.
// No direct teacher precedent: maruel/panicparse is a real go.mod
// dependency with no other plausible home in this system.
func reportCrash() {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)

	var out bytes.Buffer
	if _, err := stack.ParseDump(bytes.NewReader(buf[:n]), &out, false); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("panic:"), r)
		fmt.Fprint(os.Stderr, string(buf[:n]))
		panic(r)
	}

	fmt.Fprintln(os.Stderr, color.RedString("kademlia-node crashed: %v", r))
	fmt.Fprint(os.Stderr, out.String())
	panic(r)
}
