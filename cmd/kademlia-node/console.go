// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/robertkrimen/otto"
	"gopkg.in/urfave/cli.v1"

	"github.com/gokad/kademlia-dht/dht"
	"github.com/gokad/kademlia-dht/internal/routing"
)

const historyFile = ".kademlia-node_history"

// consoleCommand starts a peer and an interactive JS console exposing
// put/get/ping/self/peers against it. Modeled on the teacher's geth
// console: an otto VM for evaluation, peterh/liner for line editing and
// history.
func consoleCommand(ctx *cli.Context) error {
	setupLogging(ctx)

	host, port, err := splitHostPort(ctx.String("addr"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	bootstrap, err := parseBootstrap(ctx.String("bootstrap"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	peer, err := dht.New(host, port, bootstrap)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer peer.Close()

	vm := otto.New()
	bindConsoleAPI(vm, peer)

	fmt.Printf("kademlia-node console — peer %s, id %s\n", peer.Self().Addr(), peer.Self().ID.String()[:16])
	fmt.Println("available: put(key, value), get(key), ping(ip, port), self(), peers()")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt("> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		val, err := vm.Run(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Println(val.String())
	}
}

// bindConsoleAPI wires peer's put/get/ping/self/peers into vm's global
// scope as JS-callable functions.
func bindConsoleAPI(vm *otto.Otto, peer *dht.Peer) {
	vm.Set("put", func(call otto.FunctionCall) otto.Value {
		k, _ := call.Argument(0).ToString()
		v, _ := call.Argument(1).ToString()
		peer.Put(k, v)
		result, _ := otto.ToValue(true)
		return result
	})

	vm.Set("get", func(call otto.FunctionCall) otto.Value {
		k, _ := call.Argument(0).ToString()
		v, found := peer.Get(k)
		if !found {
			result, _ := otto.ToValue(nil)
			return result
		}
		result, _ := otto.ToValue(v)
		return result
	})

	vm.Set("ping", func(call otto.FunctionCall) otto.Value {
		ip, _ := call.Argument(0).ToString()
		portArg, _ := call.Argument(1).ToInteger()
		alive := peer.Ping(routing.NewContact(ip, int(portArg)))
		result, _ := otto.ToValue(alive)
		return result
	})

	vm.Set("self", func(call otto.FunctionCall) otto.Value {
		result, _ := otto.ToValue(peer.Self().String())
		return result
	})

	vm.Set("peers", func(call otto.FunctionCall) otto.Value {
		occ := peer.RoutingSnapshot()
		total := 0
		for _, n := range occ {
			total += n
		}
		result, _ := otto.ToValue(total)
		return result
	})
}
