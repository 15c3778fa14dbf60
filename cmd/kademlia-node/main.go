// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// kademlia-node runs a single DHT peer, either as a long-lived daemon
// (run), an interactive console against a running peer in-process
// (console), a live terminal dashboard (dashboard), or a one-shot id
// print (id). Adapted from cmd/bootnode/main.go's flag set and
// construction sequence, restructured around urfave/cli.v1 subcommands
// the way internal/debug/flags.go wires verbosity into a cli.App.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"gopkg.in/urfave/cli.v1"

	"github.com/gokad/kademlia-dht/dht"
	"github.com/gokad/kademlia-dht/internal/bootconfig"
	"github.com/gokad/kademlia-dht/internal/glog"
	"github.com/gokad/kademlia-dht/internal/inspecthttp"
	"github.com/gokad/kademlia-dht/internal/nat"
	"github.com/gokad/kademlia-dht/internal/routing"
	"github.com/gokad/kademlia-dht/internal/sessionid"
	"github.com/gokad/kademlia-dht/internal/statedump"
)

// Version is set with the linker, e.g. -ldflags "-X main.Version=<rev>".
var Version = "unknown"

var (
	addrFlag = cli.StringFlag{
		Name:  "addr",
		Value: "127.0.0.1:7946",
		Usage: "this peer's ip:port, also its identity seed",
	}
	bootstrapFlag = cli.StringFlag{
		Name:  "bootstrap",
		Usage: "ip:port of a contact to join the network through",
	}
	bootconfigFlag = cli.StringFlag{
		Name:  "bootconfig",
		Usage: "path to a hot-reloadable file of additional bootstrap contacts (ip:port per line)",
	}
	natFlag = cli.StringFlag{
		Name:  "nat",
		Value: "none",
		Usage: "port mapping mechanism (none|upnp|pmp|extip:<IP>)",
	}
	statedumpDirFlag = cli.StringFlag{
		Name:  "statedump-dir",
		Usage: "directory to periodically dump routing/store snapshots into; empty disables",
	}
	statedumpIntervalFlag = cli.DurationFlag{
		Name:  "statedump-interval",
		Value: 30 * time.Second,
	}
	inspectAddrFlag = cli.StringFlag{
		Name:  "inspect-addr",
		Usage: "if set, serve read-only /snapshot and /metrics JSON on this address",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity: 0=silent .. 6=detail",
	}
	vmoduleFlag = cli.StringFlag{
		Name:  "vmodule",
		Usage: "per-file verbosity overrides, e.g. transport=6,lookup=5",
	}
)

func setupLogging(ctx *cli.Context) {
	glog.SetToStderr(true)
	glog.SetV(ctx.Int("verbosity"))
	if v := ctx.String("vmodule"); v != "" {
		if err := glog.SetVModule(v); err != nil {
			fmt.Fprintf(os.Stderr, "vmodule: %v\n", err)
		}
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

func runCommand(ctx *cli.Context) error {
	setupLogging(ctx)
	ident := sessionid.New()
	glog.V(1).Infof("kademlia-node: starting session %s", ident)

	addr := ctx.String("addr")
	host, port, err := splitHostPort(addr)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("invalid -addr %q: %v", addr, err), 1)
	}

	bootstrap, err := parseBootstrap(ctx.String("bootstrap"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if mech := ctx.String("nat"); mech != "" && mech != "none" {
		iface, err := nat.Parse(mech)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("nat: %v", err), 1)
		}
		if iface != nil {
			if ext, err := iface.ExternalIP(); err == nil {
				fmt.Println(color.GreenString("external address: %s:%d (%s)", ext, port, iface))
			}
			if err := iface.AddMapping(port, port, 0); err != nil {
				glog.V(2).Infof("nat: map port %d failed: %v", port, err)
			}
		}
	}

	peer, err := dht.New(host, port, bootstrap)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer peer.Close()

	fmt.Println(color.CyanString("kademlia-node %s listening on %s (id %s)", Version, peer.Self().Addr(), peer.Self().ID.String()[:16]))

	stop := make(chan struct{})
	if dir := ctx.String("statedump-dir"); dir != "" {
		dumper := statedump.New(nil, dir)
		go dumper.Run(peer, ctx.Duration("statedump-interval"), stop)
	}

	if bcPath := ctx.String("bootconfig"); bcPath != "" {
		watcher, err := bootconfig.Watch(bcPath)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		defer watcher.Close()
		go func() {
			for contacts := range watcher.Contacts() {
				for _, c := range contacts {
					peer.Ping(c)
				}
			}
		}()
	}

	if addr := ctx.String("inspect-addr"); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, inspecthttp.Handler(peer)); err != nil {
				glog.Errorf("inspecthttp: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	close(stop)
	return nil
}

func idCommand(ctx *cli.Context) error {
	addr := ctx.Args().First()
	if addr == "" {
		return cli.NewExitError("usage: kademlia-node id <ip:port>", 1)
	}
	host, port, err := splitHostPort(addr)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	c := routing.NewContact(host, port)
	fmt.Println(c.ID.String())
	return nil
}

func main() {
	defer reportCrash()

	app := cli.NewApp()
	app.Name = "kademlia-node"
	app.Version = Version
	app.Usage = "run and inspect a Kademlia DHT peer"
	app.Flags = []cli.Flag{verbosityFlag, vmoduleFlag}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "start a long-lived peer",
			Flags:  []cli.Flag{addrFlag, bootstrapFlag, bootconfigFlag, natFlag, statedumpDirFlag, statedumpIntervalFlag, inspectAddrFlag, verbosityFlag, vmoduleFlag},
			Action: runCommand,
		},
		{
			Name:   "id",
			Usage:  "print the node id an ip:port would have, without starting a peer",
			Action: idCommand,
		},
		{
			Name:   "console",
			Usage:  "start a peer and drop into an interactive JS console (put/get/ping)",
			Flags:  []cli.Flag{addrFlag, bootstrapFlag, natFlag, verbosityFlag, vmoduleFlag},
			Action: consoleCommand,
		},
		{
			Name:   "dashboard",
			Usage:  "start a peer and show a live terminal dashboard of its routing table",
			Flags:  []cli.Flag{addrFlag, bootstrapFlag, natFlag, verbosityFlag, vmoduleFlag},
			Action: dashboardCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		os.Exit(1)
	}
}
