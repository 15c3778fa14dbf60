// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package sessionid identifies one running peer process for logging:
// a short random session tag plus a per-machine identifier. The `run`
// command writes it in its startup log line; the dashboard and state
// dumps do not include it. Adapted from the teacher's common/version.go
// client-session-identity struct, trimmed to what a DHT node actually
// wants to report (no client "Version" field tracking an Ethereum
// client release) and generalized to be constructed per-Peer instead
// of living in a package-level global, since a process can run more
// than one Peer in this system (see the dht package's tests).
package sessionid

import (
	"fmt"
	"math/rand"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Identity describes the process and session a Peer is running in.
type Identity struct {
	Session   string    `json:"session"`
	Hostname  string    `json:"host"`
	Username  string    `json:"user"`
	MachineID string    `json:"machineid"`
	Goos      string    `json:"goos"`
	Goarch    string    `json:"goarch"`
	Goversion string    `json:"goversion"`
	Pid       int       `json:"pid"`
	StartTime time.Time `json:"start"`
}

func (id Identity) String() string {
	return fmt.Sprintf("session=%s host=%s user=%s machine=%s pid=%d go=%s/%s",
		id.Session, id.Hostname, id.Username, id.MachineID, id.Pid, id.Goos, id.Goarch)
}

// New generates a fresh Identity: a random 8-char session tag, the
// OS-reported hostname/user, and a protected per-machine id (falling
// back to hostname.user if the platform machineid lookup fails).
func New() Identity {
	rng := rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	session := randString(rng, 8)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	username := "unknown"
	if current, err := user.Current(); err == nil {
		username = strings.Replace(current.Username, `\`, "_", -1)
	}

	mid, err := machineid.ID()
	if err == nil {
		mid, err = machineid.ProtectedID(mid)
	}
	if err != nil {
		mid = hostname + "." + username
	}
	if len(mid) > 12 {
		mid = mid[:12]
	}

	return Identity{
		Session:   session,
		Hostname:  hostname,
		Username:  username,
		MachineID: mid,
		Goos:      runtime.GOOS,
		Goarch:    runtime.GOARCH,
		Goversion: runtime.Version(),
		Pid:       os.Getpid(),
		StartTime: time.Now(),
	}
}

func randString(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rng.Intn(len(letterBytes))]
	}
	return string(b)
}
