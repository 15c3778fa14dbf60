// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package statedump writes periodic JSON snapshots of a peer's routing
// table occupancy and store size, for offline inspection. Grounded on
// the teacher's logger/mlog_file.go: a timestamped file per dump plus
// a fixed-name pointer to the latest one, written through an afero.Fs
// so tests can dump into an in-memory filesystem instead of touching
// disk.
package statedump

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/gokad/kademlia-dht/internal/routing"
)

// Source is the read-only surface a Dumper pulls a snapshot from;
// satisfied by *dht.Peer.
type Source interface {
	Self() routing.Contact
	RoutingSnapshot() []int
	StoreSize() int
}

// Snapshot is the JSON shape written to disk.
type Snapshot struct {
	Self            routing.Contact `json:"self"`
	BucketOccupancy []int           `json:"bucket_occupancy"`
	StoreSize       int             `json:"store_size"`
	TakenAt         time.Time       `json:"taken_at"`
}

// Dumper writes Snapshots into dir on fs. A nil fs uses the real OS
// filesystem.
type Dumper struct {
	fs  afero.Fs
	dir string
}

// New returns a Dumper writing into dir on fs.
func New(fs afero.Fs, dir string) *Dumper {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Dumper{fs: fs, dir: dir}
}

// latestName is the fixed filename the most recent dump is always
// also written under, mirroring CreateMLogFile's program.log symlink.
const latestName = "latest.json"

// fileName returns the timestamped dump name for t.
func fileName(t time.Time) string {
	return fmt.Sprintf("state.%04d%02d%02d-%02d%02d%02d.json",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Dump writes one snapshot of src taken at t, returning the path of
// the timestamped file written.
func (d *Dumper) Dump(src Source, t time.Time) (string, error) {
	if err := d.fs.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("statedump: create dir %s: %w", d.dir, err)
	}

	snap := Snapshot{
		Self:            src.Self(),
		BucketOccupancy: src.RoutingSnapshot(),
		StoreSize:       src.StoreSize(),
		TakenAt:         t,
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("statedump: marshal snapshot: %w", err)
	}

	path := filepath.Join(d.dir, fileName(t))
	if err := afero.WriteFile(d.fs, path, b, 0o644); err != nil {
		return "", fmt.Errorf("statedump: write %s: %w", path, err)
	}
	if err := afero.WriteFile(d.fs, filepath.Join(d.dir, latestName), b, 0o644); err != nil {
		return "", fmt.Errorf("statedump: write %s: %w", latestName, err)
	}
	return path, nil
}

// DumpNow dumps src as of the current time.
func (d *Dumper) DumpNow(src Source) (string, error) {
	return d.Dump(src, time.Now())
}

// Run dumps src every interval until stop is closed. It also returns,
// without reporting the error, as soon as one dump fails.
func (d *Dumper) Run(src Source, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := d.DumpNow(src); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
