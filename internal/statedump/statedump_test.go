// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package statedump

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/routing"
)

type fakeSource struct {
	self      routing.Contact
	occupancy []int
	storeSize int
}

func (f fakeSource) Self() routing.Contact  { return f.self }
func (f fakeSource) RoutingSnapshot() []int { return f.occupancy }
func (f fakeSource) StoreSize() int         { return f.storeSize }

func TestDumpWritesTimestampedFileAndLatest(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "/state")
	src := fakeSource{
		self:      routing.Contact{IP: "127.0.0.1", Port: 9000, ID: key.FromString("node")},
		occupancy: []int{1, 0, 2},
		storeSize: 5,
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := d.Dump(src, at)
	require.NoError(t, err)
	assert.Equal(t, "/state/state.20240102-030405.json", path)

	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.True(t, exists)

	latestBytes, err := afero.ReadFile(fs, "/state/latest.json")
	require.NoError(t, err)
	timestampedBytes, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, timestampedBytes, latestBytes)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(latestBytes, &snap))
	assert.Equal(t, src.self, snap.Self)
	assert.Equal(t, []int{1, 0, 2}, snap.BucketOccupancy)
	assert.Equal(t, 5, snap.StoreSize)
	assert.True(t, snap.TakenAt.Equal(at))
}

func TestDumpOverwritesLatestAcrossCalls(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "/state")
	src := fakeSource{self: routing.Contact{IP: "127.0.0.1", Port: 9000, ID: key.FromString("node")}}

	_, err := d.Dump(src, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	src.storeSize = 9
	_, err = d.Dump(src, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))
	require.NoError(t, err)

	latestBytes, err := afero.ReadFile(fs, "/state/latest.json")
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(latestBytes, &snap))
	assert.Equal(t, 9, snap.StoreSize)

	files, err := afero.ReadDir(fs, "/state")
	require.NoError(t, err)
	assert.Len(t, files, 3) // two timestamped dumps + latest.json
}

func TestRunStopsOnSignal(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := New(fs, "/state")
	src := fakeSource{self: routing.Contact{IP: "127.0.0.1", Port: 9000, ID: key.FromString("node")}}

	stop := make(chan struct{})
	close(stop)
	d.Run(src, time.Hour, stop)

	exists, err := afero.DirExists(fs, "/state")
	require.NoError(t, err)
	assert.False(t, exists)
}
