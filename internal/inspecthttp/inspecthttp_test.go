// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package inspecthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

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

func TestSnapshotEndpointReturnsJSON(t *testing.T) {
	src := fakeSource{
		self:      routing.Contact{IP: "127.0.0.1", Port: 9000, ID: key.FromString("node")},
		occupancy: []int{1, 2, 3},
		storeSize: 7,
	}
	srv := httptest.NewServer(Handler(src))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got snapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, src.self, got.Self)
	assert.Equal(t, []int{1, 2, 3}, got.BucketOccupancy)
	assert.Equal(t, 7, got.StoreSize)
}

func TestSnapshotEndpointRejectsNonGet(t *testing.T) {
	src := fakeSource{self: routing.Contact{IP: "127.0.0.1", Port: 9000, ID: key.FromString("node")}}
	srv := httptest.NewServer(Handler(src))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/snapshot", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpointReturnsJSON(t *testing.T) {
	src := fakeSource{self: routing.Contact{IP: "127.0.0.1", Port: 9000, ID: key.FromString("node")}}
	srv := httptest.NewServer(Handler(src))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
}
