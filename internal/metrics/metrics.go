// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package metrics centralizes the registration of counters this
// peer's RPC and lookup layers feed, for the CLI dashboard and
// optional inspection endpoint. Adapted from the teacher's
// metrics/metrics.go package-level registry-of-meters pattern (there,
// one meter per Ethereum wire message type in/out; here, one meter per
// RPC kind and per lookup outcome) and its meteredConn wrapping idiom
// from p2p/metrics.go, applied to rpcnet's UDP socket instead of a TCP
// devp2p connection.
package metrics

import "github.com/rcrowley/go-metrics"

var reg = metrics.NewRegistry()

var (
	RPCPingOut      = metrics.NewRegisteredMeter("rpc/ping/out", reg)
	RPCPingTimeouts = metrics.NewRegisteredMeter("rpc/ping/timeout", reg)
	RPCStoreOut     = metrics.NewRegisteredMeter("rpc/store/out", reg)
	RPCFindNodeOut  = metrics.NewRegisteredMeter("rpc/findnode/out", reg)
	RPCFindValueOut = metrics.NewRegisteredMeter("rpc/findvalue/out", reg)

	RPCRequestsIn  = metrics.NewRegisteredMeter("rpc/requests/in", reg)
	RPCResponsesIn = metrics.NewRegisteredMeter("rpc/responses/in", reg)
	RPCDropped     = metrics.NewRegisteredMeter("rpc/dropped", reg)

	BytesIn  = metrics.NewRegisteredMeter("net/bytes/in", reg)
	BytesOut = metrics.NewRegisteredMeter("net/bytes/out", reg)

	LookupsStarted    = metrics.NewRegisteredMeter("lookup/started", reg)
	LookupValueHits   = metrics.NewRegisteredMeter("lookup/value/hit", reg)
	LookupValueMisses = metrics.NewRegisteredMeter("lookup/value/miss", reg)
	LookupIterations  = metrics.NewRegisteredTimer("lookup/iteration", reg)

	RoutingEvictions = metrics.NewRegisteredMeter("routing/eviction", reg)
	StoreKeys        = metrics.NewRegisteredCounter("store/keys", reg)
)

// Registry exposes the underlying go-metrics registry, e.g. for
// internal/inspecthttp to serve a JSON snapshot.
func Registry() metrics.Registry {
	return reg
}
