// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package inspecthttp serves a tiny read-only HTTP view of a running
// peer: its routing table occupancy, store size, and the go-metrics
// registry internal/metrics feeds. There is no write path and no
// authentication; it exists for local debugging, never for a public
// listener. (The CLI dashboard does not use it; it reads the peer
// in-process.) Styled after the scheme-dispatch shape
// of the teacher's rpc/rpc.go (there, picking a client by URI scheme;
// here, picking a handler by path) and wrapped with rs/cors the way a
// browser-facing dev endpoint would be.
package inspecthttp

import (
	"encoding/json"
	"net/http"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"

	"github.com/gokad/kademlia-dht/internal/metrics"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// Source is the read-only surface served; satisfied by *dht.Peer.
type Source interface {
	Self() routing.Contact
	RoutingSnapshot() []int
	StoreSize() int
}

// Handler builds the inspection mux, CORS-wrapped and ready to pass to
// http.Serve or http.ListenAndServe.
func Handler(src Source) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", snapshotHandler(src))
	mux.HandleFunc("/metrics", metricsHandler())

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)
}

type snapshotResponse struct {
	Self            routing.Contact `json:"self"`
	BucketOccupancy []int           `json:"bucket_occupancy"`
	StoreSize       int             `json:"store_size"`
}

func snapshotHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := snapshotResponse{
			Self:            src.Self(),
			BucketOccupancy: src.RoutingSnapshot(),
			StoreSize:       src.StoreSize(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		gometrics.WriteJSONOnce(metrics.Registry(), w)
	}
}
