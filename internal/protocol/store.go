// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package protocol dispatches inbound RPC requests against the local
// routing table and key/value store, crafting responses. Grounded on
// original_source/src/protocol.rs for the request/response shape (the
// original is a near-empty stub; the dispatch table here is built out
// per spec.md §4.4) and on the teacher's habit (p2p protocol
// multiplexers) of one goroutine per inbound message.
package protocol

import (
	"sync"

	"github.com/gokad/kademlia-dht/internal/metrics"
)

// Store is the local (key, value) map every peer carries, S in the
// data model: last-writer-wins, no timestamps, no expiry.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Put records v under k, overwriting any prior value.
func (s *Store) Put(k, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, existed := s.data[k]; !existed {
		metrics.StoreKeys.Inc(1)
	}
	s.data[k] = v
}

// Get returns the value for k and whether it was present.
func (s *Store) Get(k string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[k]
	return v, ok
}

// Len reports the number of keys held, for metrics/state-dump use.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
