// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package dht composes identity, routing, transport, protocol and
// lookup into the user-visible Peer API: New, Ping, Put, Get, plus
// read-only routing/store inspection for the CLI and state-dump
// collaborators. Grounded on cmd/bootnode/main.go's construction
// sequence (bind a transport, then hand it to the discovery table),
// generalized from "start a discovery listener and block" to
// "construct a full peer, optionally bootstrap, and return control to
// the caller" per spec.md §6.
package dht

import (
	"fmt"
	"time"

	"github.com/gokad/kademlia-dht/internal/glog"
	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/liveness"
	"github.com/gokad/kademlia-dht/internal/lookup"
	"github.com/gokad/kademlia-dht/internal/protocol"
	"github.com/gokad/kademlia-dht/internal/rpcnet"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// refreshInterval is how often the background loop re-bonds every
// known contact against the liveness ledger.
const refreshInterval = 30 * time.Second

// maxConsecutiveFailures is how many unanswered refresh pings in a row
// before a contact is evicted early, ahead of the bucket's own
// full-bucket eviction rule ever getting a chance to replace it.
const maxConsecutiveFailures = 3

// Peer is one node's complete view of the DHT: its own identity, its
// routing table, its RPC transport and its local store, wired
// together per spec.md §2's upward data flow (identity -> routing ->
// rpc -> protocol -> lookup -> api).
type Peer struct {
	self      routing.Contact
	table     *routing.Table
	transport *rpcnet.Transport
	store     *protocol.Store
	handler   *protocol.Handler
	engine    *lookup.Engine
	ledger    *liveness.Ledger
	stop      chan struct{}
}

// New binds ip:port, wires the routing table, protocol handler and
// lookup engine together, and starts the request-handling goroutine.
// If bootstrap is non-nil, it is inserted into the routing table and
// a self-lookup is issued to populate nearby buckets before New
// returns.
func New(ip string, port int, bootstrap *routing.Contact) (*Peer, error) {
	self := routing.NewContact(ip, port)

	transport, err := rpcnet.Listen(self)
	if err != nil {
		return nil, fmt.Errorf("dht: bind %s: %w", self.Addr(), err)
	}

	table := routing.NewTable(self, transport)
	store := protocol.NewStore()
	handler := protocol.NewHandler(self, table, store)
	go handler.Run(transport)

	engine := lookup.New(table, transport)

	ledger, err := liveness.NewLedger()
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("dht: open liveness ledger: %w", err)
	}

	p := &Peer{
		self:      self,
		table:     table,
		transport: transport,
		store:     store,
		handler:   handler,
		engine:    engine,
		ledger:    ledger,
		stop:      make(chan struct{}),
	}

	if bootstrap != nil {
		glog.V(1).Infof("dht: bootstrapping %s via %s", self, bootstrap)
		table.Update(*bootstrap)
		p.engine.NodeLookup(self.ID)
	}

	go p.refreshLoop()

	return p, nil
}

// Self returns this peer's own contact record.
func (p *Peer) Self() routing.Contact { return p.self }

// Close releases the underlying socket, stops the request handler and
// the liveness refresh loop, and closes the liveness ledger.
func (p *Peer) Close() error {
	close(p.stop)
	p.ledger.Close()
	return p.transport.Close()
}

// refreshLoop periodically re-bonds every contact currently in the
// routing table against the liveness ledger, evicting ones that have
// gone stale before the bucket's own full-bucket eviction rule would
// ever get a chance to replace them (spec.md §4.2 never consults the
// ledger itself, only this loop does).
func (p *Peer) refreshLoop() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.refreshOnce()
		}
	}
}

func (p *Peer) refreshOnce() {
	for _, c := range p.table.All() {
		if err := p.ledger.RecordPing(c.ID, time.Now()); err != nil {
			glog.V(4).Infof("dht: liveness record ping for %s: %v", c, err)
		}

		if p.transport.Ping(c) {
			if err := p.ledger.RecordPong(c.ID, time.Now()); err != nil {
				glog.V(4).Infof("dht: liveness record pong for %s: %v", c, err)
			}
			continue
		}

		fails, err := p.ledger.IncFails(c.ID)
		if err != nil {
			glog.V(4).Infof("dht: liveness record failure for %s: %v", c, err)
			continue
		}
		if fails >= maxConsecutiveFailures {
			glog.V(2).Infof("dht: evicting %s early after %d consecutive refresh failures", c, fails)
			p.table.Remove(c)
		}
	}
}

// Ping issues a liveness probe against c, per spec.md §4.3/§4.4.
func (p *Peer) Ping(c routing.Contact) bool {
	return p.transport.Ping(c)
}

// Put stores (k, v) on the K contacts numerically closest to K(k):
// node_lookup(K(k)) followed by an async Store to each, per spec.md
// §4.5's user API.
func (p *Peer) Put(k, v string) {
	target := key.FromString(k)
	candidates := p.engine.NodeLookup(target)
	for _, c := range candidates {
		c := c
		go func() {
			if !p.transport.Store(c, k, v) {
				glog.V(2).Infof("dht: store of %q to %s failed", k, c)
			}
		}()
	}
	// A peer is always eligible to serve its own puts.
	p.store.Put(k, v)
}

// Get retrieves v for k via value_lookup. On a hit it also caches v to
// the closest contact that did not already have it, per spec.md §4.5.
func (p *Peer) Get(k string) (string, bool) {
	if v, ok := p.store.Get(k); ok {
		return v, true
	}

	val, found, contacts := p.engine.ValueLookup(k)
	if !found {
		return "", false
	}

	// contacts holds only the peers that replied without having k
	// (ValueLookup excludes whichever contact answered the hit), sorted
	// closest-first, so the first entry is exactly the caching target
	// spec.md §4.5 calls for.
	if len(contacts) > 0 {
		go p.transport.Store(contacts[0], k, val)
	}

	return val, true
}

// RoutingSnapshot returns the live bucket occupancy, for read-only
// inspection collaborators (state dump, CLI, dashboard).
func (p *Peer) RoutingSnapshot() []int {
	return p.table.BucketOccupancy()
}

// StoreSize returns the number of keys held locally.
func (p *Peer) StoreSize() int {
	return p.store.Len()
}
