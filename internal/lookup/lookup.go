// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package lookup

import (
	"sort"
	"sync"

	"gopkg.in/fatih/set.v0"

	"github.com/gokad/kademlia-dht/internal/glog"
	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/metrics"
	"github.com/gokad/kademlia-dht/internal/rpcnet"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// Alpha is the per-iteration fan-out width.
const Alpha = 3

// Prober is the RPC surface the lookup engine drives; satisfied by
// *rpcnet.Transport. Narrowed to an interface so tests can fake it.
type Prober interface {
	FindNode(c routing.Contact, target key.Key) ([]rpcnet.FoundContact, bool)
	FindValue(c routing.Contact, k string) (rpcnet.FindValueResult, bool)
}

// Engine runs node_lookup/value_lookup against a routing table and an
// RPC prober.
type Engine struct {
	table  *routing.Table
	prober Prober
}

// New builds a lookup Engine over table, issuing RPCs through prober.
func New(table *routing.Table, prober Prober) *Engine {
	return &Engine{table: table, prober: prober}
}

type scored struct {
	c routing.Contact
	d key.Distance
}

// NodeLookup returns up to routing.K contacts closest to target,
// converging via α-parallel FindNode RPCs per spec.md §4.5.
func (e *Engine) NodeLookup(target key.Key) []routing.Contact {
	metrics.LookupsStarted.Mark(1)
	queried := set.New()
	tq := newToQuery(target)
	for _, c := range e.table.Closest(target, routing.K) {
		queried.Add(c.ID)
		tq.push(c)
	}

	var ret []scored
	var mu sync.Mutex

	for !tq.empty() {
		batch := tq.popUpTo(Alpha)
		var wg sync.WaitGroup
		for _, c := range batch {
			c := c
			wg.Add(1)
			go func() {
				defer wg.Done()
				found, ok := e.prober.FindNode(c, target)
				if !ok {
					glog.V(4).Infof("lookup: FindNode to %s failed or timed out", c)
					e.table.Remove(c)
					return
				}
				mu.Lock()
				ret = append(ret, scored{c: c, d: key.XOR(target, c.ID)})
				for _, f := range found {
					if !queried.Has(f.Contact.ID) {
						queried.Add(f.Contact.ID)
						tq.push(f.Contact)
					}
				}
				mu.Unlock()
			}()
		}
		wg.Wait()
	}

	return truncateSorted(ret, routing.K)
}

// ValueLookup issues FindValue instead of FindNode, short-circuiting
// the first Value hit: sort/truncate what was accumulated so far and
// return immediately with found=true.
func (e *Engine) ValueLookup(k string) (value string, found bool, contacts []routing.Contact) {
	metrics.LookupsStarted.Mark(1)
	target := key.FromString(k)
	queried := set.New()
	tq := newToQuery(target)
	for _, c := range e.table.Closest(target, routing.K) {
		queried.Add(c.ID)
		tq.push(c)
	}

	var ret []scored
	var mu sync.Mutex
	var hitValue string
	hit := false

	for !tq.empty() && !hit {
		batch := tq.popUpTo(Alpha)
		var wg sync.WaitGroup
		for _, c := range batch {
			c := c
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, ok := e.prober.FindValue(c, k)
				if !ok {
					glog.V(4).Infof("lookup: FindValue to %s failed or timed out", c)
					e.table.Remove(c)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if hit {
					return
				}
				if result.Found {
					hitValue = result.Value
					hit = true
					return
				}
				// Only non-hit repliers are accumulated: the caller
				// needs "closest contact that did NOT have it" for
				// caching (spec.md §4.5), so the contact that did
				// answer with the value is deliberately excluded here.
				ret = append(ret, scored{c: c, d: key.XOR(target, c.ID)})
				for _, f := range result.Nodes {
					if !queried.Has(f.Contact.ID) {
						queried.Add(f.Contact.ID)
						tq.push(f.Contact)
					}
				}
			}()
		}
		wg.Wait()
	}

	contacts = truncateSorted(ret, routing.K)
	if hit {
		metrics.LookupValueHits.Mark(1)
		return hitValue, true, contacts
	}
	metrics.LookupValueMisses.Mark(1)
	return "", false, contacts
}

func truncateSorted(in []scored, n int) []routing.Contact {
	sort.Slice(in, func(i, j int) bool { return in[i].d.Less(in[j].d) })
	if len(in) > n {
		in = in[:n]
	}
	out := make([]routing.Contact, len(in))
	for i, s := range in {
		out[i] = s.c
	}
	return out
}
