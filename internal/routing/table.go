// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package routing implements the XOR-metric k-bucket routing table:
// update/eviction discipline and closest-n queries. Adapted from the
// teacher's p2p/discover/table.go, generalized from go-ethereum's
// 512-bit RLPx node id / Keccak256 model down to this system's
// literal head-ping eviction rule over 256-bit SHA-256 ids.
package routing

import (
	"net"
	"sort"
	"sync"

	"github.com/gokad/kademlia-dht/internal/glog"
	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/metrics"
)

const (
	// IP diversity limits, ported from the teacher's table.go.
	bucketIPLimit, bucketSubnetBits = 2, 24
	tableIPLimit, tableSubnetBits   = 10, 24
)

// Pinger is the liveness check the routing table calls into when a
// bucket is full and a brand-new contact arrives. It must not be
// called while the table's lock is held (Update releases it first),
// and must itself not call back into the table's own exported methods
// synchronously from the same goroutine that is awaiting it — doing so
// is exactly the reentrancy the teacher's source has a latent deadlock
// bug around (see spec.md §9, "Reentrant eviction").
//
// Implemented by the RPC layer via a Ping request/response round trip.
type Pinger interface {
	Ping(c Contact) bool
}

// Table is one local contact's view of the network: NumBuckets
// k-buckets, indexed by XOR distance from self.
type Table struct {
	mu      sync.Mutex
	self    Contact
	buckets [key.NumBuckets]*bucket
	ips     distinctNetSet
	pinger  Pinger

	// nodeAddedHook, if set, is invoked (outside the lock) whenever a
	// contact is newly added to a bucket. Used by tests to observe
	// eviction outcomes deterministically (S4/S5 in spec.md §8).
	nodeAddedHook func(Contact)
}

// NewTable constructs an empty routing table for self, using pinger to
// resolve bucket-full eviction decisions.
func NewTable(self Contact, pinger Pinger) *Table {
	t := &Table{
		self:   self,
		pinger: pinger,
		ips:    distinctNetSet{Subnet: tableSubnetBits, Limit: tableIPLimit},
	}
	for i := range t.buckets {
		t.buckets[i] = newBucket()
	}
	return t
}

// Self returns the local contact this table is rooted at.
func (t *Table) Self() Contact {
	return t.self
}

// Len returns the total number of live contacts across all buckets.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b.entries)
	}
	return n
}

// BucketOccupancy returns the live-entry count of every bucket, for
// metrics/state-dump consumers. Index i corresponds to key.BucketIndex
// i.
func (t *Table) BucketOccupancy() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(t.buckets))
	for i, b := range t.buckets {
		out[i] = len(b.entries)
	}
	return out
}

// All returns every live contact across all buckets, in no particular
// order. Used by the background liveness refresh loop, which has no
// other way to enumerate contacts to re-bond.
func (t *Table) All() []Contact {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Contact
	for _, b := range t.buckets {
		out = append(out, b.entries...)
	}
	return out
}

// bucketFor returns the bucket c belongs to, relative to self.
func (t *Table) bucketFor(id key.Key) *bucket {
	return t.buckets[key.BucketIndex(t.self.ID, id)]
}

// Update inserts or refreshes c, per spec.md §4.2:
//
//  1. If c is already in its bucket, move it to the tail.
//  2. Else if the bucket has room, append c to the tail.
//  3. Else ping the bucket's head: if it responds, discard c and bump
//     the head to the tail; if it doesn't, evict the head and append c.
func (t *Table) Update(c Contact) {
	if c.ID == t.self.ID {
		return
	}

	t.mu.Lock()
	b := t.bucketFor(c.ID)

	if b.bumpToTail(c) {
		t.mu.Unlock()
		return
	}

	if !b.full() {
		if !b.addIP(ipOf(c), &t.ips) {
			t.mu.Unlock()
			return
		}
		b.append(c)
		t.mu.Unlock()
		t.fireAdded(c)
		return
	}

	// Bucket full: must ping the head. Copy what we need and release
	// the lock before the RPC round trip — the ping must never run
	// while t.mu is held, both because it can take up to the request
	// timeout and because the reply, when it arrives on the RPC
	// receive loop, will itself call Update/Remove and would deadlock
	// reentering this same mutex.
	head := b.entries[0]
	pinger := t.pinger
	t.mu.Unlock()

	alive := pinger != nil && pinger.Ping(head)

	t.mu.Lock()
	defer t.mu.Unlock()
	b = t.bucketFor(c.ID) // re-derive; bucket pointer itself is stable but be defensive
	if alive {
		// Head answered: preserve it and keep the novel contact out of
		// the bucket, offering it only as a replacement candidate. The
		// head may have moved already (e.g. bumped by a concurrent
		// Update); only bump if it's still there.
		glog.V(4).Infof("routing: head %s alive, discarding %s", head, c)
		b.bumpToTail(head)
		b.addReplacement(c)
		return
	}

	// Head is unresponsive: evict it, make room for c. Head may have
	// moved since we released the lock (e.g. bumped by a concurrent
	// Update); take the fast path only if it's still at the front,
	// otherwise fall back to a by-id removal.
	metrics.RoutingEvictions.Mark(1)
	glog.V(2).Infof("routing: evicting unresponsive head %s for %s", head, c)
	if len(b.entries) > 0 && b.entries[0].ID == head.ID {
		evicted := b.removeHead()
		b.removeIP(ipOf(evicted), &t.ips)
	} else if b.remove(head.ID) {
		b.removeIP(ipOf(head), &t.ips)
	}
	if b.full() {
		// Someone else filled the slot while we were pinging; fall
		// back to the replacement list instead of violating the
		// capacity invariant.
		b.addReplacement(c)
		return
	}
	if !b.addIP(ipOf(c), &t.ips) {
		return
	}
	b.append(c)
	go t.fireAdded(c)
}

func (t *Table) fireAdded(c Contact) {
	if t.nodeAddedHook != nil {
		t.nodeAddedHook(c)
	}
}

func ipOf(c Contact) net.IP {
	if ip := net.ParseIP(c.IP); ip != nil {
		return ip
	}
	return net.IPv4zero
}

// Remove drops c from its bucket, if present. If that frees a slot,
// the most recently offered replacement candidate for the bucket (if
// any) is promoted into it — the same "stuffing" idea the teacher's
// table keeps a hand-rolled ring for, here drawn from the bucket's
// own replacement LRU.
func (t *Table) Remove(c Contact) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.bucketFor(c.ID)
	if !b.remove(c.ID) {
		return
	}
	b.removeIP(ipOf(c), &t.ips)

	if repl, ok := b.popReplacement(); ok {
		if b.addIP(ipOf(repl), &t.ips) {
			b.append(repl)
			go t.fireAdded(repl)
		}
	}
}

// closestEntry pairs a contact with its distance to some target, used
// only while sorting Closest's result.
type closestEntry struct {
	c Contact
	d key.Distance
}

// Closest returns up to n contacts ordered by ascending XOR distance
// to target. It seeds from the bucket target would occupy, then
// alternately expands to higher and lower bucket indices until n
// contacts are collected or every bucket has been visited. Tie-break
// is the full 32-byte distance, a true total order (key.Distance.Less).
func (t *Table) Closest(target key.Key, n int) []Contact {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := key.BucketIndex(t.self.ID, target)
	var found []closestEntry
	visit := func(i int) {
		for _, c := range t.buckets[i].entries {
			found = append(found, closestEntry{c: c, d: key.XOR(target, c.ID)})
		}
	}

	visit(start)
	for lo, hi := start-1, start+1; (lo >= 0 || hi < key.NumBuckets) && len(found) < n; lo, hi = lo-1, hi+1 {
		if hi < key.NumBuckets {
			visit(hi)
		}
		if lo >= 0 {
			visit(lo)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].d.Less(found[j].d) })
	if len(found) > n {
		found = found[:n]
	}
	out := make([]Contact, len(found))
	for i, e := range found {
		out[i] = e.c
	}
	return out
}

// SetNodeAddedHook installs a callback invoked (off the table's lock)
// whenever Update newly adds a contact to a bucket. Exposed for tests.
func (t *Table) SetNodeAddedHook(fn func(Contact)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeAddedHook = fn
}
