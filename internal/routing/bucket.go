// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package routing

import (
	"net"

	lru "github.com/hashicorp/golang-lru"

	"github.com/gokad/kademlia-dht/internal/key"
)

// K is the k-bucket capacity and target replication degree.
const K = 20

// maxReplacements bounds the per-bucket replacement cache: contacts
// seen while a bucket is full, kept around in case the live entries
// turn out to be stale. The teacher (table.go) bounds this with a
// hand-rolled ring via pushNode; here it's an LRU so the least
// recently offered replacement is the one dropped under pressure.
const maxReplacements = 10

// bucket holds up to K live contacts, ordered head (least recently
// seen) to tail (most recently seen), plus a small LRU of
// replacement candidates to draw on if eviction of the head fails.
type bucket struct {
	entries      []Contact // head..tail, unique by ID
	replacements *lru.Cache
	ips          distinctNetSet
}

func newBucket() *bucket {
	c, err := lru.New(maxReplacements)
	if err != nil {
		// Only returns an error for size <= 0, which never happens here.
		panic(err)
	}
	return &bucket{
		replacements: c,
		ips:          distinctNetSet{Subnet: bucketSubnetBits, Limit: bucketIPLimit},
	}
}

// indexOf returns the position of a contact with the given id, or -1.
func (b *bucket) indexOf(id key.Key) int {
	for i := range b.entries {
		if b.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// bumpToTail moves the entry with id to the tail (most recently seen)
// and reports whether it was present.
func (b *bucket) bumpToTail(c Contact) bool {
	i := b.indexOf(c.ID)
	if i < 0 {
		return false
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	b.entries = append(b.entries, c)
	return true
}

// full reports whether the live entry list is at capacity.
func (b *bucket) full() bool {
	return len(b.entries) >= K
}

// append adds a new contact to the tail. The caller must already know
// the bucket has room and the IP diversity budget allows it.
func (b *bucket) append(c Contact) {
	b.entries = append(b.entries, c)
	b.replacements.Remove(c.ID)
}

// removeHead drops the head (oldest) entry and returns it.
func (b *bucket) removeHead() Contact {
	head := b.entries[0]
	b.entries = b.entries[1:]
	return head
}

// remove drops the entry with the given id, if present.
func (b *bucket) remove(id key.Key) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return true
}

// addReplacement offers c as a replacement candidate for this bucket.
func (b *bucket) addReplacement(c Contact) {
	b.replacements.Add(c.ID, c)
}

// popReplacement returns the most recently offered replacement, if
// any, removing it from the cache.
func (b *bucket) popReplacement() (Contact, bool) {
	keys := b.replacements.Keys()
	if len(keys) == 0 {
		return Contact{}, false
	}
	last := keys[len(keys)-1]
	v, ok := b.replacements.Peek(last)
	if !ok {
		return Contact{}, false
	}
	b.replacements.Remove(last)
	return v.(Contact), true
}

func (b *bucket) addIP(ip net.IP, table *distinctNetSet) bool {
	if isLAN(ip) {
		return true
	}
	if !table.add(ip) {
		return false
	}
	if !b.ips.add(ip) {
		table.remove(ip)
		return false
	}
	return true
}

func (b *bucket) removeIP(ip net.IP, table *distinctNetSet) {
	if isLAN(ip) {
		return
	}
	table.remove(ip)
	b.ips.remove(ip)
}
