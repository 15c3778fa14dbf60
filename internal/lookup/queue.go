// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package lookup implements the iterative, α-parallel convergence
// procedure (node_lookup / value_lookup) every user-visible operation
// is built on. Grounded on the teacher's p2p/discover/table.go
// lookup() method (asked-set bookkeeping, reply-channel fan-out,
// bounded concurrency) generalized to the spec's explicit two-shape
// (node/value) lookup, with the pack's storj-storj kademlia
// workers.go as a secondary reference for the bounded-worker pattern.
package lookup

import (
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// toQuery is the max-heap "closer contacts pop first" frontier spec.md
// §9 calls for: priority is the negated leading bytes of the XOR
// distance to target, so the closest known contact always has the
// highest priority. This is a deliberately approximate priority (a
// float32 can't hold full 256-bit precision) used only to pick probe
// order; the lookup's final result is always re-sorted by the exact
// total-order key.Distance.Less before being returned.
type toQuery struct {
	target key.Key
	q      *prque.Prque
}

func newToQuery(target key.Key) *toQuery {
	return &toQuery{target: target, q: prque.New()}
}

func (t *toQuery) push(c routing.Contact) {
	d := key.XOR(t.target, c.ID)
	t.q.Push(c, priorityOf(d))
}

func (t *toQuery) empty() bool {
	return t.q.Empty()
}

func (t *toQuery) pop() routing.Contact {
	item, _ := t.q.Pop()
	return item.(routing.Contact)
}

// popUpTo drains up to n contacts, closest first.
func (t *toQuery) popUpTo(n int) []routing.Contact {
	var out []routing.Contact
	for i := 0; i < n && !t.empty(); i++ {
		out = append(out, t.pop())
	}
	return out
}

// priorityOf converts a distance into the max-heap priority that
// makes the smallest distance sort first: the leading 4 bytes
// (32 bits) of the big-endian distance, negated.
func priorityOf(d key.Distance) float32 {
	lead := uint32(d[0])<<24 | uint32(d[1])<<16 | uint32(d[2])<<8 | uint32(d[3])
	return -float32(lead)
}
