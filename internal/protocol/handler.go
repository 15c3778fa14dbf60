// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package protocol

import (
	"github.com/gokad/kademlia-dht/internal/glog"
	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/rpcnet"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// requestSource is the subset of *rpcnet.Transport the handler
// consumes, narrowed so tests can drive it with a plain channel
// instead of a real socket.
type requestSource interface {
	Requests() <-chan rpcnet.Request
}

// Handler consumes inbound requests off a transport and answers each
// on its own goroutine, per spec.md §4.4.
type Handler struct {
	self  routing.Contact
	table *routing.Table
	store *Store
}

// NewHandler builds a Handler serving table and store as self.
func NewHandler(self routing.Contact, table *routing.Table, store *Store) *Handler {
	return &Handler{self: self, table: table, store: store}
}

// Run consumes src.Requests() until the channel closes (the owning
// transport is closed). Call it in its own goroutine.
func (h *Handler) Run(src requestSource) {
	for req := range src.Requests() {
		go h.handle(req)
	}
}

func (h *Handler) handle(req rpcnet.Request) {
	// Every inbound request is how the table learns of a peer: this is
	// the one side effect spec.md §4.4 mandates unconditionally, before
	// any response is crafted.
	h.table.Update(req.Msg.Src)

	switch req.Msg.Kind {
	case rpcnet.KindPing:
		req.Reply(rpcnet.NewPong(req.Msg, h.self))

	case rpcnet.KindStore:
		h.store.Put(req.Msg.StoreKey, req.Msg.StoreVal)
		req.Reply(rpcnet.NewPong(req.Msg, h.self))

	case rpcnet.KindFindNode:
		found := toFoundContacts(req.Msg.FindTarget, h.table.Closest(req.Msg.FindTarget, routing.K))
		req.Reply(rpcnet.NewNodes(req.Msg, h.self, found))

	case rpcnet.KindFindValue:
		if v, ok := h.store.Get(req.Msg.StoreKey); ok {
			req.Reply(rpcnet.NewValueFound(req.Msg, h.self, v))
			return
		}
		target := key.FromString(req.Msg.StoreKey)
		found := toFoundContacts(target, h.table.Closest(target, routing.K))
		req.Reply(rpcnet.NewNodes(req.Msg, h.self, found))

	default:
		glog.V(2).Infof("protocol: dropping request of unexpected kind %q from %s", req.Msg.Kind, req.Msg.Src)
	}
}

func toFoundContacts(target key.Key, contacts []routing.Contact) []rpcnet.FoundContact {
	out := make([]rpcnet.FoundContact, len(contacts))
	for i, c := range contacts {
		out[i] = rpcnet.FoundContact{Contact: c, Distance: key.XOR(target, c.ID)}
	}
	return out
}
