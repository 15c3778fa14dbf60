// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package rpcnet

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gokad/kademlia-dht/internal/glog"
	"github.com/gokad/kademlia-dht/internal/key"
	"github.com/gokad/kademlia-dht/internal/metrics"
	"github.com/gokad/kademlia-dht/internal/routing"
)

// Timeout is the per-request deadline; a request that goes unanswered
// this long resolves its waiter with ok=false.
const Timeout = 5 * time.Second

// pendingEntry is the single-producer/single-consumer correlation slot
// for one outstanding request. The response path and the timeout path
// may both call complete; sync.Once makes only the first call deliver,
// so a given token delivers at most once, per spec.md §4.3's "exactly
// one of {response delivery, timeout delivery} wins" invariant.
type pendingEntry struct {
	once sync.Once
	ch   chan Message
	ok   chan bool
}

func newPendingEntry() *pendingEntry {
	return &pendingEntry{ch: make(chan Message, 1), ok: make(chan bool, 1)}
}

func (p *pendingEntry) complete(msg Message, ok bool) {
	p.once.Do(func() {
		p.ch <- msg
		p.ok <- ok
	})
}

// Transport is one peer's RPC endpoint: a bound UDP socket, the
// correlation table of outstanding requests, and the receive loop that
// feeds both response delivery and the protocol handler.
type Transport struct {
	self routing.Contact
	conn *net.UDPConn

	mu      sync.Mutex
	pending map[key.Key]*pendingEntry

	requests chan Request
	done     chan struct{}
}

// Request is a decoded inbound request handed off to the protocol
// layer, paired with the reply sink the transport will send a matching
// response out through.
type Request struct {
	Msg   Message
	Reply func(Message)
}

// Listen binds self's address and starts the receive loop. Callers
// must call Close when done to release the socket and stop the loop.
func Listen(self routing.Contact) (*Transport, error) {
	addr, err := self.UDPAddr()
	if err != nil {
		return nil, fmt.Errorf("rpcnet: resolve self address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpcnet: listen %s: %w", addr, err)
	}
	t := &Transport{
		self:     self,
		conn:     conn,
		pending:  make(map[key.Key]*pendingEntry),
		requests: make(chan Request, 64),
		done:     make(chan struct{}),
	}
	go t.receiveLoop()
	return t, nil
}

// Requests returns the channel the protocol handler reads inbound
// requests from.
func (t *Transport) Requests() <-chan Request { return t.requests }

// Close terminates the receive loop and releases the socket.
func (t *Transport) Close() error {
	close(t.done)
	return t.conn.Close()
}

func (t *Transport) token(dst routing.Contact) key.Key {
	return key.FromString(fmt.Sprintf("%s:%s:%d", t.self.Addr(), dst.Addr(), time.Now().UnixNano()))
}

// send transmits msg to dst's address.
func (t *Transport) send(msg Message, dst routing.Contact) error {
	b, err := Encode(msg)
	if err != nil {
		return err
	}
	addr, err := dst.UDPAddr()
	if err != nil {
		return fmt.Errorf("rpcnet: resolve dst address: %w", err)
	}
	n, err := t.conn.WriteToUDP(b, addr)
	if err == nil {
		metrics.BytesOut.Mark(int64(n))
	}
	return err
}

// request transmits msg (already tagged with its token) to dst,
// registers the correlation entry, and blocks up to Timeout for a
// matching reply. Returns ok=false on timeout or send failure.
func (t *Transport) request(msg Message, dst routing.Contact) (Message, bool) {
	entry := newPendingEntry()
	t.mu.Lock()
	t.pending[msg.Token] = entry
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, msg.Token)
		t.mu.Unlock()
	}()

	if err := t.send(msg, dst); err != nil {
		glog.V(2).Infof("rpcnet: send to %s failed: %v", dst, err)
		entry.complete(Message{}, false)
		return Message{}, false
	}

	timer := time.NewTimer(Timeout)
	defer timer.Stop()

	select {
	case reply := <-entry.ch:
		return reply, <-entry.ok
	case <-timer.C:
		entry.complete(Message{}, false)
		return <-entry.ch, <-entry.ok
	case <-t.done:
		entry.complete(Message{}, false)
		return <-entry.ch, <-entry.ok
	}
}

// Ping implements routing.Pinger: it issues a Ping RPC and reports
// whether a Pong came back before Timeout. This is the component that
// resolves the reentrant-eviction dependency the routing table takes
// on a Pinger at construction time — the table never calls into this
// transport while holding its own lock (see routing.Table.Update).
func (t *Transport) Ping(c routing.Contact) bool {
	metrics.RPCPingOut.Mark(1)
	msg := newPing(t.token(c), t.self, c)
	reply, ok := t.request(msg, c)
	if !ok {
		metrics.RPCPingTimeouts.Mark(1)
	}
	return ok && reply.Kind == KindPong
}

// Store issues a Store RPC; the response is the Ping/Pong ACK shape
// per spec.md §4.4.
func (t *Transport) Store(c routing.Contact, k, v string) bool {
	metrics.RPCStoreOut.Mark(1)
	msg := newStore(t.token(c), t.self, c, k, v)
	_, ok := t.request(msg, c)
	return ok
}

// FindNode issues a FindNode RPC and returns the replying peer's
// closest-contacts answer, or ok=false on failure/timeout.
func (t *Transport) FindNode(c routing.Contact, target key.Key) ([]FoundContact, bool) {
	metrics.RPCFindNodeOut.Mark(1)
	msg := newFindNode(t.token(c), t.self, c, target)
	reply, ok := t.request(msg, c)
	if !ok || reply.Kind != KindNodes {
		return nil, false
	}
	return reply.Nodes, true
}

// FindValueResult is FindNode's value-lookup counterpart: either a
// direct value hit, or the nodes the queried peer would have answered
// FindNode with.
type FindValueResult struct {
	Value   string
	Found   bool
	Nodes   []FoundContact
}

// FindValue issues a FindValue RPC.
func (t *Transport) FindValue(c routing.Contact, k string) (FindValueResult, bool) {
	metrics.RPCFindValueOut.Mark(1)
	msg := newFindValue(t.token(c), t.self, c, k)
	reply, ok := t.request(msg, c)
	if !ok {
		return FindValueResult{}, false
	}
	switch reply.Kind {
	case KindValueFound:
		return FindValueResult{Value: reply.Value, Found: true}, true
	case KindNodes:
		return FindValueResult{Nodes: reply.Nodes}, true
	default:
		return FindValueResult{}, false
	}
}

// receiveLoop is the single per-peer task reading datagrams, per
// spec.md §4.3: decode, overwrite src with the observed address,
// discard misdirected datagrams, then dispatch by kind.
func (t *Transport) receiveLoop() {
	// receiveLoop is the only sender on t.requests, so closing it here
	// is what ends the protocol handler's range over Requests().
	defer close(t.requests)
	buf := make([]byte, BufSize)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, raddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			glog.V(2).Infof("rpcnet: read error: %v", err)
			continue
		}

		metrics.BytesIn.Mark(int64(n))

		msg, err := Decode(buf[:n])
		if err != nil {
			metrics.RPCDropped.Mark(1)
			glog.V(4).Infof("rpcnet: dropping malformed datagram from %s: %v", raddr, err)
			continue
		}

		// Defensive against a spoofed or stale reported src: the
		// observed UDP source always wins, and its id is rederived
		// rather than trusted from the wire — otherwise a sender
		// could claim an arbitrary id for a real address it controls
		// and land in a bucket its true address wouldn't occupy.
		msg.Src.IP = raddr.IP.String()
		msg.Src.Port = raddr.Port
		msg.Src.ID = key.FromString(routing.Addr(msg.Src.IP, msg.Src.Port))

		if msg.Dst.ID != t.self.ID {
			metrics.RPCDropped.Mark(1)
			glog.V(4).Infof("rpcnet: dropping misdirected datagram (dst=%s, self=%s)", msg.Dst, t.self)
			continue
		}

		switch {
		case msg.Kind == KindAbort:
			return
		case msg.IsRequest():
			metrics.RPCRequestsIn.Mark(1)
			t.dispatchRequest(msg)
		case msg.IsResponse():
			metrics.RPCResponsesIn.Mark(1)
			t.resolvePending(msg)
		default:
			metrics.RPCDropped.Mark(1)
			glog.V(4).Infof("rpcnet: dropping datagram of unknown kind %q", msg.Kind)
		}
	}
}

func (t *Transport) dispatchRequest(msg Message) {
	reply := func(resp Message) {
		if err := t.send(resp, msg.Src); err != nil {
			glog.V(2).Infof("rpcnet: reply to %s failed: %v", msg.Src, err)
		}
	}
	select {
	case t.requests <- Request{Msg: msg, Reply: reply}:
	case <-t.done:
	}
}

func (t *Transport) resolvePending(msg Message) {
	t.mu.Lock()
	entry, ok := t.pending[msg.Token]
	t.mu.Unlock()
	if !ok {
		metrics.RPCDropped.Mark(1)
		glog.V(4).Infof("rpcnet: unsolicited response, token=%s dropped", msg.Token)
		return
	}
	entry.complete(msg, true)
}
