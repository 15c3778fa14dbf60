// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package liveness keeps a small bonding ledger per contact: when it
// was last pinged, when it last answered, and how many consecutive
// probes it has failed. Adapted from the bookkeeping the teacher's
// p2p/discover/table.go drives through tab.db.updateLastPing /
// updateLastPong / findFails around every ping (the nodeDB
// implementation itself wasn't part of the retrieved slice, only its
// call sites). Backed by syndtr/goleveldb opened against an in-memory
// storage.Storage, so the ledger resets with the process rather than
// persisting contact history across runs.
package liveness

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/gokad/kademlia-dht/internal/key"
)

// Ledger is a per-peer bonding history, keyed by contact id.
type Ledger struct {
	db *leveldb.DB
}

// NewLedger opens a fresh in-memory ledger.
func NewLedger() (*Ledger, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("liveness: open: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func pingKey(id key.Key) []byte  { return []byte("ping:" + id.String()) }
func pongKey(id key.Key) []byte  { return []byte("pong:" + id.String()) }
func failsKey(id key.Key) []byte { return []byte("fails:" + id.String()) }

// RecordPing notes that id was probed at t, ahead of sending the
// actual Ping RPC — mirroring the teacher's updateLastPing-before-send
// ordering, so a ping that's sent but never answered still leaves a
// trace.
func (l *Ledger) RecordPing(id key.Key, t time.Time) error {
	b, _ := t.MarshalBinary()
	return l.db.Put(pingKey(id), b, nil)
}

// RecordPong notes that id answered at t, and clears its fail streak.
func (l *Ledger) RecordPong(id key.Key, t time.Time) error {
	b, _ := t.MarshalBinary()
	if err := l.db.Put(pongKey(id), b, nil); err != nil {
		return err
	}
	return l.db.Delete(failsKey(id), nil)
}

// LastPing returns the last time id was probed, if ever.
func (l *Ledger) LastPing(id key.Key) (time.Time, bool) {
	return l.readTime(pingKey(id))
}

// LastPong returns the last time id answered, if ever.
func (l *Ledger) LastPong(id key.Key) (time.Time, bool) {
	return l.readTime(pongKey(id))
}

func (l *Ledger) readTime(k []byte) (time.Time, bool) {
	b, err := l.db.Get(k, nil)
	if err != nil {
		return time.Time{}, false
	}
	var t time.Time
	if err := t.UnmarshalBinary(b); err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IncFails bumps id's consecutive-failure count and returns the new
// total.
func (l *Ledger) IncFails(id key.Key) (int, error) {
	n := l.Fails(id) + 1
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	if err := l.db.Put(failsKey(id), b, nil); err != nil {
		return 0, fmt.Errorf("liveness: record failure for %s: %w", id, err)
	}
	return n, nil
}

// Fails returns id's current consecutive-failure count.
func (l *Ledger) Fails(id key.Key) int {
	b, err := l.db.Get(failsKey(id), nil)
	if err != nil || len(b) != 4 {
		return 0
	}
	return int(binary.BigEndian.Uint32(b))
}
