// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package routing

import (
	"fmt"
	"net"

	"github.com/gokad/kademlia-dht/internal/key"
)

// Contact is a peer record: its network address and its derived id,
// id = Key(ip ":" port). Contacts are freely cloned and carried in
// protocol messages.
type Contact struct {
	IP   string  `json:"ip"`
	Port int     `json:"port"`
	ID   key.Key `json:"id"`
}

// NewContact derives id from ip and port and returns the Contact.
func NewContact(ip string, port int) Contact {
	return Contact{IP: ip, Port: port, ID: key.FromString(Addr(ip, port))}
}

// Addr formats an ip:port pair the same way node ids are hashed from,
// so callers never have to remember the separator convention.
func Addr(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// Addr returns "ip:port" for c.
func (c Contact) Addr() string {
	return Addr(c.IP, c.Port)
}

// UDPAddr resolves c's address into a *net.UDPAddr.
func (c Contact) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", c.Addr())
}

// Equal reports whether c and other share the same id. Two contacts
// with the same id are interchangeable within a bucket.
func (c Contact) Equal(other Contact) bool {
	return c.ID == other.ID
}

func (c Contact) String() string {
	return fmt.Sprintf("%s(%s)", c.Addr(), c.ID.String()[:8])
}
