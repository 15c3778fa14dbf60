// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package routing

import (
	"bytes"
	"fmt"
	"net"
	"sort"
)

// isLAN reports whether ip is a local-network address. Contacts on a
// LAN are exempt from the diversity limits below: a bootstrap swarm
// run on localhost for tests would otherwise immediately hit the /24
// subnet limit. Unlike the teacher's hand-rolled CIDR table, this
// leans on the stdlib's own RFC 1918/4193 and link-local classifiers;
// the one address class they don't cover, 0.0.0.0/8 ("this network"),
// is checked explicitly since contact addresses in tests sometimes
// land there.
func isLAN(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return v4[0] == 0
	}
	return false
}

// distinctNetSet tracks IPs, ensuring that at most Limit of them fall
// into the same Subnet-bit network range. Used by the routing table to
// limit how many contacts from a single /24 (or similarly-sized IPv6
// prefix) may occupy a bucket or the table as a whole — a courtesy
// against a single host flooding the table with many addresses of the
// same origin.
type distinctNetSet struct {
	Subnet uint // number of common prefix bits
	Limit  uint // maximum number of IPs in each subnet

	members map[string]uint
}

// add adds an IP address to the set. It returns false (and doesn't add
// the IP) if the subnet it falls in is already at the limit.
func (s *distinctNetSet) add(ip net.IP) bool {
	if s.members == nil {
		s.members = make(map[string]uint)
	}
	k := s.key(ip)
	n := s.members[k]
	if n >= s.Limit {
		return false
	}
	s.members[k] = n + 1
	return true
}

// remove removes an IP from the set.
func (s *distinctNetSet) remove(ip net.IP) {
	k := s.key(ip)
	if n, ok := s.members[k]; ok {
		if n <= 1 {
			delete(s.members, k)
		} else {
			s.members[k] = n - 1
		}
	}
}

// key masks ip down to its Subnet-bit network prefix, via the same
// net.IPMask machinery net/http and friends use for CIDR matching
// (rather than the hand-rolled byte-shifting the teacher's version
// does), and tags the result with its address family so a v4 and a v6
// prefix that happen to mask to the same bytes never collide.
func (s distinctNetSet) key(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		bits := s.Subnet
		if bits > 32 {
			bits = 32
		}
		return "4" + string(v4.Mask(net.CIDRMask(int(bits), 32)))
	}
	bits := s.Subnet
	if bits > 128 {
		bits = 128
	}
	return "6" + string(ip.Mask(net.CIDRMask(int(bits), 128)))
}

func (s distinctNetSet) String() string {
	var buf bytes.Buffer
	buf.WriteString("{")
	keys := make([]string, 0, len(s.members))
	for k := range s.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		fmt.Fprintf(&buf, "%x×%d", k[1:], s.members[k])
		if i != len(keys)-1 {
			buf.WriteString(" ")
		}
	}
	buf.WriteString("}")
	return buf.String()
}
