// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"github.com/gokad/kademlia-dht/internal/routing"
)

// parseBootstrap turns a "-bootstrap ip:port" flag value into a
// Contact, deriving its id the same way routing.NewContact always
// does — a bootstrap contact's id is never supplied independently,
// per spec.md's Contact definition (id = K(ip ":" port)).
func parseBootstrap(spec string) (*routing.Contact, error) {
	if spec == "" {
		return nil, nil
	}
	host, port, err := splitHostPort(spec)
	if err != nil {
		return nil, err
	}
	c := routing.NewContact(host, port)
	return &c, nil
}
