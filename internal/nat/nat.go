// Copyright 2024 The kademlia-dht Authors
// This file is part of the kademlia-dht library.
//
// The kademlia-dht library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package nat is a local-IP/port-mapping probe: a pure collaborator
// the core never calls into (spec.md §1 names "local IP discovery" as
// out of scope for the core), used only by cmd/kademlia-node to print
// a peer's externally-reachable address at startup. Modeled on the
// teacher's (uncopied) p2p/nat package's small Interface abstraction
// over UPnP and NAT-PMP, since that file itself wasn't present in the
// retrieved slice — grounded on huin/goupnp's and jackpal/go-nat-pmp's
// own documented client surfaces instead.
package nat

import (
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp/dcps/internetgateway1"
)

// Interface is a port-mapping mechanism: discover the externally
// visible IP, and optionally punch a mapping through for this peer's
// UDP listen port.
type Interface interface {
	ExternalIP() (net.IP, error)
	AddMapping(extPort, intPort int, lifetime time.Duration) error
	String() string
}

// Parse interprets a CLI-style mechanism name ("none", "upnp", "pmp",
// "extip:<ip>"), mirroring the teacher's flag convention for -nat.
func Parse(mechanism string) (Interface, error) {
	switch {
	case mechanism == "" || mechanism == "none":
		return nil, nil
	case mechanism == "upnp":
		return discoverUPnP()
	case mechanism == "pmp":
		return discoverPMP()
	case len(mechanism) > 6 && mechanism[:6] == "extip:":
		ip := net.ParseIP(mechanism[6:])
		if ip == nil {
			return nil, fmt.Errorf("nat: invalid IP in extip spec %q", mechanism)
		}
		return staticExtIP{ip}, nil
	default:
		return nil, fmt.Errorf("nat: unknown mechanism %q", mechanism)
	}
}

type staticExtIP struct{ ip net.IP }

func (s staticExtIP) ExternalIP() (net.IP, error)                             { return s.ip, nil }
func (s staticExtIP) AddMapping(extPort, intPort int, lt time.Duration) error { return nil }
func (s staticExtIP) String() string                                          { return fmt.Sprintf("extip:%s", s.ip) }

// upnpInterface wraps a discovered InternetGatewayDevice's
// WANIPConnection1 service.
type upnpInterface struct {
	client *internetgateway1.WANIPConnection1
}

func discoverUPnP() (Interface, error) {
	clients, errs, err := internetgateway1.NewWANIPConnection1Clients()
	if err != nil {
		return nil, fmt.Errorf("nat: upnp discovery: %w", err)
	}
	if len(clients) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("nat: no upnp gateway found: %w", errs[0])
		}
		return nil, fmt.Errorf("nat: no upnp gateway found")
	}
	return upnpInterface{client: clients[0]}, nil
}

func (u upnpInterface) ExternalIP() (net.IP, error) {
	s, err := u.client.GetExternalIPAddress()
	if err != nil {
		return nil, fmt.Errorf("nat: upnp external ip: %w", err)
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("nat: upnp returned unparseable ip %q", s)
	}
	return ip, nil
}

func (u upnpInterface) AddMapping(extPort, intPort int, lifetime time.Duration) error {
	internal, err := localIP()
	if err != nil {
		return err
	}
	return u.client.AddPortMapping("", uint16(extPort), "UDP", uint16(intPort), internal.String(), true,
		"kademlia-dht", uint32(lifetime/time.Second))
}

func (u upnpInterface) String() string { return "UPnP" }

// pmpInterface wraps a NAT-PMP gateway client.
type pmpInterface struct {
	client  *natpmp.Client
	gateway net.IP
}

func discoverPMP() (Interface, error) {
	gw, err := defaultGateway()
	if err != nil {
		return nil, fmt.Errorf("nat: pmp: %w", err)
	}
	return pmpInterface{client: natpmp.NewClient(gw), gateway: gw}, nil
}

func (p pmpInterface) ExternalIP() (net.IP, error) {
	resp, err := p.client.GetExternalAddress()
	if err != nil {
		return nil, fmt.Errorf("nat: pmp external address: %w", err)
	}
	ip := net.IPv4(resp.ExternalIPAddress[0], resp.ExternalIPAddress[1], resp.ExternalIPAddress[2], resp.ExternalIPAddress[3])
	return ip, nil
}

func (p pmpInterface) AddMapping(extPort, intPort int, lifetime time.Duration) error {
	_, err := p.client.AddPortMapping("udp", intPort, extPort, int(lifetime/time.Second))
	if err != nil {
		return fmt.Errorf("nat: pmp add mapping: %w", err)
	}
	return nil
}

func (p pmpInterface) String() string { return fmt.Sprintf("NAT-PMP(%s)", p.gateway) }

func localIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, fmt.Errorf("nat: determine local ip: %w", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

func defaultGateway() (net.IP, error) {
	local, err := localIP()
	if err != nil {
		return nil, err
	}
	gw := make(net.IP, len(local.To4()))
	copy(gw, local.To4())
	gw[3] = 1
	return gw, nil
}
