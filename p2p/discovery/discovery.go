// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package discovery adapts an external node-discovery stream (the wire
// codec and transport are out of scope here, see spec Non-goals) into the
// typed events NetworkState consumes, and forwards the bans NetworkState
// decides on back down into that stream.
package discovery

import (
	"net"

	"github.com/ethereum/go-ethereum/log"

	"github.com/corenet-chain/corenet/p2p/enode"
)

// Event is a typed notification surfaced from the underlying discovery
// protocol.
type Event interface{ isEvent() }

// Discovered reports a newly found or refreshed node record.
type Discovered struct {
	Node enode.NodeRecord
}

// EnrForkId reports a peer's advertised fork identifier, extracted from its
// node record's ENR "eth" entry. Opaque to this package; NetworkState
// forwards it to the client for validation.
type EnrForkId struct {
	Peer  enode.ID
	ForkID []byte
}

func (Discovered) isEvent()  {}
func (EnrForkId) isEvent()   {}

// Source is the minimal surface a concrete discovery implementation
// (discv4, discv5, static list, ...) must provide. Its wire codec and
// transport are intentionally opaque to this package.
type Source interface {
	// Events returns the channel the source publishes Event values on.
	Events() <-chan Event
	// BanPeerID instructs the source to stop returning/redialing id, and
	// to additionally ban the IP it was last seen at.
	BanPeerID(id enode.ID, ip net.IP)
	// BanIP instructs the source to ban ip outright, independent of peer
	// identity.
	BanIP(ip net.IP)
	// UpdateForkID forwards a locally-computed fork identifier so the
	// source can advertise it in its own ENR.
	UpdateForkID(forkID []byte)
}

// Discovery adapts a Source into the fixed Event surface NetworkState
// drains, and is the single place ban/fork-id commands flow back down.
type Discovery struct {
	log    log.Logger
	source Source
}

// New wraps source. A nil source is valid and makes Discovery an inert
// adapter (Events never fires, bans are no-ops) — useful for tests and for
// configurations that run without peer discovery (static peers only).
func New(source Source) *Discovery {
	return &Discovery{log: log.New("module", "discovery"), source: source}
}

// Events returns the channel NetworkState drains for Discovered and
// EnrForkId notifications.
func (d *Discovery) Events() <-chan Event {
	if d.source == nil {
		return nil
	}
	return d.source.Events()
}

// BanPeerID forwards a peer-id ban to the underlying source, corresponding
// to NetworkState's ban_discovery.
func (d *Discovery) BanPeerID(id enode.ID, ip net.IP) {
	if d.source == nil {
		return
	}
	d.source.BanPeerID(id, ip)
}

// BanIP forwards an IP ban to the underlying source, corresponding to
// NetworkState's ban_ip_discovery.
func (d *Discovery) BanIP(ip net.IP) {
	if d.source == nil {
		return
	}
	d.source.BanIP(ip)
}

// UpdateForkID forwards a fork-id update, corresponding to NetworkState's
// update_fork_id.
func (d *Discovery) UpdateForkID(forkID []byte) {
	if d.source == nil {
		return
	}
	d.source.UpdateForkID(forkID)
}
