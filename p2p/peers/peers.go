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

// Package peers implements the pool of known peers: which ones we should
// dial next, and the connect/disconnect/ban decisions that fall out of
// reputation changes reported by the rest of the network core.
package peers

import (
	"net"

	"github.com/ethereum/go-ethereum/log"

	"github.com/corenet-chain/corenet/p2p/enode"
)

// DisconnectReason is an optional, human-meaningful reason attached to a
// Disconnect action. A nil reason means "no reason given" (e.g. the remote
// dropped us, or we're tearing the session down for internal bookkeeping
// only).
type DisconnectReason string

const (
	DisconnectRequested       DisconnectReason = "requested"
	DisconnectTooManyPeers    DisconnectReason = "too many peers"
	DisconnectUselessPeer     DisconnectReason = "useless peer"
	DisconnectProtocolError   DisconnectReason = "protocol error"
	DisconnectBadReputation   DisconnectReason = "bad reputation"
)

// PeerAction is the set of outcomes the PeersManager's poll surface can
// produce. NetworkState drains these and reacts per the dispatch table in
// its own documentation.
type PeerAction interface{ isPeerAction() }

// Connect instructs the caller to dial a newly discovered or re-attempted peer.
type Connect struct {
	Peer enode.ID
	Addr *net.TCPAddr
}

// Disconnect instructs the caller to tear down an existing session.
type Disconnect struct {
	Peer   enode.ID
	Reason *DisconnectReason
}

// DisconnectBannedIncoming instructs the caller to drop an inbound
// connection attempt from a peer that is currently banned.
type DisconnectBannedIncoming struct {
	Peer enode.ID
}

// DiscoveryBanPeerID instructs the caller to ban this peer id (and the IP
// it was last seen at) at the discovery layer.
type DiscoveryBanPeerID struct {
	Peer enode.ID
	IP   net.IP
}

// DiscoveryBanIP instructs the caller to ban an IP address outright at the
// discovery layer, independent of peer identity.
type DiscoveryBanIP struct {
	IP net.IP
}

// PeerAdded reports that a peer entered the known-peers table.
type PeerAdded struct{ Peer enode.ID }

// PeerRemoved reports that a peer left the known-peers table because it was
// evicted for capacity. A banned peer stays in the table and is reported
// with BanPeer instead.
type PeerRemoved struct{ Peer enode.ID }

// BanPeer and UnBanPeer are bookkeeping-only signals; NetworkState treats
// them as no-ops (see its PeerAction dispatch table) but some other layer
// downstream (e.g. the wire/session dispatcher) may care, so the manager
// still emits them.
type BanPeer struct{ Peer enode.ID }
type UnBanPeer struct{ Peer enode.ID }

func (Connect) isPeerAction()                  {}
func (Disconnect) isPeerAction()               {}
func (DisconnectBannedIncoming) isPeerAction() {}
func (DiscoveryBanPeerID) isPeerAction()       {}
func (DiscoveryBanIP) isPeerAction()           {}
func (PeerAdded) isPeerAction()                {}
func (PeerRemoved) isPeerAction()              {}
func (BanPeer) isPeerAction()                  {}
func (UnBanPeer) isPeerAction()                {}

// peerState tracks where a known peer sits in the connection lifecycle.
type peerState int

const (
	stateIdle peerState = iota
	stateConnecting
	stateConnected
	stateBanned
)

type knownPeer struct {
	id         enode.ID
	addr       *net.TCPAddr
	state      peerState
	reputation int
}

// Config bounds the PeersManager's resource usage and dial behavior.
type Config struct {
	// MaxKnownPeers is the known-peers table size at which the oldest idle
	// entry is evicted to make room for a newly discovered one. If no entry
	// is idle nothing is evicted and the table grows past this size;
	// MarkConnected adds unknown peers without evicting.
	MaxKnownPeers int
	// MaxOutboundDials bounds how many Connect actions may be outstanding
	// (peers in stateConnecting) at once.
	MaxOutboundDials int
	// BanThreshold is the reputation score at or below which a peer is
	// disconnected and banned.
	BanThreshold int
	// ActionQueueSize bounds the buffered PeerAction channel.
	ActionQueueSize int
}

// DefaultConfig mirrors the scale of a single Ethereum execution-layer
// client's peer table: room for several thousand candidates, a modest
// number of simultaneous outbound dials, and a ban threshold tuned against
// the ReputationChangeKind weights in reputation.go.
var DefaultConfig = Config{
	MaxKnownPeers:    2048,
	MaxOutboundDials: 25,
	BanThreshold:     -1024,
	ActionQueueSize:  4096,
}

// PeersManager is the pool of known peers: it decides who to connect to
// next and surfaces connect/disconnect/ban decisions as a stream of
// PeerAction values. It is only ever driven from NetworkState's single
// task; none of its exported methods are safe to call concurrently with
// each other.
type PeersManager struct {
	cfg   Config
	log   log.Logger
	order []enode.ID // insertion order, for idle eviction
	known map[enode.ID]*knownPeer

	outbound int
	actions  chan PeerAction
	adds     chan addPeerRequest
}

// New creates an empty PeersManager.
func New(cfg Config) *PeersManager {
	return &PeersManager{
		cfg:     cfg,
		log:     log.New("module", "peers"),
		known:   make(map[enode.ID]*knownPeer),
		actions: make(chan PeerAction, cfg.ActionQueueSize),
	}
}

// Actions is the poll surface: NetworkState drains this channel exhaustively
// (non-blocking) on every pass of its own event loop.
func (m *PeersManager) Actions() <-chan PeerAction {
	return m.actions
}

func (m *PeersManager) emit(a PeerAction) {
	select {
	case m.actions <- a:
	default:
		m.log.Warn("peer action queue full, dropping action", "action", a)
	}
}

// AddDiscoveredNode registers a newly discovered node and, capacity
// permitting, queues a Connect action for it. If the node is already
// banned, a DisconnectBannedIncoming action is queued instead — this is how
// a repeat discovery/inbound sighting of a banned peer is rejected.
func (m *PeersManager) AddDiscoveredNode(id enode.ID, addr *net.TCPAddr) {
	if kp, ok := m.known[id]; ok {
		if kp.state == stateBanned {
			m.emit(DisconnectBannedIncoming{Peer: id})
			return
		}
		kp.addr = addr
		m.maybeDial(kp)
		return
	}

	m.evictIfFull()
	kp := &knownPeer{id: id, addr: addr, state: stateIdle}
	m.known[id] = kp
	m.order = append(m.order, id)
	m.emit(PeerAdded{Peer: id})
	m.maybeDial(kp)
}

func (m *PeersManager) maybeDial(kp *knownPeer) {
	if kp.state != stateIdle || kp.addr == nil {
		return
	}
	if m.outbound >= m.cfg.MaxOutboundDials {
		return
	}
	kp.state = stateConnecting
	m.outbound++
	m.emit(Connect{Peer: kp.id, Addr: kp.addr})
}

// evictIfFull drops the oldest idle known peer to make room for a new one.
func (m *PeersManager) evictIfFull() {
	if len(m.known) < m.cfg.MaxKnownPeers {
		return
	}
	for i, id := range m.order {
		kp, ok := m.known[id]
		if !ok {
			continue
		}
		if kp.state == stateIdle {
			delete(m.known, id)
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			m.emit(PeerRemoved{Peer: id})
			return
		}
	}
}

// ApplyReputationChange adjusts id's reputation score by the weight of
// kind. Crossing the ban threshold tears down any active session, bans the
// peer at the discovery layer, and marks it banned in the known-peers
// table.
func (m *PeersManager) ApplyReputationChange(id enode.ID, kind ReputationChangeKind) {
	kp, ok := m.known[id]
	if !ok {
		return
	}
	if kind == Reset {
		kp.reputation = 0
		return
	}
	kp.reputation += kind.weight()
	if kp.reputation > m.cfg.BanThreshold {
		return
	}
	if kp.state == stateBanned {
		return
	}
	if kp.state == stateConnecting {
		m.outbound--
	}
	wasConnected := kp.state == stateConnected
	kp.state = stateBanned
	if wasConnected {
		m.emit(Disconnect{Peer: id, Reason: nil})
	}
	if kp.addr != nil {
		m.emit(DiscoveryBanPeerID{Peer: id, IP: kp.addr.IP})
	}
	m.emit(BanPeer{Peer: id})
}

// MarkConnected records that a session for id is now active, so later
// reputation changes for it trigger a real Disconnect rather than a silent
// drop. NetworkState.OnSessionActivated does not call it; a peer unknown
// to the table is added in the connected state.
func (m *PeersManager) MarkConnected(id enode.ID) {
	kp, ok := m.known[id]
	if !ok {
		kp = &knownPeer{id: id, state: stateConnected}
		m.known[id] = kp
		m.order = append(m.order, id)
		return
	}
	if kp.state == stateConnecting {
		m.outbound--
	}
	kp.state = stateConnected
}

// MarkDisconnected returns id to the idle state so it becomes eligible for
// future dials again.
func (m *PeersManager) MarkDisconnected(id enode.ID) {
	kp, ok := m.known[id]
	if !ok {
		return
	}
	if kp.state == stateBanned {
		return
	}
	if kp.state == stateConnecting {
		m.outbound--
	}
	kp.state = stateIdle
}

// IsBanned reports whether id is currently banned.
func (m *PeersManager) IsBanned(id enode.ID) bool {
	kp, ok := m.known[id]
	return ok && kp.state == stateBanned
}

// UnBan clears id's banned status, returning it to idle.
func (m *PeersManager) UnBan(id enode.ID) {
	kp, ok := m.known[id]
	if !ok || kp.state != stateBanned {
		return
	}
	kp.state = stateIdle
	kp.reputation = 0
	m.emit(UnBanPeer{Peer: id})
}

// Handle returns a cheap, thread-safe-to-call frontend that can be handed
// to code running outside NetworkState's task (e.g. an admin RPC surface)
// to add statically configured peers.
func (m *PeersManager) Handle() *Handle {
	return &Handle{manager: m, addCh: m.addCh()}
}

// addCh lazily creates (once) the channel backing the Handle's AddPeer.
func (m *PeersManager) addCh() chan<- addPeerRequest {
	if m.adds == nil {
		m.adds = make(chan addPeerRequest, 256)
	}
	return m.adds
}

type addPeerRequest struct {
	id   enode.ID
	addr *net.TCPAddr
}

// Handle is the cheap-to-clone, cross-thread-safe frontend for PeersManager.
// It never mutates PeersManager state directly; it queues requests that
// NetworkState's single task drains via DrainHandleRequests.
type Handle struct {
	manager *PeersManager
	addCh   chan<- addPeerRequest
}

// AddPeer requests that id/addr be added to the known-peers table. The
// request is queued and processed on NetworkState's task.
func (h *Handle) AddPeer(id enode.ID, addr *net.TCPAddr) {
	select {
	case h.addCh <- addPeerRequest{id: id, addr: addr}:
	default:
	}
}

// DrainHandleRequests processes every AddPeer request queued by Handles
// since the last call. NetworkState calls this once per event-loop pass.
func (m *PeersManager) DrainHandleRequests() {
	if m.adds == nil {
		return
	}
	for {
		select {
		case req := <-m.adds:
			m.AddDiscoveredNode(req.id, req.addr)
		default:
			return
		}
	}
}
