// Copyright 2017 The go-ethereum Authors
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

// Package eth ties the peer pool, discovery adapter, and block/transaction
// fetchers into the network core: NetworkState drives block-gossip
// propagation and request/response lifecycles from a single task;
// TransactionsManager does the same for the transaction pool.
package eth

import (
	"math"
	"net"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/corenet-chain/corenet/lru"
	"github.com/corenet-chain/corenet/p2p/discovery"
	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/peers"
	"github.com/corenet-chain/corenet/p2p/statefetcher"
	"github.com/corenet-chain/corenet/p2p/wire"
)

// PeerRequest is a request NetworkState hands to an active peer's session
// task over its request_tx channel.
type PeerRequest struct {
	Headers  *wire.GetBlockHeadersRequest
	Bodies   *wire.GetBlockBodiesRequest
	Response chan<- PeerResponse
}

// PeerResponse is what the session task hands back on the one-shot
// Response channel embedded in a PeerRequest.
type PeerResponse struct {
	Headers []*wire.Header
	Bodies  []*wire.Body
	Err     error
}

// pendingRequest is what ActivePeer remembers about the one in-flight
// block request it issued, so a later response (or error) can be routed
// back into StateFetcher correctly.
type pendingRequest struct {
	request  statefetcher.Request
	response <-chan PeerResponse
}

// ActivePeer is the record NetworkState holds while a session is up.
type ActivePeer struct {
	BestHash     common.Hash
	Capabilities wire.Capabilities

	requestTx chan<- PeerRequest
	pending   *pendingRequest
	blocks    *lru.Cache[common.Hash]
}

// StateAction is the set of outcomes NetworkState's poll surface can
// produce. The session-dispatch layer outside this module drains these.
type StateAction interface{ isStateAction() }

// NewBlock instructs the caller to send a full block to peer.
type NewBlock struct {
	Peer  enode.ID
	Block wire.NewBlockMessage
}

// NewBlockHashes instructs the caller to send a hash-only announcement to peer.
type NewBlockHashes struct {
	Peer   enode.ID
	Hashes wire.NewBlockHashes
}

// Connect instructs the caller to dial peer at addr.
type Connect struct {
	Peer enode.ID
	Addr *net.TCPAddr
}

// Disconnect instructs the caller to tear down peer's session.
type Disconnect struct {
	Peer   enode.ID
	Reason *peers.DisconnectReason
}

// DiscoveredEnrForkId surfaces a peer's advertised fork id for external
// validation.
type DiscoveredEnrForkId struct {
	Peer   enode.ID
	ForkID []byte
}

// PeerAdded / PeerRemoved mirror the PeersManager notifications of the
// same name, re-exported as StateActions for the session-dispatch layer.
type PeerAdded struct{ Peer enode.ID }
type PeerRemoved struct{ Peer enode.ID }

func (NewBlock) isStateAction()            {}
func (NewBlockHashes) isStateAction()      {}
func (Connect) isStateAction()             {}
func (Disconnect) isStateAction()          {}
func (DiscoveredEnrForkId) isStateAction() {}
func (PeerAdded) isStateAction()           {}
func (PeerRemoved) isStateAction()         {}

// NetworkState owns the active-peer table and drives block propagation and
// request/response lifecycles. It is only ever touched from one task; none
// of its exported methods are safe to call concurrently with each other.
type NetworkState struct {
	cfg Config
	log log.Logger

	client      ChainReader
	discovery   *discovery.Discovery
	peers       *peers.PeersManager
	fetcher     *statefetcher.StateFetcher
	genesisHash common.Hash

	activePeers map[enode.ID]*ActivePeer
	queued      chan StateAction

	pendingDisconnects []enode.ID
	pendingResponses   []peerResponseEvent

	cmds            chan Command
	activePeerCount *atomic.Int64
	listenAddr      *atomic.Pointer[net.TCPAddr]
	feed            eventFeed
	localStatus     *localStatus
}

// localStatus is the most recently applied StatusUpdateCmd, describing the
// chain head this node advertises during handshakes.
type localStatus struct {
	height          uint64
	hash            common.Hash
	totalDifficulty uint64
}

type peerResponseEvent struct {
	peer enode.ID
	resp PeerResponse
}

// New constructs an empty NetworkState.
func New(cfg Config, client ChainReader, disc *discovery.Discovery, pm *peers.PeersManager, fetcher *statefetcher.StateFetcher, genesisHash common.Hash) *NetworkState {
	return &NetworkState{
		cfg:         cfg,
		log:         log.New("module", "networkstate"),
		client:      client,
		discovery:   disc,
		peers:       pm,
		fetcher:     fetcher,
		genesisHash: genesisHash,
		activePeers: make(map[enode.ID]*ActivePeer),
		queued:      make(chan StateAction, cfg.StateActionQueueSize),
	}
}

// Actions is the poll surface the session-dispatch layer drains.
func (s *NetworkState) Actions() <-chan StateAction {
	return s.queued
}

func (s *NetworkState) emit(a StateAction) {
	select {
	case s.queued <- a:
	default:
		s.log.Warn("state action queue full, dropping action", "action", a)
	}
}

// OnSessionActivated registers a newly established session. Precondition:
// peer is not already active.
func (s *NetworkState) OnSessionActivated(peer enode.ID, caps wire.Capabilities, status wire.Status, requestTx chan<- PeerRequest) {
	if _, ok := s.activePeers[peer]; ok {
		return
	}
	number, _ := s.client.BlockNumber(status.BlockHash)
	s.activePeers[peer] = &ActivePeer{
		BestHash:     status.BlockHash,
		Capabilities: caps,
		requestTx:    requestTx,
		blocks:       lru.New[common.Hash](s.cfg.PeerBlockCacheSize),
	}
	s.fetcher.NewActivePeer(peer, status.BlockHash, number)
	if s.activePeerCount != nil {
		s.activePeerCount.Store(int64(len(s.activePeers)))
	}
	s.feed.send(SessionEstablished{Peer: peer, RequestTx: requestTx})
}

// OnSessionClosed removes peer's ActivePeer record and informs the fetcher.
func (s *NetworkState) OnSessionClosed(peer enode.ID) {
	if _, ok := s.activePeers[peer]; !ok {
		return
	}
	delete(s.activePeers, peer)
	if outcome := s.fetcher.OnSessionClosed(peer); outcome != nil {
		s.onBlockResponseOutcome(outcome)
	}
	if s.activePeerCount != nil {
		s.activePeerCount.Store(int64(len(s.activePeers)))
	}
	s.feed.send(SessionClosed{Peer: peer})
}

// OnNewBlock marks hash as seen by peer. Idempotent.
func (s *NetworkState) OnNewBlock(peer enode.ID, hash common.Hash) {
	ap, ok := s.activePeers[peer]
	if !ok {
		return
	}
	ap.blocks.Insert(hash)
}

// OnNewBlockHashes extends peer's seen-blocks cache with hashes.
func (s *NetworkState) OnNewBlockHashes(peer enode.ID, hashes []wire.BlockHashNumber) {
	ap, ok := s.activePeers[peer]
	if !ok {
		return
	}
	for _, h := range hashes {
		ap.blocks.Insert(h.Hash)
	}
}

// UpdatePeerBlock authoritatively sets peer's best hash, bypassing the
// fetcher's advancement check.
func (s *NetworkState) UpdatePeerBlock(peer enode.ID, hash common.Hash, number uint64) {
	ap, ok := s.activePeers[peer]
	if !ok {
		return
	}
	ap.BestHash = hash
	s.fetcher.UpdatePeerBlock(peer, hash, number)
}

// UpdateForkID forwards a locally computed fork id down to discovery.
func (s *NetworkState) UpdateForkID(forkID []byte) {
	s.discovery.UpdateForkID(forkID)
}

// BanIPDiscovery forwards an outright IP ban to discovery.
func (s *NetworkState) BanIPDiscovery(ip net.IP) {
	s.discovery.BanIP(ip)
}

// BanDiscovery forwards a peer-id ban to discovery.
func (s *NetworkState) BanDiscovery(peer enode.ID, ip net.IP) {
	s.discovery.BanPeerID(peer, ip)
}

// activePeerOrder returns the active-peer ids in a stable, deterministic
// order. The spec leaves peer iteration order implementation-defined; we
// pin a deterministic byte-lexicographic order so propagation fan-out
// (which peers get the full block vs hashes-only) is reproducible across
// runs and in tests, rather than depending on Go's randomised map
// iteration.
func (s *NetworkState) activePeerOrder() []enode.ID {
	ids := make([]enode.ID, 0, len(s.activePeers))
	for id := range s.activePeers {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// AnnounceNewBlock is phase 1 of block-gossip propagation: send the full
// block to up to k = floor(sqrt(|active_peers|))+1 peers that have not yet
// seen it.
func (s *NetworkState) AnnounceNewBlock(msg wire.NewBlockMessage) {
	k := propagationFanout(len(s.activePeers))
	sent := 0
	for _, id := range s.activePeerOrder() {
		if sent >= k {
			return
		}
		ap := s.activePeers[id]
		if ap.blocks.Contains(msg.Hash) {
			continue
		}
		s.emit(NewBlock{Peer: id, Block: msg})
		if s.fetcher.UpdatePeerBlock(id, msg.Hash, msg.Block.Header.Number) {
			ap.BestHash = msg.Hash
		}
		ap.blocks.Insert(msg.Hash)
		sent++
	}
}

// AnnounceNewBlockHash is phase 2: after phase 1 dispatchers complete,
// broadcast a hash-only announcement to every remaining active peer that
// still lacks the hash. It does not insert into the peer's cache — that is
// left to a subsequent OnNewBlock/OnNewBlockHashes confirmation.
func (s *NetworkState) AnnounceNewBlockHash(hash common.Hash, number uint64) {
	for _, id := range s.activePeerOrder() {
		ap := s.activePeers[id]
		if ap.blocks.Contains(hash) {
			continue
		}
		if s.fetcher.UpdatePeerBlock(id, hash, number) {
			ap.BestHash = hash
		}
		s.emit(NewBlockHashes{Peer: id, Hashes: wire.NewBlockHashes{{Hash: hash, Number: number}}})
	}
}

// propagationFanout computes floor(sqrt(n))+1, the standard sqrt-fanout
// used for both block and transaction gossip.
func propagationFanout(n int) int {
	return int(math.Sqrt(float64(n))) + 1
}

// HandleBlockRequest dispatches a fetcher-issued request to peer's session.
// If peer is inactive the request is dropped silently; neither NetworkState
// nor the fetcher times out a dropped request.
func (s *NetworkState) HandleBlockRequest(peer enode.ID, req statefetcher.Request) {
	ap, ok := s.activePeers[peer]
	if !ok {
		return
	}
	respCh := make(chan PeerResponse, 1)
	pr := PeerRequest{Response: respCh}
	switch r := req.(type) {
	case statefetcher.HeadersRequest:
		h := r.GetBlockHeadersRequest
		pr.Headers = &h
	case statefetcher.BodiesRequest:
		b := r.GetBlockBodiesRequest
		pr.Bodies = &b
	default:
		return
	}

	select {
	case ap.requestTx <- pr:
	default:
		// Session congested or dead; swallowed, its own error path will
		// eventually tear it down.
	}
	ap.pending = &pendingRequest{request: req, response: respCh}
}

// OnEthResponse dispatches a response received from peer into the
// fetcher's classification logic and processes any resulting outcome.
func (s *NetworkState) OnEthResponse(peer enode.ID, resp PeerResponse) {
	ap, ok := s.activePeers[peer]
	if !ok || ap.pending == nil {
		return
	}
	req := ap.pending.request
	ap.pending = nil

	var outcome statefetcher.Outcome
	switch req.(type) {
	case statefetcher.HeadersRequest:
		outcome = s.fetcher.OnBlockHeadersResponse(peer, statefetcher.HeadersResult{Headers: resp.Headers, Err: resp.Err})
	case statefetcher.BodiesRequest:
		outcome = s.fetcher.OnBlockBodiesResponse(peer, statefetcher.BodiesResult{Bodies: resp.Bodies, Err: resp.Err})
	}
	if outcome != nil {
		s.onBlockResponseOutcome(outcome)
	}
}

func (s *NetworkState) onBlockResponseOutcome(outcome statefetcher.Outcome) {
	switch o := outcome.(type) {
	case statefetcher.Retry:
		// The fetcher has already re-queued the request internally (see
		// StateFetcher.removePeer); it will be dispatched to the next idle
		// peer on a subsequent Poll, so there is nothing further to do
		// here beyond making the event visible.
		s.log.Debug("fetch request requeued after peer loss", "peer", o.Peer)
	case statefetcher.BadResponse:
		s.peers.ApplyReputationChange(o.Peer, o.Change)
	}
}

// onDiscoveryEvent translates one discovery.Event into peer-table or
// StateAction side effects.
func (s *NetworkState) onDiscoveryEvent(ev discovery.Event) {
	switch e := ev.(type) {
	case discovery.Discovered:
		s.peers.AddDiscoveredNode(e.Node.ID, e.Node.TCPEndpoint())
	case discovery.EnrForkId:
		s.emit(DiscoveredEnrForkId{Peer: e.Peer, ForkID: e.ForkID})
	}
}

// onPeerAction translates one peers.PeerAction per the dispatch table in
// §4.E of the spec.
func (s *NetworkState) onPeerAction(a peers.PeerAction) {
	switch act := a.(type) {
	case peers.Connect:
		s.emit(Connect{Peer: act.Peer, Addr: act.Addr})
	case peers.Disconnect:
		if outcome := s.fetcher.OnPendingDisconnect(act.Peer); outcome != nil {
			s.onBlockResponseOutcome(outcome)
		}
		var reason *peers.DisconnectReason
		if act.Reason != nil {
			reason = act.Reason
		}
		s.emit(Disconnect{Peer: act.Peer, Reason: reason})
	case peers.DisconnectBannedIncoming:
		if outcome := s.fetcher.OnPendingDisconnect(act.Peer); outcome != nil {
			s.onBlockResponseOutcome(outcome)
		}
		s.emit(Disconnect{Peer: act.Peer, Reason: nil})
	case peers.DiscoveryBanPeerID:
		s.BanDiscovery(act.Peer, act.IP)
	case peers.DiscoveryBanIP:
		s.BanIPDiscovery(act.IP)
	case peers.PeerAdded:
		s.emit(PeerAdded{Peer: act.Peer})
	case peers.PeerRemoved:
		s.emit(PeerRemoved{Peer: act.Peer})
	case peers.BanPeer, peers.UnBanPeer:
		// No-op at this layer; the session-dispatch layer handles these
		// directly if it cares.
	}
}

// Poll runs one pass of the cooperative scheduler: drain discovery events,
// fetcher dispatch actions, pending peer responses, and peer actions, in
// that order. It should be called repeatedly by the owning task (e.g. in a
// select-driven run loop) whenever any of its inputs may have new data.
func (s *NetworkState) Poll() {
	s.peers.DrainHandleRequests()
	s.fetcher.Poll()

	if s.discovery != nil {
		for {
			select {
			case ev, ok := <-s.discovery.Events():
				if !ok {
					goto fetchActions
				}
				s.onDiscoveryEvent(ev)
			default:
				goto fetchActions
			}
		}
	}

fetchActions:
	for {
		select {
		case act := <-s.fetcher.Actions():
			s.HandleBlockRequest(act.Peer, act.Request)
		default:
			goto responses
		}
	}

responses:
	s.pollPendingResponses()
	s.applyQueuedDisconnectsAndResponses()

	for {
		select {
		case a := <-s.peers.Actions():
			s.onPeerAction(a)
		default:
			return
		}
	}
}

// pollPendingResponses polls every active peer's one-shot response
// receiver once without blocking, buffering results so the peer map isn't
// mutated while being ranged over.
func (s *NetworkState) pollPendingResponses() {
	for id, ap := range s.activePeers {
		if ap.pending == nil {
			continue
		}
		select {
		case resp, ok := <-ap.pending.response:
			if !ok || resp.Err != nil {
				s.pendingDisconnects = append(s.pendingDisconnects, id)
				continue
			}
			s.pendingResponses = append(s.pendingResponses, peerResponseEvent{peer: id, resp: resp})
		default:
		}
	}
}

func (s *NetworkState) applyQueuedDisconnectsAndResponses() {
	for _, id := range s.pendingDisconnects {
		s.emit(Disconnect{Peer: id, Reason: nil})
	}
	s.pendingDisconnects = s.pendingDisconnects[:0]

	for _, ev := range s.pendingResponses {
		s.OnEthResponse(ev.peer, ev.resp)
	}
	s.pendingResponses = s.pendingResponses[:0]
}
