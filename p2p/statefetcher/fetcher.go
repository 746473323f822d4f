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

// Package statefetcher serialises block-header and block-body fetch
// requests onto eligible peers, one outstanding request per peer, and
// classifies responses as good, retriable elsewhere, or bad.
package statefetcher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/peers"
	"github.com/corenet-chain/corenet/p2p/wire"
)

// Request is a block-data request ready to hand to a specific peer's
// session. It is either a headers or a bodies request.
type Request interface{ isRequest() }

// HeadersRequest asks a peer for a run of block headers.
type HeadersRequest struct {
	wire.GetBlockHeadersRequest
}

// BodiesRequest asks a peer for a set of block bodies.
type BodiesRequest struct {
	wire.GetBlockBodiesRequest
}

func (HeadersRequest) isRequest() {}
func (BodiesRequest) isRequest()  {}

// HeadersResult is the outcome of a headers request: either a payload or an
// error (timeout, disconnect, malformed response).
type HeadersResult struct {
	Headers []*wire.Header
	Err     error
}

// BodiesResult is the outcome of a bodies request.
type BodiesResult struct {
	Bodies []*wire.Body
	Err    error
}

// Action is the single variant the fetcher's poll surface currently
// produces: dispatch request to peer.
type Action struct {
	Peer    enode.ID
	Request Request
}

// Outcome classifies a processed response.
type Outcome interface{ isOutcome() }

// Retry means the response was unusable (e.g. the session died) and the
// same logical request should be re-issued, possibly to a different peer.
type Retry struct {
	Peer    enode.ID
	Request Request
}

// BadResponse means the peer sent a response that fails validation and
// should be penalised.
type BadResponse struct {
	Peer   enode.ID
	Change peers.ReputationChangeKind
}

func (Retry) isOutcome()       {}
func (BadResponse) isOutcome() {}

// requestKind distinguishes headers vs bodies jobs without a type switch at
// every call site.
type requestKind int

const (
	kindHeaders requestKind = iota
	kindBodies
)

// job is an in-flight (or pending) block-data fetch: the request itself and
// the channel that carries the result back to the original FetchClient
// caller. The peer serving it is tracked by that peer's fetcherPeer.current.
type job struct {
	kind     requestKind
	request  Request
	headersC chan<- HeadersResult
	bodiesC  chan<- BodiesResult
}

// fetcherPeer is the bookkeeping StateFetcher keeps per active peer slot.
type fetcherPeer struct {
	bestHash   common.Hash
	bestNumber uint64
	current    *job // nil if idle
}

// StateFetcher serialises fetch requests onto peers with an idle slot.
type StateFetcher struct {
	log   log.Logger
	peers map[enode.ID]*fetcherPeer
	idle  []enode.ID

	pending []*job
	actions chan Action
	submit  chan *job
}

// New creates an empty StateFetcher. actionQueueSize bounds the buffered
// dispatch-action channel.
func New(actionQueueSize int) *StateFetcher {
	return &StateFetcher{
		log:     log.New("module", "statefetcher"),
		peers:   make(map[enode.ID]*fetcherPeer),
		actions: make(chan Action, actionQueueSize),
		submit:  make(chan *job, actionQueueSize),
	}
}

// NewActivePeer registers an idle fetcher slot for peer.
func (f *StateFetcher) NewActivePeer(peer enode.ID, bestHash common.Hash, bestNumber uint64) {
	f.peers[peer] = &fetcherPeer{bestHash: bestHash, bestNumber: bestNumber}
	f.idle = append(f.idle, peer)
}

// OnSessionClosed invalidates peer's slot. If a request was in flight on
// this peer, it is re-queued for dispatch to the next idle peer and a
// Retry outcome is returned so the caller can account for it; the
// original FetchClient caller's result channel is left attached to the
// re-queued job rather than abandoned, so a later response still
// completes it instead of blocking forever.
func (f *StateFetcher) OnSessionClosed(peer enode.ID) Outcome {
	return f.removePeer(peer)
}

// OnPendingDisconnect is used when a disconnect has been decided but the
// session teardown hasn't completed yet; it behaves the same as
// OnSessionClosed from the fetcher's point of view.
func (f *StateFetcher) OnPendingDisconnect(peer enode.ID) Outcome {
	return f.removePeer(peer)
}

func (f *StateFetcher) removePeer(peer enode.ID) Outcome {
	p, ok := f.peers[peer]
	delete(f.peers, peer)
	for i, id := range f.idle {
		if id == peer {
			f.idle = append(f.idle[:i:i], f.idle[i+1:]...)
			break
		}
	}
	if !ok || p.current == nil {
		return nil
	}
	j := p.current
	p.current = nil
	f.pending = append(f.pending, j)
	return Retry{Peer: peer, Request: j.request}
}

// UpdatePeerBlock updates peer's known head. It reports whether the update
// strictly advances what was previously known for this peer (by block
// number); the caller uses that to decide whether to also update the
// peer's best_hash.
func (f *StateFetcher) UpdatePeerBlock(peer enode.ID, hash common.Hash, number uint64) bool {
	p, ok := f.peers[peer]
	if !ok {
		return false
	}
	if number <= p.bestNumber {
		return false
	}
	p.bestHash, p.bestNumber = hash, number
	return true
}

// Client returns a new FetchClient, the caller-side sender of fetch
// requests.
func (f *StateFetcher) Client() *FetchClient {
	return &FetchClient{submit: f.submit}
}

// Actions is the poll surface NetworkState drains each event-loop pass.
func (f *StateFetcher) Actions() <-chan Action {
	return f.actions
}

// Poll pulls any newly submitted jobs off the submit channel and, as long
// as there's an idle peer available, dispatches them. It must be called
// from the same single task that owns the rest of StateFetcher's state.
func (f *StateFetcher) Poll() {
	for {
		select {
		case j := <-f.submit:
			f.pending = append(f.pending, j)
		default:
			goto dispatch
		}
	}
dispatch:
	for len(f.pending) > 0 && len(f.idle) > 0 {
		j := f.pending[0]
		f.pending = f.pending[1:]
		peer := f.idle[0]
		f.idle = f.idle[1:]

		p := f.peers[peer]
		p.current = j
		f.dispatch(peer, j)
	}
}

func (f *StateFetcher) dispatch(peer enode.ID, j *job) {
	select {
	case f.actions <- Action{Peer: peer, Request: j.request}:
	default:
		f.log.Warn("fetch action queue full, dropping dispatch", "peer", peer)
	}
}

// OnBlockHeadersResponse classifies a headers response from peer. It
// forwards the payload to the original FetchClient caller and returns an
// Outcome describing what NetworkState should do next, or nil if nothing
// further is required (the common, successful case).
func (f *StateFetcher) OnBlockHeadersResponse(peer enode.ID, result HeadersResult) Outcome {
	p, ok := f.peers[peer]
	if !ok || p.current == nil {
		return nil
	}
	j := p.current
	p.current = nil
	f.idle = append(f.idle, peer)

	if j.headersC != nil {
		j.headersC <- result
	}
	if result.Err != nil {
		return BadResponse{Peer: peer, Change: peers.BadResponse}
	}
	return nil
}

// OnBlockBodiesResponse classifies a bodies response from peer, with the
// same contract as OnBlockHeadersResponse.
func (f *StateFetcher) OnBlockBodiesResponse(peer enode.ID, result BodiesResult) Outcome {
	p, ok := f.peers[peer]
	if !ok || p.current == nil {
		return nil
	}
	j := p.current
	p.current = nil
	f.idle = append(f.idle, peer)

	if j.bodiesC != nil {
		j.bodiesC <- result
	}
	if result.Err != nil {
		return BadResponse{Peer: peer, Change: peers.BadResponse}
	}
	return nil
}

// FetchClient is the caller-side handle used to submit fetch requests
// without knowing which peer will service them; StateFetcher picks the
// peer.
type FetchClient struct {
	submit chan<- *job
}

// GetBlockHeaders submits a headers request and returns a channel that
// receives exactly one HeadersResult once a peer has been assigned and has
// responded. If the session serving it closes first, the request is
// requeued and the result comes from the next peer that answers it.
func (c *FetchClient) GetBlockHeaders(req wire.GetBlockHeadersRequest) <-chan HeadersResult {
	ch := make(chan HeadersResult, 1)
	c.submit <- &job{kind: kindHeaders, request: HeadersRequest{req}, headersC: ch}
	return ch
}

// GetBlockBodies submits a bodies request, with the same contract as
// GetBlockHeaders.
func (c *FetchClient) GetBlockBodies(req wire.GetBlockBodiesRequest) <-chan BodiesResult {
	ch := make(chan BodiesResult, 1)
	c.submit <- &job{kind: kindBodies, request: BodiesRequest{req}, bodiesC: ch}
	return ch
}
