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

package eth

import (
	"net"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/peers"
	"github.com/corenet-chain/corenet/p2p/statefetcher"
	"github.com/corenet-chain/corenet/p2p/wire"
)

// Command is the set of operations NetworkHandle funnels into
// NetworkState's single task.
type Command interface{ isCommand() }

// AddPeerAddress statically registers a peer address for dialing.
type AddPeerAddress struct {
	Peer enode.ID
	Addr *net.TCPAddr
}

// DisconnectPeerCmd requests an active session be torn down.
type DisconnectPeerCmd struct {
	Peer   enode.ID
	Reason *peers.DisconnectReason
}

// EventListenerCmd registers sink to receive every subsequent NetworkEvent.
type EventListenerCmd struct {
	Sink chan<- NetworkEvent
}

// AnnounceBlockCmd requests full-block gossip propagation.
type AnnounceBlockCmd struct {
	Block wire.NewBlockMessage
}

// SendTransactionCmd requests a transaction be handed to TransactionsManager
// for propagation (relayed via TransactionsHandle in practice; exposed here
// for parity with the spec's NetworkHandle command list).
type SendTransactionCmd struct {
	Hash common.Hash
}

// SendPooledTransactionHashesCmd requests a NewPooledTransactionHashes
// announcement be sent to peer.
type SendPooledTransactionHashesCmd struct {
	Peer   enode.ID
	Hashes []common.Hash
}

// EthRequestCmd dispatches an explicit block-data request to peer, bypassing
// the fetcher's own peer selection (used by callers that already know which
// peer to ask).
type EthRequestCmd struct {
	Peer    enode.ID
	Request statefetcher.Request
}

// ReputationChangeCmd applies a reputation change to peer.
type ReputationChangeCmd struct {
	Peer   enode.ID
	Change peers.ReputationChangeKind
}

// FetchClientCmd asks NetworkState to hand back a statefetcher.FetchClient
// over reply.
type FetchClientCmd struct {
	Reply chan<- *statefetcher.FetchClient
}

// StatusUpdateCmd updates the locally advertised chain status.
type StatusUpdateCmd struct {
	Height          uint64
	Hash            common.Hash
	TotalDifficulty uint64
}

// PeerInfo is a read-only diagnostic snapshot of one active peer, the
// corenet analogue of the teacher's eth/peer.go PeerInfo.
type PeerInfo struct {
	Peer         enode.ID
	Capabilities wire.Capabilities
	BestHash     common.Hash
}

// PeerByIDCmd asks NetworkState for a snapshot of one active peer.
type PeerByIDCmd struct {
	Peer  enode.ID
	Reply chan<- *PeerInfo
}

// AllPeersCmd asks NetworkState for a snapshot of every active peer.
type AllPeersCmd struct {
	Reply chan<- []*PeerInfo
}

func (AddPeerAddress) isCommand()                {}
func (DisconnectPeerCmd) isCommand()              {}
func (EventListenerCmd) isCommand()               {}
func (AnnounceBlockCmd) isCommand()               {}
func (SendTransactionCmd) isCommand()             {}
func (SendPooledTransactionHashesCmd) isCommand() {}
func (EthRequestCmd) isCommand()                  {}
func (ReputationChangeCmd) isCommand()            {}
func (FetchClientCmd) isCommand()                 {}
func (StatusUpdateCmd) isCommand()                {}
func (PeerByIDCmd) isCommand()                    {}
func (AllPeersCmd) isCommand()                    {}

// NetworkEvent is broadcast to every EventListener subscriber.
type NetworkEvent interface{ isNetworkEvent() }

// SessionEstablished reports a newly active session, mirroring the input
// TransactionsManager consumes from network_events.
type SessionEstablished struct {
	Peer      enode.ID
	RequestTx chan<- PeerRequest
}

// SessionClosed reports a session going down.
type SessionClosed struct{ Peer enode.ID }

func (SessionEstablished) isNetworkEvent() {}
func (SessionClosed) isNetworkEvent()      {}

// NetworkHandle is the cheap-to-clone, cross-thread-safe frontend for
// NetworkState. Every exported method either sends on cmds or reads the
// shared atomics; none touches NetworkState's other fields.
type NetworkHandle struct {
	cmds        chan<- Command
	activePeers *atomic.Int64
	listenAddr  *atomic.Pointer[net.TCPAddr]
}

// newHandle constructs a NetworkHandle bound to cmds. Unexported: only
// NetworkState (via its Handle method, see run.go) constructs these, so
// every handle shares the same atomics for active-peer count and listener
// address.
func newHandle(cmds chan<- Command, activePeers *atomic.Int64, listenAddr *atomic.Pointer[net.TCPAddr]) *NetworkHandle {
	return &NetworkHandle{cmds: cmds, activePeers: activePeers, listenAddr: listenAddr}
}

func (h *NetworkHandle) send(c Command) {
	select {
	case h.cmds <- c:
	default:
	}
}

// AddPeerAddress registers addr for peer, queuing a dial attempt.
func (h *NetworkHandle) AddPeerAddress(peer enode.ID, addr *net.TCPAddr) {
	h.send(AddPeerAddress{Peer: peer, Addr: addr})
}

// DisconnectPeer tears down peer's session, if any.
func (h *NetworkHandle) DisconnectPeer(peer enode.ID, reason *peers.DisconnectReason) {
	h.send(DisconnectPeerCmd{Peer: peer, Reason: reason})
}

// EventListener subscribes sink to every subsequent NetworkEvent via an
// event.Feed-backed subscription.
func (h *NetworkHandle) EventListener(sink chan<- NetworkEvent) {
	h.send(EventListenerCmd{Sink: sink})
}

// AnnounceBlock requests full-block gossip propagation of block.
func (h *NetworkHandle) AnnounceBlock(block wire.NewBlockMessage) {
	h.send(AnnounceBlockCmd{Block: block})
}

// SendTransaction requests propagation of a single transaction hash.
func (h *NetworkHandle) SendTransaction(hash common.Hash) {
	h.send(SendTransactionCmd{Hash: hash})
}

// SendPooledTransactionHashes announces hashes to peer.
func (h *NetworkHandle) SendPooledTransactionHashes(peer enode.ID, hashes []common.Hash) {
	h.send(SendPooledTransactionHashesCmd{Peer: peer, Hashes: hashes})
}

// EthRequest dispatches req to peer.
func (h *NetworkHandle) EthRequest(peer enode.ID, req statefetcher.Request) {
	h.send(EthRequestCmd{Peer: peer, Request: req})
}

// ReputationChange applies change to peer.
func (h *NetworkHandle) ReputationChange(peer enode.ID, change peers.ReputationChangeKind) {
	h.send(ReputationChangeCmd{Peer: peer, Change: change})
}

// FetchClient asynchronously returns a statefetcher.FetchClient over the
// returned channel.
func (h *NetworkHandle) FetchClient() <-chan *statefetcher.FetchClient {
	reply := make(chan *statefetcher.FetchClient, 1)
	h.send(FetchClientCmd{Reply: reply})
	return reply
}

// StatusUpdate updates the locally advertised chain status.
func (h *NetworkHandle) StatusUpdate(height uint64, hash common.Hash, totalDifficulty uint64) {
	h.send(StatusUpdateCmd{Height: height, Hash: hash, TotalDifficulty: totalDifficulty})
}

// NumActivePeers returns the advisory, monotone-per-event active peer
// count, updated by NetworkState's OnSessionActivated and OnSessionClosed.
func (h *NetworkHandle) NumActivePeers() int64 {
	return h.activePeers.Load()
}

// ListenAddr returns the locally bound listen address, or nil if not yet
// known.
func (h *NetworkHandle) ListenAddr() *net.TCPAddr {
	return h.listenAddr.Load()
}

// PeerByID asynchronously returns a snapshot of peer's state over the
// returned channel, or nil if it has no active session. Mirrors
// FetchClient's non-blocking-send-then-receive shape: if NetworkState's
// command queue is full the send is dropped and the channel is never fed,
// so callers should read with a timeout or select.
func (h *NetworkHandle) PeerByID(peer enode.ID) <-chan *PeerInfo {
	reply := make(chan *PeerInfo, 1)
	h.send(PeerByIDCmd{Peer: peer, Reply: reply})
	return reply
}

// AllPeers asynchronously returns a snapshot of every active peer over the
// returned channel.
func (h *NetworkHandle) AllPeers() <-chan []*PeerInfo {
	reply := make(chan []*PeerInfo, 1)
	h.send(AllPeersCmd{Reply: reply})
	return reply
}

// eventFeed is the event.Feed-backed fan-out used internally to implement
// EventListener subscriptions. event.Feed.Send returns only once every
// subscribed channel has taken the event, so a subscriber whose channel is
// full blocks NetworkState's task; events are not buffered beyond each
// subscriber channel's own capacity.
type eventFeed struct {
	feed event.Feed
}

func (f *eventFeed) subscribe(sink chan<- NetworkEvent) event.Subscription {
	return f.feed.Subscribe(sink)
}

func (f *eventFeed) send(ev NetworkEvent) {
	f.feed.Send(ev)
}
