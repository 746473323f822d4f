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
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/wire"
)

const (
	maxKnownTxs        = 32768
	maxKnownBlocks     = 1024
	maxQueuedBlocks    = 4
	maxQueuedBlockAnns = 4
	maxQueuedTxs       = 4096
)

var (
	errClosed            = fmt.Errorf("session set is closed")
	errAlreadyRegistered = fmt.Errorf("session already registered")
	errNotRegistered     = fmt.Errorf("session not registered")
)

// Transport is the wire-send surface a Session drives. NetworkState and
// TransactionsManager never write to the network directly; they hand a
// Session a PeerRequest or a TxSessionMessage and the broadcast loop below
// turns it into an outbound eth-subprotocol message.
type Transport interface {
	SendNewBlock(block *wire.Block) error
	SendNewBlockHashes(hashes []wire.BlockHashNumber) error
	SendBlockHeadersRequest(req wire.GetBlockHeadersRequest) error
	SendBlockBodiesRequest(req wire.GetBlockBodiesRequest) error
	SendTransactions(txs []RecoveredTx) error
	SendNewPooledTransactionHashes(hashes []common.Hash) error
	SendGetPooledTransactions(hashes []common.Hash) error
}

// propEvent couples a queued block with the hash it carries, so the
// broadcast loop can mark it known without re-deriving the hash.
type propEvent struct {
	block *wire.Block
	hash  common.Hash
}

// Session owns the single eth-subprotocol connection to one remote peer.
// It is the async writer NetworkState and TransactionsManager queue work
// onto: block propagation, block/body requests and transaction gossip are
// all multiplexed through its broadcast loop so one slow remote can never
// block either owning task's poll loop.
type Session struct {
	id      enode.ID
	log     log.Logger
	version int
	rw      Transport

	knownBlocks mapset.Set
	knownTxs    mapset.Set

	queuedBlocks    chan *propEvent
	queuedBlockAnns chan wire.BlockHashNumber
	requestTx       chan PeerRequest
	txMessages      chan TxSessionMessage

	pending   chan<- PeerResponse
	pendingTx chan<- TxResponse

	term chan struct{}
}

// NewSession wraps rw, the concrete wire connection to peer, in the
// broadcast/request machinery NetworkState and TransactionsManager expect.
func NewSession(id enode.ID, version int, rw Transport) *Session {
	return &Session{
		id:              id,
		log:             log.New("session", id.String()),
		version:         version,
		rw:              rw,
		knownBlocks:     mapset.NewSet(),
		knownTxs:        mapset.NewSet(),
		queuedBlocks:    make(chan *propEvent, maxQueuedBlocks),
		queuedBlockAnns: make(chan wire.BlockHashNumber, maxQueuedBlockAnns),
		requestTx:       make(chan PeerRequest, 4),
		txMessages:      make(chan TxSessionMessage, maxQueuedTxs),
		term:            make(chan struct{}),
	}
}

// RequestChan is the channel to pass as requestTx to
// NetworkState.OnSessionActivated: NetworkState and the StateFetcher queue
// block/body requests onto it.
func (s *Session) RequestChan() chan<- PeerRequest { return s.requestTx }

// TxChan is the channel to register with
// TransactionsManager.RegisterSession: TransactionsManager queues
// transaction gossip and pooled-transaction requests onto it.
func (s *Session) TxChan() chan<- TxSessionMessage { return s.txMessages }

// Close signals the broadcast loop to terminate.
func (s *Session) Close() {
	close(s.term)
}

// Broadcast is the async writer loop: one goroutine per session,
// multiplexing block propagation, block requests and tx gossip so that a
// blocked remote write never backs up into NetworkState's or
// TransactionsManager's poll loop.
func (s *Session) Broadcast() {
	for {
		select {
		case prop := <-s.queuedBlocks:
			if err := s.rw.SendNewBlock(prop.block); err != nil {
				s.log.Debug("Dropping session after failed block send", "err", err)
				return
			}
		case ann := <-s.queuedBlockAnns:
			if err := s.rw.SendNewBlockHashes([]wire.BlockHashNumber{ann}); err != nil {
				s.log.Debug("Dropping session after failed announcement send", "err", err)
				return
			}
		case req := <-s.requestTx:
			s.serveRequest(req)

		case msg := <-s.txMessages:
			s.serveTxMessage(msg)

		case <-s.term:
			return
		}
	}
}

// AsyncSendNewBlock queues an entire block for propagation. If the
// session's broadcast queue is full, the propagation is silently dropped;
// NetworkState's sqrt-fanout selection already bounds how many sessions
// are offered a block, so a full queue here means a genuinely slow peer.
func (s *Session) AsyncSendNewBlock(hash common.Hash, block *wire.Block) {
	select {
	case s.queuedBlocks <- &propEvent{block: block, hash: hash}:
		s.markBlockKnown(hash)
	default:
		s.log.Debug("Dropping block propagation", "hash", hash)
	}
}

// AsyncSendNewBlockHash queues a block-hash announcement for propagation.
func (s *Session) AsyncSendNewBlockHash(hash common.Hash, number uint64) {
	select {
	case s.queuedBlockAnns <- wire.BlockHashNumber{Hash: hash, Number: number}:
	default:
		s.log.Debug("Dropping block announcement", "hash", hash)
	}
}

func (s *Session) markBlockKnown(hash common.Hash) {
	for s.knownBlocks.Cardinality() >= maxKnownBlocks {
		s.knownBlocks.Pop()
	}
	s.knownBlocks.Add(hash)
}

func (s *Session) markTxsKnown(hashes []common.Hash) {
	for s.knownTxs.Cardinality() > max(0, maxKnownTxs-len(hashes)) {
		s.knownTxs.Pop()
	}
	for _, h := range hashes {
		s.knownTxs.Add(h)
	}
}

// serveRequest turns a block-fetch PeerRequest into an outbound wire send
// and parks the response channel until the (out-of-scope) inbound message
// dispatcher calls DeliverHeaders/DeliverBodies with the decoded reply.
func (s *Session) serveRequest(req PeerRequest) {
	s.pending = req.Response

	var err error
	switch {
	case req.Headers != nil:
		err = s.rw.SendBlockHeadersRequest(*req.Headers)
	case req.Bodies != nil:
		err = s.rw.SendBlockBodiesRequest(*req.Bodies)
	}
	if err != nil {
		s.deliver(PeerResponse{Err: err})
	}
}

// DeliverHeaders fulfills the pending headers request, if any. Called by
// the eth-subprotocol message dispatcher once the BlockHeaders reply
// arrives off the wire.
func (s *Session) DeliverHeaders(headers []*wire.Header, err error) {
	s.deliver(PeerResponse{Headers: headers, Err: err})
}

// DeliverBodies fulfills the pending bodies request, if any.
func (s *Session) DeliverBodies(bodies []*wire.Body, err error) {
	s.deliver(PeerResponse{Bodies: bodies, Err: err})
}

func (s *Session) deliver(resp PeerResponse) {
	if s.pending == nil {
		return
	}
	select {
	case s.pending <- resp:
	default:
	}
	s.pending = nil
}

func (s *Session) serveTxMessage(msg TxSessionMessage) {
	switch m := msg.(type) {
	case SendTransactions:
		hashes := make([]common.Hash, len(m.Transactions))
		for i, tx := range m.Transactions {
			hashes[i] = tx.Hash()
		}
		s.markTxsKnown(hashes)
		if err := s.rw.SendTransactions(m.Transactions); err != nil {
			s.log.Debug("Failed to send transactions", "err", err)
		}

	case SendNewPooledTransactionHashes:
		s.markTxsKnown(m.Hashes)
		if err := s.rw.SendNewPooledTransactionHashes(m.Hashes); err != nil {
			s.log.Debug("Failed to send transaction hash announcement", "err", err)
		}

	case SendGetPooledTransactions:
		s.pendingTx = m.Response
		if err := s.rw.SendGetPooledTransactions(m.Hashes); err != nil {
			s.deliverTx(TxResponse{Err: err})
		}
	}
}

// DeliverPooledTransactions fulfills a pending SendGetPooledTransactions
// request, if any. Called by the eth-subprotocol message dispatcher once
// the PooledTransactions reply arrives off the wire.
func (s *Session) DeliverPooledTransactions(txs []RecoveredTx, err error) {
	s.deliverTx(TxResponse{Transactions: txs, Err: err})
}

func (s *Session) deliverTx(resp TxResponse) {
	if s.pendingTx == nil {
		return
	}
	select {
	case s.pendingTx <- resp:
	default:
	}
	s.pendingTx = nil
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	return fmt.Sprintf("Session %s [eth/%2d]", s.id, s.version)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// sessionSet is the registry of live sessions a protocol-manager-style
// owner uses to start and stop broadcast loops; it mirrors the teacher's
// peerSet but keyed by enode.ID and holding Sessions instead of raw
// devp2p peers, since session lifecycle (register/unregister/close) is a
// distinct concern from PeersManager's reputation and dial bookkeeping.
type sessionSet struct {
	sessions map[enode.ID]*Session
	closed   bool
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[enode.ID]*Session)}
}

// Register injects a new session into the working set and starts its
// broadcast loop, or returns an error if the peer is already known.
func (ss *sessionSet) Register(s *Session) error {
	if ss.closed {
		return errClosed
	}
	if _, ok := ss.sessions[s.id]; ok {
		return errAlreadyRegistered
	}
	ss.sessions[s.id] = s
	go s.Broadcast()
	return nil
}

// Unregister removes a session from the active set and closes its
// broadcast loop.
func (ss *sessionSet) Unregister(id enode.ID) error {
	s, ok := ss.sessions[id]
	if !ok {
		return errNotRegistered
	}
	delete(ss.sessions, id)
	s.Close()
	return nil
}

func (ss *sessionSet) Session(id enode.ID) *Session {
	return ss.sessions[id]
}

func (ss *sessionSet) Len() int {
	return len(ss.sessions)
}

// Close closes every registered session's broadcast loop. No new sessions
// can be registered after Close has returned.
func (ss *sessionSet) Close() {
	for id, s := range ss.sessions {
		s.Close()
		delete(ss.sessions, id)
	}
	ss.closed = true
}
