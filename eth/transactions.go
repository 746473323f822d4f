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
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/corenet-chain/corenet/lru"
	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/peers"
)

// TxSessionMessage is the set of transaction sub-protocol messages
// TransactionsManager writes to a peer's session over its own outbound
// channel — kept separate from ActivePeer's block-request channel, the
// same way the teacher's session type runs one broadcast loop per message
// kind rather than funnelling every outbound message through one queue.
type TxSessionMessage interface{ isTxSessionMessage() }

// SendTransactions pushes full signed transactions to the peer.
type SendTransactions struct{ Transactions []RecoveredTx }

// SendNewPooledTransactionHashes announces hashes to the peer.
type SendNewPooledTransactionHashes struct{ Hashes []common.Hash }

// SendGetPooledTransactions pulls hashes from the peer; Response receives
// exactly one TxResponse.
type SendGetPooledTransactions struct {
	Hashes   []common.Hash
	Response chan<- TxResponse
}

func (SendTransactions) isTxSessionMessage()                 {}
func (SendNewPooledTransactionHashes) isTxSessionMessage()   {}
func (SendGetPooledTransactions) isTxSessionMessage()        {}

// TxResponse is what the session hands back on a SendGetPooledTransactions'
// Response channel.
type TxResponse struct {
	Transactions []RecoveredTx
	Err          error
}

// InboundTransaction is one signed transaction as it arrived from a peer.
// Recovered is nil and Err is set when ECDSA recovery failed upstream in
// the wire-decode layer; import_transactions skips those but still counts
// them toward the peer's BadTransactions penalty.
type InboundTransaction struct {
	Recovered RecoveredTx
	Err       error
}

// PeerTxEvent is the set of inbound, per-peer transaction-protocol
// messages TransactionsManager consumes.
type PeerTxEvent interface{ isPeerTxEvent() }

// InboundTransactions carries a peer's Transactions message.
type InboundTransactions struct {
	Peer         enode.ID
	Transactions []InboundTransaction
}

// InboundNewPooledTransactionHashes carries a peer's
// NewPooledTransactionHashes announcement.
type InboundNewPooledTransactionHashes struct {
	Peer   enode.ID
	Hashes []common.Hash
}

// InboundGetPooledTransactions carries a peer's pull request, along with
// the one-shot channel the reply must be sent on.
type InboundGetPooledTransactions struct {
	Peer     enode.ID
	Hashes   []common.Hash
	Response chan<- TxResponse
}

func (InboundTransactions) isPeerTxEvent()                 {}
func (InboundNewPooledTransactionHashes) isPeerTxEvent()   {}
func (InboundGetPooledTransactions) isPeerTxEvent()        {}

// TxCommand is the set of operations TransactionsHandle funnels into
// TransactionsManager's single task.
type TxCommand interface{ isTxCommand() }

// PropagateHashCmd requests a single transaction hash be propagated to
// eligible peers.
type PropagateHashCmd struct{ Hash common.Hash }

func (PropagateHashCmd) isTxCommand() {}

// PropagateKind distinguishes how a hash was disseminated to a given peer.
type PropagateKind int

const (
	PropagateFull PropagateKind = iota
	PropagateHashOnly
)

// PropagationRecord names one peer a hash was sent to, and how.
type PropagationRecord struct {
	Peer enode.ID
	Kind PropagateKind
}

// PropagatedTransactions maps each propagated hash to the peers it was sent
// to, handed back to the pool via OnPropagated.
type PropagatedTransactions map[common.Hash][]PropagationRecord

// txPeer is the per-peer bookkeeping TransactionsManager keeps: which
// hashes this peer is already known to have, and its session's request
// channel.
type txPeer struct {
	transactions *lru.Cache[common.Hash]
	requestTx    chan<- TxSessionMessage
}

// RegisterSession wires id's outbound transaction-protocol channel. Called
// by the surrounding node's session-dispatch layer once a session's eth
// sub-protocol handler is ready to accept sends, alongside the
// SessionEstablished NetworkEvent; whichever of the two is processed first
// creates the peer's bookkeeping.
func (t *TransactionsManager) RegisterSession(id enode.ID, requestTx chan<- TxSessionMessage) {
	p, ok := t.peers[id]
	if !ok {
		p = &txPeer{transactions: lru.New[common.Hash](t.cfg.PeerTransactionCacheSize)}
		t.peers[id] = p
	}
	p.requestTx = requestTx
}

type importResult struct {
	hash common.Hash
	err  error
}

type inflightResult struct {
	peer enode.ID
	resp TxResponse
}

// TransactionsManager propagates and imports transactions. It runs as a
// single long-lived task (Run) and never shares its peer/import state
// across goroutines other than through its input channels.
type TransactionsManager struct {
	cfg    Config
	log    log.Logger
	pool   TransactionPool
	handle *NetworkHandle

	peers               map[enode.ID]*txPeer
	transactionsByPeers map[common.Hash][]enode.ID

	networkEvents chan NetworkEvent
	txEvents      chan PeerTxEvent
	commands      chan TxCommand
	newTxs        chan []common.Hash
	newTxsSub     event.Subscription

	importResults   chan importResult
	inflightResults chan inflightResult
}

// NewTransactionsManager constructs a TransactionsManager bound to pool and
// dispatching outbound messages through handle.
func NewTransactionsManager(cfg Config, pool TransactionPool, handle *NetworkHandle) *TransactionsManager {
	t := &TransactionsManager{
		cfg:                 cfg,
		log:                 log.New("module", "txpropagation"),
		pool:                pool,
		handle:              handle,
		peers:               make(map[enode.ID]*txPeer),
		transactionsByPeers: make(map[common.Hash][]enode.ID),
		networkEvents:       make(chan NetworkEvent, cfg.EventListenerBufferSize),
		txEvents:            make(chan PeerTxEvent, cfg.CommandQueueSize),
		commands:            make(chan TxCommand, cfg.CommandQueueSize),
		newTxs:              make(chan []common.Hash, cfg.CommandQueueSize),
		importResults:       make(chan importResult, cfg.CommandQueueSize),
		inflightResults:     make(chan inflightResult, cfg.CommandQueueSize),
	}
	handle.EventListener(t.networkEvents)
	return t
}

// SubscribeNewTransactions wires a pool's pending-transaction feed as the
// "stream of hashes newly added to the local pool" input. Call once during
// construction of the surrounding node.
func (t *TransactionsManager) SubscribeNewTransactions(sub func(chan<- []common.Hash) event.Subscription) {
	t.newTxsSub = sub(t.newTxs)
}

// Deliver hands a per-peer transaction-protocol event to the manager. Safe
// to call from any goroutine (typically a session task); non-blocking.
func (t *TransactionsManager) Deliver(ev PeerTxEvent) {
	select {
	case t.txEvents <- ev:
	default:
		t.log.Warn("transaction event queue full, dropping event")
	}
}

// Handle returns the TransactionsHandle frontend for issuing TxCommands.
func (t *TransactionsManager) Handle() *TransactionsHandle {
	return &TransactionsHandle{commands: t.commands}
}

// Run is the manager's endless poll loop: it never returns except when ctx
// is cancelled, mirroring the spec's "polled as a future that never
// resolves". Each select iteration processes exactly one ready input,
// which is the native Go equivalent of the spec's drain-each-stage-in-order
// poll description — fairness across inputs is provided by select's
// pseudo-random choice among ready cases rather than a fixed drain order.
func (t *TransactionsManager) Run(ctx context.Context) {
	defer func() {
		if t.newTxsSub != nil {
			t.newTxsSub.Unsubscribe()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.networkEvents:
			t.onNetworkEvent(ev)
		case cmd := <-t.commands:
			t.onCommand(cmd)
		case ev := <-t.txEvents:
			t.onPeerTxEvent(ev)
		case res := <-t.inflightResults:
			t.onInflightResult(res)
		case res := <-t.importResults:
			t.onImportResult(res)
		case hashes := <-t.newTxs:
			if len(hashes) > 0 {
				t.propagateTransactions(hashes)
			}
		}
	}
}

func (t *TransactionsManager) onNetworkEvent(ev NetworkEvent) {
	switch e := ev.(type) {
	case SessionEstablished:
		// e.RequestTx carries the block-fetch channel; the transaction
		// sub-protocol's own outbound channel is wired in separately via
		// RegisterSession once the node's eth-protocol handler for this
		// peer is ready to accept sends.
		p, ok := t.peers[e.Peer]
		if !ok {
			p = &txPeer{transactions: lru.New[common.Hash](t.cfg.PeerTransactionCacheSize)}
			t.peers[e.Peer] = p
		}
		t.sendToPeer(p, SendNewPooledTransactionHashes{Hashes: t.pool.PendingHashes()})
	case SessionClosed:
		delete(t.peers, e.Peer)
	}
}

func (t *TransactionsManager) onCommand(cmd TxCommand) {
	switch c := cmd.(type) {
	case PropagateHashCmd:
		t.propagateTransactions([]common.Hash{c.Hash})
	}
}

func (t *TransactionsManager) onPeerTxEvent(ev PeerTxEvent) {
	switch e := ev.(type) {
	case InboundTransactions:
		t.importTransactions(e.Peer, e.Transactions)
	case InboundNewPooledTransactionHashes:
		t.onNewPooledTransactionHashes(e.Peer, e.Hashes)
	case InboundGetPooledTransactions:
		t.onGetPooledTransactions(e.Peer, e.Hashes, e.Response)
	}
}

// importTransactions implements the spec's import_transactions.
func (t *TransactionsManager) importTransactions(peer enode.ID, txs []InboundTransaction) {
	p, ok := t.peers[peer]
	if !ok {
		return
	}
	hasBad := false
	for _, tx := range txs {
		if tx.Err != nil || tx.Recovered == nil {
			hasBad = true
			continue
		}
		hash := tx.Recovered.Hash()
		p.transactions.Insert(hash)

		if existing, inFlight := t.transactionsByPeers[hash]; inFlight {
			t.transactionsByPeers[hash] = append(existing, peer)
			continue
		}
		t.transactionsByPeers[hash] = []enode.ID{peer}
		pooled := t.pool.FromRecoveredTransaction(tx.Recovered)
		t.startImport(hash, pooled)
	}
	if hasBad {
		t.handle.ReputationChange(peer, peers.BadTransactions)
	}
}

// startImport submits pooled for admission and forwards the eventual
// result into importResults. Modeled as a goroutine-per-import fan-in,
// the idiomatic Go stand-in for the spec's FuturesUnordered pool_imports
// collection.
func (t *TransactionsManager) startImport(hash common.Hash, pooled PooledTx) {
	resultCh := t.pool.AddExternalTransaction(pooled)
	go func() {
		err := <-resultCh
		select {
		case t.importResults <- importResult{hash: hash, err: err}:
		default:
		}
	}()
}

func (t *TransactionsManager) onImportResult(res importResult) {
	forwarders, ok := t.transactionsByPeers[res.hash]
	if !ok {
		return
	}
	delete(t.transactionsByPeers, res.hash)
	if res.err == nil {
		return
	}
	for _, peer := range forwarders {
		t.handle.ReputationChange(peer, peers.BadTransactions)
	}
}

func (t *TransactionsManager) onNewPooledTransactionHashes(peer enode.ID, hashes []common.Hash) {
	p, ok := t.peers[peer]
	if !ok {
		return
	}
	p.transactions.Extend(hashes)

	unknown := t.pool.RetainUnknown(hashes)
	if len(unknown) == 0 {
		return
	}
	respCh := make(chan TxResponse, 1)
	if !t.sendToPeer(p, SendGetPooledTransactions{Hashes: unknown, Response: respCh}) {
		// Session congested or dead; drop, matching the spec's
		// "non-blocking; drop on send failure".
		return
	}
	go func() {
		resp := <-respCh
		select {
		case t.inflightResults <- inflightResult{peer: peer, resp: resp}:
		default:
		}
	}()
}

// sendToPeer attempts a non-blocking send of msg to p's session channel. It
// reports false (and does nothing) if the channel isn't wired up yet or is
// congested/dead.
func (t *TransactionsManager) sendToPeer(p *txPeer, msg TxSessionMessage) bool {
	if p.requestTx == nil {
		return false
	}
	select {
	case p.requestTx <- msg:
		return true
	default:
		return false
	}
}

func (t *TransactionsManager) onInflightResult(res inflightResult) {
	if res.resp.Err != nil {
		t.handle.ReputationChange(res.peer, peers.BadResponse)
		return
	}
	t.importTransactionsFromResponse(res.peer, res.resp.Transactions)
}

func (t *TransactionsManager) importTransactionsFromResponse(peer enode.ID, txs []RecoveredTx) {
	inbound := make([]InboundTransaction, len(txs))
	for i, tx := range txs {
		inbound[i] = InboundTransaction{Recovered: tx}
	}
	t.importTransactions(peer, inbound)
}

func (t *TransactionsManager) onGetPooledTransactions(peer enode.ID, hashes []common.Hash, response chan<- TxResponse) {
	p, ok := t.peers[peer]
	if !ok {
		return
	}
	found := t.pool.GetAll(hashes)
	for _, tx := range found {
		p.transactions.Insert(tx.Hash())
	}
	select {
	case response <- TxResponse{Transactions: found}:
	default:
	}
}

// propagateTransactions implements the spec's on_new_transactions /
// propagate_transactions: each peer receives, as a full transaction, every
// hash from hashes it has not yet seen, up to max_num_full = floor(sqrt(N))+1
// peers (by iteration index); the rest get hash-only announcements.
func (t *TransactionsManager) propagateTransactions(hashes []common.Hash) {
	maxFull := propagationFanout(len(t.peers))
	propagated := make(PropagatedTransactions)

	ids := make([]enode.ID, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	sortIDs(ids)

	for idx, id := range ids {
		p := t.peers[id]
		var novel []common.Hash
		for _, h := range hashes {
			if p.transactions.Insert(h) {
				novel = append(novel, h)
			}
		}
		if len(novel) == 0 {
			continue
		}
		kind := PropagateHashOnly
		if idx < maxFull {
			kind = PropagateFull
			t.sendToPeer(p, SendTransactions{Transactions: t.pool.GetAll(novel)})
		} else {
			t.sendToPeer(p, SendNewPooledTransactionHashes{Hashes: novel})
		}
		for _, h := range novel {
			propagated[h] = append(propagated[h], PropagationRecord{Peer: id, Kind: kind})
		}
	}
	t.pool.OnPropagated(propagated)
}
