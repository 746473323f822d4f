package eth

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corenet-chain/corenet/p2p/wire"
)

// fakeTransport records every send it's asked to make, standing in for a
// real eth-subprotocol wire connection.
type fakeTransport struct {
	mu sync.Mutex

	newBlocks       []*wire.Block
	newBlockHashes  [][]wire.BlockHashNumber
	headerRequests  []wire.GetBlockHeadersRequest
	bodyRequests    []wire.GetBlockBodiesRequest
	sentTxs         [][]RecoveredTx
	announcedHashes [][]common.Hash
	pulledHashes    [][]common.Hash

	failNext bool
}

func (f *fakeTransport) SendNewBlock(block *wire.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newBlocks = append(f.newBlocks, block)
	return nil
}

func (f *fakeTransport) SendNewBlockHashes(hashes []wire.BlockHashNumber) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newBlockHashes = append(f.newBlockHashes, hashes)
	return nil
}

func (f *fakeTransport) SendBlockHeadersRequest(req wire.GetBlockHeadersRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headerRequests = append(f.headerRequests, req)
	return nil
}

func (f *fakeTransport) SendBlockBodiesRequest(req wire.GetBlockBodiesRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodyRequests = append(f.bodyRequests, req)
	return nil
}

func (f *fakeTransport) SendTransactions(txs []RecoveredTx) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTxs = append(f.sentTxs, txs)
	return nil
}

func (f *fakeTransport) SendNewPooledTransactionHashes(hashes []common.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announcedHashes = append(f.announcedHashes, hashes)
	return nil
}

func (f *fakeTransport) SendGetPooledTransactions(hashes []common.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulledHashes = append(f.pulledHashes, hashes)
	if f.failNext {
		return errors.New("transport closed")
	}
	return nil
}

func TestSessionBroadcastSendsQueuedBlock(t *testing.T) {
	transport := &fakeTransport{}
	s := NewSession(testPeerID(1), 66, transport)
	go s.Broadcast()
	defer s.Close()

	hash := common.Hash{0xaa}
	block := &wire.Block{Header: &wire.Header{Hash: hash, Number: 7}}
	s.AsyncSendNewBlock(hash, block)

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.newBlocks) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, s.knownBlocks.Contains(hash))
}

func TestSessionBroadcastSendsQueuedBlockHash(t *testing.T) {
	transport := &fakeTransport{}
	s := NewSession(testPeerID(1), 66, transport)
	go s.Broadcast()
	defer s.Close()

	s.AsyncSendNewBlockHash(common.Hash{0xbb}, 9)

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.newBlockHashes) == 1
	}, time.Second, time.Millisecond)
}

func TestSessionServeRequestDispatchesAndDeliversHeaders(t *testing.T) {
	transport := &fakeTransport{}
	s := NewSession(testPeerID(1), 66, transport)
	go s.Broadcast()
	defer s.Close()

	respCh := make(chan PeerResponse, 1)
	req := wire.GetBlockHeadersRequest{Amount: 5}
	s.requestTx <- PeerRequest{Headers: &req, Response: respCh}

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.headerRequests) == 1
	}, time.Second, time.Millisecond)

	headers := []*wire.Header{{Number: 1}}
	s.DeliverHeaders(headers, nil)

	select {
	case resp := <-respCh:
		assert.Equal(t, headers, resp.Headers)
		assert.NoError(t, resp.Err)
	case <-time.After(time.Second):
		t.Fatal("response never delivered")
	}
}

func TestSessionServeTxMessageSendsAndMarksKnown(t *testing.T) {
	transport := &fakeTransport{}
	s := NewSession(testPeerID(1), 66, transport)
	go s.Broadcast()
	defer s.Close()

	hash := common.Hash{0x42}
	s.txMessages <- SendTransactions{Transactions: []RecoveredTx{fakeRecoveredTx{hash: hash}}}

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.sentTxs) == 1
	}, time.Second, time.Millisecond)
	assert.True(t, s.knownTxs.Contains(hash))
}

func TestSessionServeTxMessagePulledTransactionsDeliversErrorOnSendFailure(t *testing.T) {
	transport := &fakeTransport{failNext: true}
	s := NewSession(testPeerID(1), 66, transport)
	go s.Broadcast()
	defer s.Close()

	respCh := make(chan TxResponse, 1)
	s.txMessages <- SendGetPooledTransactions{Hashes: []common.Hash{{1}}, Response: respCh}

	select {
	case resp := <-respCh:
		assert.Error(t, resp.Err)
	case <-time.After(time.Second):
		t.Fatal("error response never delivered on send failure")
	}
}

func TestSessionSetRegisterUnregisterLifecycle(t *testing.T) {
	ss := newSessionSet()
	s := NewSession(testPeerID(1), 66, &fakeTransport{})

	require.NoError(t, ss.Register(s))
	assert.ErrorIs(t, ss.Register(s), errAlreadyRegistered)
	assert.Equal(t, 1, ss.Len())

	require.NoError(t, ss.Unregister(s.id))
	assert.ErrorIs(t, ss.Unregister(s.id), errNotRegistered)
	assert.Equal(t, 0, ss.Len())
}

func TestSessionManagerActivateWiresStateAndTransactionsManager(t *testing.T) {
	state, _ := newTestState(t, 0)
	pool := newFakePool()
	txm := NewTransactionsManager(DefaultConfig, pool, state.Handle())
	sm := NewSessionManager(state, txm)

	// Normally NetworkState.Run drains this; here we process the single
	// queued EventListenerCmd by hand so the feed subscription NewTransactionsManager
	// requested at construction is actually installed before activation.
	select {
	case cmd := <-state.cmds:
		state.handleCommand(cmd)
	default:
		t.Fatal("expected EventListenerCmd queued by NewTransactionsManager")
	}

	id := testPeerID(9)
	transport := &fakeTransport{}
	session, err := sm.Activate(id, 66, transport, wire.Capabilities{"eth": 66}, wire.Status{BlockHash: common.Hash{1}})
	require.NoError(t, err)
	require.NotNil(t, session)

	ap, ok := state.activePeers[id]
	require.True(t, ok)
	assert.Equal(t, common.Hash{1}, ap.BestHash)

	// Activate has already registered the session's tx channel; processing
	// the SessionEstablished event emitted by OnSessionActivated keeps it.
	require.Eventually(t, func() bool {
		select {
		case ev := <-txm.networkEvents:
			txm.onNetworkEvent(ev)
		default:
		}
		_, ok := txm.peers[id]
		return ok
	}, time.Second, time.Millisecond)
	assert.NotNil(t, txm.peers[id].requestTx)

	require.NoError(t, sm.Deactivate(id))
	_, stillActive := state.activePeers[id]
	assert.False(t, stillActive)
}
