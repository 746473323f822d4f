package eth

import (
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corenet-chain/corenet/p2p/discovery"
	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/peers"
	"github.com/corenet-chain/corenet/p2p/statefetcher"
	"github.com/corenet-chain/corenet/p2p/wire"
)

type fakeChainReader struct{ numbers map[common.Hash]uint64 }

func (c *fakeChainReader) BlockNumber(hash common.Hash) (uint64, bool) {
	n, ok := c.numbers[hash]
	return n, ok
}

func testPeerID(b byte) enode.ID {
	var id enode.ID
	id[0] = b
	return id
}

func newTestState(t *testing.T, numActive int) (*NetworkState, []enode.ID) {
	t.Helper()
	cfg := DefaultConfig
	client := &fakeChainReader{numbers: make(map[common.Hash]uint64)}
	pm := peers.New(peers.DefaultConfig)
	fetcher := statefetcher.New(64)
	s := New(cfg, client, discovery.New(nil), pm, fetcher, common.Hash{})

	ids := make([]enode.ID, numActive)
	for i := 0; i < numActive; i++ {
		id := testPeerID(byte(i + 1))
		ids[i] = id
		reqTx := make(chan PeerRequest, 1)
		s.OnSessionActivated(id, wire.Capabilities{"eth": 66}, wire.Status{BlockHash: common.Hash{byte(i)}}, reqTx)
	}
	return s, ids
}

func TestOnSessionActivatedSeedsBestHash(t *testing.T) {
	client := &fakeChainReader{numbers: map[common.Hash]uint64{{1}: 42}}
	pm := peers.New(peers.DefaultConfig)
	fetcher := statefetcher.New(64)
	s := New(DefaultConfig, client, discovery.New(nil), pm, fetcher, common.Hash{})

	id := testPeerID(1)
	reqTx := make(chan PeerRequest, 1)
	s.OnSessionActivated(id, wire.Capabilities{"eth": 66}, wire.Status{BlockHash: common.Hash{1}}, reqTx)

	ap, ok := s.activePeers[id]
	require.True(t, ok)
	assert.Equal(t, common.Hash{1}, ap.BestHash)
}

func TestAnnounceNewBlockFanoutMatchesSqrtFormula(t *testing.T) {
	s, ids := newTestState(t, 9)
	hash := common.Hash{0xaa}
	msg := wire.NewBlockMessage{Hash: hash, Block: &wire.Block{Header: &wire.Header{Number: 100, Hash: hash}}}

	s.AnnounceNewBlock(msg)
	actions := drainStateActions(t, s)

	var newBlocks []NewBlock
	for _, a := range actions {
		if nb, ok := a.(NewBlock); ok {
			newBlocks = append(newBlocks, nb)
		}
	}
	require.Len(t, newBlocks, 4) // floor(sqrt(9))+1 == 4

	sentTo := make(map[enode.ID]bool)
	for _, nb := range newBlocks {
		sentTo[nb.Peer] = true
		assert.True(t, s.activePeers[nb.Peer].blocks.Contains(hash))
	}

	s.AnnounceNewBlockHash(hash, 100)
	actions = drainStateActions(t, s)
	var hashAnnouncements int
	for _, a := range actions {
		if nbh, ok := a.(NewBlockHashes); ok {
			hashAnnouncements++
			assert.False(t, sentTo[nbh.Peer])
		}
	}
	assert.Equal(t, len(ids)-4, hashAnnouncements)
}

func TestBadResponseAppliesReputationPenaltyAndFreesFetcherSlot(t *testing.T) {
	s, ids := newTestState(t, 1)
	peer := ids[0]
	s.peers.MarkConnected(peer)

	client := s.fetcher.Client()
	client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	s.Poll() // dispatches the queued fetcher action via HandleBlockRequest

	require.NotNil(t, s.activePeers[peer].pending)

	s.OnEthResponse(peer, PeerResponse{Err: assertError("malformed")})
	assert.Nil(t, s.activePeers[peer].pending)
	assert.False(t, s.peers.IsBanned(peer)) // a single BadResponse (-128) doesn't cross the -1024 threshold

	// The fetcher slot is idle again, so a fresh request dispatches to it.
	client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	s.Poll()
	assert.NotNil(t, s.activePeers[peer].pending)
}

type assertError string

func (e assertError) Error() string { return string(e) }

func drainStateActions(t *testing.T, s *NetworkState) []StateAction {
	t.Helper()
	var out []StateAction
	for {
		select {
		case a := <-s.Actions():
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestBanDiscoveryWithNilSourceDoesNotPanic(t *testing.T) {
	s, ids := newTestState(t, 1)
	// nil discovery source: should not panic.
	assert.NotPanics(t, func() {
		s.BanDiscovery(ids[0], net.IPv4(1, 1, 1, 1))
		s.BanIPDiscovery(net.IPv4(2, 2, 2, 2))
	})
}
