package statefetcher

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/peers"
	"github.com/corenet-chain/corenet/p2p/wire"
)

func testID(b byte) enode.ID {
	var id enode.ID
	id[0] = b
	return id
}

func drainActions(t *testing.T, f *StateFetcher) []Action {
	t.Helper()
	var out []Action
	for {
		select {
		case a := <-f.Actions():
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestClientRequestDispatchesToIdlePeer(t *testing.T) {
	f := New(16)
	f.NewActivePeer(testID(1), common.Hash{}, 0)

	client := f.Client()
	resCh := client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	f.Poll()

	actions := drainActions(t, f)
	require.Len(t, actions, 1)
	assert.Equal(t, testID(1), actions[0].Peer)
	assert.IsType(t, HeadersRequest{}, actions[0].Request)

	outcome := f.OnBlockHeadersResponse(testID(1), HeadersResult{Headers: []*wire.Header{{Number: 1}}})
	assert.Nil(t, outcome)

	select {
	case res := <-resCh:
		assert.Len(t, res.Headers, 1)
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestNoIdlePeerLeavesRequestPending(t *testing.T) {
	f := New(16)
	client := f.Client()
	client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	f.Poll()

	assert.Empty(t, drainActions(t, f))
	assert.Len(t, f.pending, 1)
}

func TestPeerBecomesIdleAfterResponse(t *testing.T) {
	f := New(16)
	f.NewActivePeer(testID(1), common.Hash{}, 0)
	client := f.Client()
	client.GetBlockBodies(wire.GetBlockBodiesRequest{Hashes: []common.Hash{{1}}})
	f.Poll()
	drainActions(t, f)

	f.OnBlockBodiesResponse(testID(1), BodiesResult{Bodies: []*wire.Body{{}}})

	client.GetBlockBodies(wire.GetBlockBodiesRequest{Hashes: []common.Hash{{2}}})
	f.Poll()
	actions := drainActions(t, f)
	require.Len(t, actions, 1)
	assert.Equal(t, testID(1), actions[0].Peer)
}

func TestErrorResponseYieldsBadResponseOutcome(t *testing.T) {
	f := New(16)
	f.NewActivePeer(testID(1), common.Hash{}, 0)
	client := f.Client()
	client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	f.Poll()
	drainActions(t, f)

	outcome := f.OnBlockHeadersResponse(testID(1), HeadersResult{Err: errors.New("malformed")})
	br, ok := outcome.(BadResponse)
	require.True(t, ok)
	assert.Equal(t, testID(1), br.Peer)
	assert.Equal(t, peers.BadResponse, br.Change)
}

func TestSessionClosedFreesPeerSlot(t *testing.T) {
	f := New(16)
	f.NewActivePeer(testID(1), common.Hash{}, 0)
	f.OnSessionClosed(testID(1))

	client := f.Client()
	client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	f.Poll()
	assert.Empty(t, drainActions(t, f))
}

func TestSessionClosedWithInFlightJobRequeuesAndUnblocksOnRedispatch(t *testing.T) {
	f := New(16)
	f.NewActivePeer(testID(1), common.Hash{}, 0)
	client := f.Client()
	resCh := client.GetBlockHeaders(wire.GetBlockHeadersRequest{Amount: 1})
	f.Poll()
	actions := drainActions(t, f)
	require.Len(t, actions, 1)

	outcome := f.OnSessionClosed(testID(1))
	retry, ok := outcome.(Retry)
	require.True(t, ok, "expected a Retry outcome, got %#v", outcome)
	assert.Equal(t, testID(1), retry.Peer)
	assert.IsType(t, HeadersRequest{}, retry.Request)

	// The job was requeued, not dropped: once another peer comes idle, a
	// Poll dispatches it and the original caller's channel is completed.
	assert.Len(t, f.pending, 1)
	f.NewActivePeer(testID(2), common.Hash{}, 0)
	f.Poll()
	actions = drainActions(t, f)
	require.Len(t, actions, 1)
	assert.Equal(t, testID(2), actions[0].Peer)

	f.OnBlockHeadersResponse(testID(2), HeadersResult{Headers: []*wire.Header{{Number: 1}}})
	select {
	case res := <-resCh:
		assert.Len(t, res.Headers, 1)
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("original caller's channel was never completed after requeue")
	}
}

func TestUpdatePeerBlockOnlyAdvancesForward(t *testing.T) {
	f := New(16)
	f.NewActivePeer(testID(1), common.Hash{}, 10)

	assert.False(t, f.UpdatePeerBlock(testID(1), common.Hash{1}, 5))
	assert.True(t, f.UpdatePeerBlock(testID(1), common.Hash{2}, 11))
	assert.Equal(t, uint64(11), f.peers[testID(1)].bestNumber)
}
