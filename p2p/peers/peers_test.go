package peers

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corenet-chain/corenet/p2p/enode"
)

func testID(b byte) enode.ID {
	var id enode.ID
	id[0] = b
	return id
}

func drain(t *testing.T, ch <-chan PeerAction) []PeerAction {
	t.Helper()
	var out []PeerAction
	for {
		select {
		case a := <-ch:
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestAddDiscoveredNodeQueuesConnectAndPeerAdded(t *testing.T) {
	m := New(DefaultConfig)
	addr := &net.TCPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 30303}
	m.AddDiscoveredNode(testID(1), addr)

	actions := drain(t, m.Actions())
	require.Len(t, actions, 2)
	assert.IsType(t, PeerAdded{}, actions[0])
	assert.IsType(t, Connect{}, actions[1])
	assert.Equal(t, addr, actions[1].(Connect).Addr)
}

func TestApplyReputationChangeBansAndDisconnects(t *testing.T) {
	m := New(DefaultConfig)
	id := testID(2)
	addr := &net.TCPAddr{IP: net.IPv4(5, 6, 7, 8), Port: 30303}
	m.AddDiscoveredNode(id, addr)
	drain(t, m.Actions())
	m.MarkConnected(id)

	m.ApplyReputationChange(id, BadBlock)
	m.ApplyReputationChange(id, BadBlock)
	m.ApplyReputationChange(id, BadBlock) // 3 * -512 = -1536, below -1024 threshold

	actions := drain(t, m.Actions())
	var sawDisconnect, sawBan, sawDiscoveryBan bool
	for _, a := range actions {
		switch a.(type) {
		case Disconnect:
			sawDisconnect = true
		case BanPeer:
			sawBan = true
		case DiscoveryBanPeerID:
			sawDiscoveryBan = true
		}
	}
	assert.True(t, sawDisconnect)
	assert.True(t, sawBan)
	assert.True(t, sawDiscoveryBan)
	assert.True(t, m.IsBanned(id))
}

func TestBannedPeerRediscoveryEmitsDisconnectBannedIncoming(t *testing.T) {
	m := New(DefaultConfig)
	id := testID(3)
	addr := &net.TCPAddr{IP: net.IPv4(9, 9, 9, 9), Port: 30303}
	m.AddDiscoveredNode(id, addr)
	drain(t, m.Actions())
	m.MarkConnected(id)
	for i := 0; i < 3; i++ {
		m.ApplyReputationChange(id, BadBlock)
	}
	drain(t, m.Actions())
	require.True(t, m.IsBanned(id))

	m.AddDiscoveredNode(id, addr)
	actions := drain(t, m.Actions())
	require.Len(t, actions, 1)
	assert.IsType(t, DisconnectBannedIncoming{}, actions[0])
}

func TestMaxOutboundDialsLimitsConnectActions(t *testing.T) {
	cfg := DefaultConfig
	cfg.MaxOutboundDials = 1
	m := New(cfg)

	m.AddDiscoveredNode(testID(10), &net.TCPAddr{IP: net.IPv4(1, 1, 1, 1), Port: 1})
	m.AddDiscoveredNode(testID(11), &net.TCPAddr{IP: net.IPv4(2, 2, 2, 2), Port: 2})

	actions := drain(t, m.Actions())
	var connects int
	for _, a := range actions {
		if _, ok := a.(Connect); ok {
			connects++
		}
	}
	assert.Equal(t, 1, connects)
}

func TestUnBanReturnsPeerToIdle(t *testing.T) {
	m := New(DefaultConfig)
	id := testID(4)
	m.AddDiscoveredNode(id, &net.TCPAddr{IP: net.IPv4(1, 1, 1, 1), Port: 1})
	drain(t, m.Actions())
	m.MarkConnected(id)
	for i := 0; i < 3; i++ {
		m.ApplyReputationChange(id, BadBlock)
	}
	drain(t, m.Actions())
	require.True(t, m.IsBanned(id))

	m.UnBan(id)
	assert.False(t, m.IsBanned(id))
}

func TestHandleAddPeerIsDrainedOnNetworkTask(t *testing.T) {
	m := New(DefaultConfig)
	h := m.Handle()
	h.AddPeer(testID(5), &net.TCPAddr{IP: net.IPv4(1, 1, 1, 1), Port: 1})

	m.DrainHandleRequests()
	actions := drain(t, m.Actions())
	require.Len(t, actions, 2)
}
