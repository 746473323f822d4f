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
	"github.com/corenet-chain/corenet/p2p/peers"
)

// Config bounds the network core's resource usage: per-peer caches, channel
// capacities, and the PeersManager it wraps.
type Config struct {
	// NetworkID is compared against a peer's Status during handshake
	// validation upstream of this package. Nothing in this package reads
	// it.
	NetworkID uint64

	// Peers configures the wrapped PeersManager (known-peer table size,
	// outbound dial concurrency, ban threshold).
	Peers peers.Config

	// PeerBlockCacheSize bounds each ActivePeer's seen-block-hash cache.
	PeerBlockCacheSize int
	// PeerTransactionCacheSize bounds each transaction-view Peer's
	// seen-tx-hash cache.
	PeerTransactionCacheSize int

	// SessionSendBufferSize bounds the per-session outbound request
	// channel (peer.request_tx in the spec's terms).
	SessionSendBufferSize int

	// StateActionQueueSize bounds NetworkState's queued_messages channel.
	StateActionQueueSize int
	// EventListenerBufferSize bounds each NetworkEvents subscriber's
	// channel.
	EventListenerBufferSize int

	// CommandQueueSize bounds the unbounded-in-spec but necessarily
	// buffered command channels backing NetworkHandle and
	// TransactionsHandle (an unbuffered-send, drop-on-full channel would
	// violate the "never loses messages" contract, so this is sized
	// generously rather than literally unbounded).
	CommandQueueSize int
}

// DefaultConfig mirrors mainnet-scale peer counts: thousands of known
// peers, a few dozen simultaneous outbound dials, and cache sizes pulled
// directly from the spec's resource bounds (§5).
var DefaultConfig = Config{
	NetworkID:                1,
	Peers:                    peers.DefaultConfig,
	PeerBlockCacheSize:       512,
	PeerTransactionCacheSize: 10240,
	SessionSendBufferSize:    1024,
	StateActionQueueSize:     4096,
	EventListenerBufferSize:  256,
	CommandQueueSize:         4096,
}
