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
	"net"
	"sync/atomic"
	"time"
)

// Handle returns a cheap-to-clone NetworkHandle wired into this
// NetworkState's command processing. Must be called before Run, or
// concurrently with it — it only allocates the shared channel/atomics the
// first time it's called.
func (s *NetworkState) Handle() *NetworkHandle {
	if s.cmds == nil {
		s.cmds = make(chan Command, s.cfg.CommandQueueSize)
		s.activePeerCount = &atomic.Int64{}
		s.listenAddr = &atomic.Pointer[net.TCPAddr]{}
	}
	return newHandle(s.cmds, s.activePeerCount, s.listenAddr)
}

// Run drives NetworkState's event loop until ctx is cancelled. It is the
// idiomatic translation of the spec's cooperative poll(cx): instead of
// returning Poll::Pending, it blocks on a select across every input and
// calls Poll whenever one of them might have new data, then loops.
//
// Dropping every NetworkHandle does not, by itself, stop Run — matching
// the spec's cancellation note that termination is driven by the caller
// cancelling ctx, not by handle lifetime.
func (s *NetworkState) Run(ctx context.Context) {
	if s.cmds == nil {
		s.Handle()
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
			s.Poll()
		case <-ticker.C:
			// Periodic tick drives discovery-event, fetcher-action, and
			// pending-response polling even when no command arrives —
			// these sources have no channel NetworkState's task can
			// select on directly without risking starvation of the
			// others, so Poll is invoked on a short cadence instead.
			s.Poll()
		}
	}
}

func (s *NetworkState) handleCommand(cmd Command) {
	switch c := cmd.(type) {
	case AddPeerAddress:
		s.peers.AddDiscoveredNode(c.Peer, c.Addr)
	case DisconnectPeerCmd:
		s.emit(Disconnect{Peer: c.Peer, Reason: c.Reason})
	case EventListenerCmd:
		s.feed.subscribe(c.Sink)
	case AnnounceBlockCmd:
		hash := c.Block.Hash
		number := uint64(0)
		if c.Block.Block != nil && c.Block.Block.Header != nil {
			number = c.Block.Block.Header.Number
		}
		s.AnnounceNewBlock(c.Block)
		s.AnnounceNewBlockHash(hash, number)
	case SendPooledTransactionHashesCmd:
		// Routed to TransactionsManager in a full deployment; NetworkState
		// itself has no transaction-cache state, so this is a no-op here.
	case EthRequestCmd:
		s.HandleBlockRequest(c.Peer, c.Request)
	case ReputationChangeCmd:
		s.peers.ApplyReputationChange(c.Peer, c.Change)
	case FetchClientCmd:
		select {
		case c.Reply <- s.fetcher.Client():
		default:
		}
	case StatusUpdateCmd:
		s.localStatus = &localStatus{height: c.Height, hash: c.Hash, totalDifficulty: c.TotalDifficulty}
	case SendTransactionCmd:
		// See SendPooledTransactionHashesCmd: propagation itself lives in
		// TransactionsManager.
	case PeerByIDCmd:
		var info *PeerInfo
		if ap, ok := s.activePeers[c.Peer]; ok {
			info = &PeerInfo{Peer: c.Peer, Capabilities: ap.Capabilities, BestHash: ap.BestHash}
		}
		select {
		case c.Reply <- info:
		default:
		}
	case AllPeersCmd:
		infos := make([]*PeerInfo, 0, len(s.activePeers))
		for id, ap := range s.activePeers {
			infos = append(infos, &PeerInfo{Peer: id, Capabilities: ap.Capabilities, BestHash: ap.BestHash})
		}
		select {
		case c.Reply <- infos:
		default:
		}
	}
}
