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
	"github.com/corenet-chain/corenet/p2p/enode"
	"github.com/corenet-chain/corenet/p2p/wire"
)

// SessionManager is the node's session-dispatch layer: the piece the spec
// leaves as "an opaque ready channel pair" for the RLPx handshake, made
// concrete here as the glue between a freshly negotiated Transport and the
// two single-task owners, NetworkState and TransactionsManager, that need
// a channel into it. It mirrors the teacher's ProtocolManager wiring a
// peerSet entry's broadcast loops into the running protocol manager on
// Register.
type SessionManager struct {
	state    *NetworkState
	txm      *TransactionsManager
	sessions *sessionSet
}

// NewSessionManager builds a SessionManager wiring newly activated
// sessions into state and txm.
func NewSessionManager(state *NetworkState, txm *TransactionsManager) *SessionManager {
	return &SessionManager{
		state:    state,
		txm:      txm,
		sessions: newSessionSet(),
	}
}

// Activate is called once a peer's eth sub-protocol handshake has
// completed: version, caps and status are the negotiated values, and
// transport is the ready-to-use wire connection. It builds the Session,
// starts its broadcast loop, and registers the resulting request channels
// with NetworkState and TransactionsManager exactly as spec §4.E/§4.G
// expect on session activation.
func (sm *SessionManager) Activate(id enode.ID, version int, transport Transport, caps wire.Capabilities, status wire.Status) (*Session, error) {
	session := NewSession(id, version, transport)
	if err := sm.sessions.Register(session); err != nil {
		return nil, err
	}
	sm.state.OnSessionActivated(id, caps, status, session.RequestChan())
	sm.txm.RegisterSession(id, session.TxChan())
	return session, nil
}

// Deactivate tears down id's session: its broadcast loop is stopped and
// both NetworkState and TransactionsManager are informed (the latter via
// NetworkState's SessionClosed event, which TransactionsManager already
// subscribes to).
func (sm *SessionManager) Deactivate(id enode.ID) error {
	if err := sm.sessions.Unregister(id); err != nil {
		return err
	}
	sm.state.OnSessionClosed(id)
	return nil
}

// Session looks up the live session for id, or nil if it has none.
func (sm *SessionManager) Session(id enode.ID) *Session {
	return sm.sessions.Session(id)
}

// Len returns the number of currently registered sessions.
func (sm *SessionManager) Len() int {
	return sm.sessions.Len()
}

// Close tears down every registered session.
func (sm *SessionManager) Close() {
	sm.sessions.Close()
}
