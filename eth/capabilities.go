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

import "github.com/ethereum/go-ethereum/common"

// ChainReader is the single capability NetworkState needs from the local
// chain: resolving a block hash to its number, used to validate a peer's
// handshake Status and to seed StateFetcher's per-peer head.
type ChainReader interface {
	// BlockNumber returns the number of hash and whether it is known
	// locally.
	BlockNumber(hash common.Hash) (number uint64, ok bool)
}

// TransactionPool is the capability set TransactionsManager needs from the
// local transaction pool. RecoveredTx is left abstract (an interface that
// exposes only Hash) because the
// pool's concrete signed-transaction type is outside this module's scope;
// NetworkState and TransactionsManager only ever move it opaquely between
// the wire layer and the pool.
type TransactionPool interface {
	// PendingHashes returns every transaction hash currently sitting in
	// the pool, used to seed a freshly connected peer's
	// NewPooledTransactionHashes announcement.
	PendingHashes() []common.Hash

	// GetAll looks up the on-wire signed form for each of hashes,
	// omitting any that are unknown.
	GetAll(hashes []common.Hash) []RecoveredTx

	// RetainUnknown mutates hashes in place, keeping only the ones the
	// pool does not already have.
	RetainUnknown(hashes []common.Hash) []common.Hash

	// FromRecoveredTransaction converts an ECDSA-recovered signed
	// transaction into the pool's internal representation.
	FromRecoveredTransaction(tx RecoveredTx) PooledTx

	// AddExternalTransaction submits tx (received from peer) for
	// validation and admission. The result is delivered asynchronously
	// via the returned channel: a nil error on success.
	AddExternalTransaction(tx PooledTx) <-chan error

	// OnPropagated reports, for bookkeeping/metrics, which peers each
	// hash was sent to and how (full transaction vs hash-only).
	OnPropagated(propagated PropagatedTransactions)
}

// RecoveredTx is the wire-decoded, ECDSA-recovered form of a signed
// transaction as it arrives from a peer.
type RecoveredTx interface {
	Hash() common.Hash
}

// PooledTx is the pool's internal transaction representation, as produced
// by TransactionPool.FromRecoveredTransaction and consumed by
// TransactionPool.AddExternalTransaction.
type PooledTx interface {
	Hash() common.Hash
}
