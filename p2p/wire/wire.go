// Copyright 2015 The go-ethereum Authors
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

// Package wire holds the eth sub-protocol data types shared across the
// network core: block headers/bodies, status handshake data, and the
// gossip messages built from them. Block execution and trie semantics are
// out of scope for this module (see spec Non-goals); Header and Body are
// intentionally minimal carriers of the fields the propagation and fetch
// logic actually inspects.
package wire

import "github.com/ethereum/go-ethereum/common"

// Header is the minimal block header the network core reasons about:
// enough to identify a block and its position in the chain.
type Header struct {
	ParentHash common.Hash
	Number     uint64
	Hash       common.Hash
}

// Body is the minimal block body: the transaction hashes it carries.
type Body struct {
	Transactions []common.Hash
}

// Block pairs a header with its body for full-block gossip (NewBlock).
type Block struct {
	Header *Header
	Body   *Body
}

// BlockHashNumber pairs a hash with its block number, the element type of a
// NewBlockHashes announcement.
type BlockHashNumber struct {
	Hash   common.Hash
	Number uint64
}

// NewBlockHashes is a hash-only block announcement.
type NewBlockHashes []BlockHashNumber

// NewBlockMessage is a full-block announcement, ready to hand to the
// propagation algorithm.
type NewBlockMessage struct {
	Hash  common.Hash
	Block *Block
}

// Capabilities is the set of sub-protocol name/version pairs a peer
// advertised during its handshake (e.g. "eth/66", "eth/67").
type Capabilities map[string]uint

// Has reports whether name (e.g. "eth") is advertised at exactly version v.
func (c Capabilities) Has(name string, v uint) bool {
	got, ok := c[name]
	return ok && got == v
}

// Status is the eth sub-protocol handshake payload.
type Status struct {
	ProtocolVersion uint32
	NetworkID       uint64
	GenesisHash     common.Hash
	BlockHash       common.Hash
	BlockNumber     uint64
}

// GetBlockHeadersRequest requests a run of headers starting at Origin.
type GetBlockHeadersRequest struct {
	Origin  common.Hash
	Amount  uint64
	Skip    uint64
	Reverse bool
}

// GetBlockBodiesRequest requests the bodies for a set of hashes.
type GetBlockBodiesRequest struct {
	Hashes []common.Hash
}
