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

// Package enode implements the peer identity and node-record types shared by
// every component of the network core: the 64-byte PeerId and the
// NodeRecord that pairs an id with the addresses needed to dial it.
package enode

import (
	"encoding/hex"
	"net"

	"github.com/pkg/errors"
)

// IDLength is the length in bytes of an uncompressed secp256k1 public key
// with the leading format byte stripped — the canonical peer identifier
// used throughout the devp2p wire protocols.
const IDLength = 64

// ID is a 64-byte public-key identifier for a peer. Equality of ID values
// defines peer identity throughout the network core.
type ID [IDLength]byte

// Bytes returns the identifier as a byte slice.
func (id ID) Bytes() []byte { return id[:] }

// String returns the 128-character lowercase hex encoding of id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID parses a 128-character hex string into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "enode: invalid id hex")
	}
	if len(b) != IDLength {
		return id, errors.Errorf("enode: invalid id length %d, expected %d", len(b), IDLength)
	}
	copy(id[:], b)
	return id, nil
}

// MustParseID is like ParseID but panics on error. Intended for use with
// string literals in tests and static configuration.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NodeRecord is the address book entry for a single peer: where to dial it
// (TCP for RLPx sessions, UDP for discovery) and its identity.
//
// NodeRecord round-trips through two external representations: the
// "enode://" URL (Parse / String, see urlv4.go) and a length-prefixed RLP
// encoding (EncodeRLP / DecodeRLP, see rlp.go).
type NodeRecord struct {
	Address net.IP
	TCPPort uint16
	UDPPort uint16
	ID      ID
}

// New builds a NodeRecord with both ports set to the given TCP port, the
// same default the original socket-address constructor uses before a
// discovery-advertised UDP port (if any) overrides it.
func New(addr net.IP, tcpPort uint16, id ID) NodeRecord {
	return NodeRecord{Address: addr, TCPPort: tcpPort, UDPPort: tcpPort, ID: id}
}

// TCPEndpoint returns the TCP dial address for RLPx sessions.
func (n NodeRecord) TCPEndpoint() *net.TCPAddr {
	return &net.TCPAddr{IP: n.Address, Port: int(n.TCPPort)}
}

// UDPEndpoint returns the UDP address used for discovery traffic.
func (n NodeRecord) UDPEndpoint() *net.UDPAddr {
	return &net.UDPAddr{IP: n.Address, Port: int(n.UDPPort)}
}
