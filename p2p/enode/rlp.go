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

package enode

import (
	"io"
	"net"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// EncodeRLP implements rlp.Encoder. The wire form is a 4-element list:
// octets (4-byte or 16-byte address string), udp port, tcp port, id.
func (n NodeRecord) EncodeRLP(w io.Writer) error {
	octets, err := addressOctets(n.Address)
	if err != nil {
		return err
	}
	return rlp.Encode(w, []interface{}{
		octets,
		n.UDPPort,
		n.TCPPort,
		n.ID[:],
	})
}

// DecodeRLP implements rlp.Decoder. Additional trailing list items beyond
// the four known fields are tolerated and skipped, matching the historical
// ENR wire shape where extra key/value pairs may follow.
func (n *NodeRecord) DecodeRLP(s *rlp.Stream) error {
	if _, err := s.List(); err != nil {
		return errors.Wrap(err, "enode: expected list")
	}

	octets, err := s.Bytes()
	if err != nil {
		return errors.Wrap(err, "enode: decode address octets")
	}
	addr, err := octetsToIP(octets)
	if err != nil {
		return err
	}

	udpPort, err := s.Uint()
	if err != nil {
		return errors.Wrap(err, "enode: decode udp port")
	}
	tcpPort, err := s.Uint()
	if err != nil {
		return errors.Wrap(err, "enode: decode tcp port")
	}
	idBytes, err := s.Bytes()
	if err != nil {
		return errors.Wrap(err, "enode: decode id")
	}
	if len(idBytes) != IDLength {
		return errors.Errorf("enode: invalid id length %d, expected %d", len(idBytes), IDLength)
	}

	// Skip any trailing list items the sender included (future-proofing,
	// mirrors how ENR consumers skip unknown key/value pairs).
	for {
		if err := s.ListEnd(); err == nil {
			break
		}
		if _, err := s.Raw(); err != nil {
			return errors.Wrap(err, "enode: skip trailing list item")
		}
	}

	n.Address = addr
	n.UDPPort = uint16(udpPort)
	n.TCPPort = uint16(tcpPort)
	copy(n.ID[:], idBytes)
	return nil
}

// addressOctets produces the 4-byte or 16-byte wire representation of addr.
func addressOctets(addr net.IP) ([]byte, error) {
	if v4 := addr.To4(); v4 != nil {
		return []byte(v4), nil
	}
	if v6 := addr.To16(); v6 != nil {
		return []byte(v6), nil
	}
	return nil, errors.New("enode: address is neither IPv4 nor IPv6")
}

// octetsToIP parses the wire address representation, mapping an
// IPv4-in-IPv6 encoded address back down to its IPv4 form.
func octetsToIP(octets []byte) (net.IP, error) {
	switch len(octets) {
	case net.IPv4len:
		return net.IP(octets).To4(), nil
	case net.IPv6len:
		ip := net.IP(octets)
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return ip, nil
	default:
		return nil, errors.Errorf("enode: unknown address octet length %d", len(octets))
	}
}
