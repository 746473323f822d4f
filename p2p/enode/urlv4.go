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
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// Parse decodes the "enode://<id>@<ip>:<tcp>[?discport=<udp>]" textual form
// of a node record. Only the discport query parameter is recognized; any
// other query parameter is silently ignored. If discport is absent, the UDP
// port defaults to the TCP port.
func Parse(rawurl string) (NodeRecord, error) {
	var rec NodeRecord

	u, err := url.Parse(rawurl)
	if err != nil {
		return rec, errors.Wrap(err, "enode: invalid URL")
	}
	if u.Scheme != "enode" {
		return rec, errors.Errorf("enode: invalid scheme %q", u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return rec, errors.New("enode: missing node id")
	}
	id, err := ParseID(u.User.Username())
	if err != nil {
		return rec, err
	}

	host := u.Hostname()
	if host == "" {
		return rec, errors.New("enode: missing host")
	}
	ip := net.ParseIP(host)
	if ip == nil {
		// u.Hostname returns the host as a plain string, so a dotted-decimal
		// IPv4 address parses above like any other IP literal. Anything
		// net.ParseIP rejects, including a DNS name, is an error; names are
		// not resolved.
		return rec, errors.Errorf("enode: invalid host %q", host)
	}

	portStr := u.Port()
	if portStr == "" {
		return rec, errors.New("enode: missing port")
	}
	tcpPort, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return rec, errors.Wrap(err, "enode: invalid tcp port")
	}

	udpPort := tcpPort
	if disc := u.Query().Get("discport"); disc != "" {
		udpPort, err = strconv.ParseUint(disc, 10, 16)
		if err != nil {
			return rec, errors.Wrap(err, "enode: invalid discport")
		}
	}

	rec.Address = ip
	rec.ID = id
	rec.TCPPort = uint16(tcpPort)
	rec.UDPPort = uint16(udpPort)
	return rec, nil
}

// MustParse is like Parse but panics on error.
func MustParse(rawurl string) NodeRecord {
	rec, err := Parse(rawurl)
	if err != nil {
		panic(err)
	}
	return rec
}

// String renders the node record as an "enode://" URL. The "?discport="
// suffix is emitted only when the UDP port differs from the TCP port.
func (n NodeRecord) String() string {
	s := fmt.Sprintf("enode://%s@%s:%d", n.ID.String(), n.hostString(), n.TCPPort)
	if n.TCPPort != n.UDPPort {
		s += fmt.Sprintf("?discport=%d", n.UDPPort)
	}
	return s
}

// hostString formats the address the way net.IP.String would, without
// zone information — matching how the URL host component was produced.
func (n NodeRecord) hostString() string {
	if n.Address == nil {
		return "<nil>"
	}
	return n.Address.String()
}
