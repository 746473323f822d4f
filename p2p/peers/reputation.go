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

package peers

// ReputationChangeKind is a closed set of reasons a peer's reputation score
// can be adjusted. The core never exposes raw scores; callers only ever
// name a kind and the PeersManager is responsible for translating that into
// an internal number and, eventually, a ban or disconnect.
type ReputationChangeKind int

const (
	// BadTransactions is applied when a peer sends malformed transactions.
	BadTransactions ReputationChangeKind = iota
	// BadBlock is applied when a peer's block response fails validation.
	BadBlock
	// BadMessage is applied for any other protocol violation.
	BadMessage
	// BadResponse is applied for an invalid or unusable block/body response.
	BadResponse
	// Timeout is applied when a request to the peer timed out.
	Timeout
	// Reset is applied when the peer's reputation should return to neutral,
	// e.g. after a fresh session is established.
	Reset
)

func (k ReputationChangeKind) String() string {
	switch k {
	case BadTransactions:
		return "BadTransactions"
	case BadBlock:
		return "BadBlock"
	case BadMessage:
		return "BadMessage"
	case BadResponse:
		return "BadResponse"
	case Timeout:
		return "Timeout"
	case Reset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// weight returns the score delta a ReputationChangeKind contributes. All
// weights are negative except Reset, which snaps the score back to zero.
// Against the default ban threshold of -1024, two BadBlock reports or
// sixteen BadMessage reports are enough for a ban, matching the "negative
// accumulation triggers disconnection/ban" behavior described for the core.
func (k ReputationChangeKind) weight() int {
	switch k {
	case BadTransactions:
		return -16
	case BadBlock:
		return -512
	case BadMessage:
		return -64
	case BadResponse:
		return -128
	case Timeout:
		return -32
	case Reset:
		return 0
	default:
		return 0
	}
}
