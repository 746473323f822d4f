package enode

import (
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleIDHex = "6f8a80d14311c39f35f516fa664deaaaa13e85b2f7493f37f6144d86991ec012937307647bd3b9a82abe2974e1407241d54947bbb39763a4cac9f77166ad92a0"

// S1: NodeRecord parse, IPv4+discport.
func TestParseIPv4WithDiscport(t *testing.T) {
	url := "enode://" + sampleIDHex + "@10.3.58.6:30303?discport=30301"
	rec, err := Parse(url)
	require.NoError(t, err)

	assert.Equal(t, net.ParseIP("10.3.58.6").To4(), rec.Address.To4())
	assert.Equal(t, uint16(30303), rec.TCPPort)
	assert.Equal(t, uint16(30301), rec.UDPPort)
	assert.Equal(t, MustParseID(sampleIDHex), rec.ID)

	assert.Equal(t, url, rec.String())
}

// S2: display omits discport when tcp == udp.
func TestDisplayOmitsDiscportWhenEqual(t *testing.T) {
	url := "enode://" + sampleIDHex + "@10.3.58.6:30303"
	rec, err := Parse(url)
	require.NoError(t, err)
	assert.Equal(t, uint16(30303), rec.UDPPort)
	assert.Equal(t, url, rec.String())
}

func TestDisplayIncludesDiscportWhenDifferent(t *testing.T) {
	url := "enode://" + sampleIDHex + "@10.3.58.6:30303?discport=30301"
	rec, err := Parse(url)
	require.NoError(t, err)
	assert.Equal(t, url, rec.String())
}

func TestParseIgnoresUnknownQueryParams(t *testing.T) {
	url := "enode://" + sampleIDHex + "@10.3.58.6:30303?foo=bar"
	rec, err := Parse(url)
	require.NoError(t, err)
	assert.Equal(t, uint16(30303), rec.UDPPort)
}

func TestParseRejectsMissingID(t *testing.T) {
	_, err := Parse("enode://@10.3.58.6:30303")
	assert.Error(t, err)
}

// Property test (property 4): RLP round-trip for IPv4 and IPv6 records.
func TestRLPRoundTripIPv4(t *testing.T) {
	for _, tc := range []struct {
		ip              net.IP
		tcp, udp uint16
	}{
		{net.IPv4(10, 3, 58, 6), 30303, 30301},
		{net.IPv4(1, 2, 3, 4), 1, 1},
		{net.IPv4(255, 255, 255, 255), 65535, 0},
	} {
		rec := NodeRecord{Address: tc.ip, TCPPort: tc.tcp, UDPPort: tc.udp, ID: MustParseID(sampleIDHex)}
		enc, err := rlp.EncodeToBytes(rec)
		require.NoError(t, err)

		var decoded NodeRecord
		require.NoError(t, rlp.DecodeBytes(enc, &decoded))
		assert.True(t, decoded.Address.Equal(rec.Address))
		assert.Equal(t, rec.TCPPort, decoded.TCPPort)
		assert.Equal(t, rec.UDPPort, decoded.UDPPort)
		assert.Equal(t, rec.ID, decoded.ID)
	}
}

func TestRLPRoundTripIPv6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	rec := NodeRecord{Address: ip, TCPPort: 30303, UDPPort: 30303, ID: MustParseID(sampleIDHex)}
	enc, err := rlp.EncodeToBytes(rec)
	require.NoError(t, err)

	var decoded NodeRecord
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	assert.True(t, decoded.Address.Equal(rec.Address))
}

// IPv4-mapped IPv6 addresses decode down to plain IPv4.
func TestRLPDecodesIPv4MappedAsIPv4(t *testing.T) {
	mapped := net.ParseIP("::ffff:10.3.58.6")
	// EncodeRLP already writes the 4-byte form, so the 16-byte wire form is
	// built by hand to reach the decoder's IPv4-mapped branch.
	enc, err := rlp.EncodeToBytes([]interface{}{
		[]byte(mapped.To16()),
		uint16(30303),
		uint16(30303),
		MustParseID(sampleIDHex)[:],
	})
	require.NoError(t, err)

	var decoded NodeRecord
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	assert.Equal(t, net.IPv4len, len(decoded.Address))
}

func TestRLPDecodeToleratesTrailingListItems(t *testing.T) {
	rec := NodeRecord{Address: net.IPv4(10, 3, 58, 6), TCPPort: 30303, UDPPort: 30303, ID: MustParseID(sampleIDHex)}
	encoded, err := rlp.EncodeToBytes([]interface{}{
		[]byte(rec.Address.To4()),
		rec.UDPPort,
		rec.TCPPort,
		rec.ID[:],
		"extra-field-future-clients-may-add",
		uint64(42),
	})
	require.NoError(t, err)

	var decoded NodeRecord
	require.NoError(t, rlp.DecodeBytes(encoded, &decoded))
	assert.True(t, decoded.Address.Equal(rec.Address.To4()))
	assert.Equal(t, rec.ID, decoded.ID)
}

func TestRLPDecodeRejectsUnknownOctetLength(t *testing.T) {
	encoded, err := rlp.EncodeToBytes([]interface{}{
		[]byte{1, 2, 3}, // not 4 or 16 bytes
		uint16(1),
		uint16(1),
		MustParseID(sampleIDHex)[:],
	})
	require.NoError(t, err)

	var decoded NodeRecord
	assert.Error(t, rlp.DecodeBytes(encoded, &decoded))
}
