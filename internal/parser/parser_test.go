package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowpan.xyz/schc/pkg/schc"
)

// testPacket is a 60-byte IPv6/UDP/CoAP packet with a consistent UDP
// checksum.
func testPacket() []byte {
	packet := ipv6Header(20)
	packet = append(packet, 0xd1, 0x10, 0x16, 0x33, 0x00, 0x14, 0x9d, 0x1b)
	packet = append(packet, 0x52, 0x02, 0x84, 0x99, 0x82, 0xf7, 0xff)
	return append(packet, 'a', 'b', 'c', 'd', 'e')
}

func TestStackParse(t *testing.T) {
	p, err := Factory("IPv6-UDP-CoAP")
	require.NoError(t, err)

	pd, err := p.Parse(testPacket(), schc.Up)
	require.NoError(t, err)

	// 8 IPv6 + 4 UDP + 7 CoAP fields, then the CoAP payload.
	assert.Len(t, pd.Fields, 19)
	assert.Equal(t, schc.Up, pd.Direction)
	assert.Equal(t, 40, pd.Payload.Len())

	assert.Equal(t, IPv6Version, pd.Fields[0].ID)
	assert.Equal(t, UDPSourcePort, pd.Fields[8].ID)
	assert.Equal(t, CoAPVersion, pd.Fields[12].ID)
	assert.Equal(t, CoAPPayloadMarker, pd.Fields[18].ID)
}

func TestStackParseSerialiseIdempotent(t *testing.T) {
	p, err := Factory("IPv6-UDP-CoAP")
	require.NoError(t, err)

	data := testPacket()
	pd, err := p.Parse(data, schc.Up)
	require.NoError(t, err)

	// Serialising the descriptor reproduces the input bytes.
	assert.Equal(t, data, pd.Bytes())

	// Parsing the serialised form yields the same descriptor.
	again, err := p.Parse(pd.Bytes(), schc.Up)
	require.NoError(t, err)
	require.Len(t, again.Fields, len(pd.Fields))
	for i := range pd.Fields {
		assert.Equal(t, pd.Fields[i].ID, again.Fields[i].ID)
		assert.True(t, pd.Fields[i].Value.Equal(again.Fields[i].Value), "field %s", pd.Fields[i].ID)
	}
	assert.True(t, pd.Payload.Equal(again.Payload))
}

func TestDynamicParseFollowsHints(t *testing.T) {
	p := NewDynamicParser("auto", ProtoIPv6)

	pd, err := p.Parse(testPacket(), schc.Up)
	require.NoError(t, err)

	// IPv6 hints UDP, UDP's CoAP port hints CoAP.
	assert.Len(t, pd.Fields, 19)
	assert.Equal(t, CoAPPayloadMarker, pd.Fields[18].ID)
}

func TestDynamicParseStopsOnUnknownProtocol(t *testing.T) {
	packet := ipv6Header(4)
	packet[6] = 59 // next header: no next header
	packet = append(packet, 0x01, 0x02, 0x03, 0x04)

	p := NewDynamicParser("auto", ProtoIPv6)
	pd, err := p.Parse(packet, schc.Up)
	require.NoError(t, err)

	assert.Len(t, pd.Fields, 8)
	assert.Equal(t, 32, pd.Payload.Len())
}

func TestFactoryUnknownStack(t *testing.T) {
	_, err := Factory("IPv6-QUIC")
	assert.ErrorIs(t, err, schc.ErrUnknownParser)
}

func TestParseErrorCarriesOffset(t *testing.T) {
	// Valid IPv6 header followed by a truncated UDP header.
	packet := append(ipv6Header(8), 0xd1, 0x10)

	p, err := Factory("IPv6-UDP")
	require.NoError(t, err)

	_, err = p.Parse(packet, schc.Up)
	require.Error(t, err)
	var pe *schc.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, UDPHeaderID, pe.Header)
	assert.Equal(t, 320, pe.Offset)
}
