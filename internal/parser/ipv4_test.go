package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

func ipv4Header() []byte {
	return []byte{
		0x45, 0x00, 0x00, 0x1c, // version 4, IHL 5, ToS 0, total length 28
		0x12, 0x34, 0x00, 0x00, // identification, flags, fragment offset
		0x40, 0x11, 0xe5, 0x49, // TTL 64, UDP, checksum
		192, 168, 1, 1,
		192, 168, 1, 2,
	}
}

func TestIPv4ParseFieldOrder(t *testing.T) {
	hd, err := NewIPv4().Parse(bitbuf.FromBytes(ipv4Header()))
	require.NoError(t, err)

	assert.Equal(t, ipv4MinHeaderBits, hd.Length)
	assert.Equal(t, ProtoUDP, hd.Next)

	expected := []struct {
		id     string
		length int
		value  uint64
	}{
		{IPv4Version, 4, 4},
		{IPv4HeaderLength, 4, 5},
		{IPv4TypeOfService, 8, 0},
		{IPv4TotalLength, 16, 28},
		{IPv4Identification, 16, 0x1234},
		{IPv4Flags, 3, 0},
		{IPv4FragmentOffset, 13, 0},
		{IPv4TimeToLive, 8, 64},
		{IPv4Protocol, 8, 17},
		{IPv4HeaderChecksum, 16, 0xe549},
		{IPv4SrcAddress, 32, 0xc0a80101},
		{IPv4DstAddress, 32, 0xc0a80102},
	}
	require.Len(t, hd.Fields, len(expected))
	for i, e := range expected {
		assert.Equal(t, e.id, hd.Fields[i].ID, "field %d", i)
		assert.Equal(t, e.length, hd.Fields[i].Value.Len(), "field %d", i)
		v, err := hd.Fields[i].Value.Uint()
		require.NoError(t, err)
		assert.Equal(t, e.value, v, "field %d", i)
	}
}

func TestIPv4ParseOptions(t *testing.T) {
	h := ipv4Header()
	h[0] = 0x46 // IHL 6
	h = append(h, 0x01, 0x01, 0x01, 0x00)

	hd, err := NewIPv4().Parse(bitbuf.FromBytes(h))
	require.NoError(t, err)

	assert.Equal(t, 192, hd.Length)
	last := hd.Fields[len(hd.Fields)-1]
	assert.Equal(t, IPv4Options, last.ID)
	assert.Equal(t, 32, last.Value.Len())
}

func TestIPv4ParseErrors(t *testing.T) {
	_, err := NewIPv4().Parse(bitbuf.FromBytes(ipv4Header()[:10]))
	assert.ErrorIs(t, err, schc.ErrTruncated)

	bad := ipv4Header()
	bad[0] = 0x42 // IHL 2
	_, err = NewIPv4().Parse(bitbuf.FromBytes(bad))
	assert.ErrorIs(t, err, schc.ErrMalformed)

	wrong := ipv4Header()
	wrong[0] = 0x65
	_, err = NewIPv4().Parse(bitbuf.FromBytes(wrong))
	assert.ErrorIs(t, err, schc.ErrMalformed)
}
