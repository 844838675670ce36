package compressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

func buf(data []byte, length int) bitbuf.Buffer {
	return bitbuf.New(data, length, bitbuf.Left)
}

func field(id string, value bitbuf.Buffer) schc.Field {
	return schc.Field{ID: id, Length: value.Len(), Value: value}
}

func TestCompressNotSentEmitsNothing(t *testing.T) {
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 16, Direction: schc.Bidirectional, MO: schc.Equal,
				Target: buf([]byte{0xab, 0xcd}, 16), Action: schc.NotSent},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("a", buf([]byte{0xab, 0xcd}, 16))},
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	assert.True(t, out.Equal(bitbuf.FromUint(1, 3)))
}

func TestCompressValueSentFixed(t *testing.T) {
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 16, Direction: schc.Bidirectional, MO: schc.Ignore, Action: schc.ValueSent},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("a", buf([]byte{0xab, 0xcd}, 16))},
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	assert.Equal(t, 19, out.Len())
	expected := bitbuf.FromUint(1, 3).Append(buf([]byte{0xab, 0xcd}, 16))
	assert.True(t, out.Equal(expected))
}

func TestCompressValueSentVariable(t *testing.T) {
	// A 2-byte variable field travels behind a 4-bit byte count.
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 0, Direction: schc.Bidirectional, MO: schc.Ignore, Action: schc.ValueSent},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("a", buf([]byte{0xab, 0xcd}, 16))},
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	expected := bitbuf.Concat(bitbuf.FromUint(1, 3), bitbuf.FromUint(2, 4), buf([]byte{0xab, 0xcd}, 16))
	assert.True(t, out.Equal(expected))
}

func TestCompressLSBResidue(t *testing.T) {
	// Field 0xABCD with an 8-bit MSB pattern leaves residue 0xCD.
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 16, Direction: schc.Bidirectional, MO: schc.MSB,
				Target: buf([]byte{0xab}, 8), Action: schc.LSB},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("a", buf([]byte{0xab, 0xcd}, 16))},
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	assert.Equal(t, 11, out.Len())
	expected := bitbuf.FromUint(1, 3).Append(buf([]byte{0xcd}, 8))
	assert.True(t, out.Equal(expected))
}

func TestCompressMappingSent(t *testing.T) {
	// Five entries need 3 index bits; value 0x1f0a sits at index 4.
	mapping := []bitbuf.Buffer{
		buf([]byte{0xd1, 0x59}, 16),
		buf([]byte{0x21, 0x50}, 16),
		buf([]byte{0x8d, 0x43}, 16),
		buf([]byte{0x37, 0x09}, 16),
		buf([]byte{0x1f, 0x0a}, 16),
	}
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "token", Length: 16, Direction: schc.Bidirectional, MO: schc.MatchMapping,
				Mapping: mapping, Action: schc.MappingSent},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("token", buf([]byte{0x1f, 0x0a}, 16))},
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	assert.Equal(t, 6, out.Len())
	expected := bitbuf.FromUint(1, 3).Append(bitbuf.FromUint(4, 3))
	assert.True(t, out.Equal(expected))

	// A value outside the mapping cannot be compressed with this rule.
	pd.Fields[0] = field("token", buf([]byte{0x00, 0x00}, 16))
	_, err = Compress(pd, rule)
	assert.ErrorIs(t, err, schc.ErrMappingOutOfRange)
}

func TestCompressAppendsPayload(t *testing.T) {
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(2, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 8, Direction: schc.Bidirectional, MO: schc.Equal,
				Target: buf([]byte{0x42}, 8), Action: schc.NotSent},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("a", buf([]byte{0x42}, 8))},
		Payload:   bitbuf.FromBytes([]byte{0x01, 0x02}),
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	assert.Equal(t, 19, out.Len())
	expected := bitbuf.FromUint(2, 3).Append(bitbuf.FromBytes([]byte{0x01, 0x02}))
	assert.True(t, out.Equal(expected))
	// The wire form right-pads the final byte with zeros:
	// 010 00000001 00000010 00000.
	assert.Equal(t, []byte{0x40, 0x20, 0x40}, out.ByteAligned())
}

func TestCompressDirectionFiltering(t *testing.T) {
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 8, Direction: schc.Up, MO: schc.Ignore, Action: schc.ValueSent},
			{ID: "a", Length: 8, Direction: schc.Down, MO: schc.Equal,
				Target: buf([]byte{0x11}, 8), Action: schc.NotSent},
		},
	}
	pd := schc.PacketDescriptor{
		Direction: schc.Up,
		Fields:    []schc.Field{field("a", buf([]byte{0x77}, 8))},
	}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	expected := bitbuf.FromUint(1, 3).Append(buf([]byte{0x77}, 8))
	assert.True(t, out.Equal(expected))
}

func TestCompressNoCompressionRule(t *testing.T) {
	raw := bitbuf.FromBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	rule := schc.RuleDescriptor{ID: bitbuf.FromUint(7, 3), Nature: schc.NoCompression}
	pd := schc.PacketDescriptor{Direction: schc.Up, Raw: raw}

	out, err := Compress(pd, rule)
	require.NoError(t, err)
	assert.Equal(t, 35, out.Len())
	assert.True(t, out.Equal(bitbuf.FromUint(7, 3).Append(raw)))
}

func TestCompressFieldCountMismatch(t *testing.T) {
	rule := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 3),
		Fields: []schc.RuleField{
			{ID: "a", Length: 8, Direction: schc.Bidirectional, MO: schc.Ignore, Action: schc.ValueSent},
		},
	}
	pd := schc.PacketDescriptor{Direction: schc.Up}

	_, err := Compress(pd, rule)
	assert.ErrorIs(t, err, schc.ErrNoMatch)
}

func TestEncodeLength(t *testing.T) {
	tests := []struct {
		nbytes   int
		expected bitbuf.Buffer
	}{
		{0, bitbuf.FromUint(0, 4)},
		{14, bitbuf.FromUint(14, 4)},
		{15, bitbuf.FromUint(0xf0f, 12)},
		{254, bitbuf.FromUint(0xffe, 12)},
		{255, bitbuf.FromUint(0xfff, 12).Append(bitbuf.FromUint(255, 16))},
		{65534, bitbuf.FromUint(0xfff, 12).Append(bitbuf.FromUint(65534, 16))},
	}
	for _, tt := range tests {
		out, err := EncodeLength(tt.nbytes)
		require.NoError(t, err, "nbytes %d", tt.nbytes)
		assert.True(t, out.Equal(tt.expected), "nbytes %d: got %s", tt.nbytes, out)
	}

	_, err := EncodeLength(65535)
	assert.ErrorIs(t, err, schc.ErrLengthPrefixInvalid)
}
