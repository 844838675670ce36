package ruler

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

func TestFieldMatchOperators(t *testing.T) {
	tests := []struct {
		name     string
		pf       schc.Field
		rf       schc.RuleField
		expected bool
	}{
		{
			name:     "ignore always matches",
			pf:       field("f", buf([]byte{0xab}, 8)),
			rf:       schc.RuleField{ID: "f", MO: schc.Ignore},
			expected: true,
		},
		{
			name:     "equal on identical bits",
			pf:       field("f", buf([]byte{0xab}, 8)),
			rf:       schc.RuleField{ID: "f", Length: 8, MO: schc.Equal, Target: buf([]byte{0xab}, 8)},
			expected: true,
		},
		{
			name:     "equal on differing bits",
			pf:       field("f", buf([]byte{0xab}, 8)),
			rf:       schc.RuleField{ID: "f", Length: 8, MO: schc.Equal, Target: buf([]byte{0xac}, 8)},
			expected: false,
		},
		{
			name:     "equal on differing ids",
			pf:       field("g", buf([]byte{0xab}, 8)),
			rf:       schc.RuleField{ID: "f", Length: 8, MO: schc.Equal, Target: buf([]byte{0xab}, 8)},
			expected: false,
		},
		{
			name:     "MSB pattern matches",
			pf:       field("f", buf([]byte{0xab, 0xcd}, 16)),
			rf:       schc.RuleField{ID: "f", Length: 16, MO: schc.MSB, Target: buf([]byte{0xab}, 8)},
			expected: true,
		},
		{
			name:     "MSB pattern mismatch",
			pf:       field("f", buf([]byte{0xac, 0xcd}, 16)),
			rf:       schc.RuleField{ID: "f", Length: 16, MO: schc.MSB, Target: buf([]byte{0xab}, 8)},
			expected: false,
		},
		{
			name:     "MSB field shorter than pattern",
			pf:       field("f", buf([]byte{0x0a}, 4)),
			rf:       schc.RuleField{ID: "f", MO: schc.MSB, Target: buf([]byte{0xab}, 8)},
			expected: false,
		},
		{
			name: "mapping hit",
			pf:   field("f", buf([]byte{0x8d, 0x43}, 16)),
			rf: schc.RuleField{ID: "f", Length: 16, MO: schc.MatchMapping, Mapping: []bitbuf.Buffer{
				buf([]byte{0xd1, 0x59}, 16), buf([]byte{0x8d, 0x43}, 16),
			}},
			expected: true,
		},
		{
			name: "mapping miss",
			pf:   field("f", buf([]byte{0x00, 0x01}, 16)),
			rf: schc.RuleField{ID: "f", Length: 16, MO: schc.MatchMapping, Mapping: []bitbuf.Buffer{
				buf([]byte{0xd1, 0x59}, 16),
			}},
			expected: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, fieldMatch(tt.pf, tt.rf))
		})
	}
}

func testContext() schc.Context {
	narrow := schc.RuleDescriptor{
		ID: bitbuf.FromUint(0, 2),
		Fields: []schc.RuleField{
			{ID: "a", Length: 8, Direction: schc.Bidirectional, MO: schc.Equal,
				Target: buf([]byte{0x11}, 8), Action: schc.NotSent},
			{ID: "b", Length: 8, Direction: schc.Bidirectional, MO: schc.Equal,
				Target: buf([]byte{0x22}, 8), Action: schc.NotSent},
		},
	}
	wide := schc.RuleDescriptor{
		ID: bitbuf.FromUint(1, 2),
		Fields: []schc.RuleField{
			{ID: "a", Length: 8, Direction: schc.Bidirectional, MO: schc.Ignore, Action: schc.ValueSent},
			{ID: "b", Length: 8, Direction: schc.Bidirectional, MO: schc.Ignore, Action: schc.ValueSent},
		},
	}
	directional := schc.RuleDescriptor{
		ID: bitbuf.FromUint(2, 2),
		Fields: []schc.RuleField{
			{ID: "a", Length: 8, Direction: schc.Up, MO: schc.Ignore, Action: schc.ValueSent},
			{ID: "a", Length: 8, Direction: schc.Down, MO: schc.Ignore, Action: schc.ValueSent},
		},
	}
	fallback := schc.RuleDescriptor{ID: bitbuf.FromUint(3, 2), Nature: schc.NoCompression}
	return schc.Context{
		ID: "test", ParserID: "IPv6-UDP", RuleIDLength: 2,
		Rules: []schc.RuleDescriptor{narrow, wide, directional, fallback},
	}
}

func TestMatchPacketFirstHit(t *testing.T) {
	r := New(testContext())

	pd := schc.PacketDescriptor{Direction: schc.Up, Fields: []schc.Field{
		field("a", buf([]byte{0x11}, 8)),
		field("b", buf([]byte{0x22}, 8)),
	}}
	rule, err := r.MatchPacket(pd)
	require.NoError(t, err)
	assert.True(t, rule.ID.Equal(bitbuf.FromUint(0, 2)))

	// A near miss falls through to the wide rule, not the default.
	pd.Fields[1] = field("b", buf([]byte{0x23}, 8))
	rule, err = r.MatchPacket(pd)
	require.NoError(t, err)
	assert.True(t, rule.ID.Equal(bitbuf.FromUint(1, 2)))
}

func TestMatchPacketDirectionResolution(t *testing.T) {
	// The directional rule has one entry per direction for field "a";
	// only the one for the packet's direction participates.
	ctx := testContext()
	ctx.Rules = []schc.RuleDescriptor{ctx.Rules[2], ctx.Rules[3]}
	r := New(ctx)

	pd := schc.PacketDescriptor{Direction: schc.Down, Fields: []schc.Field{
		field("a", buf([]byte{0x99}, 8)),
	}}
	rule, err := r.MatchPacket(pd)
	require.NoError(t, err)
	assert.True(t, rule.ID.Equal(bitbuf.FromUint(2, 2)))
}

func TestMatchPacketDefaultFallback(t *testing.T) {
	r := New(testContext())

	pd := schc.PacketDescriptor{Direction: schc.Up, Fields: []schc.Field{
		field("z", buf([]byte{0x00}, 8)),
	}}
	rule, err := r.MatchPacket(pd)
	require.NoError(t, err)
	assert.True(t, rule.IsDefault())
}

func TestMatchPacketNoRule(t *testing.T) {
	ctx := testContext()
	ctx.Rules = ctx.Rules[:1] // drop the default
	r := New(ctx)

	pd := schc.PacketDescriptor{Direction: schc.Up, Fields: []schc.Field{
		field("z", buf([]byte{0x00}, 8)),
	}}
	_, err := r.MatchPacket(pd)
	assert.ErrorIs(t, err, schc.ErrNoRule)
}

func TestMatchStream(t *testing.T) {
	r := New(testContext())

	packet := bitbuf.FromUint(1, 2).Append(bitbuf.FromBytes([]byte{0xab, 0xcd}))
	rule, err := r.MatchStream(packet)
	require.NoError(t, err)
	assert.True(t, rule.ID.Equal(bitbuf.FromUint(1, 2)))

	_, err = r.MatchStream(bitbuf.FromUint(1, 1))
	assert.ErrorIs(t, err, schc.ErrResidueUnderrun)
}
