package context

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lowpan.xyz/schc/internal/parser"
	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

func TestTemplateIPv6UDP(t *testing.T) {
	fields, err := Template("IPv6-UDP", map[string]any{
		parser.IPv6NextHeader:     17,
		parser.IPv6HopLimit:       64,
		parser.UDPDestinationPort: 5683,
	})
	require.NoError(t, err)
	require.Len(t, fields, 12)

	// The template default pins the version to 6.
	version := fields[0]
	assert.Equal(t, parser.IPv6Version, version.ID)
	assert.Equal(t, schc.Equal, version.MO)
	assert.True(t, version.Target.Equal(bitbuf.FromUint(6, 4)))

	// Supplied targets derive equal / not-sent.
	nextHeader := fields[4]
	assert.Equal(t, schc.NotSent, nextHeader.Action)
	assert.True(t, nextHeader.Target.Equal(bitbuf.FromUint(17, 8)))

	// Recomputable fields without targets derive compute.
	assert.Equal(t, schc.Compute, fields[3].Action)  // IPv6 payload length
	assert.Equal(t, schc.Compute, fields[10].Action) // UDP length
	assert.Equal(t, schc.Compute, fields[11].Action) // UDP checksum

	// Everything else travels in full.
	srcPort := fields[8]
	assert.Equal(t, schc.Ignore, srcPort.MO)
	assert.Equal(t, schc.ValueSent, srcPort.Action)
}

func TestTemplateUnknownName(t *testing.T) {
	_, err := Template("IPv6-QUIC", nil)
	assert.ErrorIs(t, err, schc.ErrContextInvalid)
}

func TestRuleFromTemplate(t *testing.T) {
	doc := `
id: c
parser: IPv6-UDP
rule_id_length: 2
rules:
  - id: 0
    template: IPv6-UDP
    targets:
      "IPv6:Next Header": 17
      "IPv6:Hop Limit": 64
  - id: 3
    nature: no-compression
`
	ctx, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, ctx.Rules[0].Fields, 12)
	assert.Equal(t, schc.Compute, ctx.Rules[0].Fields[11].Action)
}
