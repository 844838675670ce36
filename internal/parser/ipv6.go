package parser

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// IPv6 field ids (RFC 8200 base header).
const (
	IPv6HeaderID = "IPv6"

	IPv6Version       = "IPv6:Version"
	IPv6TrafficClass  = "IPv6:Traffic Class"
	IPv6FlowLabel     = "IPv6:Flow Label"
	IPv6PayloadLength = "IPv6:Payload Length"
	IPv6NextHeader    = "IPv6:Next Header"
	IPv6HopLimit      = "IPv6:Hop Limit"
	IPv6SrcAddress    = "IPv6:Source Address"
	IPv6DstAddress    = "IPv6:Destination Address"
)

const ipv6HeaderBits = 320

// IPv6Parser parses the 40-byte IPv6 base header. Extension headers are
// handled by ExtensionParser instances chained via the next-header hint.
type IPv6Parser struct{}

// NewIPv6 returns an IPv6 base header parser.
func NewIPv6() HeaderParser { return &IPv6Parser{} }

func (p *IPv6Parser) Name() string { return IPv6HeaderID }

func (p *IPv6Parser) Match(buf bitbuf.Buffer) bool {
	if buf.Len() < ipv6HeaderBits {
		return false
	}
	version, err := buf.Slice(0, 4)
	if err != nil {
		return false
	}
	v, _ := version.Uint()
	return v == 6
}

// Parse splits the base header into its eight fields.
//
//	|Version| Traffic Class |           Flow Label                  |
//	|         Payload Length        |  Next Header  |   Hop Limit   |
//	|                         Source Address (128)                  |
//	|                      Destination Address (128)                |
func (p *IPv6Parser) Parse(buf bitbuf.Buffer) (HeaderDescriptor, error) {
	if buf.Len() < ipv6HeaderBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv6HeaderID, Offset: 0,
			Err: fmt.Errorf("%w: %d bits, need %d", schc.ErrTruncated, buf.Len(), ipv6HeaderBits),
		}
	}

	version := mustSlice(buf, 0, 4)
	if v, _ := version.Uint(); v != 6 {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv6HeaderID, Field: IPv6Version, Offset: 0,
			Err: fmt.Errorf("%w: version %d", schc.ErrMalformed, v),
		}
	}

	nextHeader := mustSlice(buf, 48, 56)

	hd := HeaderDescriptor{
		ID:     IPv6HeaderID,
		Length: ipv6HeaderBits,
		Fields: []schc.Field{
			{ID: IPv6Version, Length: 4, Value: version},
			{ID: IPv6TrafficClass, Length: 8, Value: mustSlice(buf, 4, 12)},
			{ID: IPv6FlowLabel, Length: 20, Value: mustSlice(buf, 12, 32)},
			{ID: IPv6PayloadLength, Length: 16, Value: mustSlice(buf, 32, 48)},
			{ID: IPv6NextHeader, Length: 8, Value: nextHeader},
			{ID: IPv6HopLimit, Length: 8, Value: mustSlice(buf, 56, 64)},
			{ID: IPv6SrcAddress, Length: 128, Value: mustSlice(buf, 64, 192)},
			{ID: IPv6DstAddress, Length: 128, Value: mustSlice(buf, 192, 320)},
		},
		Next: HintNone,
	}
	if next, err := nextHeader.Uint(); err == nil {
		hd.Next = int(next)
	}
	return hd, nil
}

// IPv6 extension header field ids. Position distinguishes chained
// extension headers of the same type.
const (
	IPv6ExtHeaderID = "IPv6 Extension"

	IPv6ExtNextHeader = "IPv6 Extension:Next Header"
	IPv6ExtLength     = "IPv6 Extension:Header Extension Length"
	IPv6ExtOptions    = "IPv6 Extension:Options"
)

// ExtensionParser parses the generic length-coded IPv6 extension headers
// (Hop-by-Hop Options, Routing, Destination Options): an 8-bit next
// header, an 8-bit length in 8-octet units not counting the first, and an
// opaque options block.
type ExtensionParser struct{}

// NewExtension returns a parser for length-coded IPv6 extension headers.
func NewExtension() HeaderParser { return &ExtensionParser{} }

func (p *ExtensionParser) Name() string { return IPv6ExtHeaderID }

func (p *ExtensionParser) Match(buf bitbuf.Buffer) bool { return buf.Len() >= 64 }

func (p *ExtensionParser) Parse(buf bitbuf.Buffer) (HeaderDescriptor, error) {
	if buf.Len() < 64 {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv6ExtHeaderID, Offset: 0,
			Err: fmt.Errorf("%w: %d bits, need 64", schc.ErrTruncated, buf.Len()),
		}
	}

	nextHeader := mustSlice(buf, 0, 8)
	extLength := mustSlice(buf, 8, 16)
	units, _ := extLength.Uint()
	totalBits := int(units+1) * 64

	if buf.Len() < totalBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv6ExtHeaderID, Field: IPv6ExtLength, Offset: 8,
			Err: fmt.Errorf("%w: %d bits, header claims %d", schc.ErrTruncated, buf.Len(), totalBits),
		}
	}
	options := mustSlice(buf, 16, totalBits)

	hd := HeaderDescriptor{
		ID:     IPv6ExtHeaderID,
		Length: totalBits,
		Fields: []schc.Field{
			{ID: IPv6ExtNextHeader, Length: 8, Value: nextHeader},
			{ID: IPv6ExtLength, Length: 8, Value: extLength},
			{ID: IPv6ExtOptions, Length: 0, Value: options},
		},
		Next: HintNone,
	}
	if next, err := nextHeader.Uint(); err == nil {
		hd.Next = int(next)
	}
	return hd, nil
}

// mustSlice is for offsets already bounds-checked by the caller.
func mustSlice(buf bitbuf.Buffer, start, end int) bitbuf.Buffer {
	out, err := buf.Slice(start, end)
	if err != nil {
		panic(err)
	}
	return out
}

func init() {
	Register(ProtoIPv6, NewIPv6)
	Register(ProtoHopByHop, NewExtension)
	Register(ProtoRouting, NewExtension)
	Register(ProtoDstOpts, NewExtension)
}
