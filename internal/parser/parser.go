// Package parser decomposes raw packets into ordered sequences of named
// field buffers. Protocol parsers are purely syntactic: fields come out as
// raw bit ranges in on-wire form, with no interpretation beyond what is
// needed to find field boundaries. Whatever a parser yields, concatenating
// the field values in order reproduces the input bits.
package parser

import (
	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// HintNone means a header parser cannot tell what follows it.
const HintNone = -1

// HeaderDescriptor is the result of parsing one protocol header: the
// fields in on-wire order, the number of bits consumed, and a registry key
// hinting at the next protocol (HintNone when unknown).
type HeaderDescriptor struct {
	ID     string
	Length int
	Fields []schc.Field
	Next   int
}

// HeaderParser parses one protocol header off the front of a buffer.
type HeaderParser interface {
	// Name returns the header id prefixed to the parser's field ids.
	Name() string
	// Match reports whether the buffer plausibly starts with this
	// header. Used when assembling stacks dynamically.
	Match(buf bitbuf.Buffer) bool
	// Parse consumes the header and returns its field descriptors.
	Parse(buf bitbuf.Buffer) (HeaderDescriptor, error)
}

// PacketParser runs a stack of header parsers over a packet and collects
// the resulting fields into a PacketDescriptor. With a fixed chain the
// parsers run in order; without one the next parser is looked up in the
// protocol registry using the hint of the previous header.
type PacketParser struct {
	name  string
	chain []HeaderParser
	first int // registry key of the first header when the chain is dynamic
}

// NewPacketParser builds a parser over a fixed chain of header parsers.
func NewPacketParser(name string, parsers ...HeaderParser) *PacketParser {
	return &PacketParser{name: name, chain: parsers}
}

// NewDynamicParser builds a parser that starts with the protocol registered
// under first and follows next-protocol hints from there.
func NewDynamicParser(name string, first int) *PacketParser {
	return &PacketParser{name: name, first: first}
}

// Name returns the stack identifier.
func (p *PacketParser) Name() string { return p.name }

// Parse decomposes data into a PacketDescriptor travelling in dir. Bits
// left over after the last header become the payload.
func (p *PacketParser) Parse(data []byte, dir schc.Direction) (schc.PacketDescriptor, error) {
	raw := bitbuf.FromBytes(data)
	pd := schc.PacketDescriptor{Direction: dir, Raw: raw}

	offset := 0
	if len(p.chain) > 0 {
		for _, hp := range p.chain {
			consumed, _, err := runHeader(hp, raw, offset, &pd)
			if err != nil {
				return schc.PacketDescriptor{}, err
			}
			offset += consumed
		}
	} else {
		next := p.first
		for next != HintNone {
			hp, err := Lookup(next)
			if err != nil {
				break // no parser for the inner protocol, rest is payload
			}
			consumed, hint, err := runHeader(hp, raw, offset, &pd)
			if err != nil {
				return schc.PacketDescriptor{}, err
			}
			offset += consumed
			next = hint
		}
	}

	payload, err := raw.Slice(offset, raw.Len())
	if err != nil {
		return schc.PacketDescriptor{}, &schc.ParseError{Header: p.name, Offset: offset, Err: schc.ErrTruncated}
	}
	pd.Payload = payload
	return pd, nil
}

func runHeader(hp HeaderParser, raw bitbuf.Buffer, offset int, pd *schc.PacketDescriptor) (consumed, next int, err error) {
	rest, err := raw.Slice(offset, raw.Len())
	if err != nil {
		return 0, HintNone, &schc.ParseError{Header: hp.Name(), Offset: offset, Err: schc.ErrTruncated}
	}
	hd, err := hp.Parse(rest)
	if err != nil {
		if pe, ok := err.(*schc.ParseError); ok {
			pe.Offset += offset
			return 0, HintNone, pe
		}
		return 0, HintNone, &schc.ParseError{Header: hp.Name(), Offset: offset, Err: err}
	}
	for i := range hd.Fields {
		hd.Fields[i].Direction = schc.Bidirectional
	}
	pd.Fields = append(pd.Fields, hd.Fields...)
	return hd.Length, hd.Next, nil
}
