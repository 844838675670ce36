package parser

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// IPv4 field ids (RFC 791).
const (
	IPv4HeaderID = "IPv4"

	IPv4Version        = "IPv4:Version"
	IPv4HeaderLength   = "IPv4:Header Length"
	IPv4TypeOfService  = "IPv4:Type of Service"
	IPv4TotalLength    = "IPv4:Total Length"
	IPv4Identification = "IPv4:Identification"
	IPv4Flags          = "IPv4:Flags"
	IPv4FragmentOffset = "IPv4:Fragment Offset"
	IPv4TimeToLive     = "IPv4:Time To Live"
	IPv4Protocol       = "IPv4:Protocol"
	IPv4HeaderChecksum = "IPv4:Header Checksum"
	IPv4SrcAddress     = "IPv4:Source Address"
	IPv4DstAddress     = "IPv4:Destination Address"
	IPv4Options        = "IPv4:Options"
)

const ipv4MinHeaderBits = 160

// IPv4Parser parses the IPv4 header. When IHL exceeds 5 the options block
// is emitted as one opaque variable-length field.
type IPv4Parser struct{}

// NewIPv4 returns an IPv4 header parser.
func NewIPv4() HeaderParser { return &IPv4Parser{} }

func (p *IPv4Parser) Name() string { return IPv4HeaderID }

func (p *IPv4Parser) Match(buf bitbuf.Buffer) bool {
	if buf.Len() < ipv4MinHeaderBits {
		return false
	}
	version, err := buf.Slice(0, 4)
	if err != nil {
		return false
	}
	v, _ := version.Uint()
	return v == 4
}

func (p *IPv4Parser) Parse(buf bitbuf.Buffer) (HeaderDescriptor, error) {
	if buf.Len() < ipv4MinHeaderBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv4HeaderID, Offset: 0,
			Err: fmt.Errorf("%w: %d bits, need %d", schc.ErrTruncated, buf.Len(), ipv4MinHeaderBits),
		}
	}

	version := mustSlice(buf, 0, 4)
	if v, _ := version.Uint(); v != 4 {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv4HeaderID, Field: IPv4Version, Offset: 0,
			Err: fmt.Errorf("%w: version %d", schc.ErrMalformed, v),
		}
	}

	headerLength := mustSlice(buf, 4, 8)
	ihl, _ := headerLength.Uint()
	if ihl < 5 {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv4HeaderID, Field: IPv4HeaderLength, Offset: 4,
			Err: fmt.Errorf("%w: IHL %d", schc.ErrMalformed, ihl),
		}
	}
	headerBits := int(ihl) * 32
	if buf.Len() < headerBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: IPv4HeaderID, Field: IPv4HeaderLength, Offset: 4,
			Err: fmt.Errorf("%w: %d bits, header claims %d", schc.ErrTruncated, buf.Len(), headerBits),
		}
	}

	protocol := mustSlice(buf, 72, 80)

	fields := []schc.Field{
		{ID: IPv4Version, Length: 4, Value: version},
		{ID: IPv4HeaderLength, Length: 4, Value: headerLength},
		{ID: IPv4TypeOfService, Length: 8, Value: mustSlice(buf, 8, 16)},
		{ID: IPv4TotalLength, Length: 16, Value: mustSlice(buf, 16, 32)},
		{ID: IPv4Identification, Length: 16, Value: mustSlice(buf, 32, 48)},
		{ID: IPv4Flags, Length: 3, Value: mustSlice(buf, 48, 51)},
		{ID: IPv4FragmentOffset, Length: 13, Value: mustSlice(buf, 51, 64)},
		{ID: IPv4TimeToLive, Length: 8, Value: mustSlice(buf, 64, 72)},
		{ID: IPv4Protocol, Length: 8, Value: protocol},
		{ID: IPv4HeaderChecksum, Length: 16, Value: mustSlice(buf, 80, 96)},
		{ID: IPv4SrcAddress, Length: 32, Value: mustSlice(buf, 96, 128)},
		{ID: IPv4DstAddress, Length: 32, Value: mustSlice(buf, 128, 160)},
	}
	if headerBits > ipv4MinHeaderBits {
		fields = append(fields, schc.Field{
			ID: IPv4Options, Length: 0, Value: mustSlice(buf, ipv4MinHeaderBits, headerBits),
		})
	}

	hd := HeaderDescriptor{
		ID:     IPv4HeaderID,
		Length: headerBits,
		Fields: fields,
		Next:   HintNone,
	}
	if next, err := protocol.Uint(); err == nil {
		hd.Next = int(next)
	}
	return hd, nil
}

func init() {
	Register(ProtoIPv4, NewIPv4)
}
