package parser

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// UDP field ids (RFC 768).
const (
	UDPHeaderID = "UDP"

	UDPSourcePort      = "UDP:Source Port"
	UDPDestinationPort = "UDP:Destination Port"
	UDPLength          = "UDP:Length"
	UDPChecksum        = "UDP:Checksum"
)

const (
	udpHeaderBits = 64
	coapPort      = 5683
)

// UDPParser parses the 8-byte UDP header.
type UDPParser struct{}

// NewUDP returns a UDP header parser.
func NewUDP() HeaderParser { return &UDPParser{} }

func (p *UDPParser) Name() string { return UDPHeaderID }

func (p *UDPParser) Match(buf bitbuf.Buffer) bool { return buf.Len() >= udpHeaderBits }

func (p *UDPParser) Parse(buf bitbuf.Buffer) (HeaderDescriptor, error) {
	if buf.Len() < udpHeaderBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: UDPHeaderID, Offset: 0,
			Err: fmt.Errorf("%w: %d bits, need %d", schc.ErrTruncated, buf.Len(), udpHeaderBits),
		}
	}

	srcPort := mustSlice(buf, 0, 16)
	dstPort := mustSlice(buf, 16, 32)

	hd := HeaderDescriptor{
		ID:     UDPHeaderID,
		Length: udpHeaderBits,
		Fields: []schc.Field{
			{ID: UDPSourcePort, Length: 16, Value: srcPort},
			{ID: UDPDestinationPort, Length: 16, Value: dstPort},
			{ID: UDPLength, Length: 16, Value: mustSlice(buf, 32, 48)},
			{ID: UDPChecksum, Length: 16, Value: mustSlice(buf, 48, 64)},
		},
		Next: HintNone,
	}

	// Port-based hint for the application protocol.
	src, _ := srcPort.Uint()
	dst, _ := dstPort.Uint()
	if src == coapPort || dst == coapPort {
		hd.Next = ProtoCoAP
	}
	return hd, nil
}

func init() {
	Register(ProtoUDP, NewUDP)
}
