package parser

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// SCTP field ids (RFC 9260). DATA chunks are decomposed into their
// sub-fields, every other chunk type keeps its value opaque.
const (
	SCTPHeaderID = "SCTP"

	SCTPSourcePort      = "SCTP:Source Port"
	SCTPDestinationPort = "SCTP:Destination Port"
	SCTPVerificationTag = "SCTP:Verification Tag"
	SCTPChecksum        = "SCTP:Checksum"
	SCTPChunkType       = "SCTP:Chunk Type"
	SCTPChunkFlags      = "SCTP:Chunk Flags"
	SCTPChunkLength     = "SCTP:Chunk Length"
	SCTPChunkValue      = "SCTP:Chunk Value"
	SCTPChunkPadding    = "SCTP:Chunk Padding"

	SCTPDataTSN               = "SCTP:Data TSN"
	SCTPDataStreamIdentifier  = "SCTP:Data Stream Identifier S"
	SCTPDataStreamSequence    = "SCTP:Data Stream Sequence Number n"
	SCTPDataPayloadProtocolID = "SCTP:Data Payload Protocol Identifier"
	SCTPDataPayload           = "SCTP:Data Payload"
)

const (
	sctpCommonHeaderBits = 96
	sctpChunkHeaderBits  = 32
	sctpChunkTypeData    = 0
)

// SCTPParser parses the SCTP common header and every chunk that follows,
// consuming the remainder of the buffer.
type SCTPParser struct{}

// NewSCTP returns an SCTP header parser.
func NewSCTP() HeaderParser { return &SCTPParser{} }

func (p *SCTPParser) Name() string { return SCTPHeaderID }

func (p *SCTPParser) Match(buf bitbuf.Buffer) bool {
	return buf.Len() >= sctpCommonHeaderBits
}

func (p *SCTPParser) Parse(buf bitbuf.Buffer) (HeaderDescriptor, error) {
	if buf.Len() < sctpCommonHeaderBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: SCTPHeaderID, Offset: 0,
			Err: fmt.Errorf("%w: %d bits, need %d", schc.ErrTruncated, buf.Len(), sctpCommonHeaderBits),
		}
	}

	fields := []schc.Field{
		{ID: SCTPSourcePort, Length: 16, Value: mustSlice(buf, 0, 16)},
		{ID: SCTPDestinationPort, Length: 16, Value: mustSlice(buf, 16, 32)},
		{ID: SCTPVerificationTag, Length: 32, Value: mustSlice(buf, 32, 64)},
		{ID: SCTPChecksum, Length: 32, Value: mustSlice(buf, 64, 96)},
	}

	cursor := sctpCommonHeaderBits
	position := 0
	for cursor < buf.Len() {
		position++
		chunkFields, consumed, err := p.parseChunk(buf, cursor, position)
		if err != nil {
			return HeaderDescriptor{}, err
		}
		fields = append(fields, chunkFields...)
		cursor += consumed
	}

	return HeaderDescriptor{
		ID:     SCTPHeaderID,
		Length: cursor,
		Fields: fields,
		Next:   HintNone,
	}, nil
}

// parseChunk consumes one chunk including its 4-octet alignment padding.
func (p *SCTPParser) parseChunk(buf bitbuf.Buffer, cursor, position int) ([]schc.Field, int, error) {
	if buf.Len()-cursor < sctpChunkHeaderBits {
		return nil, 0, &schc.ParseError{
			Header: SCTPHeaderID, Field: SCTPChunkType, Offset: cursor,
			Err: fmt.Errorf("%w: %d bits left in chunk header", schc.ErrTruncated, buf.Len()-cursor),
		}
	}

	chunkType := mustSlice(buf, cursor, cursor+8)
	chunkFlags := mustSlice(buf, cursor+8, cursor+16)
	chunkLength := mustSlice(buf, cursor+16, cursor+32)

	fields := []schc.Field{
		{ID: SCTPChunkType, Length: 8, Position: position, Value: chunkType},
		{ID: SCTPChunkFlags, Length: 8, Position: position, Value: chunkFlags},
		{ID: SCTPChunkLength, Length: 16, Position: position, Value: chunkLength},
	}

	lengthBytes, _ := chunkLength.Uint()
	chunkBits := int(lengthBytes) * 8
	if chunkBits < sctpChunkHeaderBits {
		return nil, 0, &schc.ParseError{
			Header: SCTPHeaderID, Field: SCTPChunkLength, Offset: cursor + 16,
			Err: fmt.Errorf("%w: chunk length %d", schc.ErrMalformed, lengthBytes),
		}
	}
	if buf.Len()-cursor < chunkBits {
		return nil, 0, &schc.ParseError{
			Header: SCTPHeaderID, Field: SCTPChunkLength, Offset: cursor + 16,
			Err: fmt.Errorf("%w: %d bits left, chunk claims %d", schc.ErrTruncated, buf.Len()-cursor, chunkBits),
		}
	}

	valueBits := chunkBits - sctpChunkHeaderBits
	if valueBits > 0 {
		value := mustSlice(buf, cursor+sctpChunkHeaderBits, cursor+chunkBits)
		if t, _ := chunkType.Uint(); t == sctpChunkTypeData {
			dataFields, err := parseDataChunk(value, position)
			if err != nil {
				return nil, 0, &schc.ParseError{
					Header: SCTPHeaderID, Field: SCTPChunkValue, Offset: cursor + sctpChunkHeaderBits,
					Err: err,
				}
			}
			fields = append(fields, dataFields...)
		} else {
			fields = append(fields, schc.Field{
				ID: SCTPChunkValue, Length: 0, Position: position, Value: value,
			})
		}
	}

	// Chunks are padded to 4-octet boundaries; the padding is kept as a
	// field so serialisation stays bit-exact.
	paddingBits := (32 - chunkBits%32) % 32
	if paddingBits > 0 && cursor+chunkBits+paddingBits <= buf.Len() {
		fields = append(fields, schc.Field{
			ID: SCTPChunkPadding, Length: 0, Position: position,
			Value: mustSlice(buf, cursor+chunkBits, cursor+chunkBits+paddingBits),
		})
		chunkBits += paddingBits
	}

	return fields, chunkBits, nil
}

// parseDataChunk splits a DATA chunk value into its sub-fields.
//
//	|                              TSN                              |
//	|      Stream Identifier S      |   Stream Sequence Number n    |
//	|                  Payload Protocol Identifier                  |
//	|                 User Data (seq n of Stream S)                 |
func parseDataChunk(value bitbuf.Buffer, position int) ([]schc.Field, error) {
	if value.Len() < 96 {
		return nil, fmt.Errorf("%w: DATA chunk value of %d bits", schc.ErrTruncated, value.Len())
	}
	return []schc.Field{
		{ID: SCTPDataTSN, Length: 32, Position: position, Value: mustSlice(value, 0, 32)},
		{ID: SCTPDataStreamIdentifier, Length: 16, Position: position, Value: mustSlice(value, 32, 48)},
		{ID: SCTPDataStreamSequence, Length: 16, Position: position, Value: mustSlice(value, 48, 64)},
		{ID: SCTPDataPayloadProtocolID, Length: 32, Position: position, Value: mustSlice(value, 64, 96)},
		{ID: SCTPDataPayload, Length: 0, Position: position, Value: mustSlice(value, 96, value.Len())},
	}, nil
}

func init() {
	Register(ProtoSCTP, NewSCTP)
}
