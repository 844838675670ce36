package parser

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// CoAP field ids (RFC 7252). Options are decomposed syntactically into
// delta / length / extended / value sub-fields without resolving absolute
// option numbers: whatever comes out of the parser, the serialiser can
// emit back verbatim, which keeps compression and decompression
// symmetric.
const (
	CoAPHeaderID = "CoAP"

	CoAPVersion              = "CoAP:Version"
	CoAPType                 = "CoAP:Type"
	CoAPTokenLength          = "CoAP:Token Length"
	CoAPCode                 = "CoAP:Code"
	CoAPMessageID            = "CoAP:Message ID"
	CoAPToken                = "CoAP:Token"
	CoAPPayloadMarker        = "CoAP:Payload Marker"
	CoAPOptionDelta          = "CoAP:Option Delta"
	CoAPOptionLength         = "CoAP:Option Length"
	CoAPOptionDeltaExtended  = "CoAP:Option Delta Extended"
	CoAPOptionLengthExtended = "CoAP:Option Length Extended"
	CoAPOptionValue          = "CoAP:Option Value"
)

const (
	coapBaseHeaderBits = 32

	// 4-bit nibble values introducing extended delta/length encodings;
	// 15 is reserved for the payload marker.
	coapExtended8   = 13
	coapExtended16  = 14
	coapNibbleLimit = 15

	coapPayloadMarker = 0xff
)

// CoAPParser parses the CoAP fixed header, token and option list.
type CoAPParser struct{}

// NewCoAP returns a CoAP header parser.
func NewCoAP() HeaderParser { return &CoAPParser{} }

func (p *CoAPParser) Name() string { return CoAPHeaderID }

func (p *CoAPParser) Match(buf bitbuf.Buffer) bool { return buf.Len() >= coapBaseHeaderBits }

// Parse consumes the fixed header, the token (its length driven by TKL),
// then options until the payload marker or end of message.
//
//	|Ver| T |  TKL  |      Code     |          Message ID           |
//	|   Token (if any, TKL bytes) ...
//	|   Options (if any) ...
//	|1 1 1 1 1 1 1 1|    Payload (if any) ...
func (p *CoAPParser) Parse(buf bitbuf.Buffer) (HeaderDescriptor, error) {
	if buf.Len() < coapBaseHeaderBits {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: CoAPHeaderID, Offset: 0,
			Err: fmt.Errorf("%w: %d bits, need %d", schc.ErrTruncated, buf.Len(), coapBaseHeaderBits),
		}
	}

	tokenLength := mustSlice(buf, 4, 8)
	tkl, _ := tokenLength.Uint()
	if tkl > 8 {
		return HeaderDescriptor{}, &schc.ParseError{
			Header: CoAPHeaderID, Field: CoAPTokenLength, Offset: 4,
			Err: fmt.Errorf("%w: token length %d", schc.ErrMalformed, tkl),
		}
	}

	fields := []schc.Field{
		{ID: CoAPVersion, Length: 2, Value: mustSlice(buf, 0, 2)},
		{ID: CoAPType, Length: 2, Value: mustSlice(buf, 2, 4)},
		{ID: CoAPTokenLength, Length: 4, Value: tokenLength},
		{ID: CoAPCode, Length: 8, Value: mustSlice(buf, 8, 16)},
		{ID: CoAPMessageID, Length: 16, Value: mustSlice(buf, 16, 32)},
	}

	cursor := coapBaseHeaderBits
	if tkl > 0 {
		tokenEnd := cursor + int(tkl)*8
		token, err := buf.Slice(cursor, tokenEnd)
		if err != nil {
			return HeaderDescriptor{}, &schc.ParseError{
				Header: CoAPHeaderID, Field: CoAPToken, Offset: cursor,
				Err: fmt.Errorf("%w: token of %d bytes", schc.ErrTruncated, tkl),
			}
		}
		fields = append(fields, schc.Field{ID: CoAPToken, Length: 0, Value: token})
		cursor = tokenEnd
	}

	optionFields, consumed, err := parseCoAPOptions(buf, cursor)
	if err != nil {
		return HeaderDescriptor{}, err
	}
	fields = append(fields, optionFields...)
	cursor += consumed

	return HeaderDescriptor{
		ID:     CoAPHeaderID,
		Length: cursor,
		Fields: fields,
		Next:   HintNone,
	}, nil
}

// parseCoAPOptions walks the option list starting at cursor and returns
// the option sub-fields plus the number of bits consumed, payload marker
// included.
func parseCoAPOptions(buf bitbuf.Buffer, cursor int) ([]schc.Field, int, error) {
	var fields []schc.Field
	start := cursor
	position := 0

	for cursor < buf.Len() {
		first, err := buf.Slice(cursor, cursor+8)
		if err != nil {
			break
		}
		if v, _ := first.Uint(); v == coapPayloadMarker {
			fields = append(fields, schc.Field{
				ID: CoAPPayloadMarker, Length: 8,
				Value: bitbuf.FromUint(coapPayloadMarker, 8),
			})
			cursor += 8
			break
		}

		position++
		delta := mustSlice(buf, cursor, cursor+4)
		length := mustSlice(buf, cursor+4, cursor+8)
		cursor += 8

		fields = append(fields,
			schc.Field{ID: CoAPOptionDelta, Length: 4, Position: position, Value: delta},
			schc.Field{ID: CoAPOptionLength, Length: 4, Position: position, Value: length},
		)

		deltaNibble, _ := delta.Uint()
		if deltaNibble == coapNibbleLimit {
			return nil, 0, &schc.ParseError{
				Header: CoAPHeaderID, Field: CoAPOptionDelta, Offset: cursor - 8,
				Err: fmt.Errorf("%w: reserved option delta 15", schc.ErrMalformed),
			}
		}
		if deltaNibble == coapExtended8 || deltaNibble == coapExtended16 {
			extBits := 8
			if deltaNibble == coapExtended16 {
				extBits = 16
			}
			ext, err := buf.Slice(cursor, cursor+extBits)
			if err != nil {
				return nil, 0, optionTruncated(CoAPOptionDeltaExtended, cursor)
			}
			fields = append(fields, schc.Field{
				ID: CoAPOptionDeltaExtended, Length: extBits, Position: position, Value: ext,
			})
			cursor += extBits
		}

		lengthNibble, _ := length.Uint()
		if lengthNibble == coapNibbleLimit {
			return nil, 0, &schc.ParseError{
				Header: CoAPHeaderID, Field: CoAPOptionLength, Offset: cursor,
				Err: fmt.Errorf("%w: reserved option length 15", schc.ErrMalformed),
			}
		}
		valueBytes := lengthNibble
		if lengthNibble == coapExtended8 || lengthNibble == coapExtended16 {
			extBits := 8
			if lengthNibble == coapExtended16 {
				extBits = 16
			}
			ext, err := buf.Slice(cursor, cursor+extBits)
			if err != nil {
				return nil, 0, optionTruncated(CoAPOptionLengthExtended, cursor)
			}
			fields = append(fields, schc.Field{
				ID: CoAPOptionLengthExtended, Length: extBits, Position: position, Value: ext,
			})
			cursor += extBits

			extValue, _ := ext.Uint()
			if lengthNibble == coapExtended8 {
				valueBytes = 13 + extValue
			} else {
				valueBytes = 269 + extValue
			}
		}

		if valueBytes > 0 {
			valueEnd := cursor + int(valueBytes)*8
			value, err := buf.Slice(cursor, valueEnd)
			if err != nil {
				return nil, 0, optionTruncated(CoAPOptionValue, cursor)
			}
			fields = append(fields, schc.Field{
				ID: CoAPOptionValue, Length: 0, Position: position, Value: value,
			})
			cursor = valueEnd
		}
	}

	return fields, cursor - start, nil
}

func optionTruncated(field string, offset int) error {
	return &schc.ParseError{
		Header: CoAPHeaderID, Field: field, Offset: offset,
		Err: schc.ErrTruncated,
	}
}

func init() {
	Register(ProtoCoAP, NewCoAP)
}
