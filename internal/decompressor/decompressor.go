// Package decompressor rebuilds packet descriptors from compressed
// streams by inverting the rule's per-field actions, then recomputes the
// length and checksum fields elided on the wire.
package decompressor

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// reader consumes bits off the front of a compressed stream.
type reader struct {
	buf bitbuf.Buffer
	pos int
}

func (r *reader) take(n int) (bitbuf.Buffer, error) {
	if r.pos+n > r.buf.Len() {
		return bitbuf.Buffer{}, fmt.Errorf("%w: %d bits wanted, %d left",
			schc.ErrResidueUnderrun, n, r.buf.Len()-r.pos)
	}
	out, err := r.buf.Slice(r.pos, r.pos+n)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	r.pos += n
	return out, nil
}

func (r *reader) rest() (bitbuf.Buffer, error) {
	return r.take(r.buf.Len() - r.pos)
}

// Decompress rebuilds the packet compressed under a compression-nature
// rule. The stream must still carry the rule id in front; dir selects the
// rule fields applying to the packet's direction. Fields elided with a
// compute action are restored in the post-pass.
func Decompress(packet bitbuf.Buffer, rule schc.RuleDescriptor, dir schc.Direction) (schc.PacketDescriptor, error) {
	r := &reader{buf: packet}
	if _, err := r.take(rule.ID.Len()); err != nil {
		return schc.PacketDescriptor{}, err
	}

	ruleFields := rule.FieldsFor(dir)
	fields := make([]schc.Field, 0, len(ruleFields))
	var deferred []computeEntry

	for _, rf := range ruleFields {
		value, err := fieldValue(r, rf)
		if err != nil {
			return schc.PacketDescriptor{}, fmt.Errorf("field %s: %w", rf.ID, err)
		}
		if rf.Action == schc.Compute {
			entry, err := lookupCompute(rf, len(fields))
			if err != nil {
				return schc.PacketDescriptor{}, err
			}
			deferred = append(deferred, entry)
		}
		fields = append(fields, schc.Field{
			ID:        rf.ID,
			Length:    value.Len(),
			Position:  rf.Position,
			Direction: rf.Direction,
			Value:     value,
		})
	}

	payload, err := r.rest()
	if err != nil {
		return schc.PacketDescriptor{}, err
	}
	// The payload is byte-aligned on the wire; trailing sub-byte bits
	// are padding introduced when the stream was packed into bytes.
	if trim := payload.Len() % 8; trim > 0 {
		payload, err = payload.Slice(0, payload.Len()-trim)
		if err != nil {
			return schc.PacketDescriptor{}, err
		}
	}

	pd := schc.PacketDescriptor{Direction: dir, Fields: fields, Payload: payload}
	if err := runComputePass(&pd, deferred); err != nil {
		return schc.PacketDescriptor{}, err
	}
	pd.Raw = pd.Buffer()
	return pd, nil
}

// fieldValue reads one field's residue and inverts its action. Compute
// fields get a zero placeholder of their declared width.
func fieldValue(r *reader, rf schc.RuleField) (bitbuf.Buffer, error) {
	switch rf.Action {
	case schc.NotSent:
		return rf.Target, nil

	case schc.Compute:
		return bitbuf.Zero(rf.Length), nil

	case schc.ValueSent:
		if !rf.Variable() {
			return r.take(rf.Length)
		}
		nbytes, err := decodeLength(r)
		if err != nil {
			return bitbuf.Buffer{}, err
		}
		return r.take(8 * nbytes)

	case schc.MappingSent:
		indexBits := bitbuf.IndexBits(len(rf.Mapping))
		index := uint64(0)
		if indexBits > 0 {
			residue, err := r.take(indexBits)
			if err != nil {
				return bitbuf.Buffer{}, err
			}
			index, err = residue.Uint()
			if err != nil {
				return bitbuf.Buffer{}, err
			}
		}
		if index >= uint64(len(rf.Mapping)) {
			return bitbuf.Buffer{}, fmt.Errorf("%w: index %d of %d entries",
				schc.ErrMappingOutOfRange, index, len(rf.Mapping))
		}
		return rf.Mapping[index], nil

	case schc.LSB:
		var residue bitbuf.Buffer
		var err error
		if rf.Variable() {
			nbytes, derr := decodeLength(r)
			if derr != nil {
				return bitbuf.Buffer{}, derr
			}
			residue, err = r.take(8 * nbytes)
		} else {
			residue, err = r.take(rf.Length - rf.Target.Len())
		}
		if err != nil {
			return bitbuf.Buffer{}, err
		}
		return rf.Target.Append(residue), nil
	}
	return bitbuf.Buffer{}, fmt.Errorf("%w: action %s", schc.ErrContextInvalid, rf.Action)
}

// decodeLength reads the 4 / 4+8 / 4+8+16 bit length indicator and returns
// the residue byte count.
func decodeLength(r *reader) (int, error) {
	nibble, err := r.take(4)
	if err != nil {
		return 0, err
	}
	v, err := nibble.Uint()
	if err != nil {
		return 0, err
	}
	if v < 0xf {
		return int(v), nil
	}

	octet, err := r.take(8)
	if err != nil {
		return 0, err
	}
	v, err = octet.Uint()
	if err != nil {
		return 0, err
	}
	if v < 0xff {
		if v < 0xf {
			return 0, fmt.Errorf("%w: escaped 8-bit count %d", schc.ErrLengthPrefixInvalid, v)
		}
		return int(v), nil
	}

	word, err := r.take(16)
	if err != nil {
		return 0, err
	}
	v, err = word.Uint()
	if err != nil {
		return 0, err
	}
	if v < 0xff {
		return 0, fmt.Errorf("%w: escaped 16-bit count %d", schc.ErrLengthPrefixInvalid, v)
	}
	return int(v), nil
}
