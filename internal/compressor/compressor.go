// Package compressor applies a rule's per-field compression actions to a
// parsed packet and assembles the compressed stream: rule id, field
// residues in rule order, then the payload.
package compressor

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// Compress builds the compressed stream for a packet under a rule that was
// already selected for it. The returned buffer carries the exact bit
// count; ByteAligned() yields the wire bytes with trailing zero padding.
func Compress(pd schc.PacketDescriptor, rule schc.RuleDescriptor) (bitbuf.Buffer, error) {
	out := rule.ID.Pad(bitbuf.Left)

	if rule.Nature == schc.NoCompression {
		return out.Append(pd.Raw), nil
	}

	ruleFields := rule.FieldsFor(pd.Direction)
	if len(ruleFields) != len(pd.Fields) {
		return bitbuf.Buffer{}, fmt.Errorf("%w: rule %s has %d fields for a %d-field packet",
			schc.ErrNoMatch, rule.ID, len(ruleFields), len(pd.Fields))
	}

	for i, rf := range ruleFields {
		if rf.Action == schc.NotSent || rf.Action == schc.Compute {
			continue
		}
		residue, err := fieldResidue(pd.Fields[i], rf)
		if err != nil {
			return bitbuf.Buffer{}, fmt.Errorf("field %s: %w", rf.ID, err)
		}
		// Variable-length residues travel behind a length indicator,
		// even when empty.
		if rf.Variable() && (rf.Action == schc.ValueSent || rf.Action == schc.LSB) {
			prefixed, err := prefixVariable(residue)
			if err != nil {
				return bitbuf.Buffer{}, fmt.Errorf("field %s: %w", rf.ID, err)
			}
			residue = prefixed
		}
		out = out.Append(residue)
	}

	return out.Append(pd.Payload), nil
}

// fieldResidue computes the residue of one field under its action. Actions
// transmitting nothing return an empty buffer.
func fieldResidue(pf schc.Field, rf schc.RuleField) (bitbuf.Buffer, error) {
	switch rf.Action {
	case schc.NotSent, schc.Compute:
		return bitbuf.Buffer{}, nil

	case schc.ValueSent:
		return pf.Value, nil

	case schc.MappingSent:
		for index, candidate := range rf.Mapping {
			if pf.Value.Equal(candidate) {
				return bitbuf.FromUint(uint64(index), bitbuf.IndexBits(len(rf.Mapping))), nil
			}
		}
		return bitbuf.Buffer{}, fmt.Errorf("%w: value %s not in %d-entry mapping",
			schc.ErrMappingOutOfRange, pf.Value, len(rf.Mapping))

	case schc.LSB:
		x := rf.Target.Len()
		if pf.Value.Len() < x {
			return bitbuf.Buffer{}, fmt.Errorf("%w: %d-bit field, %d-bit pattern",
				schc.ErrNoMatch, pf.Value.Len(), x)
		}
		return pf.Value.Slice(x, pf.Value.Len())
	}
	return bitbuf.Buffer{}, fmt.Errorf("%w: action %s", schc.ErrContextInvalid, rf.Action)
}

// prefixVariable prepends the byte-count length indicator to a
// variable-length residue and right-pads the residue to the byte boundary,
// as the decompressor will read whole bytes back.
func prefixVariable(residue bitbuf.Buffer) (bitbuf.Buffer, error) {
	nbytes := (residue.Len() + 7) / 8
	prefix, err := EncodeLength(nbytes)
	if err != nil {
		return bitbuf.Buffer{}, err
	}
	if pad := 8*nbytes - residue.Len(); pad > 0 {
		residue = residue.ShiftExtend(-pad)
	}
	return prefix.Append(residue), nil
}

// EncodeLength encodes a residue byte count as the 4 / 4+8 / 4+8+16 bit
// length indicator: values below 15 fit the nibble, a nibble of 0xF
// escapes to an 8-bit count, 0xF 0xFF escapes to a 16-bit count. The
// format is fixed for wire compatibility.
func EncodeLength(nbytes int) (bitbuf.Buffer, error) {
	switch {
	case nbytes < 0 || nbytes >= 0xffff:
		return bitbuf.Buffer{}, fmt.Errorf("%w: %d bytes", schc.ErrLengthPrefixInvalid, nbytes)
	case nbytes < 0xf:
		return bitbuf.FromUint(uint64(nbytes), 4), nil
	case nbytes < 0xff:
		return bitbuf.FromUint(0xf, 4).Append(bitbuf.FromUint(uint64(nbytes), 8)), nil
	default:
		return bitbuf.FromUint(0xfff, 12).Append(bitbuf.FromUint(uint64(nbytes), 16)), nil
	}
}
