package schc

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
)

// Nature tells whether a rule compresses its packets field by field or
// forwards them verbatim behind a rule id.
type Nature uint8

const (
	Compression Nature = iota
	NoCompression
)

func (n Nature) String() string {
	if n == NoCompression {
		return "no-compression"
	}
	return "compression"
}

// RuleField is one entry of a compression rule: a field identity plus the
// target value it is checked against, the matching operator performing the
// check, and the action producing the residue. Length 0 marks a
// variable-length field.
type RuleField struct {
	ID        string
	Length    int
	Position  int
	Direction Direction

	Target  bitbuf.Buffer
	Mapping []bitbuf.Buffer

	MO     MatchingOperator
	Action Action
}

// Variable reports whether the field has no fixed bit length.
func (rf RuleField) Variable() bool { return rf.Length == 0 }

// RuleDescriptor is one pre-shared rule: a right-aligned rule id, a nature,
// and the field entries listed in the same order as the fields of the
// packets it targets. Residues are emitted and consumed in that order.
type RuleDescriptor struct {
	ID     bitbuf.Buffer
	Nature Nature
	Fields []RuleField
}

// IsDefault reports whether the rule is a last-resort rule matching any
// packet: no field entries and no per-field compression.
func (r RuleDescriptor) IsDefault() bool {
	return r.Nature == NoCompression && len(r.Fields) == 0
}

// FieldsFor returns the rule fields applicable to a packet travelling in
// dir, preserving declaration order.
func (r RuleDescriptor) FieldsFor(dir Direction) []RuleField {
	out := make([]RuleField, 0, len(r.Fields))
	for _, rf := range r.Fields {
		if rf.Direction.Matches(dir) {
			out = append(out, rf)
		}
	}
	return out
}

// Validate checks the structural invariants of a single rule.
func (r RuleDescriptor) Validate() error {
	if r.ID.Len() < 1 {
		return fmt.Errorf("%w: rule id shorter than 1 bit", ErrContextInvalid)
	}
	for _, rf := range r.Fields {
		switch rf.MO {
		case MatchMapping:
			if len(rf.Mapping) == 0 {
				return fmt.Errorf("%w: field %s: match-mapping without mapping", ErrContextInvalid, rf.ID)
			}
		case MSB:
			if rf.Target.Len() == 0 {
				return fmt.Errorf("%w: field %s: MSB without pattern", ErrContextInvalid, rf.ID)
			}
		case Equal:
			if rf.Length != 0 && rf.Target.Len() != rf.Length {
				return fmt.Errorf("%w: field %s: %d-bit target for %d-bit field",
					ErrContextInvalid, rf.ID, rf.Target.Len(), rf.Length)
			}
		}
	}
	return nil
}
