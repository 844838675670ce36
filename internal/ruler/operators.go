package ruler

import (
	"lowpan.xyz/schc/pkg/schc"
)

// fieldMatch applies the rule field's matching operator to the packet
// field. Field identities must agree; positions are covered by the
// positional zip performed in MatchPacket.
func fieldMatch(pf schc.Field, rf schc.RuleField) bool {
	if pf.ID != rf.ID {
		return false
	}
	switch rf.MO {
	case schc.Ignore:
		return true
	case schc.Equal:
		return pf.Value.Equal(rf.Target)
	case schc.MSB:
		return mostSignificantBits(pf, rf)
	case schc.MatchMapping:
		return matchMapping(pf, rf)
	}
	return false
}

// mostSignificantBits checks that the pattern-length leftmost bits of the
// field equal the rule's pattern. Fields shorter than the pattern cannot
// match.
func mostSignificantBits(pf schc.Field, rf schc.RuleField) bool {
	x := rf.Target.Len()
	if pf.Value.Len() < x {
		return false
	}
	if rf.Length != 0 && pf.Value.Len() != rf.Length {
		return false
	}
	msb, err := pf.Value.Slice(0, x)
	if err != nil {
		return false
	}
	return msb.Equal(rf.Target)
}

// matchMapping checks that the field value appears in the rule's mapping.
func matchMapping(pf schc.Field, rf schc.RuleField) bool {
	for _, candidate := range rf.Mapping {
		if pf.Value.Equal(candidate) {
			return true
		}
	}
	return false
}
