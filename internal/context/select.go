package context

import (
	"fmt"

	"lowpan.xyz/schc/internal/decompressor"
	"lowpan.xyz/schc/pkg/schc"
)

// selectMO derives the matching operator from the field's target value:
// no target means ignore, a mapping means match-mapping, a pattern shorter
// than the field means MSB, a pattern of full width means equal. Rule
// files may still name the operator explicitly.
func selectMO(fs fieldSpec, rf schc.RuleField) (schc.MatchingOperator, error) {
	switch fs.MO {
	case "":
		// derived below
	case "ignore":
		return schc.Ignore, nil
	case "equal":
		return schc.Equal, nil
	case "MSB", "msb":
		return schc.MSB, nil
	case "match-mapping":
		return schc.MatchMapping, nil
	default:
		return schc.Ignore, fmt.Errorf("%w: matching operator %q", schc.ErrContextInvalid, fs.MO)
	}

	if len(rf.Mapping) > 0 {
		return schc.MatchMapping, nil
	}
	if rf.Target.Len() == 0 {
		return schc.Ignore, nil
	}
	if rf.Length != 0 && rf.Target.Len() < rf.Length {
		return schc.MSB, nil
	}
	return schc.Equal, nil
}

// selectAction derives the action from the matching operator:
// match-mapping sends the mapping index, MSB sends the remaining bits,
// equal sends nothing, and an ignored field either gets recomputed (when
// the engine knows how) or travels in full.
func selectAction(fs fieldSpec, rf schc.RuleField) (schc.Action, error) {
	switch fs.CDA {
	case "":
		// derived below
	case "not-sent":
		return schc.NotSent, nil
	case "value-sent":
		return schc.ValueSent, nil
	case "mapping-sent":
		return schc.MappingSent, nil
	case "LSB", "lsb":
		return schc.LSB, nil
	case "compute":
		if !decompressor.Computable(rf.ID) {
			return schc.NotSent, fmt.Errorf("%w: field %s is not computable", schc.ErrContextInvalid, rf.ID)
		}
		return schc.Compute, nil
	default:
		return schc.NotSent, fmt.Errorf("%w: action %q", schc.ErrContextInvalid, fs.CDA)
	}

	switch rf.MO {
	case schc.MatchMapping:
		return schc.MappingSent, nil
	case schc.MSB:
		return schc.LSB, nil
	case schc.Equal:
		return schc.NotSent, nil
	default:
		if decompressor.Computable(rf.ID) {
			return schc.Compute, nil
		}
		return schc.ValueSent, nil
	}
}
