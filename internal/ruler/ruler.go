// Package ruler stores a context's ruleset and selects the rule applying
// to a packet. Rule fields are listed in the same order as the fields of
// the packets they target, so residues come out of the compressor in the
// order the decompressor consumes them.
package ruler

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
	"lowpan.xyz/schc/pkg/schc"
)

// Ruler evaluates a context's rules first-match in declaration order.
type Ruler struct {
	ctx schc.Context
}

// New builds a ruler over a validated context.
func New(ctx schc.Context) *Ruler {
	return &Ruler{ctx: ctx}
}

// MatchPacket returns the first rule whose field descriptors all accept
// the packet's fields. A trailing default rule accepts any packet. When no
// rule applies and no default exists the lookup fails with ErrNoRule.
func (r *Ruler) MatchPacket(pd schc.PacketDescriptor) (schc.RuleDescriptor, error) {
	for _, rule := range r.ctx.Rules {
		if rule.IsDefault() {
			return rule, nil
		}
		ruleFields := rule.FieldsFor(pd.Direction)
		if len(ruleFields) != len(pd.Fields) {
			continue
		}
		matched := true
		for i, rf := range ruleFields {
			if !fieldMatch(pd.Fields[i], rf) {
				matched = false
				break
			}
		}
		if matched {
			return rule, nil
		}
	}
	return schc.RuleDescriptor{}, fmt.Errorf("%w: context %s, %d fields, direction %s",
		schc.ErrNoRule, r.ctx.ID, len(pd.Fields), pd.Direction)
}

// MatchStream reads the context's rule id off the front of a compressed
// stream and returns the matching rule.
func (r *Ruler) MatchStream(packet bitbuf.Buffer) (schc.RuleDescriptor, error) {
	if packet.Len() < r.ctx.RuleIDLength {
		return schc.RuleDescriptor{}, fmt.Errorf("%w: %d-bit stream, %d-bit rule id",
			schc.ErrResidueUnderrun, packet.Len(), r.ctx.RuleIDLength)
	}
	id, err := packet.Slice(0, r.ctx.RuleIDLength)
	if err != nil {
		return schc.RuleDescriptor{}, err
	}
	return r.ctx.RuleByID(id)
}
