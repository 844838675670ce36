package schc

import (
	"fmt"

	"lowpan.xyz/schc/pkg/bitbuf"
)

// Context couples a ruleset with the parser stack its rules were written
// for and the network interface it is provisioned on. Contexts are built at
// configuration time and never mutated afterwards; they may be shared
// across engines without locking.
type Context struct {
	ID          string
	InterfaceID string
	ParserID    string

	// RuleIDLength is the fixed bit width of every rule id in the
	// ruleset; the decompressor reads exactly this many bits off the
	// front of a compressed stream.
	RuleIDLength int

	Rules []RuleDescriptor
}

// Validate checks the cross-rule invariants: at least one rule, uniform
// rule id width, unique ids, and the default rule (if any) in last
// position.
func (c Context) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("%w: context %s has no rules", ErrContextInvalid, c.ID)
	}
	if c.RuleIDLength < 1 {
		return fmt.Errorf("%w: context %s: rule id length %d", ErrContextInvalid, c.ID, c.RuleIDLength)
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("context %s rule %d: %w", c.ID, i, err)
		}
		if rule.ID.Len() != c.RuleIDLength {
			return fmt.Errorf("%w: context %s rule %d: id is %d bits, context uses %d",
				ErrContextInvalid, c.ID, i, rule.ID.Len(), c.RuleIDLength)
		}
		key := rule.ID.String()
		if seen[key] {
			return fmt.Errorf("%w: context %s: duplicate rule id %s", ErrContextInvalid, c.ID, key)
		}
		seen[key] = true
		if rule.IsDefault() && i != len(c.Rules)-1 {
			return fmt.Errorf("%w: context %s: default rule at position %d, must be last",
				ErrContextInvalid, c.ID, i)
		}
	}
	return nil
}

// RuleByID returns the rule whose id bit-equals id.
func (c Context) RuleByID(id bitbuf.Buffer) (RuleDescriptor, error) {
	for _, rule := range c.Rules {
		if rule.ID.Equal(id) {
			return rule, nil
		}
	}
	return RuleDescriptor{}, fmt.Errorf("%w: id %s in context %s", ErrNoRule, id, c.ID)
}

// DefaultRule returns the trailing default rule, if the ruleset carries
// one.
func (c Context) DefaultRule() (RuleDescriptor, bool) {
	if len(c.Rules) == 0 {
		return RuleDescriptor{}, false
	}
	last := c.Rules[len(c.Rules)-1]
	return last, last.IsDefault()
}
