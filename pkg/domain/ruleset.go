package domain

import "fmt"

// RuleSet names a family of game rules.
type RuleSet string

// RuleSetMikeLePage is the only rule set the server currently knows.
const RuleSetMikeLePage RuleSet = "mikelepage"

// ParseRuleSet validates a rule set name.
func ParseRuleSet(s string) (RuleSet, error) {
	switch RuleSet(s) {
	case RuleSetMikeLePage:
		return RuleSetMikeLePage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRuleSet, s)
	}
}
