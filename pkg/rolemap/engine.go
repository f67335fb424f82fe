package rolemap

import (
	"strings"

	"github.com/samlbridge/samlbridge/pkg/assertion"
)

// Evaluate computes the set of role ids granted by the rule set for one
// assertion. The result follows rule declaration order with duplicates
// collapsed by role id.
//
// Evaluate is pure: no side effects, and identical inputs always yield an
// identical result.
func Evaluate(rules RuleSet, attrs assertion.Assertion) []string {
	seen := make(map[string]bool, len(rules))
	var roles []string

	for _, rule := range rules {
		if seen[rule.RoleID] {
			continue
		}
		if ruleSatisfied(rule, attrs) {
			seen[rule.RoleID] = true
			roles = append(roles, rule.RoleID)
		}
	}
	return roles
}

// ruleSatisfied applies OR semantics across the rule's predicates: the first
// satisfied predicate short-circuits to true. This is deliberate and differs
// from the AND reading a naive implementer would assume.
func ruleSatisfied(rule Rule, attrs assertion.Assertion) bool {
	for _, pred := range rule.Predicates {
		if predicateSatisfied(pred, attrs) {
			return true
		}
	}
	return false
}

// predicateSatisfied evaluates one predicate. A missing attribute or an
// unknown operator makes only this predicate false; it never aborts the
// evaluation of the rest of the set.
func predicateSatisfied(pred Predicate, attrs assertion.Assertion) bool {
	values := attrs.Values(pred.Attribute)
	if len(values) == 0 {
		return false
	}

	switch pred.Op {
	case OpEquals:
		for _, v := range values {
			if v == pred.Value {
				return true
			}
		}
		return false

	case OpDomain:
		// Compare the part after the last '@' of the FIRST value only.
		at := strings.LastIndex(values[0], "@")
		if at < 0 {
			return false
		}
		return values[0][at+1:] == pred.Value

	case OpContains:
		for _, v := range values {
			if strings.Contains(v, pred.Value) {
				return true
			}
		}
		return false

	default:
		return false
	}
}
