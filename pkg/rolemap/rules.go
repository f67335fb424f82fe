package rolemap

import "fmt"

// Operator identifies a predicate comparison.
type Operator string

const (
	// OpEquals matches when the comparison value equals any element of the
	// attribute's value list.
	OpEquals Operator = "="
	// OpDomain matches when the portion after the last '@' of the
	// attribute's first value equals the comparison value.
	OpDomain Operator = "@="
	// OpContains matches when the comparison value is a substring of any
	// element of the attribute's value list.
	OpContains Operator = "~="
)

// Predicate is one attribute comparison inside a rule.
type Predicate struct {
	Attribute string
	Op        Operator
	Value     string
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s,%s,%s", p.Attribute, p.Op, p.Value)
}

// Rule grants one role when any of its predicates is satisfied.
type Rule struct {
	RoleID     string
	Predicates []Predicate
}

// RuleSet is an ordered list of rules. Evaluation follows declaration order.
type RuleSet []Rule

// Roles returns the role ids in declaration order, deduplicated.
func (rs RuleSet) Roles() []string {
	seen := make(map[string]bool, len(rs))
	var roles []string
	for _, r := range rs {
		if !seen[r.RoleID] {
			seen[r.RoleID] = true
			roles = append(roles, r.RoleID)
		}
	}
	return roles
}
