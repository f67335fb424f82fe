package rolemap

import (
	"fmt"
	"strings"
)

// ParseIssue describes one malformed fragment found while parsing a rule
// string. Issues are reported, the fragment is skipped and parsing continues.
type ParseIssue struct {
	RuleIndex int    // position of the rule in the delimited string
	Fragment  string // the offending rule or predicate text
	Reason    string
}

func (i ParseIssue) String() string {
	return fmt.Sprintf("rule %d: %s: %q", i.RuleIndex, i.Reason, i.Fragment)
}

// Parse parses a role-population rule string into an immutable RuleSet.
//
// Malformed rules and predicates are dropped and reported as issues rather
// than failing the parse: the rule string is admin-edited configuration and a
// typo must not abort role evaluation for every login. An empty input yields
// an empty set with no issues.
func Parse(raw string) (RuleSet, []ParseIssue) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var (
		set    RuleSet
		issues []ParseIssue
	)

	for idx, ruleText := range strings.Split(raw, "|") {
		ruleText = strings.TrimSpace(ruleText)
		if ruleText == "" {
			issues = append(issues, ParseIssue{RuleIndex: idx, Fragment: ruleText, Reason: "empty rule"})
			continue
		}

		roleID, predList, ok := strings.Cut(ruleText, ":")
		if !ok || strings.TrimSpace(roleID) == "" {
			issues = append(issues, ParseIssue{RuleIndex: idx, Fragment: ruleText, Reason: "missing role_id separator ':'"})
			continue
		}

		rule := Rule{RoleID: strings.TrimSpace(roleID)}
		for _, predText := range strings.Split(predList, ";") {
			predText = strings.TrimSpace(predText)
			if predText == "" {
				issues = append(issues, ParseIssue{RuleIndex: idx, Fragment: predText, Reason: "empty predicate"})
				continue
			}

			// Exactly three fields. Values containing a literal comma
			// cannot be represented in this grammar.
			fields := strings.Split(predText, ",")
			if len(fields) != 3 {
				issues = append(issues, ParseIssue{
					RuleIndex: idx,
					Fragment:  predText,
					Reason:    fmt.Sprintf("expected 3 comma-separated fields, got %d", len(fields)),
				})
				continue
			}

			pred := Predicate{
				Attribute: strings.TrimSpace(fields[0]),
				Op:        Operator(strings.TrimSpace(fields[1])),
				Value:     strings.TrimSpace(fields[2]),
			}
			if pred.Attribute == "" {
				issues = append(issues, ParseIssue{RuleIndex: idx, Fragment: predText, Reason: "empty attribute name"})
				continue
			}
			switch pred.Op {
			case OpEquals, OpDomain, OpContains:
			default:
				// Unknown operators are kept: they evaluate to false per
				// predicate, matching evaluation semantics, but the admin
				// gets told about them here.
				issues = append(issues, ParseIssue{
					RuleIndex: idx,
					Fragment:  predText,
					Reason:    fmt.Sprintf("unknown operator %q", pred.Op),
				})
			}
			rule.Predicates = append(rule.Predicates, pred)
		}

		if len(rule.Predicates) == 0 {
			issues = append(issues, ParseIssue{RuleIndex: idx, Fragment: ruleText, Reason: "rule has no valid predicates"})
			continue
		}
		set = append(set, rule)
	}

	return set, issues
}
