package rolemap

import "github.com/samlbridge/samlbridge/pkg/assertion"

// AlterFunc lets an external collaborator adjust the evaluated role set,
// given the full assertion, before the set is applied to an account. It must
// return the replacement role set and behave as a pure function.
type AlterFunc func(roles []string, attrs assertion.Assertion) []string

// Pipeline is an ordered list of role-set post-processors. Each function
// receives the output of the previous one; multiple independent collaborators
// contribute without any dynamic hook registry.
type Pipeline []AlterFunc

// Apply runs the pipeline over the evaluated roles. The input slice is copied
// first so alter functions cannot mutate the caller's set, and the final
// result is deduplicated preserving order.
func (p Pipeline) Apply(roles []string, attrs assertion.Assertion) []string {
	out := append([]string(nil), roles...)
	for _, fn := range p {
		if fn == nil {
			continue
		}
		out = fn(out, attrs)
	}
	return dedupe(out)
}

func dedupe(roles []string) []string {
	if len(roles) < 2 {
		return roles
	}
	seen := make(map[string]bool, len(roles))
	result := roles[:0]
	for _, r := range roles {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		result = append(result, r)
	}
	return result
}
