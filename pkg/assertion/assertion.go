package assertion

import "fmt"

// Assertion maps attribute names to their ordered list of asserted values.
// It is immutable for the duration of one login event.
type Assertion map[string][]string

// MissingAttributeError indicates a required single-valued attribute was
// absent (or empty) in the assertion. Authname extraction treats this as
// fatal for the login; attribute synchronization treats it as a warning.
type MissingAttributeError struct {
	Attribute string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("no valid %q attribute set in assertion", e.Attribute)
}

// Values returns all values for the named attribute, resolving OID aliases.
// A nil slice means the attribute is not present.
func (a Assertion) Values(name string) []string {
	if vals, ok := a[name]; ok {
		return vals
	}
	// Rules are usually written against friendly names while many IdPs
	// assert urn:oid:* names (or the reverse). Try the alias.
	if alias, ok := attributeAlias(name); ok {
		return a[alias]
	}
	return nil
}

// Has reports whether the attribute is present under its own name or an alias.
func (a Assertion) Has(name string) bool {
	return a.Values(name) != nil
}

// First returns the first value of the named attribute, the single-valued
// extraction rule used for authname, username and email. Multi-valued
// attributes are truncated to index 0 on purpose; absence or an empty first
// value is a MissingAttributeError rather than a silent default.
func (a Assertion) First(name string) (string, error) {
	vals := a.Values(name)
	if len(vals) == 0 || vals[0] == "" {
		return "", &MissingAttributeError{Attribute: name}
	}
	return vals[0], nil
}

// Clone returns a deep copy. Handlers hand assertions to extension hooks; a
// copy keeps the original immutable for the rest of the login event.
func (a Assertion) Clone() Assertion {
	if a == nil {
		return nil
	}
	out := make(Assertion, len(a))
	for name, vals := range a {
		out[name] = append([]string(nil), vals...)
	}
	return out
}
