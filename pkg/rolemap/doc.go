// Package rolemap parses and evaluates the role-population rule language used
// to grant local roles from SAML assertion attributes.
//
// # Rule grammar
//
// A rule set is one delimited string:
//
//	role_id:attr,op,value;attr,op,value|role_id:attr,op,value
//
// Rules are separated by '|', each rule is "role_id:predicates", predicates
// are separated by ';' and each predicate is exactly three comma-separated
// fields. Comparison values containing a literal comma cannot be expressed in
// this grammar; that restriction is documented rather than worked around with
// an escaping scheme.
//
// # Operators
//
//	=   the value exactly matches any element of the attribute's value list
//	@=  the portion after the last '@' of the attribute's FIRST value matches
//	~=  the value is a substring of any element of the attribute's value list
//
// Predicates within one rule are OR'd: the first satisfied predicate grants
// the role. Unknown operators and missing attributes make only that predicate
// false.
//
// Rule strings are parsed once at configuration-load time via Parse, which
// reports malformed fragments as ParseIssues instead of failing, so one admin
// typo cannot lock every user out. Evaluate is a pure function over the
// parsed set and an assertion.
package rolemap
