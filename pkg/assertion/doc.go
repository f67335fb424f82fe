// Package assertion models the attribute set vouched for by a SAML identity
// provider during one authentication event.
//
// An Assertion is a read-only, request-scoped view: it is built fresh per
// login from the IdP response and must never be cached across requests. Values
// are ordered and non-unique; single-valued extraction always takes index 0.
package assertion
