// Package idp adapts the external SAML identity provider to the bridge.
//
// It wraps a gosaml2 service provider: building the redirect to the IdP,
// turning a validated SAML response into a request-scoped Session carrying
// the full multi-valued attribute assertion, and issuing single-logout
// redirects. SAML XML parsing and signature verification stay inside
// gosaml2; nothing here touches cryptography directly.
package idp
