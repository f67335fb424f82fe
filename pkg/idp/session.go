package idp

import "github.com/samlbridge/samlbridge/pkg/assertion"

// Session is the request-scoped view of one validated IdP authentication.
// It exists only for the duration of the login event and is never persisted.
type Session struct {
	authenticated bool
	attributes    assertion.Assertion
	nameID        string
	sessionIndex  string
}

// Anonymous is the session of a request with no IdP authentication.
var Anonymous = &Session{}

// IsAuthenticated reports whether the IdP vouched for this request.
func (s *Session) IsAuthenticated() bool { return s.authenticated }

// Attributes returns the full assertion. Nil for anonymous sessions.
func (s *Session) Attributes() assertion.Assertion { return s.attributes }

// NameID returns the subject NameID asserted by the IdP.
func (s *Session) NameID() string { return s.nameID }

// SessionIndex identifies the IdP-side session, needed for single logout.
func (s *Session) SessionIndex() string { return s.sessionIndex }

// NewSession builds a session from already-validated parts; the login
// coordinator tests and non-SAML integrations use it.
func NewSession(attrs assertion.Assertion, nameID, sessionIndex string) *Session {
	return &Session{
		authenticated: true,
		attributes:    attrs,
		nameID:        nameID,
		sessionIndex:  sessionIndex,
	}
}
