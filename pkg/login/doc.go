// Package login orchestrates one IdP login event end to end: pre-login
// guards, identity resolution, attribute synchronization, role evaluation and
// session finalization. It also implements the local-login gate, the
// independent per-request check that evicts locally-authenticated principals
// who are required to come in through the IdP.
package login
