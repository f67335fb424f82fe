// Package session manages the local browser sessions the bridge issues after
// a finalized login. A session records which local account it belongs to and
// the IdP session index needed for single logout. Two backends are provided:
// a SQL table swept periodically for expired rows, and Redis where expiry is
// delegated to key TTLs.
package session
