// Package identity reconciles IdP-asserted external identities with local
// accounts.
//
// The Resolver maps an authname to exactly one local account: an existing
// authmap entry is loaded, an unmapped authname is registered when policy
// allows, and username collisions fail closed unless auto-linking is opted
// in. The Synchronizer conditionally copies asserted profile attributes
// (username, email) onto the account, surfacing conflicts as warnings rather
// than failing the login.
//
// The authmap is the sole source of truth for "does this external identity
// already have a local account": entries are written exactly once at
// registration and never updated. Uniqueness constraints on the authmap
// authname and the account username are the only concurrency control this
// package relies on.
package identity
