package identity

import "context"

// AccountStore is the external account backend.
type AccountStore interface {
	// LoadByID loads an account or returns ErrNotFound.
	LoadByID(ctx context.Context, id int64) (*Account, error)
	// LoadByUsername loads an account by username or returns ErrNotFound.
	LoadByUsername(ctx context.Context, username string) (*Account, error)
	// Create inserts a new account. A username already taken by another
	// account yields an error wrapping ErrUsernameCollision; the store
	// enforces this with a uniqueness constraint, which makes Create the
	// serialization point for concurrent registrations.
	Create(ctx context.Context, fields NewAccount) (*Account, error)
	// Save persists mutated fields of an existing account.
	Save(ctx context.Context, account *Account) error
}

// AuthmapStore persists the 1:1 binding between an external identity and a
// local account id. Entries are written once and never updated.
type AuthmapStore interface {
	// Lookup returns the mapped account id for an authname, with found=false
	// when no entry exists.
	Lookup(ctx context.Context, authname string) (accountID int64, found bool, err error)
	// InsertIfAbsent writes the binding unless the authname is already
	// mapped, reporting whether this call inserted it. The store must make
	// this atomic on the authname key.
	InsertIfAbsent(ctx context.Context, authname string, accountID int64) (inserted bool, err error)
}
