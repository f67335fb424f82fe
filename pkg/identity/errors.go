package identity

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. The typed errors below wrap these and
// carry the identifying detail.
var (
	// ErrRegistrationDenied means policy forbids creating new accounts for
	// unmapped external identities. Terminal: the caller must end the IdP
	// session and must not create any account state.
	ErrRegistrationDenied = errors.New("registration of new accounts is disabled")

	// ErrUsernameCollision means a local account already holds the username
	// an external identity would register under, and auto-linking is not
	// permitted. Terminal.
	ErrUsernameCollision = errors.New("a local account with this username already exists")

	// ErrSyncConflict means a synchronization target value is already held
	// by another account. Non-fatal: the field is left unchanged.
	ErrSyncConflict = errors.New("synchronized value collides with another account")

	// ErrNotFound is returned by stores for missing accounts.
	ErrNotFound = errors.New("account not found")
)

// RegistrationDeniedError carries the authname that was refused.
type RegistrationDeniedError struct {
	Authname string
}

func (e *RegistrationDeniedError) Error() string {
	return fmt.Sprintf("cannot register %q: %v", e.Authname, ErrRegistrationDenied)
}

func (e *RegistrationDeniedError) Unwrap() error { return ErrRegistrationDenied }

// UsernameCollisionError carries the colliding username.
type UsernameCollisionError struct {
	Username string
}

func (e *UsernameCollisionError) Error() string {
	return fmt.Sprintf("cannot register %q: %v", e.Username, ErrUsernameCollision)
}

func (e *UsernameCollisionError) Unwrap() error { return ErrUsernameCollision }

// SyncConflictError identifies the field and value that could not be synced.
type SyncConflictError struct {
	Field string
	Value string
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("cannot sync %s to %q: %v", e.Field, e.Value, ErrSyncConflict)
}

func (e *SyncConflictError) Unwrap() error { return ErrSyncConflict }
