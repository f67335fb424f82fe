package identity

import (
	"context"
	"errors"

	"github.com/samlbridge/samlbridge/pkg/assertion"
	"github.com/samlbridge/samlbridge/pkg/observability"
)

// SyncConfig controls which profile fields are synchronized from the
// assertion and which attributes feed them.
type SyncConfig struct {
	// SyncUsername overwrites the account username from UsernameAttribute.
	SyncUsername bool
	// SyncEmail overwrites the account email from EmailAttribute.
	SyncEmail bool
	// UsernameAttribute is the asserted attribute holding the username.
	UsernameAttribute string
	// EmailAttribute is the asserted attribute holding the email address.
	EmailAttribute string
}

// Warning is a non-fatal synchronization problem surfaced to the caller. The
// login proceeds; the field is left unchanged.
type Warning struct {
	Field string
	Err   error
}

func (w Warning) Error() string { return w.Err.Error() }

// Synchronizer copies asserted profile attributes onto local accounts.
type Synchronizer struct {
	accounts AccountStore
	cfg      SyncConfig
	logger   *observability.Logger
}

// NewSynchronizer creates a synchronizer over the given account store.
func NewSynchronizer(accounts AccountStore, cfg SyncConfig, logger *observability.Logger) *Synchronizer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Synchronizer{accounts: accounts, cfg: cfg, logger: logger}
}

// Sync overwrites the enabled profile fields from the assertion, saving the
// account only when something actually changed. force enables both fields
// regardless of configuration (used right after registration).
//
// Problems with individual fields never fail the call: they come back as
// warnings and the field keeps its previous value. The returned error is
// reserved for store failures.
func (s *Synchronizer) Sync(ctx context.Context, account *Account, attrs assertion.Assertion, force bool) ([]Warning, error) {
	syncUsername := force || s.cfg.SyncUsername
	syncEmail := force || s.cfg.SyncEmail

	var (
		warnings []Warning
		changed  bool
	)

	if syncUsername {
		name, err := attrs.First(s.cfg.UsernameAttribute)
		switch {
		case err != nil:
			warnings = append(warnings, Warning{Field: "username", Err: err})
		case name != account.Username:
			if taken, err := s.usernameTaken(ctx, name, account.ID); err != nil {
				return warnings, err
			} else if taken {
				warnings = append(warnings, Warning{Field: "username", Err: &SyncConflictError{Field: "username", Value: name}})
			} else {
				account.Username = name
				changed = true
			}
		}
	}

	if syncEmail {
		mail, err := attrs.First(s.cfg.EmailAttribute)
		switch {
		case err != nil:
			warnings = append(warnings, Warning{Field: "email", Err: err})
		case mail != account.Email:
			account.Email = mail
			changed = true
		}
	}

	for _, w := range warnings {
		s.logger.WithError(w.Err).WithField("account_id", account.ID).
			Warnf("skipped %s synchronization", w.Field)
	}

	if !changed {
		return warnings, nil
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// usernameTaken reports whether another account already holds the username.
func (s *Synchronizer) usernameTaken(ctx context.Context, username string, selfID int64) (bool, error) {
	other, err := s.accounts.LoadByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return other.ID != selfID, nil
}
