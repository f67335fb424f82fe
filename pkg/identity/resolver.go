package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/samlbridge/samlbridge/pkg/observability"
)

// ExistingAccountPolicy decides whether an unmapped external identity may be
// linked to a pre-existing local account carrying the same username. It is
// the extension point for existing-account resolution; when nil, the
// configured auto-link flag decides.
type ExistingAccountPolicy func(ctx context.Context, account *Account, authname string) (link bool, err error)

// ResolverConfig holds the registration policy knobs.
type ResolverConfig struct {
	// RegisterUsers allows creating local accounts for unmapped external
	// identities. When false, unmapped identities are rejected.
	RegisterUsers bool
	// AutoLinkExisting adopts a pre-existing local account whose username
	// equals the authname instead of failing. Off by default: silently
	// adopting an unrelated account is a security-sensitive decision.
	AutoLinkExisting bool
	// OnExistingAccount, when set, overrides AutoLinkExisting per account.
	OnExistingAccount ExistingAccountPolicy
}

// Resolver maps external identities to local accounts.
type Resolver struct {
	accounts AccountStore
	authmap  AuthmapStore
	cfg      ResolverConfig
	logger   *observability.Logger
}

// NewResolver creates a resolver over the given stores.
func NewResolver(accounts AccountStore, authmap AuthmapStore, cfg ResolverConfig, logger *observability.Logger) *Resolver {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Resolver{accounts: accounts, authmap: authmap, cfg: cfg, logger: logger}
}

// Resolve returns the local account for an external identity, registering it
// when policy allows. created reports whether this call created the account.
//
// Terminal outcomes wrap ErrRegistrationDenied or ErrUsernameCollision; the
// caller must treat them as final (end the IdP session, no retry).
func (r *Resolver) Resolve(ctx context.Context, authname string) (account *Account, created bool, err error) {
	if authname == "" {
		return nil, false, errors.New("authname must not be empty")
	}

	// The authmap is the sole source of truth for an already-linked
	// identity; a hit never takes the registration path.
	accountID, found, err := r.authmap.Lookup(ctx, authname)
	if err != nil {
		return nil, false, err
	}
	if found {
		account, err := r.accounts.LoadByID(ctx, accountID)
		if err != nil {
			return nil, false, fmt.Errorf("authmap entry for %q points at unloadable account %d: %w", authname, accountID, err)
		}
		return account, false, nil
	}

	if !r.cfg.RegisterUsers {
		return nil, false, &RegistrationDeniedError{Authname: authname}
	}

	// A local account may already hold this username without being
	// SAML-linked. Policy decides between adopting it and failing closed.
	existing, err := r.accounts.LoadByUsername(ctx, authname)
	switch {
	case err == nil:
		return r.resolveExisting(ctx, existing, authname)
	case errors.Is(err, ErrNotFound):
		// No local account, fall through to registration.
	default:
		return nil, false, err
	}

	return r.register(ctx, authname)
}

// resolveExisting handles the collision branch: an unmapped authname whose
// username is already taken locally.
func (r *Resolver) resolveExisting(ctx context.Context, existing *Account, authname string) (*Account, bool, error) {
	link := r.cfg.AutoLinkExisting
	if r.cfg.OnExistingAccount != nil {
		var err error
		link, err = r.cfg.OnExistingAccount(ctx, existing, authname)
		if err != nil {
			return nil, false, fmt.Errorf("existing-account policy failed for %q: %w", authname, err)
		}
	}
	if !link {
		return nil, false, &UsernameCollisionError{Username: authname}
	}

	inserted, err := r.authmap.InsertIfAbsent(ctx, authname, existing.ID)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// A concurrent login linked this authname first; trust the map.
		return r.loadMapped(ctx, authname)
	}

	r.logger.WithAuthname(authname).WithField("account_id", existing.ID).
		Info("linked existing local account to external identity")
	return existing, false, nil
}

// register creates the account and its authmap entry. The UNIQUE constraint
// on the account username serializes concurrent registrations for the same
// authname: the loser's Create fails and is retried as an authmap lookup, so
// exactly one account ever results.
func (r *Resolver) register(ctx context.Context, authname string) (*Account, bool, error) {
	account, err := r.accounts.Create(ctx, NewAccount{Username: authname})
	if err != nil {
		if errors.Is(err, ErrUsernameCollision) {
			// Lost a concurrent registration race, or the local account
			// appeared after our collision check. If the winner mapped the
			// authname, use their account; otherwise this is a genuine
			// collision.
			if accountID, found, lookupErr := r.authmap.Lookup(ctx, authname); lookupErr == nil && found {
				winner, loadErr := r.accounts.LoadByID(ctx, accountID)
				if loadErr != nil {
					return nil, false, loadErr
				}
				return winner, false, nil
			}
			return nil, false, &UsernameCollisionError{Username: authname}
		}
		return nil, false, err
	}

	inserted, err := r.authmap.InsertIfAbsent(ctx, authname, account.ID)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		// Only reachable when an auto-link raced us onto a different
		// account. The map wins; the account we created stays unused but
		// reachable by username for an operator to reconcile.
		r.logger.WithAuthname(authname).Warn("authmap entry appeared during registration, using mapped account")
		return r.loadMapped(ctx, authname)
	}

	r.logger.WithAuthname(authname).WithField("account_id", account.ID).
		Info("registered new account for external identity")
	return account, true, nil
}

func (r *Resolver) loadMapped(ctx context.Context, authname string) (*Account, bool, error) {
	accountID, found, err := r.authmap.Lookup(ctx, authname)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, fmt.Errorf("authmap entry for %q vanished", authname)
	}
	account, err := r.accounts.LoadByID(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return account, false, nil
}
