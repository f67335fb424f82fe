package login

import (
	"context"

	"github.com/samlbridge/samlbridge/pkg/assertion"
)

// LoginGuard inspects the asserted attributes before resolution and may veto
// the login by returning an error. Guards run in registration order and any
// single veto rejects the login; a later guard cannot un-veto an earlier one.
type LoginGuard func(ctx context.Context, attrs assertion.Assertion) error

// AuthnameOverride rewrites the external identity before it is used for
// lookup or registration. Overrides run in registration order, each seeing
// the previous one's output.
type AuthnameOverride func(ctx context.Context, authname string, attrs assertion.Assertion) (string, error)

func runGuards(ctx context.Context, guards []LoginGuard, attrs assertion.Assertion) error {
	for _, guard := range guards {
		if guard == nil {
			continue
		}
		if err := guard(ctx, attrs); err != nil {
			return err
		}
	}
	return nil
}

func applyAuthnameOverrides(ctx context.Context, overrides []AuthnameOverride, authname string, attrs assertion.Assertion) (string, error) {
	for _, override := range overrides {
		if override == nil {
			continue
		}
		next, err := override(ctx, authname, attrs)
		if err != nil {
			return "", err
		}
		if next != "" {
			authname = next
		}
	}
	return authname, nil
}
