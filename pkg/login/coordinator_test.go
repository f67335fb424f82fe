package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samlbridge/samlbridge/pkg/assertion"
	"github.com/samlbridge/samlbridge/pkg/identity"
	"github.com/samlbridge/samlbridge/pkg/rolemap"
	"github.com/samlbridge/samlbridge/pkg/session"
)

func mustRules(t *testing.T, raw string) rolemap.RuleSet {
	t.Helper()
	rules, issues := rolemap.Parse(raw)
	require.Empty(t, issues)
	return rules
}

type coordinatorFixture struct {
	coordinator *Coordinator
	store       *memStore
	sessions    *memSessions
}

func newCoordinatorFixture(t *testing.T, cfg Config, resolverCfg identity.ResolverConfig, syncCfg identity.SyncConfig) *coordinatorFixture {
	t.Helper()
	store := newMemStore()
	sessions := newMemSessions()
	resolver := identity.NewResolver(store, store, resolverCfg, nil)
	synchronizer := identity.NewSynchronizer(store, syncCfg, nil)
	mgr := session.NewManager(sessions, time.Hour)
	coordinator := NewCoordinator(cfg, resolver, synchronizer, store, mgr, nil, nil)
	return &coordinatorFixture{coordinator: coordinator, store: store, sessions: sessions}
}

func defaultConfig(t *testing.T) Config {
	return Config{
		UniqueIDAttribute:       "uid",
		EvaluateRolesEveryLogin: false,
		Rules:                   mustRules(t, "staff:eduPersonAffiliation,=,staff"),
	}
}

func TestLoginRegistersNewAccount(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{
		UsernameAttribute: "uid",
		EmailAttribute:    "mail",
	})

	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateFinalized, result.State)
	assert.True(t, result.Created)
	require.NotNil(t, result.Session)
	assert.Equal(t, result.Account.ID, result.Session.AccountID)
	assert.Equal(t, "alice", result.Session.Authname)
	assert.Equal(t, "idx-1", result.Session.SessionIndex)

	// New accounts always get an initial role evaluation.
	assert.Equal(t, []string{"staff"}, result.Roles)
	stored, err := f.store.LoadByID(context.Background(), result.Account.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasRole("staff"))
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginExistingAccountKeepsRoles(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	first := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")
	require.Equal(t, StateFinalized, first.State)

	// Attributes now satisfy a different rule, but eval_every_time is off.
	attrs := testAssertion()
	attrs["eduPersonAffiliation"] = []string{"faculty"}
	second := f.coordinator.Login(context.Background(), attrs, "idx-2")

	require.Equal(t, StateFinalized, second.State)
	assert.False(t, second.Created)
	assert.Nil(t, second.Roles)
	stored, err := f.store.LoadByID(context.Background(), second.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, stored.Roles)
}

func TestLoginEvaluatesRolesEveryLogin(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.EvaluateRolesEveryLogin = true
	cfg.Rules = mustRules(t, "staff:eduPersonAffiliation,=,staff|faculty:eduPersonAffiliation,=,faculty")
	f := newCoordinatorFixture(t, cfg, identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	first := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")
	require.Equal(t, StateFinalized, first.State)

	attrs := testAssertion()
	attrs["eduPersonAffiliation"] = []string{"faculty"}
	second := f.coordinator.Login(context.Background(), attrs, "idx-2")

	require.Equal(t, StateFinalized, second.State)
	assert.Equal(t, []string{"faculty"}, second.Roles)
	stored, err := f.store.LoadByID(context.Background(), second.Account.ID)
	require.NoError(t, err)
	// Role assignment is additive.
	assert.True(t, stored.HasRole("staff"))
	assert.True(t, stored.HasRole("faculty"))
}

func TestLoginRegistrationDenied(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: false}, identity.SyncConfig{})

	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateRejected, result.State)
	assert.Equal(t, ReasonRegistrationDenied, result.Reason)
	assert.ErrorIs(t, result.Err, identity.ErrRegistrationDenied)
	assert.Nil(t, result.Session)
	assert.Zero(t, f.sessions.count())
}

func TestLoginUsernameCollision(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	// A local account already holds the username and nothing links it.
	_, err := f.store.Create(context.Background(), identity.NewAccount{Username: "alice"})
	require.NoError(t, err)

	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateRejected, result.State)
	assert.Equal(t, ReasonNotSAMLEnabled, result.Reason)
	assert.ErrorIs(t, result.Err, identity.ErrUsernameCollision)
	assert.Zero(t, f.sessions.count())
}

func TestLoginGuardVetoWins(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	denied := errors.New("contractor accounts may not log in")
	f.coordinator.RegisterGuard(func(ctx context.Context, attrs assertion.Assertion) error {
		return nil // an allow vote must not override a later deny
	})
	f.coordinator.RegisterGuard(func(ctx context.Context, attrs assertion.Assertion) error {
		return denied
	})

	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateRejected, result.State)
	assert.Equal(t, ReasonPolicyDenied, result.Reason)
	assert.ErrorIs(t, result.Err, denied)
	// The guard ran before resolution, so nothing was registered.
	_, found, err := f.store.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoginMissingUniqueID(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	attrs := testAssertion()
	delete(attrs, "uid")
	result := f.coordinator.Login(context.Background(), attrs, "idx-1")

	require.Equal(t, StateRejected, result.State)
	assert.Equal(t, ReasonMissingIdentity, result.Reason)
	var missing *assertion.MissingAttributeError
	assert.ErrorAs(t, result.Err, &missing)
}

func TestLoginAuthnameOverride(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	f.coordinator.RegisterAuthnameOverride(func(ctx context.Context, authname string, attrs assertion.Assertion) (string, error) {
		return authname + "@idp.example.com", nil
	})

	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateFinalized, result.State)
	assert.Equal(t, "alice@idp.example.com", result.Session.Authname)
	_, found, err := f.store.Lookup(context.Background(), "alice@idp.example.com")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestLoginAlterPipeline(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.AlterPipeline = rolemap.Pipeline{
		func(roles []string, attrs assertion.Assertion) []string {
			return append(roles, "everyone")
		},
	}
	f := newCoordinatorFixture(t, cfg, identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateFinalized, result.State)
	assert.Equal(t, []string{"staff", "everyone"}, result.Roles)
}

func TestLoginSyncWarningsAreNotFatal(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{
		SyncEmail:         true,
		EmailAttribute:    "mail",
		UsernameAttribute: "uid",
	})

	attrs := testAssertion()
	delete(attrs, "mail")
	result := f.coordinator.Login(context.Background(), attrs, "idx-1")

	require.Equal(t, StateFinalized, result.State)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "email", result.Warnings[0].Field)
}

func TestLoginUsesUpdatedRules(t *testing.T) {
	f := newCoordinatorFixture(t, defaultConfig(t), identity.ResolverConfig{RegisterUsers: true}, identity.SyncConfig{})

	f.coordinator.UpdateRules(mustRules(t, "visitor:eduPersonAffiliation,=,staff"))
	result := f.coordinator.Login(context.Background(), testAssertion(), "idx-1")

	require.Equal(t, StateFinalized, result.State)
	assert.Equal(t, []string{"visitor"}, result.Roles)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "start", StateStart.String())
	assert.Equal(t, "finalized", StateFinalized.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "unknown", State(99).String())
}
