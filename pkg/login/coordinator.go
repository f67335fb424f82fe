package login

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samlbridge/samlbridge/pkg/assertion"
	"github.com/samlbridge/samlbridge/pkg/identity"
	"github.com/samlbridge/samlbridge/pkg/observability"
	"github.com/samlbridge/samlbridge/pkg/rolemap"
	"github.com/samlbridge/samlbridge/pkg/session"
)

// State is the position of a login event in its lifecycle.
type State int

const (
	StateStart State = iota
	StateResolved
	StateSynchronized
	StateRolesEvaluated
	StateFinalized
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateResolved:
		return "resolved"
	case StateSynchronized:
		return "synchronized"
	case StateRolesEvaluated:
		return "roles_evaluated"
	case StateFinalized:
		return "finalized"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Rejection reasons shown to the user on terminal failures.
const (
	ReasonRegistrationDenied = "We are sorry. While you have successfully authenticated, you are not yet entitled to access this site. Please ask the site administrator to provision access for you."
	ReasonNotSAMLEnabled     = "We are sorry, your user account is not SAML enabled."
	ReasonMissingIdentity    = "Your unique identifier was not provided by your identity provider (IdP)."
	ReasonPolicyDenied       = "Your login was refused by site policy."
)

// Result is the outcome of one login event.
type Result struct {
	State    State
	Account  *identity.Account
	Created  bool
	Roles    []string
	Warnings []identity.Warning
	Session  *session.Session
	// Reason is the human-readable message for rejected logins.
	Reason string
	Err    error

	outcome string
}

// Rejected reports whether the login terminated without a session.
func (r *Result) Rejected() bool { return r.State == StateRejected }

// Config holds the policy knobs for the coordinator.
type Config struct {
	// UniqueIDAttribute names the assertion attribute holding the external
	// identity.
	UniqueIDAttribute string
	// EvaluateRolesEveryLogin re-runs role evaluation on every login, not
	// just at registration.
	EvaluateRolesEveryLogin bool
	// Rules is the parsed role-population rule set.
	Rules rolemap.RuleSet
	// AlterPipeline post-processes the evaluated role set.
	AlterPipeline rolemap.Pipeline
}

// Coordinator drives the login state machine.
type Coordinator struct {
	cfg          Config
	resolver     *identity.Resolver
	synchronizer *identity.Synchronizer
	accounts     identity.AccountStore
	sessions     *session.Manager
	guards       []LoginGuard
	overrides    []AuthnameOverride
	metrics      *observability.Metrics
	logger       *observability.Logger
	now          func() time.Time

	rulesMu sync.RWMutex
	rules   rolemap.RuleSet
}

// NewCoordinator wires the login pipeline together. metrics and logger may be
// nil.
func NewCoordinator(cfg Config, resolver *identity.Resolver, synchronizer *identity.Synchronizer, accounts identity.AccountStore, sessions *session.Manager, metrics *observability.Metrics, logger *observability.Logger) *Coordinator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Coordinator{
		cfg:          cfg,
		resolver:     resolver,
		synchronizer: synchronizer,
		accounts:     accounts,
		sessions:     sessions,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
		rules:        cfg.Rules,
	}
}

// UpdateRules swaps the role-population rule set, used by the hot-reload
// watcher. Safe to call concurrently with Login.
func (c *Coordinator) UpdateRules(rules rolemap.RuleSet) {
	c.rulesMu.Lock()
	c.rules = rules
	c.rulesMu.Unlock()
}

func (c *Coordinator) currentRules() rolemap.RuleSet {
	c.rulesMu.RLock()
	defer c.rulesMu.RUnlock()
	return c.rules
}

// RegisterGuard appends a pre-login guard. Not safe to call concurrently
// with Login; register guards at startup.
func (c *Coordinator) RegisterGuard(guard LoginGuard) {
	c.guards = append(c.guards, guard)
}

// RegisterAuthnameOverride appends an authname override hook.
func (c *Coordinator) RegisterAuthnameOverride(override AuthnameOverride) {
	c.overrides = append(c.overrides, override)
}

// Login runs one login event to completion. The returned Result is always
// non-nil; terminal failures come back as StateRejected with a Reason, and
// the caller is responsible for tearing the IdP session down in that case.
func (c *Coordinator) Login(ctx context.Context, attrs assertion.Assertion, sessionIndex string) *Result {
	started := c.now()
	result := c.login(ctx, attrs, sessionIndex)
	c.observe(result, c.now().Sub(started))
	return result
}

func (c *Coordinator) login(ctx context.Context, attrs assertion.Assertion, sessionIndex string) *Result {
	result := &Result{State: StateStart}

	if err := runGuards(ctx, c.guards, attrs); err != nil {
		c.logger.WithError(err).Warn("login vetoed by guard")
		return reject(result, ReasonPolicyDenied, err, observability.OutcomeGuardDenied)
	}

	authname, err := attrs.First(c.cfg.UniqueIDAttribute)
	if err != nil {
		c.logger.WithError(err).WithField("attribute", c.cfg.UniqueIDAttribute).Warn("unique id attribute missing from assertion")
		return reject(result, ReasonMissingIdentity, err, observability.OutcomeRejected)
	}
	authname, err = applyAuthnameOverrides(ctx, c.overrides, authname, attrs)
	if err != nil {
		c.logger.WithError(err).Warn("authname override failed")
		return reject(result, ReasonPolicyDenied, err, observability.OutcomeRejected)
	}

	account, created, err := c.resolver.Resolve(ctx, authname)
	if err != nil {
		log := c.logger.WithAuthname(authname).WithError(err)
		switch {
		case errors.Is(err, identity.ErrRegistrationDenied):
			log.Warn("registration denied")
			return reject(result, ReasonRegistrationDenied, err, observability.OutcomeRegistrationDenied)
		case errors.Is(err, identity.ErrUsernameCollision):
			log.Warn("username collision")
			return reject(result, ReasonNotSAMLEnabled, err, observability.OutcomeUsernameCollision)
		default:
			log.Error("identity resolution failed")
			return reject(result, ReasonPolicyDenied, err, observability.OutcomeError)
		}
	}
	result.State = StateResolved
	result.Account = account
	result.Created = created

	// Synchronization failures never terminate the login; they surface as
	// warnings on the result.
	warnings, err := c.synchronizer.Sync(ctx, account, attrs, created)
	if err != nil {
		c.logger.WithAuthname(authname).WithError(err).Error("attribute synchronization failed")
	}
	result.Warnings = warnings
	result.State = StateSynchronized

	if c.cfg.EvaluateRolesEveryLogin || created {
		roles := rolemap.Evaluate(c.currentRules(), attrs)
		roles = c.cfg.AlterPipeline.Apply(roles, attrs)
		result.Roles = roles
		if account.AddRoles(roles) {
			if err := c.accounts.Save(ctx, account); err != nil {
				c.logger.WithAuthname(authname).WithError(err).Error("failed to persist role assignment")
				return reject(result, ReasonPolicyDenied, err, observability.OutcomeError)
			}
		}
	}
	result.State = StateRolesEvaluated

	now := c.now().UTC()
	account.LastLoginAt = &now
	if err := c.accounts.Save(ctx, account); err != nil {
		c.logger.WithAuthname(authname).WithError(err).Error("failed to record login time")
		return reject(result, ReasonPolicyDenied, err, observability.OutcomeError)
	}

	sess, err := c.sessions.Issue(ctx, account.ID, authname, sessionIndex)
	if err != nil {
		c.logger.WithAuthname(authname).WithError(err).Error("failed to establish session")
		return reject(result, ReasonPolicyDenied, err, observability.OutcomeError)
	}
	result.Session = sess
	result.State = StateFinalized

	c.logger.WithAuthname(authname).WithFields(map[string]interface{}{
		"account_id": account.ID,
		"created":    created,
		"roles":      len(result.Roles),
	}).Info("login finalized")
	return result
}

func reject(result *Result, reason string, err error, outcome string) *Result {
	result.State = StateRejected
	result.Reason = reason
	result.Err = err
	result.outcome = outcome
	return result
}

func (c *Coordinator) observe(result *Result, took time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := result.outcome
	if result.State == StateFinalized {
		outcome = observability.OutcomeFinalized
	}
	c.metrics.LoginDuration.Observe(took.Seconds())
	c.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	if result.Created {
		c.metrics.RegistrationsTotal.Inc()
	}
	if result.State == StateFinalized {
		c.metrics.RolesGranted.Observe(float64(len(result.Roles)))
	}
	for _, w := range result.Warnings {
		c.metrics.SyncWarningsTotal.WithLabelValues(w.Field).Inc()
	}
}
