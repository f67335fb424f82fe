package login

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/samlbridge/samlbridge/pkg/identity"
	"github.com/samlbridge/samlbridge/pkg/observability"
	"github.com/samlbridge/samlbridge/pkg/session"
)

// GateConfig is the local-login policy: whether accounts may hold a session
// without a live IdP authentication, and which accounts are exempt.
type GateConfig struct {
	// Activated mirrors the bridge activation flag; a deactivated bridge
	// never evicts anyone.
	Activated bool
	// AllowDefaultLogin permits the allow-listed accounts below to stay
	// logged in locally. When false every local-only session is evicted.
	AllowDefaultLogin bool
	AllowedAccountIDs []int64
	AllowedRoles      []string
	// RedirectPath is where evicted principals are sent. Defaults to "/".
	RedirectPath string
}

// Check decides whether a locally-authenticated principal may keep its
// session. idpAuthenticated is whether the current request also carries a
// live IdP authentication. A false return means the session must be ended.
func Check(cfg GateConfig, account *identity.Account, idpAuthenticated bool) bool {
	if account == nil {
		return true
	}
	if !cfg.Activated {
		return true
	}
	if idpAuthenticated {
		return true
	}

	if cfg.AllowDefaultLogin {
		for _, id := range cfg.AllowedAccountIDs {
			if id == account.ID {
				return true
			}
		}
		for _, role := range cfg.AllowedRoles {
			if account.HasRole(role) {
				return true
			}
		}
	}
	return false
}

// Gate is the per-request middleware enforcing the local-login policy.
type Gate struct {
	cfg      GateConfig
	accounts identity.AccountStore
	sessions *session.Manager
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewGate builds the middleware. metrics and logger may be nil.
func NewGate(cfg GateConfig, accounts identity.AccountStore, sessions *session.Manager, metrics *observability.Metrics, logger *observability.Logger) *Gate {
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Gate{cfg: cfg, accounts: accounts, sessions: sessions, metrics: metrics, logger: logger}
}

// Middleware wraps a handler with the gate check. Anonymous requests pass
// through untouched. A request whose session was established through the
// bridge counts as IdP-authenticated for its lifetime.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := g.currentSession(r)
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}

		idpAuthenticated := sess.Authname != ""
		account, err := g.accounts.LoadByID(r.Context(), sess.AccountID)
		if err != nil {
			g.evict(w, r, sess)
			return
		}

		if !Check(g.cfg, account, idpAuthenticated) {
			g.logger.WithField("account_id", account.ID).Debugf("user %s not authorized to log in using local account", account.Username)
			g.evict(w, r, sess)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) currentSession(r *http.Request) *session.Session {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil
	}
	sess, err := g.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		return nil
	}
	return sess
}

func (g *Gate) evict(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := g.sessions.Revoke(r.Context(), sess.Token); err != nil {
		g.logger.WithError(err).Error("failed to revoke session")
	}
	clearSessionCookie(w)
	if g.metrics != nil {
		g.metrics.GateEvictionsTotal.Inc()
	}
	http.Redirect(w, r, g.cfg.RedirectPath, http.StatusFound)
}

// EvictAccount revokes every session an account holds, outside the request
// path. Used by admin tooling when an account is disabled.
func (g *Gate) EvictAccount(ctx context.Context, accountID int64) error {
	return g.sessions.RevokeAccount(ctx, accountID)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// ParseAllowedAccountIDs converts the comma-separated uid allow-list from
// configuration into ids, skipping blanks and non-numeric entries.
func ParseAllowedAccountIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
