package login

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/samlbridge/samlbridge/pkg/httputil"
	"github.com/samlbridge/samlbridge/pkg/identity"
	"github.com/samlbridge/samlbridge/pkg/idp"
	"github.com/samlbridge/samlbridge/pkg/observability"
	"github.com/samlbridge/samlbridge/pkg/session"
)

const returnToCookie = "samlbridge_return_to"

// flashCookie carries the rejection reason across the post-rejection
// redirect so the landing page can show it.
const flashCookie = "samlbridge_flash"

// IdPClient is the slice of the SAML provider the handlers need.
type IdPClient interface {
	RequireAuthentication(w http.ResponseWriter, r *http.Request, relayState string) error
	ParseResponse(r *http.Request) (*idp.Session, error)
	Logout(w http.ResponseWriter, r *http.Request, sessionIndex, returnPath string) error
	Metadata() ([]byte, error)
}

// HandlerConfig holds the HTTP-surface settings.
type HandlerConfig struct {
	// Activated gates every route; a deactivated bridge sends users to the
	// local login page instead.
	Activated bool
	// LocalLoginPath is where deactivated-bridge traffic is redirected.
	LocalLoginPath string
	// DefaultReturnTo is used when no explicit ReturnTo was requested.
	DefaultReturnTo string
	// SecureCookies marks issued cookies Secure; enable behind TLS.
	SecureCookies bool
}

// Handlers is the HTTP surface of the bridge.
type Handlers struct {
	cfg         HandlerConfig
	provider    IdPClient
	coordinator *Coordinator
	sessions    *session.Manager
	accounts    identity.AccountStore
	logger      *observability.Logger
}

// NewHandlers builds the HTTP surface. logger may be nil.
func NewHandlers(cfg HandlerConfig, provider IdPClient, coordinator *Coordinator, sessions *session.Manager, accounts identity.AccountStore, logger *observability.Logger) *Handlers {
	if cfg.LocalLoginPath == "" {
		cfg.LocalLoginPath = "/user/login"
	}
	if cfg.DefaultReturnTo == "" {
		cfg.DefaultReturnTo = "/"
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{cfg: cfg, provider: provider, coordinator: coordinator, sessions: sessions, accounts: accounts, logger: logger}
}

// Register mounts the SAML routes on the router.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/saml/login", h.Login).Methods(http.MethodGet)
	router.HandleFunc("/saml/acs", h.ACS).Methods(http.MethodPost)
	router.HandleFunc("/saml/logout", h.Logout).Methods(http.MethodGet)
	router.HandleFunc("/saml/metadata", h.Metadata).Methods(http.MethodGet)
	router.HandleFunc("/session/me", h.Whoami).Methods(http.MethodGet)
}

// Login stores the requested return path and redirects to the IdP.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Activated {
		http.Redirect(w, r, h.cfg.LocalLoginPath, http.StatusFound)
		return
	}

	returnTo := sanitizeReturnTo(r.URL.Query().Get("ReturnTo"))
	if returnTo != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     returnToCookie,
			Value:    url.QueryEscape(returnTo),
			Path:     "/",
			MaxAge:   600,
			HttpOnly: true,
			Secure:   h.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}

	if err := h.provider.RequireAuthentication(w, r, returnTo); err != nil {
		h.logger.WithError(err).Error("failed to initiate IdP authentication")
		http.Error(w, "authentication is unavailable", http.StatusBadGateway)
	}
}

// ACS receives the IdP response and drives the login event. Rejected logins
// tear the IdP session down so the user is not bounced straight back.
func (h *Handlers) ACS(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Activated {
		http.Redirect(w, r, h.cfg.LocalLoginPath, http.StatusFound)
		return
	}

	idpSession, err := h.provider.ParseResponse(r)
	if err != nil {
		h.logger.WithError(err).Warn("invalid SAML response")
		http.Error(w, "invalid SAML response", http.StatusBadRequest)
		return
	}

	result := h.coordinator.Login(r.Context(), idpSession.Attributes(), idpSession.SessionIndex())
	if result.Rejected() {
		h.setFlash(w, result.Reason)
		if err := h.provider.Logout(w, r, idpSession.SessionIndex(), h.cfg.DefaultReturnTo); err != nil {
			h.logger.WithError(err).Error("failed to tear down IdP session")
			http.Redirect(w, r, h.cfg.DefaultReturnTo, http.StatusFound)
		}
		return
	}

	for _, warning := range result.Warnings {
		h.setFlash(w, warning.Error())
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    result.Session.Token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.consumeReturnTo(w, r), http.StatusFound)
}

// Logout revokes the local session and forwards to IdP single logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Activated {
		http.Redirect(w, r, h.cfg.LocalLoginPath, http.StatusFound)
		return
	}

	sessionIndex := ""
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if sess, err := h.sessions.Resolve(r.Context(), cookie.Value); err == nil {
			sessionIndex = sess.SessionIndex
			if err := h.sessions.Revoke(r.Context(), sess.Token); err != nil {
				h.logger.WithError(err).Error("failed to revoke session")
			}
		}
	}
	clearSessionCookie(w)

	returnTo := sanitizeReturnTo(r.URL.Query().Get("ReturnTo"))
	if returnTo == "" {
		returnTo = h.cfg.DefaultReturnTo
	}
	if err := h.provider.Logout(w, r, sessionIndex, returnTo); err != nil {
		h.logger.WithError(err).Error("failed to initiate IdP logout")
		http.Redirect(w, r, returnTo, http.StatusFound)
	}
}

// Metadata serves the SP metadata document.
func (h *Handlers) Metadata(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Activated {
		http.NotFound(w, r)
		return
	}

	doc, err := h.provider.Metadata()
	if err != nil {
		h.logger.WithError(err).Error("failed to build SP metadata")
		http.Error(w, "metadata unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(doc)
}

// Whoami reports the account behind the caller's session. It answers 401 for
// anonymous callers so front-ends can probe login state without a redirect.
func (h *Handlers) Whoami(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		httputil.WriteUnauthorized(w, "no active session")
		return
	}
	sess, err := h.sessions.Resolve(r.Context(), cookie.Value)
	if err != nil {
		httputil.WriteUnauthorized(w, "no active session")
		return
	}

	account, err := h.accounts.LoadByID(r.Context(), sess.AccountID)
	if err != nil {
		h.logger.WithError(err).Error("failed to load session account")
		httputil.WriteUnauthorized(w, "no active session")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account":       account,
		"authname":      sess.Authname,
		"session_index": sess.SessionIndex,
		"expires_at":    sess.ExpiresAt,
	})
}

func (h *Handlers) setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: false,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) consumeReturnTo(w http.ResponseWriter, r *http.Request) string {
	returnTo := sanitizeReturnTo(r.FormValue("RelayState"))
	if cookie, err := r.Cookie(returnToCookie); err == nil {
		if fromCookie, err := url.QueryUnescape(cookie.Value); err == nil && returnTo == "" {
			returnTo = sanitizeReturnTo(fromCookie)
		}
		http.SetCookie(w, &http.Cookie{Name: returnToCookie, Value: "", Path: "/", MaxAge: -1})
	}
	if returnTo == "" {
		returnTo = h.cfg.DefaultReturnTo
	}
	return returnTo
}

// sanitizeReturnTo keeps redirects on this site: only rooted paths survive,
// never absolute or scheme-relative URLs.
func sanitizeReturnTo(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	return raw
}
