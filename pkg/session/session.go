package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CookieName is the name of the browser cookie carrying the session token.
const CookieName = "samlbridge_session"

// ErrNotFound is returned when no live session exists for a token.
var ErrNotFound = errors.New("session: not found")

// Session is one issued browser session.
type Session struct {
	Token        string    `json:"token"`
	AccountID    int64     `json:"account_id"`
	Authname     string    `json:"authname"`
	SessionIndex string    `json:"session_index"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists issued sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	// DeleteByAccount revokes every session belonging to an account, used
	// when the local-login gate evicts a user.
	DeleteByAccount(ctx context.Context, accountID int64) error
	// CleanupExpired removes expired sessions and returns how many were
	// deleted. Backends with native expiry return 0.
	CleanupExpired(ctx context.Context) (int64, error)
}

// Manager issues and resolves sessions against a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager wraps a store with token generation and a fixed session TTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// Issue creates and persists a new session for the account.
func (m *Manager) Issue(ctx context.Context, accountID int64, authname, sessionIndex string) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		Token:        uuid.NewString(),
		AccountID:    accountID,
		Authname:     authname,
		SessionIndex: sessionIndex,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Resolve returns the live session for a token. Expired sessions are deleted
// and reported as ErrNotFound.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now().UTC()) {
		_ = m.store.Delete(ctx, token)
		return nil, ErrNotFound
	}
	return s, nil
}

// Revoke deletes a single session.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

// RevokeAccount deletes every session belonging to an account.
func (m *Manager) RevokeAccount(ctx context.Context, accountID int64) error {
	return m.store.DeleteByAccount(ctx, accountID)
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
