package login

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/samlbridge/samlbridge/pkg/assertion"
	"github.com/samlbridge/samlbridge/pkg/identity"
	"github.com/samlbridge/samlbridge/pkg/idp"
	"github.com/samlbridge/samlbridge/pkg/session"
)

// memStore is an in-memory AccountStore + AuthmapStore for tests.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*identity.Account
	authmap  map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[int64]*identity.Account),
		authmap:  make(map[string]int64),
	}
}

func (s *memStore) LoadByID(ctx context.Context, id int64) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (s *memStore) LoadByUsername(ctx context.Context, username string) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Username == username {
			clone := *account
			return &clone, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *memStore) Create(ctx context.Context, fields identity.NewAccount) (*identity.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Username == fields.Username {
			return nil, &identity.UsernameCollisionError{Username: fields.Username}
		}
	}
	s.nextID++
	now := time.Now().UTC()
	account := &identity.Account{
		ID:        s.nextID,
		Username:  fields.Username,
		Email:     fields.Email,
		Roles:     append([]string(nil), fields.Roles...),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.accounts[account.ID] = account
	clone := *account
	return &clone, nil
}

func (s *memStore) Save(ctx context.Context, account *identity.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; !ok {
		return identity.ErrNotFound
	}
	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *memStore) Lookup(ctx context.Context, authname string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.authmap[authname]
	return id, ok, nil
}

func (s *memStore) InsertIfAbsent(ctx context.Context, authname string, accountID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authmap[authname]; ok {
		return false, nil
	}
	s.authmap[authname] = accountID
	return true, nil
}

// memSessions is an in-memory session.Store.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*session.Session)}
}

func (s *memSessions) Create(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	s.sessions[sess.Token] = &clone
	return nil
}

func (s *memSessions) Get(ctx context.Context, token string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *memSessions) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *memSessions) DeleteByAccount(ctx context.Context, accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.AccountID == accountID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *memSessions) CleanupExpired(ctx context.Context) (int64, error) { return 0, nil }

func (s *memSessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// fakeIdP is an IdPClient whose ParseResponse returns a canned session.
type fakeIdP struct {
	session    *idp.Session
	parseErr   error
	logouts    int
	logoutPath string
}

func (f *fakeIdP) RequireAuthentication(w http.ResponseWriter, r *http.Request, relayState string) error {
	http.Redirect(w, r, "https://idp.example.com/sso?RelayState="+relayState, http.StatusFound)
	return nil
}

func (f *fakeIdP) ParseResponse(r *http.Request) (*idp.Session, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.session, nil
}

func (f *fakeIdP) Logout(w http.ResponseWriter, r *http.Request, sessionIndex, returnPath string) error {
	f.logouts++
	f.logoutPath = returnPath
	http.Redirect(w, r, "https://idp.example.com/slo", http.StatusFound)
	return nil
}

func (f *fakeIdP) Metadata() ([]byte, error) {
	return []byte("<EntityDescriptor/>"), nil
}

func testAssertion() assertion.Assertion {
	return assertion.Assertion{
		"uid":            {"alice"},
		"mail":           {"alice@company.com"},
		"eduPersonAffiliation": {"staff"},
	}
}
