package identity

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory AccountStore + AuthmapStore with the same
// uniqueness semantics as the SQL stores, safe for concurrent use.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	accounts  map[int64]*Account
	usernames map[string]int64
	authmap   map[string]int64

	// failCreate, when set, is returned by Create once.
	failCreate error
	saves      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:    1,
		accounts:  make(map[int64]*Account),
		usernames: make(map[string]int64),
		authmap:   make(map[string]int64),
	}
}

func (f *fakeStore) LoadByID(_ context.Context, id int64) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(account), nil
}

func (f *fakeStore) LoadByUsername(_ context.Context, username string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.usernames[username]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(f.accounts[id]), nil
}

func (f *fakeStore) Create(_ context.Context, fields NewAccount) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		err := f.failCreate
		f.failCreate = nil
		return nil, err
	}
	if _, taken := f.usernames[fields.Username]; taken {
		return nil, &UsernameCollisionError{Username: fields.Username}
	}
	now := time.Now().UTC()
	account := &Account{
		ID:        f.nextID,
		Username:  fields.Username,
		Email:     fields.Email,
		Roles:     append([]string(nil), fields.Roles...),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.nextID++
	f.accounts[account.ID] = account
	f.usernames[account.Username] = account.ID
	return cloneAccount(account), nil
}

func (f *fakeStore) Save(_ context.Context, account *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.accounts[account.ID]
	if !ok {
		return ErrNotFound
	}
	if id, taken := f.usernames[account.Username]; taken && id != account.ID {
		return &SyncConflictError{Field: "username", Value: account.Username}
	}
	delete(f.usernames, existing.Username)
	f.usernames[account.Username] = account.ID
	f.accounts[account.ID] = cloneAccount(account)
	f.saves++
	return nil
}

func (f *fakeStore) Lookup(_ context.Context, authname string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.authmap[authname]
	return id, ok, nil
}

func (f *fakeStore) InsertIfAbsent(_ context.Context, authname string, accountID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.authmap[authname]; exists {
		return false, nil
	}
	f.authmap[authname] = accountID
	return true, nil
}

func (f *fakeStore) accountCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

func (f *fakeStore) authmapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.authmap)
}

func cloneAccount(a *Account) *Account {
	c := *a
	c.Roles = append([]string(nil), a.Roles...)
	return &c
}
