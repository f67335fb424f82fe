package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// postgres unique_violation
const pqUniqueViolation = "23505"

// PostgresStore implements AccountStore and AuthmapStore on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the accounts and authmap tables if they do not exist.
// The UNIQUE constraints on accounts.username and authmap.authname are load
// bearing: they are the only concurrency control for registration.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			roles TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS authmap (
			authname TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure identity schema: %w", err)
	}
	return nil
}

// LoadByID loads an account by id.
func (s *PostgresStore) LoadByID(ctx context.Context, id int64) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, roles, is_active, created_at, updated_at, last_login_at
		FROM accounts WHERE id = $1
	`, id))
}

// LoadByUsername loads an account by username.
func (s *PostgresStore) LoadByUsername(ctx context.Context, username string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, roles, is_active, created_at, updated_at, last_login_at
		FROM accounts WHERE username = $1
	`, username))
}

// Create inserts a new account. A duplicate username surfaces as a
// UsernameCollisionError so a concurrent double-registration loser can fall
// back to an authmap lookup.
func (s *PostgresStore) Create(ctx context.Context, fields NewAccount) (*Account, error) {
	rolesJSON, err := json.Marshal(roleListOrEmpty(fields.Roles))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roles: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (username, email, roles, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, true, NOW(), NOW())
		RETURNING id
	`, fields.Username, fields.Email, string(rolesJSON)).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, &UsernameCollisionError{Username: fields.Username}
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return s.LoadByID(ctx, id)
}

// Save persists the mutable fields of an existing account.
func (s *PostgresStore) Save(ctx context.Context, account *Account) error {
	rolesJSON, err := json.Marshal(roleListOrEmpty(account.Roles))
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET username = $1, email = $2, roles = $3, is_active = $4,
			last_login_at = $5, updated_at = NOW()
		WHERE id = $6
	`, account.Username, account.Email, string(rolesJSON), account.IsActive,
		account.LastLoginAt, account.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return &SyncConflictError{Field: "username", Value: account.Username}
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Lookup finds the account id mapped to an authname.
func (s *PostgresStore) Lookup(ctx context.Context, authname string) (int64, bool, error) {
	var accountID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM authmap WHERE authname = $1`, authname).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up authmap entry: %w", err)
	}
	return accountID, true, nil
}

// InsertIfAbsent writes the authname binding unless one already exists.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, authname string, accountID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO authmap (authname, account_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (authname) DO NOTHING
	`, authname, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to insert authmap entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read authmap insert result: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) scanAccount(row *sql.Row) (*Account, error) {
	var (
		account   Account
		rolesJSON string
	)
	err := row.Scan(&account.ID, &account.Username, &account.Email, &rolesJSON,
		&account.IsActive, &account.CreatedAt, &account.UpdatedAt, &account.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &account.Roles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roles for account %d: %w", account.ID, err)
	}
	return &account, nil
}

func roleListOrEmpty(roles []string) []string {
	if roles == nil {
		return []string{}
	}
	return roles
}
