package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements AccountStore and AuthmapStore on SQLite, for
// single-node deployments and local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store backed by the given SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates the accounts and authmap tables if they do not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			roles TEXT NOT NULL DEFAULT '[]',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS authmap (
			authname TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure identity schema: %w", err)
	}
	return nil
}

// LoadByID loads an account by id.
func (s *SQLiteStore) LoadByID(ctx context.Context, id int64) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, roles, is_active, created_at, updated_at, last_login_at
		FROM accounts WHERE id = ?
	`, id))
}

// LoadByUsername loads an account by username.
func (s *SQLiteStore) LoadByUsername(ctx context.Context, username string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, roles, is_active, created_at, updated_at, last_login_at
		FROM accounts WHERE username = ?
	`, username))
}

// Create inserts a new account, reporting duplicate usernames as a
// UsernameCollisionError.
func (s *SQLiteStore) Create(ctx context.Context, fields NewAccount) (*Account, error) {
	rolesJSON, err := json.Marshal(roleListOrEmpty(fields.Roles))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roles: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, email, roles, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
	`, fields.Username, fields.Email, string(rolesJSON), now, now)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, &UsernameCollisionError{Username: fields.Username}
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read created account id: %w", err)
	}
	return s.LoadByID(ctx, id)
}

// Save persists the mutable fields of an existing account.
func (s *SQLiteStore) Save(ctx context.Context, account *Account) error {
	rolesJSON, err := json.Marshal(roleListOrEmpty(account.Roles))
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET username = ?, email = ?, roles = ?, is_active = ?,
			last_login_at = ?, updated_at = ?
		WHERE id = ?
	`, account.Username, account.Email, string(rolesJSON), account.IsActive,
		account.LastLoginAt, time.Now().UTC(), account.ID)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
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
func (s *SQLiteStore) Lookup(ctx context.Context, authname string) (int64, bool, error) {
	var accountID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM authmap WHERE authname = ?`, authname).Scan(&accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up authmap entry: %w", err)
	}
	return accountID, true, nil
}

// InsertIfAbsent writes the authname binding unless one already exists.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, authname string, accountID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO authmap (authname, account_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (authname) DO NOTHING
	`, authname, accountID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert authmap entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read authmap insert result: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*Account, error) {
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

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// The driver occasionally returns plain errors for constraint failures.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
