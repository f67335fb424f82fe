package identity

import "time"

// Account is the local identity record owned by the account store. The core
// never deletes accounts; it only creates them or mutates fields on existing
// ones.
type Account struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	Roles       []string   `json:"roles,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// HasRole reports whether the account currently holds the role.
func (a *Account) HasRole(roleID string) bool {
	for _, r := range a.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// AddRoles appends the given roles, skipping ones already held, and reports
// whether anything changed.
func (a *Account) AddRoles(roleIDs []string) bool {
	changed := false
	for _, id := range roleIDs {
		if id == "" || a.HasRole(id) {
			continue
		}
		a.Roles = append(a.Roles, id)
		changed = true
	}
	return changed
}

// NewAccount holds the fields for account creation. The store assigns the id.
type NewAccount struct {
	Username string
	Email    string
	Roles    []string
}
