package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth core. All
// mutation safety is delegated to the store: single-row conditional updates,
// uniqueness constraints on users.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Sessions(ctx context.Context) SessionStore
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByLogin matches username OR email with a single lookup.
	FindByLogin(ctx context.Context, usernameOrEmail string) (*User, error)
	// Exists reports whether a user already holds the username or email.
	// Single existence query; the uniqueness constraint stays authoritative.
	Exists(ctx context.Context, username, email string) (bool, error)
}

// RoleStore manages role configuration and assignments. Roles are read-only
// for the core; Assign is the only write (default role grant on register).
type RoleStore interface {
	Find(ctx context.Context, id string) (*Role, error)
	// FindByOrder resolves a role by its unique order value.
	FindByOrder(ctx context.Context, order int) (*Role, error)
	ListByUser(ctx context.Context, userID string) ([]*Role, error)
	Assign(ctx context.Context, assignment UserRole) error
}

// SessionStore manages session lifecycle rows.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// Revoke conditionally flips is_revoked from false to true. It reports
	// whether this call performed the transition: false means the session
	// was already revoked or does not exist. Must be safe under concurrent
	// writers (compare-and-set, not a blind overwrite).
	Revoke(ctx context.Context, id string) (bool, error)
	// Touch updates last_used_at. Last-writer-wins is acceptable; the field
	// is a liveness hint, not correctness-bearing.
	Touch(ctx context.Context, id string, at time.Time) error
}
