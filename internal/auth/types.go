package auth

import "time"

// User is an identity record. The core never mutates a user beyond what
// registration creates; bans and profile edits belong to the admin surface.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	IsBanned     bool      `json:"is_banned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named permission bundle seeded at deployment. Order ranks roles
// by intended authority; ban evaluation is order-independent, see
// Evaluator.Check.
type Role struct {
	ID           string    `json:"id"`
	Order        int       `json:"order"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	IsSystemRole bool      `json:"is_system_role"`
	Permissions  []string  `json:"permissions"`
	Bans         []string  `json:"bans"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the unit of authentication state. IsRevoked is monotonic: once
// true it never goes back, and a revoked session can never mint new tokens.
// Sessions are never deleted by the core, only revoked or lazily expired.
type Session struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	IsRevoked  bool       `json:"is_revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TokenPair carries the access and refresh tokens issued for one session.
// Tokens themselves are not persisted; only the backing session row is.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Identity is the result of validating an access token.
type Identity struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}
