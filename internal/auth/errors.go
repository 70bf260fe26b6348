package auth

import "errors"

var (
	// ErrConflict is returned when registration collides with an existing
	// username or email. The database uniqueness constraint is the
	// authoritative trigger; the pre-check is only a fast path.
	ErrConflict = errors.New("auth: username or email already exists")

	// ErrInvalidCredentials deliberately conflates "no such user" and
	// "wrong password" so callers cannot enumerate usernames.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrBanned is returned on login with valid lookup but a banned account.
	ErrBanned = errors.New("auth: user is banned")

	// ErrInvalidToken covers every token failure mode: malformed, forged,
	// expired, revoked, or backed by a missing session.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
)
