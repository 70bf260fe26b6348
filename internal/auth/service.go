package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service is the external interface of the auth core: credential
// verification composed with session management. The HTTP layer calls it on
// every authorization-sensitive operation; authorization itself lives in
// Evaluator.
type Service struct {
	store    Store
	sessions *Manager
}

// RegisterInput carries the fields required to create an identity.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// AuthResult pairs the resolved user with freshly issued tokens.
type AuthResult struct {
	User   *User
	Tokens TokenPair
}

// NewService constructs the auth service.
func NewService(store Store, sessions *Manager) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session manager is required")
	}
	return &Service{store: store, sessions: sessions}, nil
}

// Register creates a new identity, assigns the default authenticated role,
// and issues an initial session: registration implies login. Duplicate
// username or email fails with ErrConflict. The existence pre-check is a
// fast path only; the store's uniqueness constraint remains the
// authoritative conflict trigger, closing the check-then-create race.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	displayName := strings.TrimSpace(in.DisplayName)
	if username == "" {
		return AuthResult{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if displayName == "" {
		displayName = username
	}

	users := s.store.Users(ctx)
	exists, err := users.Exists(ctx, username, email)
	if err != nil {
		return AuthResult{}, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return AuthResult{}, ErrConflict
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}
	if err := users.Create(ctx, user); err != nil {
		// The constraint-level rejection is the authoritative ErrConflict.
		if errors.Is(err, ErrConflict) {
			return AuthResult{}, ErrConflict
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	s.assignDefaultRole(ctx, user.ID)

	tokens, err := s.sessions.CreateSession(ctx, user.ID, "", "")
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Tokens: tokens}, nil
}

// assignDefaultRole grants the authenticated role if it is seeded. A missing
// role is tolerated: the user is still created, matching the original
// platform behavior.
func (s *Service) assignDefaultRole(ctx context.Context, userID string) {
	role, err := s.store.Roles(ctx).FindByOrder(ctx, RoleOrderAuthenticated)
	if err != nil {
		return
	}
	_ = s.store.Roles(ctx).Assign(ctx, UserRole{UserID: userID, RoleID: role.ID})
}

// Login verifies a password proof against the user matched by username or
// email and issues a session. "No such user" and "wrong password" are
// indistinguishable to the caller; a banned account is reported distinctly
// before password verification (an accepted trade-off — this is not a
// timing-safe system).
func (s *Service) Login(ctx context.Context, usernameOrEmail, password, ipAddress, userAgent string) (AuthResult, error) {
	login := strings.TrimSpace(usernameOrEmail)
	if login == "" || password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.store.Users(ctx).FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("find user: %w", err)
	}
	if user.IsBanned {
		return AuthResult{}, ErrBanned
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	tokens, err := s.sessions.CreateSession(ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Tokens: tokens}, nil
}

// Logout revokes the session. Always succeeds: logging out twice, or with a
// session that never existed, is a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// Refresh rotates a refresh token into a new session and token pair. The
// token is single-use; replay fails with ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return s.sessions.Rotate(ctx, refreshToken)
}

// Authenticate is the per-request gate: it validates a bearer access token
// and returns the identity it proves.
func (s *Service) Authenticate(ctx context.Context, bearerToken string) (Identity, error) {
	return s.sessions.ValidateAccessToken(ctx, bearerToken)
}

// CurrentUser loads the user behind an authenticated identity.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, userID)
}
