package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	// sessionTTL is the fixed expiry horizon of the session row itself.
	// It is intentionally independent of the configured refresh TTL: the
	// row always expires 7 days after creation, whatever tokens it backs.
	sessionTTL = 7 * 24 * time.Hour
)

// Manager owns the session lifecycle and the paired access/refresh token
// issuance. Per session the state machine is ACTIVE -> REVOKED (terminal)
// or ACTIVE -> EXPIRED (terminal, detected lazily at validation time; there
// is no background sweep).
type Manager struct {
	store Store
	now   func() time.Time

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ManagerOption configures Manager behavior.
type ManagerOption func(*Manager) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("issuer must not be empty")
		}
		m.issuer = issuer
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) error {
		if ttl > 0 {
			m.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) error {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ManagerOption {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// NewManager constructs a Manager. The signing secret is required; TTLs
// default to 15 minutes (access) and 7 days (refresh).
func NewManager(store Store, secret string, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	m := &Manager{
		store:      store,
		now:        time.Now,
		secret:     []byte(secret),
		issuer:     "zoul",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CreateSession generates a fresh session id, signs an access/refresh token
// pair embedding {userID, sessionID}, and persists one session row expiring
// on the fixed 7-day horizon.
func (m *Manager) CreateSession(ctx context.Context, userID, ipAddress, userAgent string) (TokenPair, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return TokenPair{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	now := m.now().UTC()
	sessionID := uuid.NewString()

	accessToken, accessExp, err := m.signToken(userID, sessionID, now, m.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExp, err := m.signToken(userID, sessionID, now, m.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		TokenHash: hashToken(refreshToken),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: now.Add(sessionTTL),
		CreatedAt: now,
	}
	if err := m.store.Sessions(ctx).Create(ctx, session); err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccessToken verifies the token signature and signed expiry, then
// checks the backing session. Both checks are independent and mandatory: a
// session row expiring early invalidates a token whose signed expiry has not
// elapsed, and a signed-expired token never passes on a fresh session row.
// Updates last_used_at as a side effect (best effort).
func (m *Manager) ValidateAccessToken(ctx context.Context, token string) (Identity, error) {
	claims, err := m.parseToken(token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	session, err := m.liveSession(ctx, claims.SessionID)
	if err != nil {
		return Identity{}, err
	}
	// Liveness hint only; concurrent validators may race, last writer wins.
	_ = m.store.Sessions(ctx).Touch(ctx, session.ID, m.now().UTC())

	return Identity{UserID: claims.Subject, SessionID: session.ID}, nil
}

// Rotate exchanges a refresh token for a brand-new session and token pair.
// The source session is revoked before the new one is created, so a rotated
// refresh token can never be replayed: the second rotation observes the
// revoked session and fails with ErrInvalidToken. The conditional revoke is
// also what serializes concurrent rotations of the same token — exactly one
// caller wins the compare-and-set.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := m.parseToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	session, err := m.liveSession(ctx, claims.SessionID)
	if err != nil {
		return TokenPair{}, err
	}

	revoked, err := m.store.Sessions(ctx).Revoke(ctx, session.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("revoke session: %w", err)
	}
	if !revoked {
		// Lost the race against a concurrent rotation or an explicit logout.
		return TokenPair{}, ErrInvalidToken
	}

	return m.CreateSession(ctx, session.UserID, session.IPAddress, session.UserAgent)
}

// Revoke idempotently marks a session revoked. Revoking an already-revoked
// or nonexistent session is a no-op, not an error.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	if _, err := m.store.Sessions(ctx).Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// liveSession loads a session and enforces existence, revocation, and the
// authoritative row expiry. Infrastructure failures propagate as-is.
func (m *Manager) liveSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := m.store.Sessions(ctx).Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if session.IsRevoked || m.now().After(session.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return session, nil
}
