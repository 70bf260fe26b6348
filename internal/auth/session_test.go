package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, store Store, clock func() time.Time, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append([]ManagerOption{WithClock(clock)}, opts...)
	m, err := NewManager(store, "test-secret", opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(NewMemoryStore(), "  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewManager(nil, "secret"); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestCreateSessionAndValidate(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, func() time.Time { return now })

	pair, err := m.CreateSession(context.Background(), "user-1", "203.0.113.7", "test-agent")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if !pair.AccessExpiresAt.Equal(now.Add(defaultAccessTTL)) {
		t.Fatalf("unexpected access expiry: %v", pair.AccessExpiresAt)
	}
	if !pair.RefreshExpiresAt.Equal(now.Add(defaultRefreshTTL)) {
		t.Fatalf("unexpected refresh expiry: %v", pair.RefreshExpiresAt)
	}

	identity, err := m.ValidateAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if identity.UserID != "user-1" || identity.SessionID == "" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	session, ok := store.SessionByID(identity.SessionID)
	if !ok {
		t.Fatal("session row not persisted")
	}
	if session.TokenHash != hashToken(pair.RefreshToken) {
		t.Fatal("session must store the refresh token digest")
	}
	if session.IPAddress != "203.0.113.7" || session.UserAgent != "test-agent" {
		t.Fatalf("client metadata not persisted: %+v", session)
	}
	if !session.ExpiresAt.Equal(now.Add(sessionTTL)) {
		t.Fatalf("unexpected session expiry: %v", session.ExpiresAt)
	}
	if session.LastUsedAt == nil || !session.LastUsedAt.Equal(now) {
		t.Fatalf("validation must touch last_used_at, got %v", session.LastUsedAt)
	}
}

func TestCreateSessionRequiresUser(t *testing.T) {
	m := newTestManager(t, NewMemoryStore(), time.Now)
	if _, err := m.CreateSession(context.Background(), "  ", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateExpiredAccessToken(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, func() time.Time { return now })

	pair, err := m.CreateSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now = now.Add(defaultAccessTTL + time.Minute)
	if _, err := m.ValidateAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after signed expiry, got %v", err)
	}
}

func TestSessionRowExpiryOverridesSignedExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Sign tokens that outlive the 7-day session row on purpose.
	m := newTestManager(t, store, func() time.Time { return now }, WithAccessTTL(30*24*time.Hour))

	pair, err := m.CreateSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	now = now.Add(8 * 24 * time.Hour)
	if _, err := m.ValidateAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken once the session row expired, got %v", err)
	}
}

func TestRotateIsSingleUse(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := newTestManager(t, store, func() time.Time { return now })

	pair, err := m.CreateSession(context.Background(), "user-1", "198.51.100.4", "old-agent")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	fresh, err := m.Rotate(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if fresh.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must mint a new refresh token")
	}

	// Replay of the consumed token fails.
	if _, err := m.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on replay, got %v", err)
	}
	// The old session is gone for access tokens too.
	if _, err := m.ValidateAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected old access token to be rejected, got %v", err)
	}

	identity, err := m.ValidateAccessToken(context.Background(), fresh.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken(fresh): %v", err)
	}
	session, ok := store.SessionByID(identity.SessionID)
	if !ok {
		t.Fatal("rotated session row not persisted")
	}
	if session.IPAddress != "198.51.100.4" || session.UserAgent != "old-agent" {
		t.Fatalf("rotation must carry over client metadata, got %+v", session)
	}
}

func TestRotateRejectsAccessTokenAfterRevoke(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, store, time.Now)

	pair, err := m.CreateSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	identity, err := m.ValidateAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}

	if err := m.Revoke(context.Background(), identity.SessionID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, store, time.Now)

	pair, err := m.CreateSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	identity, err := m.ValidateAccessToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := m.Revoke(context.Background(), identity.SessionID); err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
	}
	if err := m.Revoke(context.Background(), "no-such-session"); err != nil {
		t.Fatalf("Revoke(nonexistent): %v", err)
	}
	if err := m.Revoke(context.Background(), "  "); err != nil {
		t.Fatalf("Revoke(blank): %v", err)
	}

	if _, err := m.ValidateAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, store, time.Now)

	other, err := NewManager(store, "other-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	pair, err := other.CreateSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := m.ValidateAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestValidateRejectsForeignIssuer(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, store, time.Now)

	other, err := NewManager(store, "test-secret", WithIssuer("someone-else"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	pair, err := other.CreateSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := m.ValidateAccessToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign issuer, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	m := newTestManager(t, NewMemoryStore(), time.Now)
	for _, token := range []string{"", "   ", "not-a-token", "a.b.c"} {
		if _, err := m.ValidateAccessToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}
