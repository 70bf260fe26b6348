package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"zoul.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-process concurrency safety. Used in
// tests and for running the API without a database; replace with PGStore in
// production.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]*User
	roles     map[string]*Role
	userRoles []UserRole
	sessions  map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*User),
		roles:    make(map[string]*Role),
		sessions: make(map[string]*Session),
	}
}

// SeedRole installs a role directly, mirroring what the SQL seeds do in a
// real deployment.
func (m *MemoryStore) SeedRole(role Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	m.roles[role.ID] = &role
}

func (m *MemoryStore) Users(context.Context) UserStore       { return (*memUserStore)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore       { return (*memRoleStore)(m) }
func (m *MemoryStore) Sessions(context.Context) SessionStore { return (*memSessionStore)(m) }

// User store ---------------------------------------------------------------

type memUserStore MemoryStore

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memUserStore) FindByLogin(ctx context.Context, usernameOrEmail string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == usernameOrEmail || u.Email == strings.ToLower(usernameOrEmail) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) Exists(ctx context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// SetBanned toggles the ban flag; administrative surface for tests.
func (m *MemoryStore) SetBanned(userID string, banned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsBanned = banned
	}
}

// Role store ---------------------------------------------------------------

type memRoleStore MemoryStore

func (s *memRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *role
	return &clone, nil
}

func (s *memRoleStore) FindByOrder(ctx context.Context, order int) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.Order == order {
			clone := *role
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memRoleStore) ListByUser(ctx context.Context, userID string) ([]*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []*Role
	for _, ur := range s.userRoles {
		if ur.UserID != userID {
			continue
		}
		if role, ok := s.roles[ur.RoleID]; ok {
			clone := *role
			roles = append(roles, &clone)
		}
	}
	return roles, nil
}

func (s *memRoleStore) Assign(ctx context.Context, assignment UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ur := range s.userRoles {
		if ur.UserID == assignment.UserID && ur.RoleID == assignment.RoleID {
			return nil
		}
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	s.userRoles = append(s.userRoles, assignment)
	return nil
}

// Session store ------------------------------------------------------------

type memSessionStore MemoryStore

func (s *memSessionStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *memSessionStore) Find(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *sess
	return &clone, nil
}

func (s *memSessionStore) Revoke(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.IsRevoked {
		return false, nil
	}
	sess.IsRevoked = true
	return true, nil
}

func (s *memSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastUsedAt = &at
	}
	return nil
}

// SessionByID returns a snapshot of a stored session; test helper.
func (m *MemoryStore) SessionByID(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return *sess, true
	}
	return Session{}, false
}
