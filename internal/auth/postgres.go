package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"zoul.org/internal/ids"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Uniqueness of username/email
// and the conditional session revoke are enforced at the database level.
type PGStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool defaults tuned for the auth path.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

// DB exposes the underlying pool for readiness probes.
func (s *PGStore) DB() *sql.DB { return s.db }

func (s *PGStore) Users(context.Context) UserStore       { return &pgUserStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore       { return &pgRoleStore{db: s.db} }
func (s *PGStore) Sessions(context.Context) SessionStore { return &pgSessionStore{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// User store ---------------------------------------------------------------

type pgUserStore struct{ db *sql.DB }

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash, display_name)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.DisplayName)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

const userColumns = `id, username, email, password_hash, display_name, is_banned, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName, &u.IsBanned, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *pgUserStore) FindByLogin(ctx context.Context, usernameOrEmail string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username = $1 or email = lower($1)`, usernameOrEmail))
}

func (s *pgUserStore) Exists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where username = $1 or email = $2)`,
		username, email,
	).Scan(&exists)
	return exists, err
}

// Role store ---------------------------------------------------------------

type pgRoleStore struct{ db *sql.DB }

const roleColumns = `id, role_order, name, display_name, is_system_role, permissions, bans, created_at`

func scanRole(scan func(dest ...any) error) (*Role, error) {
	var (
		role  Role
		perms []byte
		bans  []byte
	)
	err := scan(&role.ID, &role.Order, &role.Name, &role.DisplayName, &role.IsSystemRole, &perms, &bans, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(perms, &role.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if err := json.Unmarshal(bans, &role.Bans); err != nil {
		return nil, fmt.Errorf("decode bans: %w", err)
	}
	return &role, nil
}

func (s *pgRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1`, id)
	return scanRole(row.Scan)
}

func (s *pgRoleStore) FindByOrder(ctx context.Context, order int) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where role_order = $1`, order)
	return scanRole(row.Scan)
}

func (s *pgRoleStore) ListByUser(ctx context.Context, userID string) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.role_order, r.name, r.display_name, r.is_system_role, r.permissions, r.bans, r.created_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.role_order desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *pgRoleStore) Assign(ctx context.Context, assignment UserRole) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles (user_id, role_id) values ($1, $2) on conflict do nothing`,
		assignment.UserID, assignment.RoleID,
	)
	return err
}

// Session store ------------------------------------------------------------

type pgSessionStore struct{ db *sql.DB }

func (s *pgSessionStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, token_hash, ip_address, user_agent, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.UserID, sess.TokenHash, nullable(sess.IPAddress), nullable(sess.UserAgent), sess.ExpiresAt, sess.CreatedAt)
	return err
}

func (s *pgSessionStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, ip_address, user_agent, expires_at, is_revoked, last_used_at, created_at
		from sessions where id = $1
	`, id)
	var (
		sess     Session
		ip, ua   sql.NullString
		lastUsed sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &ip, &ua, &sess.ExpiresAt, &sess.IsRevoked, &lastUsed, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.IPAddress = ip.String
	sess.UserAgent = ua.String
	if lastUsed.Valid {
		t := lastUsed.Time
		sess.LastUsedAt = &t
	}
	return &sess, nil
}

// Revoke is a single-row conditional update: only the caller that observes
// is_revoked = false wins. This is the replay-detection mechanism for
// concurrent refresh rotations.
func (s *pgSessionStore) Revoke(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set is_revoked = true where id = $1 and is_revoked = false`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *pgSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set last_used_at = $2 where id = $1`, id, at)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
