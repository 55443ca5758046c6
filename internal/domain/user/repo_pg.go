package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medrec/medrec/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const userCols = `id, tenant_id, username, email, password_hash, role, status,
	failed_login_attempts, locked_until, last_login_at, last_login_ip,
	practitioner_id, deleted, deleted_at, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt, &u.LastLoginIP,
		&u.PractitionerID, &u.Deleted, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *RepoPG) Create(ctx context.Context, u *User) error {
	const q = `
		INSERT INTO app_user (
			tenant_id, username, email, password_hash, role, status, practitioner_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		u.TenantID, u.Username, u.Email, u.PasswordHash, u.Role, u.Status, u.PractitionerID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	q := fmt.Sprintf("SELECT %s FROM app_user WHERE id = $1 AND NOT deleted", userCols)
	return scanUser(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByUsername(ctx context.Context, tenantID, username string) (*User, error) {
	q := fmt.Sprintf("SELECT %s FROM app_user WHERE tenant_id = $1 AND username = $2 AND NOT deleted", userCols)
	return scanUser(r.conn(ctx).QueryRow(ctx, q, tenantID, username))
}

func (r *RepoPG) Update(ctx context.Context, u *User) error {
	const q = `
		UPDATE app_user SET
			email = $2, role = $3, status = $4, practitioner_id = $5, updated_at = NOW()
		WHERE id = $1 AND NOT deleted
		RETURNING updated_at`
	err := r.conn(ctx).QueryRow(ctx, q, u.ID, u.Email, u.Role, u.Status, u.PractitionerID).Scan(&u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// RecordLoginFailure performs the increment-and-maybe-lock in one statement
// so concurrent failed logins cannot race the counter.
func (r *RepoPG) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	const q = `
		UPDATE app_user SET
			failed_login_attempts = failed_login_attempts + 1,
			status = CASE WHEN failed_login_attempts + 1 >= $2 THEN 'locked' ELSE status END,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN NOW() + $3 ELSE locked_until END,
			updated_at = NOW()
		WHERE id = $1 AND NOT deleted
		RETURNING failed_login_attempts, locked_until`
	var attempts int
	var lockedUntil *time.Time
	err := r.conn(ctx).QueryRow(ctx, q, id, threshold, lockFor).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	return attempts, lockedUntil, err
}

func (r *RepoPG) RecordLoginSuccess(ctx context.Context, id uuid.UUID, ip string) error {
	// A login only succeeds on a locked account once the lock has lapsed, so
	// the lock state is cleared in full: counter, expiry and status together.
	const q = `
		UPDATE app_user SET
			failed_login_attempts = 0,
			locked_until = NULL,
			status = CASE WHEN status = 'locked' THEN 'active' ELSE status END,
			last_login_at = NOW(),
			last_login_ip = NULLIF($2, ''),
			updated_at = NOW()
		WHERE id = $1 AND NOT deleted`
	tag, err := r.conn(ctx).Exec(ctx, q, id, ip)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE app_user SET status = $2, updated_at = NOW() WHERE id = $1 AND NOT deleted",
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) Unlock(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE app_user SET
			status = 'active', locked_until = NULL, failed_login_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND NOT deleted`
	tag, err := r.conn(ctx).Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE app_user SET
			deleted = TRUE, deleted_at = NOW(), status = 'deleted', updated_at = NOW()
		WHERE id = $1 AND NOT deleted`
	tag, err := r.conn(ctx).Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) List(ctx context.Context, tenantID string, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM app_user WHERE tenant_id = $1 AND NOT deleted", tenantID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(
		"SELECT %s FROM app_user WHERE tenant_id = $1 AND NOT deleted ORDER BY username LIMIT $2 OFFSET $3",
		userCols)
	rows, err := r.conn(ctx).Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// ScopeRepoPG persists the user_scope ledger.
type ScopeRepoPG struct {
	pool *pgxpool.Pool
}

func NewScopeRepoPG(pool *pgxpool.Pool) *ScopeRepoPG {
	return &ScopeRepoPG{pool: pool}
}

func (r *ScopeRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const scopeCols = `id, user_id, tenant_id, name, granted_by, granted_at, expires_at, revoked, revoked_at`

func scanScope(row pgx.Row) (*Scope, error) {
	var s Scope
	err := row.Scan(
		&s.ID, &s.UserID, &s.TenantID, &s.Name, &s.GrantedBy, &s.GrantedAt,
		&s.ExpiresAt, &s.Revoked, &s.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *ScopeRepoPG) Grant(ctx context.Context, s *Scope) error {
	const q = `
		INSERT INTO user_scope (user_id, tenant_id, name, granted_by, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, granted_at`
	return r.conn(ctx).QueryRow(ctx, q,
		s.UserID, s.TenantID, s.Name, s.GrantedBy, s.ExpiresAt,
	).Scan(&s.ID, &s.GrantedAt)
}

func (r *ScopeRepoPG) Revoke(ctx context.Context, id uuid.UUID) error {
	// Revocation is terminal; re-revoking is a no-op rather than an error.
	_, err := r.conn(ctx).Exec(ctx,
		"UPDATE user_scope SET revoked = TRUE, revoked_at = NOW() WHERE id = $1 AND NOT revoked",
		id)
	return err
}

func (r *ScopeRepoPG) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Scope, error) {
	q := fmt.Sprintf("SELECT %s FROM user_scope WHERE user_id = $1 ORDER BY granted_at DESC", scopeCols)
	rows, err := r.conn(ctx).Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []*Scope
	for rows.Next() {
		s, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

func (r *ScopeRepoPG) ActiveNamesForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]string, error) {
	const q = `
		SELECT name FROM user_scope
		WHERE user_id = $1 AND NOT revoked AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY name`
	rows, err := r.conn(ctx).Query(ctx, q, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
