package session

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

const sessionCols = `id, user_id, tenant_id, refresh_token, issued_at, expires_at,
	last_accessed_at, revoked, revoked_at, client_ip, user_agent`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.TenantID, &s.RefreshToken, &s.IssuedAt, &s.ExpiresAt,
		&s.LastAccessedAt, &s.Revoked, &s.RevokedAt, &s.ClientIP, &s.UserAgent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *RepoPG) Create(ctx context.Context, s *Session) error {
	const q = `
		INSERT INTO session (
			user_id, tenant_id, refresh_token, issued_at, expires_at,
			last_accessed_at, client_ip, user_agent
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`
	return r.conn(ctx).QueryRow(ctx, q,
		s.UserID, s.TenantID, s.RefreshToken, s.IssuedAt, s.ExpiresAt,
		s.LastAccessedAt, s.ClientIP, s.UserAgent,
	).Scan(&s.ID)
}

func (r *RepoPG) GetByToken(ctx context.Context, refreshToken string) (*Session, error) {
	q := fmt.Sprintf("SELECT %s FROM session WHERE refresh_token = $1", sessionCols)
	return scanSession(r.conn(ctx).QueryRow(ctx, q, refreshToken))
}

// Revoke is the rotation guard: the WHERE clause only matches a live row, so
// the row count tells the caller whether it won the race.
func (r *RepoPG) Revoke(ctx context.Context, refreshToken string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE session SET revoked = TRUE, revoked_at = NOW() WHERE refresh_token = $1 AND NOT revoked",
		refreshToken)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		"UPDATE session SET last_accessed_at = $2 WHERE id = $1", id, at)
	return err
}

func (r *RepoPG) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE session SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND NOT revoked",
		userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *RepoPG) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"DELETE FROM session WHERE expires_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
