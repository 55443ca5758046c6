package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const grantCols = `id, user_id, patient_id, tenant_id, access_level, granted_by,
	reason, justification, granted_at, expires_at, enabled,
	disabled_at, disabled_by, disable_reason, created_at, updated_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(
		&g.ID, &g.UserID, &g.PatientID, &g.TenantID, &g.Level, &g.GrantedBy,
		&g.Reason, &g.Justification, &g.GrantedAt, &g.ExpiresAt, &g.Enabled,
		&g.DisabledAt, &g.DisabledBy, &g.DisableReason, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &g, err
}

func (r *RepoPG) Create(ctx context.Context, g *Grant) error {
	const q = `
		INSERT INTO patient_access (
			user_id, patient_id, tenant_id, access_level, granted_by,
			reason, justification, granted_at, expires_at, enabled
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE)
		RETURNING id, enabled, created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, q,
		g.UserID, g.PatientID, g.TenantID, g.Level, g.GrantedBy,
		g.Reason, g.Justification, g.GrantedAt, g.ExpiresAt,
	).Scan(&g.ID, &g.Enabled, &g.CreatedAt, &g.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	q := `SELECT ` + grantCols + ` FROM patient_access WHERE id = $1`
	return scanGrant(r.conn(ctx).QueryRow(ctx, q, id))
}

func (r *RepoPG) Disable(ctx context.Context, id uuid.UUID, by uuid.UUID, reason *string) error {
	const q = `
		UPDATE patient_access
		SET enabled = FALSE,
			disabled_at = NOW(),
			disabled_by = $2,
			disable_reason = $3,
			updated_at = NOW()
		WHERE id = $1 AND enabled`
	tag, err := r.conn(ctx).Exec(ctx, q, id, by, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) ListForUserPatient(ctx context.Context, userID, patientID uuid.UUID) ([]*Grant, error) {
	q := `SELECT ` + grantCols + ` FROM patient_access
		WHERE user_id = $1 AND patient_id = $2 AND enabled
		ORDER BY granted_at DESC`
	rows, err := r.conn(ctx).Query(ctx, q, userID, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *RepoPG) List(ctx context.Context, tenantID string, f ListFilters, limit, offset int) ([]*Grant, int, error) {
	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	idx := 2

	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	if f.UserID != nil {
		where = append(where, fmt.Sprintf("user_id = $%d", idx))
		args = append(args, *f.UserID)
		idx++
	}
	if f.Level != "" {
		where = append(where, fmt.Sprintf("access_level = $%d", idx))
		args = append(args, f.Level)
		idx++
	}
	if f.ActiveOnly {
		where = append(where, "enabled AND (expires_at IS NULL OR expires_at > NOW())")
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM patient_access %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM patient_access %s ORDER BY granted_at DESC LIMIT $%d OFFSET $%d",
		grantCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var grants []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, 0, err
		}
		grants = append(grants, g)
	}
	return grants, total, rows.Err()
}
