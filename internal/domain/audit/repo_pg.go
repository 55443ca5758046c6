package audit

import (
	"context"
	"fmt"
	"strings"

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

const auditCols = `id, tenant_id, action, outcome, actor_id, actor_name, actor_role,
	patient_id, grant_id, session_id, reason, justification,
	source_ip, user_agent, recorded_at, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.TenantID, &e.Action, &e.Outcome, &e.ActorID, &e.ActorName, &e.ActorRole,
		&e.PatientID, &e.GrantID, &e.SessionID, &e.Reason, &e.Justification,
		&e.SourceIP, &e.UserAgent, &e.RecordedAt, &e.CreatedAt,
	)
	return &e, err
}

func (r *RepoPG) Insert(ctx context.Context, e *Event) error {
	const q = `
		INSERT INTO audit_event (
			tenant_id, action, outcome, actor_id, actor_name, actor_role,
			patient_id, grant_id, session_id, reason, justification,
			source_ip, user_agent, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id, created_at`
	return r.conn(ctx).QueryRow(ctx, q,
		e.TenantID, e.Action, e.Outcome, e.ActorID, e.ActorName, e.ActorRole,
		e.PatientID, e.GrantID, e.SessionID, e.Reason, e.Justification,
		e.SourceIP, e.UserAgent, e.RecordedAt,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *RepoPG) Search(ctx context.Context, tenantID string, params SearchParams, limit, offset int) ([]*Event, int, error) {
	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	idx := 2

	if params.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", idx))
		args = append(args, params.Action)
		idx++
	}
	if params.Outcome != "" {
		where = append(where, fmt.Sprintf("outcome = $%d", idx))
		args = append(args, params.Outcome)
		idx++
	}
	if params.ActorID != nil {
		where = append(where, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, *params.ActorID)
		idx++
	}
	if params.PatientID != nil {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, *params.PatientID)
		idx++
	}
	if params.Since != nil {
		where = append(where, fmt.Sprintf("recorded_at >= $%d", idx))
		args = append(args, *params.Since)
		idx++
	}
	if params.Until != nil {
		where = append(where, fmt.Sprintf("recorded_at < $%d", idx))
		args = append(args, *params.Until)
		idx++
	}

	whereClause := "WHERE " + strings.Join(where, " AND ")

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_event %s", whereClause)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM audit_event %s ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d",
		auditCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}
