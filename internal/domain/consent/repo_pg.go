package consent

import (
	"context"

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

const consentCols = `id, patient_id, tenant_id, consent_type, scope, granted,
	effective_at, expires_at, witness_name, witnessed_at, created_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(
		&c.ID, &c.PatientID, &c.TenantID, &c.ConsentType, &c.Scope, &c.Granted,
		&c.EffectiveAt, &c.ExpiresAt, &c.WitnessName, &c.WitnessedAt, &c.CreatedAt,
	)
	return &c, err
}

func (r *RepoPG) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Consent, error) {
	q := `SELECT ` + consentCols + ` FROM patient_consent
		WHERE patient_id = $1
		ORDER BY effective_at DESC`
	rows, err := r.conn(ctx).Query(ctx, q, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
