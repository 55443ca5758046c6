package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/domain/access"
	"github.com/medrec/medrec/internal/domain/audit"
	"github.com/medrec/medrec/internal/domain/authn"
	"github.com/medrec/medrec/internal/domain/consent"
	"github.com/medrec/medrec/internal/domain/emergency"
	"github.com/medrec/medrec/internal/domain/session"
	"github.com/medrec/medrec/internal/domain/user"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/db"
)

// engineStack wires the full engine against the shared test database, the
// same way the server command does.
type engineStack struct {
	authn     *authn.Service
	ledger    *access.Ledger
	engine    *access.Engine
	emergency *emergency.Service
	auditor   *audit.Recorder
	sessions  session.Repository
	users     user.Repository
	grants    access.Repository
	codec     *auth.Codec
}

func newEngineStack() *engineStack {
	pool := globalDB.Pool
	codec := auth.NewCodec([]byte("0123456789abcdef0123456789abcdef"), "medrec-test")
	recorder := audit.NewRecorder(audit.NewRepoPG(pool), zerolog.Nop())
	tx := db.NewPoolTxRunner(pool)

	userRepo := user.NewRepoPG(pool)
	scopeRepo := user.NewScopeRepoPG(pool)
	sessionRepo := session.NewRepoPG(pool)
	grantRepo := access.NewRepoPG(pool)
	consentRepo := consent.NewRepoPG(pool)

	policy := authn.Policy{
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  24 * time.Hour,
		LockoutThreshold: 3,
		LockoutDuration:  30 * time.Minute,
	}

	return &engineStack{
		authn:     authn.NewService(userRepo, scopeRepo, sessionRepo, codec, recorder, tx, policy),
		ledger:    access.NewLedger(grantRepo, recorder),
		engine:    access.NewEngine(grantRepo, consentRepo, recorder),
		emergency: emergency.NewService(grantRepo, recorder, tx, time.Hour),
		auditor:   recorder,
		sessions:  sessionRepo,
		users:     userRepo,
		grants:    grantRepo,
		codec:     codec,
	}
}

var testMeta = authn.RequestMeta{IP: "203.0.113.9", UserAgent: "integration-test"}

// Full lifecycle: login, denied access, grant, allowed access, rotation,
// revocation.
func TestEngine_AccessLifecycle(t *testing.T) {
	ctx := context.Background()
	tenantID := uniqueTenantID("lifecycle")
	createTenantSchema(t, ctx, tenantID)
	defer dropTenantSchema(t, ctx, tenantID)

	stack := newEngineStack()
	admin := createTestUser(t, ctx, tenantID, "admin", "admin-passphrase", auth.RoleSystemAdministrator)
	provider := createTestUser(t, ctx, tenantID, "dr-jones", "provider-passphrase", auth.RoleHealthcareProvider)
	patientID := uuid.New()

	err := withTenantConn(ctx, globalDB.Pool, tenantID, func(ctx context.Context) error {
		// Login as the provider.
		res, err := stack.authn.Authenticate(ctx, tenantID, "dr-jones", "provider-passphrase", testMeta)
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		ident, err := stack.codec.Verify(res.AccessToken)
		if err != nil {
			t.Fatalf("verify access token: %v", err)
		}
		if ident.TenantID != tenantID || ident.Role != auth.RoleHealthcareProvider {
			t.Fatalf("identity = %+v", ident)
		}

		// No grant yet: denied.
		d, err := stack.engine.Decide(ctx, ident, patientID, access.LevelRead)
		if err != nil {
			t.Fatalf("decide before grant: %v", err)
		}
		if d.Allowed || d.Reason != access.DenyNoGrant {
			t.Fatalf("decision = %+v, want deny no_grant", d)
		}

		// The admin grants write access.
		g, err := stack.ledger.Grant(ctx, identityFor(admin), access.GrantInput{
			UserID:    provider.ID,
			PatientID: patientID,
			Level:     access.LevelWrite,
			Reason:    ptrStr("attending physician"),
		})
		if err != nil {
			t.Fatalf("grant: %v", err)
		}

		// Write now allowed at the granted level.
		d, err = stack.engine.Decide(ctx, ident, patientID, access.LevelWrite)
		if err != nil {
			t.Fatalf("decide after grant: %v", err)
		}
		if !d.Allowed || d.EffectiveLevel != access.LevelWrite {
			t.Fatalf("decision = %+v, want allow at write", d)
		}

		// Admin is still out of reach.
		d, err = stack.engine.Decide(ctx, ident, patientID, access.LevelAdmin)
		if err != nil {
			t.Fatalf("decide admin: %v", err)
		}
		if d.Allowed || d.Reason != access.DenyInsufficientLevel {
			t.Fatalf("decision = %+v, want deny insufficient_level", d)
		}

		// Refresh rotates the session; the old token is spent.
		rotated, err := stack.authn.Refresh(ctx, res.RefreshToken, testMeta)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if rotated.RefreshToken == res.RefreshToken {
			t.Fatal("refresh must rotate the token value")
		}
		if _, err := stack.authn.Refresh(ctx, res.RefreshToken, testMeta); !errors.Is(err, authn.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken replaying old token, got %v", err)
		}

		// The rotated session row lands with its last-accessed stamp.
		sess, err := stack.sessions.GetByToken(ctx, rotated.RefreshToken)
		if err != nil {
			t.Fatalf("rotated session lookup: %v", err)
		}
		if sess.LastAccessedAt == nil {
			t.Fatal("rotated session row missing last_accessed_at")
		}

		// Revoking the grant closes the door again.
		if err := stack.ledger.Revoke(ctx, identityFor(admin), g.ID, ptrStr("rotation off the care team")); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		d, err = stack.engine.Decide(ctx, ident, patientID, access.LevelRead)
		if err != nil {
			t.Fatalf("decide after revoke: %v", err)
		}
		if d.Allowed || d.Reason != access.DenyNoGrant {
			t.Fatalf("decision = %+v, want deny no_grant after revoke", d)
		}

		// Logout revokes the rotated session too.
		if err := stack.authn.Logout(ctx, rotated.RefreshToken, testMeta); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if _, err := stack.authn.Refresh(ctx, rotated.RefreshToken, testMeta); !errors.Is(err, authn.ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}
}

func TestEngine_LockoutLifecycle(t *testing.T) {
	ctx := context.Background()
	tenantID := uniqueTenantID("lockout")
	createTenantSchema(t, ctx, tenantID)
	defer dropTenantSchema(t, ctx, tenantID)

	stack := newEngineStack()
	createTestUser(t, ctx, tenantID, "alice", "correct-passphrase", auth.RoleNurse)

	err := withTenantConn(ctx, globalDB.Pool, tenantID, func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			if _, err := stack.authn.Authenticate(ctx, tenantID, "alice", "wrong", testMeta); !errors.Is(err, authn.ErrInvalidCredentials) {
				t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
			}
		}

		_, err := stack.authn.Authenticate(ctx, tenantID, "alice", "wrong", testMeta)
		if !errors.Is(err, authn.ErrAccountLocked) {
			t.Fatalf("expected lockout on third failure, got %v", err)
		}

		// The correct password is refused while the lock holds.
		_, err = stack.authn.Authenticate(ctx, tenantID, "alice", "correct-passphrase", testMeta)
		if !errors.Is(err, authn.ErrAccountLocked) {
			t.Fatalf("expected lock to hold with correct password, got %v", err)
		}

		// The trail shows the progression.
		events, _, err := stack.auditor.Search(ctx, tenantID, audit.SearchParams{}, 50, 0)
		if err != nil {
			t.Fatalf("search audit: %v", err)
		}
		var failures, locks int
		for _, e := range events {
			switch e.Action {
			case audit.ActionLoginFailure:
				failures++
			case audit.ActionAccountLocked:
				locks++
			}
		}
		if failures < 2 || locks != 1 {
			t.Errorf("audit trail: %d failures, %d locks", failures, locks)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}
}

// Emergency access bypasses a consent denial, and both the grant and its use
// land in the audit trail.
func TestEngine_EmergencyAccess(t *testing.T) {
	ctx := context.Background()
	tenantID := uniqueTenantID("emergency")
	createTenantSchema(t, ctx, tenantID)
	defer dropTenantSchema(t, ctx, tenantID)

	stack := newEngineStack()
	provider := createTestUser(t, ctx, tenantID, "dr-smith", "provider-passphrase", auth.RoleHealthcareProvider)
	patientID := uuid.New()

	err := withTenantConn(ctx, globalDB.Pool, tenantID, func(ctx context.Context) error {
		// A blanket consent denial on the patient.
		conn := db.ConnFromContext(ctx)
		_, err := conn.Exec(ctx,
			`INSERT INTO patient_consent (patient_id, tenant_id, consent_type, scope, granted, effective_at)
			 VALUES ($1, $2, 'treatment', '*', FALSE, NOW() - INTERVAL '1 hour')`,
			patientID, tenantID)
		if err != nil {
			t.Fatalf("insert consent: %v", err)
		}

		ident := identityFor(provider)

		g, err := stack.emergency.Create(ctx, ident, emergency.CreateInput{
			PatientID:       patientID,
			Justification:   "unconscious patient in the ED",
			DurationMinutes: 30,
		})
		if err != nil {
			t.Fatalf("emergency create: %v", err)
		}
		if g.Level != access.LevelEmergency || g.ExpiresAt == nil {
			t.Fatalf("grant = %+v", g)
		}

		// The consent denial does not stop the emergency grant.
		d, err := stack.engine.Decide(ctx, ident, patientID, access.LevelWrite)
		if err != nil {
			t.Fatalf("decide: %v", err)
		}
		if !d.Allowed || d.EffectiveLevel != access.LevelEmergency {
			t.Fatalf("decision = %+v, want allow at emergency", d)
		}

		// Grant and use are both on the trail, pointing at the same grant.
		events, _, err := stack.auditor.Search(ctx, tenantID, audit.SearchParams{PatientID: &patientID}, 50, 0)
		if err != nil {
			t.Fatalf("search audit: %v", err)
		}
		var granted, used bool
		for _, e := range events {
			if e.GrantID == nil || *e.GrantID != g.ID {
				continue
			}
			switch e.Action {
			case audit.ActionEmergencyAccessGranted:
				granted = true
			case audit.ActionEmergencyAccessUsed:
				used = true
			}
		}
		if !granted || !used {
			t.Errorf("audit trail: granted=%v used=%v", granted, used)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}
}

// Two tenants with the same username and patient stay fully isolated.
func TestEngine_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	tenantA := uniqueTenantID("iso_a")
	tenantB := uniqueTenantID("iso_b")
	createTenantSchema(t, ctx, tenantA)
	createTenantSchema(t, ctx, tenantB)
	defer dropTenantSchema(t, ctx, tenantA)
	defer dropTenantSchema(t, ctx, tenantB)

	stack := newEngineStack()
	providerA := createTestUser(t, ctx, tenantA, "dr-jones", "passphrase-alpha", auth.RoleHealthcareProvider)
	adminA := createTestUser(t, ctx, tenantA, "admin", "admin-passphrase", auth.RoleSystemAdministrator)
	patientID := uuid.New()

	// Grant in tenant A.
	err := withTenantConn(ctx, globalDB.Pool, tenantA, func(ctx context.Context) error {
		_, err := stack.ledger.Grant(ctx, identityFor(adminA), access.GrantInput{
			UserID:    providerA.ID,
			PatientID: patientID,
			Level:     access.LevelWrite,
		})
		return err
	})
	if err != nil {
		t.Fatalf("grant in tenant A: %v", err)
	}

	// Tenant A's credentials do not exist in tenant B.
	err = withTenantConn(ctx, globalDB.Pool, tenantB, func(ctx context.Context) error {
		if _, err := stack.authn.Authenticate(ctx, tenantB, "dr-jones", "passphrase-alpha", testMeta); !errors.Is(err, authn.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials in tenant B, got %v", err)
		}

		// Tenant A's grant is invisible through tenant B's schema.
		d, err := stack.engine.Decide(ctx, identityFor(providerA), patientID, access.LevelRead)
		if err != nil {
			t.Fatalf("decide in tenant B: %v", err)
		}
		if d.Allowed {
			t.Errorf("decision = %+v, tenant A grant leaked into tenant B", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}

	// Back in tenant A the grant still works.
	err = withTenantConn(ctx, globalDB.Pool, tenantA, func(ctx context.Context) error {
		d, err := stack.engine.Decide(ctx, identityFor(providerA), patientID, access.LevelWrite)
		if err != nil {
			t.Fatalf("decide in tenant A: %v", err)
		}
		if !d.Allowed || d.EffectiveLevel != access.LevelWrite {
			t.Errorf("decision = %+v, want allow at write", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}
}

// Housekeeping deletes expired session rows and leaves live ones alone.
func TestEngine_SessionHousekeeping(t *testing.T) {
	ctx := context.Background()
	tenantID := uniqueTenantID("gc")
	createTenantSchema(t, ctx, tenantID)
	defer dropTenantSchema(t, ctx, tenantID)

	stack := newEngineStack()
	u := createTestUser(t, ctx, tenantID, "alice", "correct-passphrase", auth.RoleNurse)

	err := withTenantConn(ctx, globalDB.Pool, tenantID, func(ctx context.Context) error {
		live, err := stack.authn.Authenticate(ctx, tenantID, "alice", "correct-passphrase", testMeta)
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}

		stale := &session.Session{
			UserID:       u.ID,
			TenantID:     tenantID,
			RefreshToken: "stale-token",
			IssuedAt:     time.Now().Add(-48 * time.Hour),
			ExpiresAt:    time.Now().Add(-24 * time.Hour),
		}
		if err := stack.sessions.Create(ctx, stale); err != nil {
			t.Fatalf("create stale session: %v", err)
		}

		n, err := stack.sessions.DeleteExpired(ctx, time.Now().UTC())
		if err != nil {
			t.Fatalf("delete expired: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted %d rows, want 1", n)
		}
		if _, err := stack.sessions.GetByToken(ctx, "stale-token"); !errors.Is(err, session.ErrNotFound) {
			t.Errorf("expected stale session gone, got %v", err)
		}

		// The live session survives and still rotates.
		if _, err := stack.authn.Refresh(ctx, live.RefreshToken, testMeta); err != nil {
			t.Errorf("refresh after housekeeping: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}
}

// Delegation ceiling: a provider holding only read access cannot grant.
func TestEngine_DelegationCeiling(t *testing.T) {
	ctx := context.Background()
	tenantID := uniqueTenantID("delegation")
	createTenantSchema(t, ctx, tenantID)
	defer dropTenantSchema(t, ctx, tenantID)

	stack := newEngineStack()
	admin := createTestUser(t, ctx, tenantID, "admin", "admin-passphrase", auth.RoleSystemAdministrator)
	reader := createTestUser(t, ctx, tenantID, "dr-reader", "reader-passphrase", auth.RoleHealthcareProvider)
	colleague := createTestUser(t, ctx, tenantID, "dr-colleague", "colleague-passphrase", auth.RoleHealthcareProvider)
	patientID := uuid.New()

	err := withTenantConn(ctx, globalDB.Pool, tenantID, func(ctx context.Context) error {
		if _, err := stack.ledger.Grant(ctx, identityFor(admin), access.GrantInput{
			UserID:    reader.ID,
			PatientID: patientID,
			Level:     access.LevelRead,
		}); err != nil {
			t.Fatalf("seed read grant: %v", err)
		}

		// Read-only holders cannot delegate.
		_, err := stack.ledger.Grant(ctx, identityFor(reader), access.GrantInput{
			UserID:    colleague.ID,
			PatientID: patientID,
			Level:     access.LevelRead,
		})
		if !errors.Is(err, access.ErrForbidden) {
			t.Fatalf("expected ErrForbidden for read-only delegator, got %v", err)
		}

		// After a write grant the same provider can delegate.
		if _, err := stack.ledger.Grant(ctx, identityFor(admin), access.GrantInput{
			UserID:    reader.ID,
			PatientID: patientID,
			Level:     access.LevelWrite,
		}); err != nil {
			t.Fatalf("seed write grant: %v", err)
		}
		if _, err := stack.ledger.Grant(ctx, identityFor(reader), access.GrantInput{
			UserID:    colleague.ID,
			PatientID: patientID,
			Level:     access.LevelRead,
		}); err != nil {
			t.Fatalf("delegation with write access: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tenant conn: %v", err)
	}
}
