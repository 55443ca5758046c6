package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/domain/audit"
	"github.com/medrec/medrec/internal/domain/session"
	"github.com/medrec/medrec/internal/domain/user"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/db"
)

// Policy holds the authentication policy constants. All of them come from
// configuration; nothing here is hard-coded.
type Policy struct {
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// dummyHash is compared against when the username does not exist, so the
// missing-user path costs a bcrypt check like the wrong-password path does.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service orchestrates credential check, lockout policy, token issuance and
// session bookkeeping.
type Service struct {
	users    user.Repository
	scopes   user.ScopeRepository
	sessions session.Repository
	codec    *auth.Codec
	auditor  *audit.Recorder
	tx       db.TxRunner
	policy   Policy
}

func NewService(
	users user.Repository,
	scopes user.ScopeRepository,
	sessions session.Repository,
	codec *auth.Codec,
	auditor *audit.Recorder,
	tx db.TxRunner,
	policy Policy,
) *Service {
	return &Service{
		users:    users,
		scopes:   scopes,
		sessions: sessions,
		codec:    codec,
		auditor:  auditor,
		tx:       tx,
		policy:   policy,
	}
}

// RequestMeta carries client metadata recorded on sessions and audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Result is the outcome of a successful login or refresh.
type Result struct {
	User         *user.Info `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
}

// Authenticate checks the credentials and, on success, issues an access token
// and opens a session. Failed attempts count toward lockout; attempts against
// an already-locked account do not.
func (s *Service) Authenticate(ctx context.Context, tenantID, username, password string, meta RequestMeta) (*Result, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	now := time.Now().UTC()

	u, err := s.users.GetByUsername(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_ = user.CheckPassword(dummyHash, password)
			s.auditFailure(ctx, tenantID, username, nil, "unknown username", meta)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if u.IsLocked(now) {
		s.auditFailure(ctx, tenantID, username, &u.ID, "account locked", meta)
		return nil, newLockedError(u.LockedUntil)
	}
	if !u.CanAuthenticate(now) {
		s.auditFailure(ctx, tenantID, username, &u.ID, "account not active", meta)
		return nil, ErrInvalidCredentials
	}

	if !user.CheckPassword(u.PasswordHash, password) {
		attempts, lockedUntil, ferr := s.users.RecordLoginFailure(ctx, u.ID, s.policy.LockoutThreshold, s.policy.LockoutDuration)
		if ferr != nil {
			return nil, fmt.Errorf("record login failure: %w", ferr)
		}
		if lockedUntil != nil {
			s.auditor.RecordBestEffort(ctx, &audit.Event{
				TenantID:  tenantID,
				Action:    audit.ActionAccountLocked,
				Outcome:   audit.OutcomeFailure,
				ActorID:   &u.ID,
				ActorName: username,
				Reason:    fmt.Sprintf("locked after %d failed attempts", attempts),
				SourceIP:  meta.IP,
				UserAgent: meta.UserAgent,
			})
			return nil, &LockedError{Until: *lockedUntil}
		}
		s.auditFailure(ctx, tenantID, username, &u.ID, "password mismatch", meta)
		return nil, ErrInvalidCredentials
	}

	if err := s.users.RecordLoginSuccess(ctx, u.ID, meta.IP); err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}

	result, err := s.openSession(ctx, u, now, meta)
	if err != nil {
		return nil, err
	}

	s.auditor.RecordBestEffort(ctx, &audit.Event{
		TenantID:  tenantID,
		Action:    audit.ActionLoginSuccess,
		Outcome:   audit.OutcomeSuccess,
		ActorID:   &u.ID,
		ActorName: u.Username,
		ActorRole: u.Role.String(),
		SourceIP:  meta.IP,
		UserAgent: meta.UserAgent,
	})
	return result, nil
}

// Refresh rotates the session: the presented token is revoked and a new one
// issued in a single unit of work, so concurrent refreshes with the same
// token succeed exactly once. Role and scopes are re-read from the store, not
// carried over from the old token.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*Result, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}
	now := time.Now().UTC()

	var result *Result
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		sess, err := s.sessions.GetByToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("look up session: %w", err)
		}
		if !sess.EffectiveActive(now) {
			return ErrInvalidToken
		}

		// The conditional revoke is the rotation lock: of two concurrent
		// refreshes, only the one that flips the flag proceeds.
		revoked, err := s.sessions.Revoke(ctx, refreshToken)
		if err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		if !revoked {
			return ErrInvalidToken
		}

		u, err := s.users.GetByID(ctx, sess.UserID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("look up user: %w", err)
		}
		if !u.CanAuthenticate(now) {
			return ErrInvalidToken
		}

		result, err = s.openSession(ctx, u, now, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditor.RecordBestEffort(ctx, &audit.Event{
		TenantID:  result.User.TenantID,
		Action:    audit.ActionTokenRefreshed,
		Outcome:   audit.OutcomeSuccess,
		ActorID:   &result.User.ID,
		ActorName: result.User.Username,
		ActorRole: result.User.Role.String(),
		SourceIP:  meta.IP,
		UserAgent: meta.UserAgent,
	})
	return result, nil
}

// Logout revokes the session. Revoking an already-revoked or unknown token is
// a no-op success; logout gives no oracle.
func (s *Service) Logout(ctx context.Context, refreshToken string, meta RequestMeta) error {
	if refreshToken == "" {
		return nil
	}
	revoked, err := s.sessions.Revoke(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if revoked {
		s.auditor.RecordBestEffort(ctx, &audit.Event{
			TenantID:  db.TenantFromContext(ctx),
			Action:    audit.ActionLogoutSuccess,
			Outcome:   audit.OutcomeSuccess,
			SourceIP:  meta.IP,
			UserAgent: meta.UserAgent,
		})
	}
	return nil
}

// openSession issues an access token with the user's current role and scopes
// and persists a new session row.
func (s *Service) openSession(ctx context.Context, u *user.User, now time.Time, meta RequestMeta) (*Result, error) {
	scopes, err := s.scopes.ActiveNamesForUser(ctx, u.ID, now)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}

	accessToken, err := s.codec.Issue(auth.TokenInput{
		UserID:         u.ID,
		Username:       u.Username,
		TenantID:       u.TenantID,
		Role:           u.Role,
		Scopes:         scopes,
		PractitionerID: u.PractitionerID,
	}, s.policy.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshValue, err := auth.NewRefreshTokenValue()
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		UserID:         u.ID,
		TenantID:       u.TenantID,
		RefreshToken:   refreshValue,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.policy.RefreshTokenTTL),
		LastAccessedAt: &now,
		ClientIP:       meta.IP,
		UserAgent:      meta.UserAgent,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Result{
		User:         u.ToInfo(),
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
		ExpiresIn:    int(s.policy.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) auditFailure(ctx context.Context, tenantID, username string, actorID *uuid.UUID, reason string, meta RequestMeta) {
	s.auditor.RecordBestEffort(ctx, &audit.Event{
		TenantID:  tenantID,
		Action:    audit.ActionLoginFailure,
		Outcome:   audit.OutcomeFailure,
		ActorID:   actorID,
		ActorName: username,
		Reason:    reason,
		SourceIP:  meta.IP,
		UserAgent: meta.UserAgent,
	})
}
