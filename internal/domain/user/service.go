package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medrec/medrec/internal/platform/auth"
)

// SessionRevoker closes a user's open sessions. Satisfied by the session
// repository; declared here so the user service does not pull in the session
// package.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// Service covers administrative provisioning of users and scopes. Login-time
// mutation of the credential row (failure counters, lockout) belongs to the
// authenticator, which talks to the Repository directly.
type Service struct {
	repo     Repository
	scopes   ScopeRepository
	sessions SessionRevoker
}

func NewService(repo Repository, scopes ScopeRepository, sessions SessionRevoker) *Service {
	return &Service{repo: repo, scopes: scopes, sessions: sessions}
}

// CreateInput carries the fields for administrative user provisioning.
type CreateInput struct {
	TenantID       string
	Username       string
	Email          string
	Password       string
	Role           auth.Role
	PractitionerID *uuid.UUID
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if in.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if in.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", in.Role)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		TenantID:       in.TenantID,
		Username:       in.Username,
		Email:          in.Email,
		PasswordHash:   hash,
		Role:           in.Role,
		Status:         StatusActive,
		PractitionerID: in.PractitionerID,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, tenantID string, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

// SetStatus changes the account status. Moving an account out of active also
// closes its open sessions: a suspended user must not keep refreshing tokens.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	if status != StatusActive {
		if _, err := s.sessions.RevokeAllForUser(ctx, id); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	return nil
}

// Unlock clears a lockout ahead of its natural expiry.
func (s *Service) Unlock(ctx context.Context, id uuid.UUID) error {
	return s.repo.Unlock(ctx, id)
}

func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAllForUser(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// GrantScope grants a named API scope to a user.
func (s *Service) GrantScope(ctx context.Context, userID, grantedBy uuid.UUID, tenantID, name string, expiresAt *time.Time) (*Scope, error) {
	if name == "" {
		return nil, fmt.Errorf("scope name is required")
	}
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	scope := &Scope{
		UserID:    userID,
		TenantID:  tenantID,
		Name:      name,
		GrantedBy: grantedBy,
		ExpiresAt: expiresAt,
	}
	if err := s.scopes.Grant(ctx, scope); err != nil {
		return nil, fmt.Errorf("grant scope: %w", err)
	}
	return scope, nil
}

func (s *Service) RevokeScope(ctx context.Context, id uuid.UUID) error {
	return s.scopes.Revoke(ctx, id)
}

func (s *Service) ListScopes(ctx context.Context, userID uuid.UUID) ([]*Scope, error) {
	return s.scopes.ListForUser(ctx, userID)
}
