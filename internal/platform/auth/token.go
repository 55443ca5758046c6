package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// expired, malformed, wrong algorithm, unknown role. Callers get no partial
// trust distinctions.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the deterministic claim layout carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
	TenantID       string   `json:"tenant_id"`
	Username       string   `json:"username,omitempty"`
	Role           string   `json:"role"`
	Scopes         []string `json:"scopes,omitempty"`
	PractitionerID string   `json:"practitioner_id,omitempty"`
}

// Identity is the verified projection of a token handed to the rest of the
// engine: parsed IDs and the enumerated role instead of raw claim strings.
type Identity struct {
	UserID         uuid.UUID
	Username       string
	TenantID       string
	Role           Role
	Scopes         []string
	PractitionerID *uuid.UUID
}

// Codec creates and verifies signed, expiring bearer tokens. Verification is
// pure in-memory work; it never touches the persistence layer. Access tokens
// are stateless and not individually revocable -- the short TTL is the
// mitigation, and only refresh tokens (session ledger) can be revoked.
type Codec struct {
	key    []byte
	issuer string
}

func NewCodec(signingKey []byte, issuer string) *Codec {
	return &Codec{key: signingKey, issuer: issuer}
}

// TokenInput carries the identity to encode into an access token.
type TokenInput struct {
	UserID         uuid.UUID
	Username       string
	TenantID       string
	Role           Role
	Scopes         []string
	PractitionerID *uuid.UUID
}

// Issue signs a token for the given identity with the given lifetime.
func (c *Codec) Issue(in TokenInput, ttl time.Duration) (string, error) {
	if !in.Role.Valid() {
		return "", fmt.Errorf("issue token: invalid role %q", in.Role)
	}
	now := time.Now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   in.UserID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: in.TenantID,
		Username: in.Username,
		Role:     in.Role.String(),
		Scopes:   in.Scopes,
	}
	if in.PractitionerID != nil {
		claims.PractitionerID = in.PractitionerID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and converts the claims into an
// Identity. Any failure is reported uniformly as ErrInvalidToken.
func (c *Codec) Verify(tokenStr string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, ErrInvalidToken
	}

	ident := &Identity{
		UserID:   userID,
		Username: claims.Username,
		TenantID: claims.TenantID,
		Role:     role,
		Scopes:   claims.Scopes,
	}
	if claims.PractitionerID != "" {
		pid, err := uuid.Parse(claims.PractitionerID)
		if err != nil {
			return nil, ErrInvalidToken
		}
		ident.PractitionerID = &pid
	}
	return ident, nil
}

// NewRefreshTokenValue returns a cryptographically random opaque token for
// the session ledger. The value itself carries no claims.
func NewRefreshTokenValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
