// Package auth issues and verifies JWT access and refresh tokens, hashes
// passwords and authenticates HTTP requests.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrInvalidToken is returned for malformed, expired, mis-signed or
// wrong-type tokens.
var ErrInvalidToken = errors.New("token is invalid or expired")

// Subject identifies the user a token is issued for.
type Subject struct {
	UserID   int64
	Username string
	Role     string
}

// Claims are the verified contents of a token.
type Claims struct {
	Subject
	TokenType string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type privateClaims struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	key        []byte
	signer     jose.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// MinSecretLength is the shortest HMAC secret HS256 signing accepts.
const MinSecretLength = 32

// NewIssuer creates an Issuer with the given HMAC secret and lifetimes.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	key := []byte(secret)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Issuer{
		key:        key,
		signer:     signer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// RefreshTTL reports how long refresh tokens live.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccess signs a short-lived access token.
func (i *Issuer) IssueAccess(sub Subject) (string, error) {
	raw, _, err := i.issue(sub, TokenAccess, i.accessTTL)
	return raw, err
}

// IssueRefresh signs a refresh token and returns its claims so the caller
// can record the token id.
func (i *Issuer) IssueRefresh(sub Subject) (string, *Claims, error) {
	return i.issue(sub, TokenRefresh, i.refreshTTL)
}

func (i *Issuer) issue(sub Subject, tokenType string, ttl time.Duration) (string, *Claims, error) {
	now := i.now()
	c := &Claims{
		Subject:   sub,
		TokenType: tokenType,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	registered := jwt.Claims{
		Subject:  strconv.FormatInt(sub.UserID, 10),
		ID:       c.ID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(c.ExpiresAt),
	}
	private := privateClaims{
		UserID:    sub.UserID,
		Username:  sub.Username,
		Role:      sub.Role,
		TokenType: tokenType,
	}

	raw, err := jwt.Signed(i.signer).Claims(registered).Claims(private).Serialize()
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return raw, c, nil
}

// Verify checks the signature, expiry and token type of raw.
func (i *Issuer) Verify(raw, tokenType string) (*Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, ErrInvalidToken
	}

	var (
		registered jwt.Claims
		private    privateClaims
	)
	if err := tok.Claims(i.key, &registered, &private); err != nil {
		return nil, ErrInvalidToken
	}
	if err := registered.ValidateWithLeeway(jwt.Expected{Time: i.now()}, 0); err != nil {
		return nil, ErrInvalidToken
	}
	if private.TokenType != tokenType || private.UserID == 0 {
		return nil, ErrInvalidToken
	}

	c := &Claims{
		Subject: Subject{
			UserID:   private.UserID,
			Username: private.Username,
			Role:     private.Role,
		},
		TokenType: private.TokenType,
		ID:        registered.ID,
	}
	if registered.IssuedAt != nil {
		c.IssuedAt = registered.IssuedAt.Time()
	}
	if registered.Expiry != nil {
		c.ExpiresAt = registered.Expiry.Time()
	}
	return c, nil
}
