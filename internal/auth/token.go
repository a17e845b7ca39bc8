package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultIssuer   = "api.hometracker"
	DefaultAudience = "hometracker.app"
	DefaultTokenTTL = 24 * time.Hour

	generatedSecretBytes = 64
)

// TokenConfig is the signing configuration handed to NewTokenIssuer.
// An empty Secret makes the issuer generate one for the process lifetime.
// Leeway tolerates clock drift on exp and iat; it is zero unless set.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// TokenClaims is the JWT payload.
type TokenClaims struct {
	UserID string `json:"userId"`
	RoleID int    `json:"roleId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 identity tokens.
type TokenIssuer struct {
	secret    []byte
	ephemeral bool
	issuer    string
	audience  string
	ttl       time.Duration
	leeway    time.Duration
	now       func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenIssuer builds an issuer from cfg, filling in defaults.
func NewTokenIssuer(cfg TokenConfig, opts ...TokenOption) (*TokenIssuer, error) {
	t := &TokenIssuer{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		ttl:      cfg.TTL,
		leeway:   cfg.Leeway,
		now:      time.Now,
	}
	if t.issuer == "" {
		t.issuer = DefaultIssuer
	}
	if t.audience == "" {
		t.audience = DefaultAudience
	}
	if t.ttl <= 0 {
		t.ttl = DefaultTokenTTL
	}
	if t.leeway < 0 {
		return nil, fmt.Errorf("%w: token leeway cannot be negative", ErrInvalidInput)
	}

	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		raw := make([]byte, generatedSecretBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("auth: generate token secret: %w", err)
		}
		secret = hex.EncodeToString(raw)
		t.ephemeral = true
	}
	t.secret = []byte(secret)

	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Ephemeral reports whether the secret was generated at startup. Tokens
// signed with it stop verifying once the process restarts.
func (t *TokenIssuer) Ephemeral() bool { return t.ephemeral }

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs a token for id valid for the configured TTL.
func (t *TokenIssuer) Issue(id Identity) (Token, error) {
	userID := strings.TrimSpace(id.UserID)
	if userID == "" {
		return Token{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := t.now().UTC()
	claims := TokenClaims{
		UserID: userID,
		RoleID: id.RoleID,
		Email:  strings.TrimSpace(id.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, issuer, audience and expiry. Every failure is
// reported as ErrInvalidToken.
func (t *TokenIssuer) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, RoleID: claims.RoleID, Email: claims.Email}, nil
}

// Refresh verifies token and signs the same identity with a fresh window.
func (t *TokenIssuer) Refresh(token string) (Token, error) {
	id, err := t.Verify(token)
	if err != nil {
		return Token{}, err
	}
	return t.Issue(id)
}
