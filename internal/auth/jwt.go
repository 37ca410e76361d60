// Package auth issues and validates the operator tokens that guard run
// triggers.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenExpiry is how long operator tokens are valid unless stated
// otherwise.
const DefaultTokenExpiry = 24 * time.Hour

// Scopes granted to operator tokens.
const (
	ScopeRunsRead    = "runs:read"
	ScopeRunsTrigger = "runs:trigger"
)

// Predefined token errors.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrMissingScope  = errors.New("missing scope")
	ErrNoSigningKey  = errors.New("signing key not configured")
	ErrEmptyOperator = errors.New("operator is empty")
)

// Claims represents the claims in operator tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Operator is the person or system the token was issued to.
	Operator string `json:"op"`

	// Scopes lists what the token allows.
	Scopes []string `json:"scp"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// Config holds configuration for the token service.
type Config struct {
	// SigningKey is the HS256 secret.
	SigningKey string `yaml:"signing_key"`

	// Issuer is the issuer claim, e.g. "veloclimat".
	Issuer string `yaml:"issuer"`

	// Audience is the audience claim, e.g. "veloclimat-ops".
	Audience string `yaml:"audience"`
}

// TokenService handles operator token creation and validation.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrNoSigningKey
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}, nil
}

// Issue signs a token for operator with the given scopes. A zero ttl uses
// DefaultTokenExpiry.
func (s *TokenService) Issue(operator string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if operator == "" {
		return "", time.Time{}, ErrEmptyOperator
	}
	if ttl <= 0 {
		ttl = DefaultTokenExpiry
	}

	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   operator,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Operator: operator,
		Scopes:   scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate checks the signature, issuer, audience and expiry of a token and
// returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Operator == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
