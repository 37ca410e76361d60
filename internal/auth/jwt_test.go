package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloclimat/veloclimat/internal/auth"
)

func newService(t *testing.T, key, issuer, audience string) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.Config{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
	require.NoError(t, err)
	return svc
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := newService(t, "test-secret-key-for-testing-only", "veloclimat", "veloclimat-ops")

	token, expiresAt, err := svc.Issue("ops@lab-sticc", []string{auth.ScopeRunsRead, auth.ScopeRunsTrigger}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@lab-sticc", claims.Operator)
	assert.Equal(t, "ops@lab-sticc", claims.Subject)
	assert.Equal(t, "veloclimat", claims.Issuer)
	assert.True(t, claims.HasScope(auth.ScopeRunsTrigger))
	assert.False(t, claims.HasScope("admin"))
}

func TestTokenService_InvalidToken(t *testing.T) {
	svc := newService(t, "test-secret-key-for-testing-only", "veloclimat", "veloclimat-ops")

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_Mismatch(t *testing.T) {
	issuer := newService(t, "key-one", "veloclimat", "veloclimat-ops")
	token, _, err := issuer.Issue("ops", []string{auth.ScopeRunsRead}, 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		svc  *auth.TokenService
	}{
		{"wrong signing key", newService(t, "key-two", "veloclimat", "veloclimat-ops")},
		{"wrong issuer", newService(t, "key-one", "someone-else", "veloclimat-ops")},
		{"wrong audience", newService(t, "key-one", "veloclimat", "dashboards")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.Validate(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := newService(t, "key", "veloclimat", "veloclimat-ops")
	token, _, err := svc.Issue("ops", nil, time.Nanosecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_Errors(t *testing.T) {
	_, err := auth.NewTokenService(auth.Config{})
	assert.ErrorIs(t, err, auth.ErrNoSigningKey)

	svc := newService(t, "key", "veloclimat", "veloclimat-ops")
	_, _, err = svc.Issue("", nil, 0)
	assert.ErrorIs(t, err, auth.ErrEmptyOperator)
}
