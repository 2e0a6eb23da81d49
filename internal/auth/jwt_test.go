package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainstatus/statuspage/internal/auth"
)

func newJWT(key, issuer, audience string) *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: key,
		Issuer:     issuer,
		Audience:   audience,
	})
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := newJWT("test-secret-key-for-testing-only", "https://status.example.org", "statuspage-api")

	token, expiresAt, err := svc.GenerateToken("ops@example.org", auth.RoleAdmin, 2*time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), expiresAt, time.Minute)

	principal, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.org", principal.Subject)
	assert.Equal(t, auth.RoleAdmin, principal.Role)
}

func TestJWTService_UnknownRoleRejected(t *testing.T) {
	svc := newJWT("k", "i", "a")
	_, _, err := svc.GenerateToken("probe-eu", auth.Role("root"), time.Hour)
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newJWT("test-secret-key-for-testing-only", "i", "a")

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
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_Mismatches(t *testing.T) {
	issuer := newJWT("key-one", "issuer-one", "audience-one")
	token, _, err := issuer.GenerateToken("probe-eu", auth.RoleMonitor, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *auth.JWTService
	}{
		{"wrong key", newJWT("key-two", "issuer-one", "audience-one")},
		{"wrong issuer", newJWT("key-one", "issuer-two", "audience-one")},
		{"wrong audience", newJWT("key-one", "issuer-one", "audience-two")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.ValidateToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	past := time.Now().Add(-3 * time.Hour)
	minter := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "k",
		Issuer:     "i",
		Audience:   "a",
		Now:        func() time.Time { return past },
	})
	token, _, err := minter.GenerateToken("probe-eu", auth.RoleMonitor, time.Hour)
	require.NoError(t, err)

	_, err = newJWT("k", "i", "a").ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestRole_Allows(t *testing.T) {
	assert.True(t, auth.RoleAdmin.Allows(auth.RoleAdmin))
	assert.True(t, auth.RoleAdmin.Allows(auth.RoleMonitor))
	assert.True(t, auth.RoleMonitor.Allows(auth.RoleMonitor))
	assert.False(t, auth.RoleMonitor.Allows(auth.RoleAdmin))
	assert.False(t, auth.Role("").Allows(auth.RoleMonitor))
}

func TestParseRole(t *testing.T) {
	r, err := auth.ParseRole("monitor")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleMonitor, r)

	_, err = auth.ParseRole("superuser")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}
