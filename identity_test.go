package pagekit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

// signedToken signs arbitrary claims with the test secret.
func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

// TestTokenIdentityAuthenticate tests validation of access tokens
func TestTokenIdentityAuthenticate(t *testing.T) {
	tokens := NewTokenIdentity(testSecret, "https://auth.example.com", "")

	t.Run("valid token", func(t *testing.T) {
		raw, err := tokens.Issue(&Identity{UserID: "alice", Email: "alice@example.com", Admin: true}, time.Hour)
		require.NoError(t, err)

		ident, err := tokens.Authenticate(raw)
		require.NoError(t, err)
		assert.Equal(t, &Identity{UserID: "alice", Email: "alice@example.com", Admin: true}, ident)
	})

	t.Run("user metadata cannot grant admin", func(t *testing.T) {
		raw := signedToken(t, jwt.MapClaims{
			"sub":           "mallory",
			"iss":           "https://auth.example.com",
			"aud":           DefaultTokenAudience,
			"exp":           time.Now().Add(time.Hour).Unix(),
			"user_metadata": map[string]any{"is_admin": true},
		})

		ident, err := tokens.Authenticate(raw)
		require.NoError(t, err)
		assert.Equal(t, "mallory", ident.UserID)
		assert.False(t, ident.Admin)
	})

	t.Run("app metadata grants admin", func(t *testing.T) {
		raw := signedToken(t, jwt.MapClaims{
			"sub":          "root",
			"iss":          "https://auth.example.com",
			"aud":          DefaultTokenAudience,
			"exp":          time.Now().Add(time.Hour).Unix(),
			"app_metadata": map[string]any{"is_admin": true},
		})

		ident, err := tokens.Authenticate(raw)
		require.NoError(t, err)
		assert.True(t, ident.Admin)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := tokens.Authenticate("")
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("expired token", func(t *testing.T) {
		raw, err := tokens.Issue(&Identity{UserID: "alice"}, -time.Hour)
		require.NoError(t, err)

		_, err = tokens.Authenticate(raw)
		assert.True(t, IsUnauthenticated(err))
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIdentity("another-secret-another-secret-another", "https://auth.example.com", "")
		raw, err := other.Issue(&Identity{UserID: "alice"}, time.Hour)
		require.NoError(t, err)

		_, err = tokens.Authenticate(raw)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("wrong audience", func(t *testing.T) {
		service := NewTokenIdentity(testSecret, "https://auth.example.com", "service_role")
		raw, err := service.Issue(&Identity{UserID: "alice"}, time.Hour)
		require.NoError(t, err)

		_, err = tokens.Authenticate(raw)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		foreign := NewTokenIdentity(testSecret, "https://evil.example.com", "")
		raw, err := foreign.Issue(&Identity{UserID: "alice"}, time.Hour)
		require.NoError(t, err)

		_, err = tokens.Authenticate(raw)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("no subject", func(t *testing.T) {
		raw, err := tokens.Issue(&Identity{}, time.Hour)
		require.NoError(t, err)

		_, err = tokens.Authenticate(raw)
		assert.True(t, IsUnauthenticated(err))
	})

	t.Run("unsigned token", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": "alice", "aud": DefaultTokenAudience, "exp": time.Now().Add(time.Hour).Unix()}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = tokens.Authenticate(raw)
		assert.True(t, IsUnauthenticated(err))
	})
}

// TestTokenIdentityCurrentIdentity tests the provider view of a request's token
func TestTokenIdentityCurrentIdentity(t *testing.T) {
	tokens := NewTokenIdentity(testSecret, "", "")
	raw, err := tokens.Issue(&Identity{UserID: "alice"}, time.Hour)
	require.NoError(t, err)

	ident, err := tokens.CurrentIdentity(WithBearerToken(context.Background(), raw))
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, "alice", ident.UserID)

	ident, err = tokens.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ident)

	ident, err = tokens.CurrentIdentity(WithBearerToken(context.Background(), "garbage"))
	require.NoError(t, err)
	assert.Nil(t, ident)
}

// TestContextIdentity tests reading the identity placed by middleware
func TestContextIdentity(t *testing.T) {
	ident, err := ContextIdentity{}.CurrentIdentity(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ident)

	ident, err = ContextIdentity{}.CurrentIdentity(WithUserID(context.Background(), "bob"))
	require.NoError(t, err)
	assert.Equal(t, &Identity{UserID: "bob"}, ident)

	full := &Identity{UserID: "carol", Admin: true}
	ident, err = ContextIdentity{}.CurrentIdentity(WithIdentity(context.Background(), full))
	require.NoError(t, err)
	assert.Same(t, full, ident)
}

// TestBearerToken tests Authorization header parsing
func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(req), tt.header)
	}
}
