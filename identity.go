package pagekit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenAudience is the audience the BaaS stamps on signed-in users' access tokens.
const DefaultTokenAudience = "authenticated"

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// Admin is the admin flag carried in the token's app metadata.
	Admin bool `json:"admin"`
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (*Identity, error)

// CurrentIdentity calls f(ctx).
func (f IdentityFunc) CurrentIdentity(ctx context.Context) (*Identity, error) {
	return f(ctx)
}

// ContextIdentity reads the identity that middleware placed in the context.
type ContextIdentity struct{}

// CurrentIdentity returns the identity in ctx, or one built from the bare user ID.
func (ContextIdentity) CurrentIdentity(ctx context.Context) (*Identity, error) {
	if ident := GetIdentity(ctx); ident != nil {
		return ident, nil
	}
	if userID := GetUserID(ctx); userID != "" {
		return &Identity{UserID: userID}, nil
	}
	return nil, nil
}

// UserMetadata is the user-editable metadata block of an access token.
// Nothing in it is trusted for authorization.
type UserMetadata struct {
	FullName string `json:"full_name,omitempty"`
}

// AppMetadata is the metadata block only the auth service can write.
type AppMetadata struct {
	IsAdmin bool `json:"is_admin,omitempty"`
}

// TokenClaims are the claims of a BaaS access token.
type TokenClaims struct {
	Email        string       `json:"email,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata"`
	AppMetadata  AppMetadata  `json:"app_metadata"`
	jwt.RegisteredClaims
}

// TokenIdentity validates HS256 access tokens issued by the hosted auth service.
type TokenIdentity struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewTokenIdentity creates a token validator. An empty issuer is not checked;
// an empty audience defaults to DefaultTokenAudience.
//
// Example:
//
//	tokens := pagekit.NewTokenIdentity(cfg.JWTSecret, cfg.JWTIssuer, "")
//	ident, err := tokens.Authenticate(pagekit.BearerToken(r))
func NewTokenIdentity(secret, issuer, audience string) *TokenIdentity {
	if audience == "" {
		audience = DefaultTokenAudience
	}
	return &TokenIdentity{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}
}

// Authenticate validates tokenString and returns the identity it carries.
// Any invalid, expired or foreign token yields ErrUnauthenticated.
func (t *TokenIdentity) Authenticate(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, NewError(ErrUnauthenticated, "missing access token")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(t.audience),
		jwt.WithLeeway(t.leeway),
	}
	if t.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(t.issuer))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, NewError(ErrUnauthenticated, "invalid access token").WithCause(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, NewError(ErrUnauthenticated, "access token has no subject")
	}

	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Admin:  claims.AppMetadata.IsAdmin,
	}, nil
}

// CurrentIdentity authenticates the bearer token stored in ctx.
// A missing or invalid token means nobody is signed in.
func (t *TokenIdentity) CurrentIdentity(ctx context.Context) (*Identity, error) {
	ident, err := t.Authenticate(GetBearerToken(ctx))
	if err != nil {
		return nil, nil
	}
	return ident, nil
}

// Issue signs an access token for ident that expires after ttl.
// Used by tests and the development console; production tokens come from the auth service.
func (t *TokenIdentity) Issue(ident *Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Email:       ident.Email,
		AppMetadata: AppMetadata{IsAdmin: ident.Admin},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
