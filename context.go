package pagekit

import (
	"context"
)

// Context keys for pagekit values.
type contextKey string

const (
	contextKeyUserID      contextKey = "pagekit:user_id"
	contextKeyIdentity    contextKey = "pagekit:identity"
	contextKeyActorID     contextKey = "pagekit:actor_id"
	contextKeyIPAddress   contextKey = "pagekit:ip_address"
	contextKeyUserAgent   contextKey = "pagekit:user_agent"
	contextKeyRequestID   contextKey = "pagekit:request_id"
	contextKeyPermissions contextKey = "pagekit:permissions"
	contextKeyToken       contextKey = "pagekit:token"
)

// WithUserID adds a user ID to the context.
// This is the user being checked for permissions.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// GetUserID retrieves the user ID from context.
// Falls back to the identity's user ID, and returns empty string if neither is set.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(contextKeyUserID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if ident := GetIdentity(ctx); ident != nil {
		return ident.UserID
	}
	return ""
}

// WithIdentity adds the authenticated identity to the context.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, ident)
}

// GetIdentity retrieves the authenticated identity from context.
// Returns nil if not set.
func GetIdentity(ctx context.Context) *Identity {
	if v := ctx.Value(contextKeyIdentity); v != nil {
		if ident, ok := v.(*Identity); ok {
			return ident
		}
	}
	return nil
}

// WithBearerToken adds the raw access token of the request to the context.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}

// GetBearerToken retrieves the raw access token from context.
func GetBearerToken(ctx context.Context) string {
	if v := ctx.Value(contextKeyToken); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithActorID adds an actor ID to the context.
// This is the user performing an administrative change (for audit purposes).
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID, actorID)
}

// GetActorID retrieves the actor ID from context.
// Falls back to user ID if actor ID is not explicitly set.
func GetActorID(ctx context.Context) string {
	if v := ctx.Value(contextKeyActorID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return GetUserID(ctx)
}

// WithIPAddress adds the client IP address to the context (for audit).
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress retrieves the IP address from context.
func GetIPAddress(ctx context.Context) string {
	if v := ctx.Value(contextKeyIPAddress); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithUserAgent adds the user agent to the context (for audit).
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// GetUserAgent retrieves the user agent from context.
func GetUserAgent(ctx context.Context) string {
	if v := ctx.Value(contextKeyUserAgent); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context (for audit and correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// pageGrant is what LoadPermissions leaves in the context for handlers.
type pageGrant struct {
	page  string
	perms Permissions
	err   error
}

// WithPermissions stores the resolved permissions for a page in the context.
// err is the lookup failure, if resolution failed; perms must then be NoPermissions.
func WithPermissions(ctx context.Context, pageCode string, perms Permissions, err error) context.Context {
	return context.WithValue(ctx, contextKeyPermissions, pageGrant{page: pageCode, perms: perms, err: err})
}

// PermissionsFromContext retrieves the permissions loaded by middleware.
// When nothing was loaded it returns NoPermissions and a nil error, so callers fail closed.
//
// Example:
//
//	perms, err := pagekit.PermissionsFromContext(r.Context())
//	if err != nil {
//	    // access unknown: hide gated actions and surface err
//	}
//	if perms.Can(pagekit.CapabilityDelete) {
//	    // render delete button
//	}
func PermissionsFromContext(ctx context.Context) (Permissions, error) {
	if v := ctx.Value(contextKeyPermissions); v != nil {
		if g, ok := v.(pageGrant); ok {
			return g.perms, g.err
		}
	}
	return NoPermissions, nil
}

// PageFromContext returns the page code whose permissions were loaded, if any.
func PageFromContext(ctx context.Context) string {
	if v := ctx.Value(contextKeyPermissions); v != nil {
		if g, ok := v.(pageGrant); ok {
			return g.page
		}
	}
	return ""
}

// AuditContext holds all audit-related information from context.
type AuditContext struct {
	ActorID   string
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContext extracts all audit information from context.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		ActorID:   GetActorID(ctx),
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext adds all audit information to context at once.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.ActorID != "" {
		ctx = WithActorID(ctx, ac.ActorID)
	}
	if ac.IPAddress != "" {
		ctx = WithIPAddress(ctx, ac.IPAddress)
	}
	if ac.UserAgent != "" {
		ctx = WithUserAgent(ctx, ac.UserAgent)
	}
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	return ctx
}
