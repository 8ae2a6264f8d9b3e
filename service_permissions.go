package pagekit

import (
	"context"
)

// ============================================================================
// RESOLUTION
// ============================================================================

// Resolve returns the effective permissions of userID on pageCode.
// See Resolver.Resolve for the outcome contract.
func (s *Service) Resolve(ctx context.Context, userID, pageCode string) (Permissions, error) {
	return s.resolver.Resolve(ctx, userID, pageCode)
}

// ResolveCurrent resolves the permissions of whoever idp reports as signed in.
func (s *Service) ResolveCurrent(ctx context.Context, idp IdentityProvider, pageCode string) (Permissions, error) {
	return s.resolver.ResolveCurrent(ctx, idp, pageCode)
}

// Can checks a single capability. A lookup failure is returned as an error
// together with false; callers decide whether to deny or report.
//
// Example:
//
//	ok, err := service.Can(ctx, userID, "projects", pagekit.CapabilityDelete)
func (s *Service) Can(ctx context.Context, userID, pageCode string, capability Capability) (bool, error) {
	c, err := ParseCapability(string(capability))
	if err != nil {
		return false, err
	}
	perms, err := s.Resolve(ctx, userID, pageCode)
	if err != nil {
		return false, err
	}
	return perms.Can(c), nil
}

// IsAdmin reports whether ident is a console administrator: either the token's
// app metadata carries the admin flag or the user's profile role is "admin".
// User metadata is editable by its owner and never grants anything.
func (s *Service) IsAdmin(ctx context.Context, ident *Identity) (bool, error) {
	if ident == nil || ident.UserID == "" {
		return false, nil
	}
	if ident.Admin {
		return true, nil
	}
	profile, err := s.store.GetProfile(ctx, ident.UserID)
	if err != nil {
		return false, NewError(ErrDatabaseError, "failed to load profile").
			WithUser(ident.UserID).
			WithCause(err)
	}
	return profile.IsAdmin(), nil
}
