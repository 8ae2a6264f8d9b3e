package pagekit

import (
	"context"
)

// ============================================================================
// CATALOG
// ============================================================================

// ListPages returns every registered page.
func (s *Service) ListPages(ctx context.Context) ([]Page, error) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return nil, dbError(err, "failed to list pages")
	}
	return pages, nil
}

// ListRoles returns every role.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, dbError(err, "failed to list roles")
	}
	return roles, nil
}

// GetRolePermissions returns every page grant of a role.
func (s *Service) GetRolePermissions(ctx context.Context, roleID int64) ([]RolePermission, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, dbError(err, "failed to load role").WithRole(roleID)
	}
	if role == nil {
		return nil, NewError(ErrNotFound, "role does not exist").WithRole(roleID)
	}
	rows, err := s.store.ListRolePermissionsForRole(ctx, roleID)
	if err != nil {
		return nil, dbError(err, "failed to list role permissions").WithRole(roleID)
	}
	return rows, nil
}

// ListProfiles returns the console profiles, optionally narrowed by a search on
// full name, email or role. Only administrators may list them.
func (s *Service) ListProfiles(ctx context.Context, query string) ([]Profile, error) {
	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := s.store.ListProfiles(ctx, query)
	if err != nil {
		return nil, dbError(err, "failed to list profiles").WithActor(actorID)
	}
	return profiles, nil
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// GetAuditLog retrieves audit log entries with optional filters.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleAuditLog, error) {
	logs, err := s.store.ListAuditLog(ctx, filter)
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to list audit log").WithCause(err)
	}
	return logs, nil
}
