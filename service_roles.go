package pagekit

import (
	"context"
	"strconv"
	"strings"

	"github.com/fernandezvara/dbkit"
)

// PageInput registers a gated page.
type PageInput struct {
	Code string `json:"code" validate:"required,max=64,printascii"`
	Name string `json:"name" validate:"max=200"`
}

// RoleInput creates a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=500"`
}

// ============================================================================
// ADMINISTRATIVE WRITES
// ============================================================================

// EnsurePage registers a page if its code is new and returns the stored page.
// created reports whether this call inserted it.
//
// Example:
//
//	page, created, err := service.EnsurePage(ctx, pagekit.PageInput{Code: "projects", Name: "Projects"})
func (s *Service) EnsurePage(ctx context.Context, in PageInput) (page *Page, created bool, err error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, false, validationError(err)
	}

	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, false, err
	}

	entry := newAuditEntry(ctx, actorID, AuditActionPageRegistered)
	err = s.transaction(ctx, "EnsurePage", func(ctx context.Context, tx *BunStore) error {
		candidate := &Page{Code: in.Code, Name: in.Name}
		inserted, err := tx.InsertPage(ctx, candidate)
		if err != nil {
			return err
		}
		if page, err = tx.FindPageByCode(ctx, in.Code); err != nil {
			return err
		}
		if page == nil {
			return NewError(ErrNotFound, "page vanished after insert").WithPage(in.Code)
		}
		if !inserted {
			return nil
		}
		created = true
		entry.PageID = page.ID
		entry.Detail = page.Code
		return tx.InsertAuditLog(ctx, entry)
	})
	if err != nil {
		return nil, false, dbError(err, "failed to register page").WithPage(in.Code).WithActor(actorID)
	}

	if created {
		s.changed(entry)
		// Earlier misses for this code were cached as all-false.
		s.invalidatePage(ctx, page.Code)
	}
	return page, created, nil
}

// CreateRole creates a new role with no page grants.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (*Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	role := &Role{Name: in.Name, Description: in.Description}
	entry := newAuditEntry(ctx, actorID, AuditActionRoleCreated)
	err = s.transaction(ctx, "CreateRole", func(ctx context.Context, tx *BunStore) error {
		if err := tx.InsertRole(ctx, role); err != nil {
			return err
		}
		entry.RoleID = role.ID
		entry.Detail = role.Name
		return tx.InsertAuditLog(ctx, entry)
	})
	if dbkit.IsDuplicate(err) {
		return nil, NewError(ErrInvalidInput, "role name already exists").WithActor(actorID).WithCause(err)
	}
	if err != nil {
		return nil, dbError(err, "failed to create role").WithActor(actorID)
	}

	s.changed(entry)
	return role, nil
}

// SetRolePermission replaces the flags a role grants on a page.
// Granting nothing keeps the row with every flag false.
//
// Example:
//
//	err := service.SetRolePermission(ctx, editorRoleID, projectsPageID, pagekit.Permissions{
//	    CanView: true, CanEdit: true,
//	})
func (s *Service) SetRolePermission(ctx context.Context, roleID, pageID int64, perms Permissions) error {
	if roleID <= 0 || pageID <= 0 {
		return NewError(ErrInvalidInput, "role and page IDs must be positive").WithRole(roleID)
	}

	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}

	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return dbError(err, "failed to load role").WithRole(roleID)
	}
	if role == nil {
		return NewError(ErrNotFound, "role does not exist").WithRole(roleID).WithActor(actorID)
	}
	page, err := s.store.GetPage(ctx, pageID)
	if err != nil {
		return dbError(err, "failed to load page").WithRole(roleID)
	}
	if page == nil {
		return NewError(ErrNotFound, "page "+strconv.FormatInt(pageID, 10)+" does not exist").
			WithRole(roleID).
			WithActor(actorID)
	}

	grant := &RolePermission{
		RoleID:    roleID,
		PageID:    pageID,
		CanView:   perms.CanView,
		CanAdd:    perms.CanAdd,
		CanEdit:   perms.CanEdit,
		CanDelete: perms.CanDelete,
		CanPrint:  perms.CanPrint,
	}
	entry := newAuditEntry(ctx, actorID, AuditActionPermissionSet)
	entry.RoleID = roleID
	entry.PageID = pageID
	entry.Detail = capabilityList(perms)

	err = s.transaction(ctx, "SetRolePermission", func(ctx context.Context, tx *BunStore) error {
		if err := tx.UpsertRolePermission(ctx, grant); err != nil {
			return err
		}
		return tx.InsertAuditLog(ctx, entry)
	})
	if err != nil {
		return dbError(err, "failed to set role permission").
			WithRole(roleID).
			WithPage(page.Code).
			WithActor(actorID)
	}

	s.changed(entry)
	s.invalidatePage(ctx, page.Code)
	return nil
}

// AssignRole gives a role to a user.
//
// Example:
//
//	err := service.AssignRole(ctx, targetUserID, editorRoleID)
func (s *Service) AssignRole(ctx context.Context, userID string, roleID int64) error {
	if err := s.validate.Var(userID, "required,uuid"); err != nil {
		return validationError(err)
	}

	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}

	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return dbError(err, "failed to load role").WithRole(roleID)
	}
	if role == nil {
		return NewError(ErrNotFound, "role does not exist").WithRole(roleID).WithActor(actorID)
	}

	entry := newAuditEntry(ctx, actorID, AuditActionRoleAssigned)
	entry.TargetUserID = userID
	entry.RoleID = roleID
	entry.Detail = role.Name

	err = s.transaction(ctx, "AssignRole", func(ctx context.Context, tx *BunStore) error {
		inserted, err := tx.InsertUserRole(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if !inserted {
			return NewError(ErrRoleAlreadyAssigned, "user already has this role")
		}
		return tx.InsertAuditLog(ctx, entry)
	})
	if err != nil {
		return dbError(err, "failed to assign role").
			WithUser(userID).
			WithRole(roleID).
			WithActor(actorID)
	}

	s.changed(entry)
	s.invalidateUser(ctx, userID)
	return nil
}

// RevokeRole removes a role from a user.
func (s *Service) RevokeRole(ctx context.Context, userID string, roleID int64) error {
	if err := s.validate.Var(userID, "required,uuid"); err != nil {
		return validationError(err)
	}

	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}

	entry := newAuditEntry(ctx, actorID, AuditActionRoleRevoked)
	entry.TargetUserID = userID
	entry.RoleID = roleID

	err = s.transaction(ctx, "RevokeRole", func(ctx context.Context, tx *BunStore) error {
		deleted, err := tx.DeleteUserRole(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if !deleted {
			return NewError(ErrRoleNotAssigned, "user does not have this role")
		}
		return tx.InsertAuditLog(ctx, entry)
	})
	if err != nil {
		return dbError(err, "failed to revoke role").
			WithUser(userID).
			WithRole(roleID).
			WithActor(actorID)
	}

	s.changed(entry)
	s.invalidateUser(ctx, userID)
	return nil
}

// SetProfileRole changes the console role ("admin", "editor" or "user") of a profile.
// Administrators cannot change their own role, so the last one cannot demote themselves.
func (s *Service) SetProfileRole(ctx context.Context, userID, role string) error {
	if err := s.validate.Var(userID, "required,uuid"); err != nil {
		return validationError(err)
	}
	if err := s.validate.Var(role, "required,oneof=admin editor user"); err != nil {
		return validationError(err)
	}

	actorID, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if strings.EqualFold(actorID, userID) {
		return NewError(ErrForbidden, "administrators cannot change their own role").
			WithUser(userID).
			WithActor(actorID)
	}

	entry := newAuditEntry(ctx, actorID, AuditActionProfileRoleSet)
	entry.TargetUserID = userID
	entry.Detail = role

	err = s.transaction(ctx, "SetProfileRole", func(ctx context.Context, tx *BunStore) error {
		updated, err := tx.UpdateProfileRole(ctx, userID, role)
		if err != nil {
			return err
		}
		if !updated {
			return NewError(ErrNotFound, "profile does not exist")
		}
		return tx.InsertAuditLog(ctx, entry)
	})
	if err != nil {
		return dbError(err, "failed to set profile role").
			WithUser(userID).
			WithActor(actorID)
	}

	s.changed(entry)
	return nil
}

func capabilityList(perms Permissions) string {
	granted := perms.Granted()
	names := make([]string, len(granted))
	for i, c := range granted {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
