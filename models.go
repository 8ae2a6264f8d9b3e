package pagekit

import (
	"time"

	"github.com/uptrace/bun"
)

// Page is a gated area of the console, identified by a unique code such as "projects".
type Page struct {
	bun.BaseModel `bun:"table:pages,alias:p"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	Name      string    `bun:"name" json:"name"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Role is a named bundle of per-page capability flags.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,notnull,unique" json:"name"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// UserRole assigns a role to a user. A user can hold many roles (permissions are UNION).
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UserID    string    `bun:"user_id,pk" json:"user_id"`
	RoleID    int64     `bun:"role_id,pk" json:"role_id"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// RolePermission holds the capability flags a role grants on a page.
// There is at most one row per (role, page).
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	RoleID    int64     `bun:"role_id,notnull" json:"role_id"`
	PageID    int64     `bun:"page_id,notnull" json:"page_id"`
	CanView   bool      `bun:"can_view,notnull" json:"can_view"`
	CanAdd    bool      `bun:"can_add,notnull" json:"can_add"`
	CanEdit   bool      `bun:"can_edit,notnull" json:"can_edit"`
	CanDelete bool      `bun:"can_delete,notnull" json:"can_delete"`
	CanPrint  bool      `bun:"can_print,notnull" json:"can_print"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Flags returns the capability flags of the row.
func (rp RolePermission) Flags() Permissions {
	return Permissions{
		CanView:   rp.CanView,
		CanAdd:    rp.CanAdd,
		CanEdit:   rp.CanEdit,
		CanDelete: rp.CanDelete,
		CanPrint:  rp.CanPrint,
	}
}

// Profile is the per-user row the console keeps next to the identity provider's account.
// Role is the coarse console role ("admin", "editor", "user").
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:pr"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email" json:"email"`
	FullName  string    `bun:"full_name" json:"full_name"`
	Role      string    `bun:"role" json:"role"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Console profile roles.
const (
	ProfileRoleAdmin  = "admin"
	ProfileRoleEditor = "editor"
	ProfileRoleUser   = "user"
)

// IsAdmin reports whether the profile carries the admin console role.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == ProfileRoleAdmin
}

// RoleAuditLog records every administrative change to roles and permissions.
type RoleAuditLog struct {
	bun.BaseModel `bun:"table:role_audit_log,alias:ral"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`

	// Who performed the action
	ActorID string `bun:"actor_id,notnull" json:"actor_id"`

	Action string `bun:"action,notnull" json:"action"`

	// Target of the action; unused columns stay empty/zero
	TargetUserID string `bun:"target_user_id" json:"target_user_id,omitempty"`
	RoleID       int64  `bun:"role_id" json:"role_id,omitempty"`
	PageID       int64  `bun:"page_id" json:"page_id,omitempty"`
	Detail       string `bun:"detail" json:"detail,omitempty"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address" json:"ip_address,omitempty"`
	UserAgent string `bun:"user_agent" json:"user_agent,omitempty"`
	RequestID string `bun:"request_id" json:"request_id,omitempty"`
}

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionRoleAssigned   AuditAction = "role_assigned"
	AuditActionRoleRevoked    AuditAction = "role_revoked"
	AuditActionPermissionSet  AuditAction = "permission_set"
	AuditActionProfileRoleSet AuditAction = "profile_role_set"
	AuditActionRoleCreated    AuditAction = "role_created"
	AuditActionPageRegistered AuditAction = "page_registered"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID      string
	Action       AuditAction
	TargetUserID string
	RoleID       int64
	PageID       int64
	Detail       string
	IPAddress    string
	UserAgent    string
	RequestID    string
}

// ToModel converts an AuditEntry to a RoleAuditLog model.
func (e *AuditEntry) ToModel() *RoleAuditLog {
	return &RoleAuditLog{
		ActorID:      e.ActorID,
		Action:       string(e.Action),
		TargetUserID: e.TargetUserID,
		RoleID:       e.RoleID,
		PageID:       e.PageID,
		Detail:       e.Detail,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		RequestID:    e.RequestID,
		Timestamp:    time.Now(),
	}
}
