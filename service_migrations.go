package pagekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
	"go.uber.org/zap"
)

// MigrationService provides migration management functionality as an extension to Service
type MigrationService struct {
	*Service
}

// NewMigrationService creates a new migration service extension
func NewMigrationService(service *Service) *MigrationService {
	return &MigrationService{Service: service}
}

// Migrations returns all database migrations required for pagekit.
// The profiles table is normally owned by the auth service; it is created only if missing.
func (ms *MigrationService) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "pagekit-001",
			Description: "Create pages table",
			SQL: `
                CREATE TABLE IF NOT EXISTS pages (
                    id BIGSERIAL PRIMARY KEY,
                    code TEXT NOT NULL UNIQUE,
                    name TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "pagekit-002",
			Description: "Create roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS roles (
                    id BIGSERIAL PRIMARY KEY,
                    name TEXT NOT NULL UNIQUE,
                    description TEXT NOT NULL DEFAULT '',
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "pagekit-003",
			Description: "Create user_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS user_roles (
                    user_id TEXT NOT NULL,
                    role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
                    created_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    PRIMARY KEY (user_id, role_id)
                )`,
		},
		{
			ID:          "pagekit-004",
			Description: "Create role_permissions table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_permissions (
                    id BIGSERIAL PRIMARY KEY,
                    role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
                    page_id BIGINT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
                    can_view BOOLEAN NOT NULL DEFAULT false,
                    can_add BOOLEAN NOT NULL DEFAULT false,
                    can_edit BOOLEAN NOT NULL DEFAULT false,
                    can_delete BOOLEAN NOT NULL DEFAULT false,
                    can_print BOOLEAN NOT NULL DEFAULT false,
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    UNIQUE (role_id, page_id)
                )`,
		},
		{
			ID:          "pagekit-005",
			Description: "Create profiles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS profiles (
                    id TEXT PRIMARY KEY,
                    email TEXT,
                    full_name TEXT,
                    role TEXT NOT NULL DEFAULT 'user',
                    updated_at TIMESTAMPTZ NOT NULL DEFAULT current_timestamp
                )`,
		},
		{
			ID:          "pagekit-006",
			Description: "Create role_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_audit_log (
                    id BIGSERIAL PRIMARY KEY,
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    target_user_id TEXT,
                    role_id BIGINT,
                    page_id BIGINT,
                    detail TEXT,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT
                )`,
		},
		{
			ID:          "pagekit-007",
			Description: "Index lookups used by permission resolution",
			SQL: `
                CREATE INDEX IF NOT EXISTS idx_user_roles_user ON user_roles (user_id);
                CREATE INDEX IF NOT EXISTS idx_role_permissions_page ON role_permissions (page_id);
                CREATE INDEX IF NOT EXISTS idx_role_audit_log_timestamp ON role_audit_log (timestamp DESC)`,
		},
	}
}

// RunMigrations applies pending migrations and returns the IDs applied by this call.
// It requires a service created with NewServiceFromDBKit.
func (ms *MigrationService) RunMigrations(ctx context.Context) ([]string, error) {
	if ms.kit == nil {
		return nil, NewError(ErrDatabaseError, "migrations require a dbkit.DBKit instance")
	}

	result, err := ms.kit.Migrate(ctx, ms.Migrations())
	if err != nil {
		return nil, NewError(ErrDatabaseError, "failed to run migrations").WithCause(err)
	}

	applied := make([]string, 0, len(result.Applied))
	for _, m := range result.Applied {
		applied = append(applied, m.ID)
	}
	ms.logger.Info("migrations applied", zap.Strings("ids", applied))
	return applied, nil
}
