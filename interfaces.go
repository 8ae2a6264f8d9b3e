package pagekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Store is the relational store the resolver reads from.
// "No matching rows" is a valid empty result and must not be reported as an error.
type Store interface {
	// FindPageByCode returns the page with the given code, or nil if there is none.
	FindPageByCode(ctx context.Context, code string) (*Page, error)
	// ListUserRoleIDs returns the IDs of every role assigned to the user.
	ListUserRoleIDs(ctx context.Context, userID string) ([]int64, error)
	// ListRolePermissions returns the rows for the page held by any of the roles.
	ListRolePermissions(ctx context.Context, pageID int64, roleIDs []int64) ([]RolePermission, error)
}

// IdentityProvider yields the currently authenticated identity.
// A nil identity with a nil error means nobody is signed in.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// PermissionCache memoizes resolved permissions per (user, page).
type PermissionCache interface {
	Get(ctx context.Context, userID, pageCode string) (Permissions, bool, error)
	Set(ctx context.Context, userID, pageCode string, perms Permissions) error
	InvalidateUser(ctx context.Context, userID string) error
	InvalidatePage(ctx context.Context, pageCode string) error
	InvalidateAll(ctx context.Context) error
}

// PermissionChecker is the read side of Service, used by middleware and handlers.
type PermissionChecker interface {
	Resolve(ctx context.Context, userID, pageCode string) (Permissions, error)
}

// MigrationManager defines the migration management interface
type MigrationManager interface {
	Migrations() []dbkit.Migration
	RunMigrations(ctx context.Context) ([]string, error)
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	IsHealthy(ctx context.Context) bool
	Ping(ctx context.Context) error
	GetPoolStats() dbkit.PoolStats
}

// PoolManager defines the connection pool management interface
type PoolManager interface {
	ConfigureConnectionPool(config PoolConfig) error
	ResetConnectionPool() error
}

// ResolutionMonitor defines the resolution monitoring interface
type ResolutionMonitor interface {
	GetResolutionMetrics() ResolutionMetrics
	ResetResolutionMetrics()
	IsResolutionHealthy() bool
}

var (
	_ Store             = (*BunStore)(nil)
	_ PermissionCache   = (*RedisCache)(nil)
	_ PermissionChecker = (*Service)(nil)
	_ PermissionChecker = (*Resolver)(nil)
	_ IdentityProvider  = (*TokenIdentity)(nil)
	_ IdentityProvider  = ContextIdentity{}
	_ IdentityProvider  = IdentityFunc(nil)
	_ MigrationManager  = (*MigrationService)(nil)
	_ HealthMonitor     = (*HealthService)(nil)
	_ PoolManager       = (*PoolService)(nil)
	_ ResolutionMonitor = (*Service)(nil)
	_ ResolutionMonitor = (*Resolver)(nil)
)
