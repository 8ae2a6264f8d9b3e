package pagekit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMigrations tests the migration list
func TestMigrations(t *testing.T) {
	db, _ := newMockDB(t)
	migrations := NewMigrationService(NewService(db)).Migrations()
	require.NotEmpty(t, migrations)

	seen := make(map[string]bool)
	for _, m := range migrations {
		assert.False(t, seen[m.ID], "duplicate migration %s", m.ID)
		seen[m.ID] = true
		assert.True(t, strings.HasPrefix(m.ID, "pagekit-"))
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
	}

	for _, table := range []string{"pages", "roles", "user_roles", "role_permissions", "profiles", "role_audit_log"} {
		found := false
		for _, m := range migrations {
			if strings.Contains(m.SQL, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
			}
		}
		assert.True(t, found, "no migration creates %s", table)
	}
}

// TestRunMigrationsRequiresDBKit tests that a plain bun handle cannot migrate
func TestRunMigrationsRequiresDBKit(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := NewMigrationService(NewService(db)).RunMigrations(context.Background())
	assert.ErrorIs(t, err, ErrDatabaseError)
}

// TestPoolServiceRequiresDBKit tests pool configuration without a dbkit connection
func TestPoolServiceRequiresDBKit(t *testing.T) {
	db, _ := newMockDB(t)
	ps := NewPoolService(NewService(db))
	assert.ErrorIs(t, ps.ConfigureConnectionPool(DefaultPoolConfig()), ErrDatabaseError)
	assert.ErrorIs(t, ps.ResetConnectionPool(), ErrDatabaseError)
}

// TestHealthServiceWithoutDBKit tests the ping fallback
func TestHealthServiceWithoutDBKit(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`SELECT 1`)).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		status := NewHealthService(NewService(db)).Health(context.Background())
		assert.True(t, status.Healthy)
		assert.Contains(t, status.Error, "Limited health check")
	})

	t.Run("unreachable", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`SELECT 1`)).WillReturnError(errors.New("connection refused"))

		hs := NewHealthService(NewService(db))
		assert.False(t, hs.IsHealthy(context.Background()))
		assert.Zero(t, hs.GetPoolStats())
	})
}

// TestServiceTransaction tests the public transaction helper
func TestServiceTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(sqlContains(`INSERT INTO "user_roles"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlContains(`INSERT INTO "role_permissions"`)).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := NewService(db).Transaction(context.Background(), func(ctx context.Context, tx *BunStore) error {
		if _, err := tx.InsertUserRole(ctx, targetID, 1); err != nil {
			return err
		}
		return tx.UpsertRolePermission(ctx, &RolePermission{RoleID: 1, PageID: 99})
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestGetRolePermissions tests listing a role's grants
func TestGetRolePermissions(t *testing.T) {
	t.Run("listed", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "roles"`)).WillReturnRows(roleRows(1, "editor"))
		mock.ExpectQuery(sqlContains(`FROM "role_permissions"`) + ".*" + sqlContains(`role_id = 1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "role_id", "page_id", "can_view"}).
				AddRow(1, 1, 7, true).
				AddRow(2, 1, 8, false))

		rows, err := NewService(db).GetRolePermissions(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].Flags().CanView)
	})

	t.Run("unknown role", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "roles"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at"}))

		_, err := NewService(db).GetRolePermissions(context.Background(), 1)
		assert.True(t, IsNotFound(err))
	})
}

// TestServiceIsAdmin tests both sources of the admin flag
func TestServiceIsAdmin(t *testing.T) {
	db, mock := newMockDB(t)
	service := NewService(db)

	admin, err := service.IsAdmin(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, admin)

	admin, err = service.IsAdmin(context.Background(), &Identity{UserID: adminID, Admin: true})
	require.NoError(t, err)
	assert.True(t, admin)

	mock.ExpectQuery(sqlContains(`FROM "profiles"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "role"}).AddRow(targetID, "admin"))
	admin, err = service.IsAdmin(context.Background(), &Identity{UserID: targetID})
	require.NoError(t, err)
	assert.True(t, admin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestMetricsNilSafe tests that a nil *Metrics records nothing without panicking
func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeResolution(OutcomeResolved, time.Millisecond)
		m.observeCacheFailure()
		m.observeAdminChange(AuditActionRoleAssigned)
	})
}

// TestMetricsResolutions tests the Prometheus counters fed by the resolver
func TestMetricsResolutions(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	store := consoleStore()
	store.assign("alice", editorRole)
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	resolver := NewResolver(store, WithMetrics(metrics), WithCache(cache))

	_, _ = resolver.Resolve(context.Background(), "alice", "projects")
	_, _ = resolver.Resolve(context.Background(), "", "projects")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.resolutions.WithLabelValues(string(OutcomeResolved))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.resolutions.WithLabelValues(string(OutcomeUnauthenticated))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheFailures))
}

// TestAuditLogFilterBuilders tests the chained filter setters
func TestAuditLogFilterBuilders(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	filter := NewAuditLogFilter().
		WithActor(adminID).
		WithTargetUser(targetID).
		WithRole(3).
		WithPage(7).
		WithAction(AuditActionPermissionSet).
		WithTimeRange(since, until).
		WithPagination(20, 40)

	assert.Equal(t, AuditLogFilter{
		ActorID:      adminID,
		TargetUserID: targetID,
		RoleID:       3,
		PageID:       7,
		Action:       "permission_set",
		Since:        since,
		Until:        until,
		Limit:        20,
		Offset:       40,
	}, filter)
	assert.Equal(t, DefaultAuditLimit, NewAuditLogFilter().Limit)
}
