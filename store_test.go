package pagekit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBunStoreFindPageByCode tests the page lookup
func TestBunStoreFindPageByCode(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "pages"`) + ".*" + sqlContains(`code = 'projects'`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at"}).
				AddRow(7, "projects", "Projects", time.Now()))

		page, err := NewBunStore(db).FindPageByCode(ctx, "projects")
		require.NoError(t, err)
		require.NotNil(t, page)
		assert.Equal(t, int64(7), page.ID)
		assert.Equal(t, "projects", page.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row is not an error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "pages"`)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "created_at"}))

		page, err := NewBunStore(db).FindPageByCode(ctx, "unknown_page")
		require.NoError(t, err)
		assert.Nil(t, page)
	})

	t.Run("driver failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		connErr := errors.New("connection refused")
		mock.ExpectQuery(sqlContains(`FROM "pages"`)).WillReturnError(connErr)

		page, err := NewBunStore(db).FindPageByCode(ctx, "projects")
		require.Error(t, err)
		assert.Nil(t, page)
	})
}

// TestBunStoreListUserRoleIDs tests role enumeration
func TestBunStoreListUserRoleIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("roles", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "user_roles"`) + ".*" + sqlContains(`user_id = 'alice'`)).
			WillReturnRows(sqlmock.NewRows([]string{"role_id"}).AddRow(1).AddRow(2))

		ids, err := NewBunStore(db).ListUserRoleIDs(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "user_roles"`)).
			WillReturnRows(sqlmock.NewRows([]string{"role_id"}))

		ids, err := NewBunStore(db).ListUserRoleIDs(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "user_roles"`)).WillReturnError(errors.New("timeout"))

		_, err := NewBunStore(db).ListUserRoleIDs(ctx, "alice")
		assert.Error(t, err)
	})
}

// TestBunStoreListRolePermissions tests the aggregation query
func TestBunStoreListRolePermissions(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by page and roles", func(t *testing.T) {
		db, mock := newMockDB(t)
		columns := []string{"id", "role_id", "page_id", "can_view", "can_add", "can_edit", "can_delete", "can_print", "updated_at"}
		mock.ExpectQuery(sqlContains(`FROM "role_permissions"`) + ".*" +
			sqlContains(`page_id = 7`) + ".*" + sqlContains(`role_id IN (1, 2)`)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(10, 1, 7, true, true, false, false, true, time.Now()).
				AddRow(11, 2, 7, false, false, true, false, false, time.Now()))

		rows, err := NewBunStore(db).ListRolePermissions(ctx, 7, []int64{1, 2})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, Permissions{CanView: true, CanAdd: true, CanEdit: true, CanPrint: true}, MergePermissions(rows...))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no roles issues no query", func(t *testing.T) {
		db, mock := newMockDB(t)

		rows, err := NewBunStore(db).ListRolePermissions(ctx, 7, nil)
		require.NoError(t, err)
		assert.Nil(t, rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestBunStoreUserRoleWrites tests assignment and removal reporting
func TestBunStoreUserRoleWrites(t *testing.T) {
	ctx := context.Background()

	t.Run("insert", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(sqlContains(`INSERT INTO "user_roles"`) + ".*" + sqlContains(`ON CONFLICT (user_id, role_id) DO NOTHING`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(sqlContains(`INSERT INTO "user_roles"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		store := NewBunStore(db)
		inserted, err := store.InsertUserRole(ctx, "alice", 1)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = store.InsertUserRole(ctx, "alice", 1)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(sqlContains(`DELETE FROM "user_roles"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		deleted, err := NewBunStore(db).DeleteUserRole(ctx, "alice", 1)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

// TestBunStoreUpsertRolePermission tests that grants replace the previous flags
func TestBunStoreUpsertRolePermission(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(sqlContains(`INSERT INTO "role_permissions"`) + ".*" +
		sqlContains(`ON CONFLICT (role_id, page_id) DO UPDATE`) + ".*" +
		sqlContains(`can_edit = EXCLUDED.can_edit`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewBunStore(db).UpsertRolePermission(context.Background(), &RolePermission{RoleID: 1, PageID: 7, CanEdit: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestBunStoreListAuditLog tests audit filters and the default limit
func TestBunStoreListAuditLog(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(sqlContains(`FROM "role_audit_log"`) + ".*" +
		sqlContains(`actor_id = 'admin-1'`) + ".*" +
		sqlContains(`action = 'role_assigned'`) + ".*" +
		sqlContains(`LIMIT 100`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "actor_id", "action", "target_user_id"}).
			AddRow(1, "admin-1", "role_assigned", "alice"))

	filter := AuditLogFilter{}.WithActor("admin-1").WithAction(AuditActionRoleAssigned)
	logs, err := NewBunStore(db).ListAuditLog(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "alice", logs[0].TargetUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestBunStoreListProfiles tests the profile listing and its search
func TestBunStoreListProfiles(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "email", "full_name", "role", "updated_at"}

	t.Run("all profiles", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "profiles" AS "pr" ORDER BY id ASC`)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(adminID, "root@example.com", "Root", "admin", time.Now()).
				AddRow(targetID, "ana@example.com", "Ana", "editor", time.Now()))

		profiles, err := NewBunStore(db).ListProfiles(ctx, "  ")
		require.NoError(t, err)
		require.Len(t, profiles, 2)
		assert.True(t, profiles[0].IsAdmin())
		assert.Equal(t, "Ana", profiles[1].FullName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("search", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "profiles"`) + ".*" +
			sqlContains(`full_name ILIKE '%ana%'`) + ".*" +
			sqlContains(`email ILIKE '%ana%'`) + ".*" +
			sqlContains(`role ILIKE '%ana%'`) + ".*" +
			sqlContains(`ORDER BY id ASC`)).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(targetID, "ana@example.com", "Ana", "editor", time.Now()))

		profiles, err := NewBunStore(db).ListProfiles(ctx, "ana")
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(sqlContains(`FROM "profiles"`)).WillReturnError(errors.New("connection refused"))

		_, err := NewBunStore(db).ListProfiles(ctx, "")
		assert.Error(t, err)
	})
}

// TestLikeEscaper tests that search text is matched literally
func TestLikeEscaper(t *testing.T) {
	assert.Equal(t, `50\% off\_now`, likeEscaper.Replace(`50% off_now`))
	assert.Equal(t, `a\\b`, likeEscaper.Replace(`a\b`))
}

// TestBunStoreRunInTx tests commit and rollback around a unit of work
func TestBunStoreRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(sqlContains(`INSERT INTO "role_audit_log"`)).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := NewBunStore(db).RunInTx(ctx, func(ctx context.Context, tx *BunStore) error {
			return tx.InsertAuditLog(ctx, &AuditEntry{ActorID: "admin-1", Action: AuditActionRoleCreated})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := NewBunStore(db).RunInTx(ctx, func(context.Context, *BunStore) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
