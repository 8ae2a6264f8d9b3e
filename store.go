package pagekit

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// BunStore implements Store, plus the catalog and administrative queries used by
// Service, on top of a bun database handle (a *bun.DB, bun.Tx or bun.Conn).
type BunStore struct {
	db bun.IDB
}

// NewBunStore creates a store over db.
func NewBunStore(db bun.IDB) *BunStore {
	return &BunStore{db: db}
}

// ============================================================================
// RESOLVER READS
// ============================================================================

// FindPageByCode returns the page with the given code, or nil if there is none.
func (s *BunStore) FindPageByCode(ctx context.Context, code string) (*Page, error) {
	page := new(Page)
	err := s.db.NewSelect().Model(page).Where("code = ?", code).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbkit.WithErr1(err, "FindPageByCode").Err()
	}
	return page, nil
}

// ListUserRoleIDs returns the IDs of every role assigned to the user.
func (s *BunStore) ListUserRoleIDs(ctx context.Context, userID string) ([]int64, error) {
	var roleIDs []int64
	err := s.db.NewSelect().
		Model((*UserRole)(nil)).
		Column("role_id").
		Where("user_id = ?", userID).
		Scan(ctx, &roleIDs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbkit.WithErr1(err, "ListUserRoleIDs").Err()
	}
	return roleIDs, nil
}

// ListRolePermissions returns the rows for the page held by any of the roles.
func (s *BunStore) ListRolePermissions(ctx context.Context, pageID int64, roleIDs []int64) ([]RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var rows []RolePermission
	err := s.db.NewSelect().
		Model(&rows).
		Where("page_id = ?", pageID).
		Where("role_id IN (?)", bun.In(roleIDs)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbkit.WithErr1(err, "ListRolePermissions").Err()
	}
	return rows, nil
}

// ============================================================================
// CATALOG
// ============================================================================

// ListPages returns every page ordered by code.
func (s *BunStore) ListPages(ctx context.Context) ([]Page, error) {
	var pages []Page
	err := dbkit.WithErr1(s.db.NewSelect().Model(&pages).Order("code ASC").Scan(ctx), "ListPages").Err()
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// GetPage returns the page with the given ID, or nil if there is none.
func (s *BunStore) GetPage(ctx context.Context, id int64) (*Page, error) {
	page := new(Page)
	err := s.db.NewSelect().Model(page).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbkit.WithErr1(err, "GetPage").Err()
	}
	return page, nil
}

// InsertPage registers a page. It reports false when the code already exists.
func (s *BunStore) InsertPage(ctx context.Context, page *Page) (bool, error) {
	result, err := s.db.NewInsert().
		Model(page).
		On("CONFLICT (code) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err = dbkit.WithErr(result, err, "InsertPage").Err(); err != nil {
		return false, err
	}
	return affected(result)
}

// ListRoles returns every role ordered by name.
func (s *BunStore) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := dbkit.WithErr1(s.db.NewSelect().Model(&roles).Order("name ASC").Scan(ctx), "ListRoles").Err()
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns the role with the given ID, or nil if there is none.
func (s *BunStore) GetRole(ctx context.Context, id int64) (*Role, error) {
	role := new(Role)
	err := s.db.NewSelect().Model(role).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbkit.WithErr1(err, "GetRole").Err()
	}
	return role, nil
}

// InsertRole creates a role and fills in its ID.
func (s *BunStore) InsertRole(ctx context.Context, role *Role) error {
	result, err := s.db.NewInsert().Model(role).Returning("id").Exec(ctx)
	return dbkit.WithErr(result, err, "InsertRole").Err()
}

// ListRolePermissionsForRole returns every page grant of a role.
func (s *BunStore) ListRolePermissionsForRole(ctx context.Context, roleID int64) ([]RolePermission, error) {
	var rows []RolePermission
	err := s.db.NewSelect().Model(&rows).Where("role_id = ?", roleID).Order("page_id ASC").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, dbkit.WithErr1(err, "ListRolePermissionsForRole").Err()
	}
	return rows, nil
}

// ============================================================================
// ADMINISTRATIVE WRITES
// ============================================================================

// UpsertRolePermission creates or replaces the flags a role grants on a page.
func (s *BunStore) UpsertRolePermission(ctx context.Context, rp *RolePermission) error {
	result, err := s.db.NewInsert().
		Model(rp).
		On("CONFLICT (role_id, page_id) DO UPDATE").
		Set("can_view = EXCLUDED.can_view").
		Set("can_add = EXCLUDED.can_add").
		Set("can_edit = EXCLUDED.can_edit").
		Set("can_delete = EXCLUDED.can_delete").
		Set("can_print = EXCLUDED.can_print").
		Set("updated_at = current_timestamp").
		Returning("NULL").
		Exec(ctx)
	return dbkit.WithErr(result, err, "UpsertRolePermission").Err()
}

// InsertUserRole assigns a role to a user. It reports false when already assigned.
func (s *BunStore) InsertUserRole(ctx context.Context, userID string, roleID int64) (bool, error) {
	assignment := &UserRole{UserID: userID, RoleID: roleID}
	result, err := s.db.NewInsert().
		Model(assignment).
		On("CONFLICT (user_id, role_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err = dbkit.WithErr(result, err, "InsertUserRole").Err(); err != nil {
		return false, err
	}
	return affected(result)
}

// DeleteUserRole removes a role from a user. It reports false when it was not assigned.
func (s *BunStore) DeleteUserRole(ctx context.Context, userID string, roleID int64) (bool, error) {
	result, err := s.db.NewDelete().
		Model((*UserRole)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Exec(ctx)
	if err = dbkit.WithErr(result, err, "DeleteUserRole").Err(); err != nil {
		return false, err
	}
	return affected(result)
}

// GetProfile returns the user's profile, or nil if there is none.
func (s *BunStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	profile := new(Profile)
	err := s.db.NewSelect().Model(profile).Where("id = ?", userID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbkit.WithErr1(err, "GetProfile").Err()
	}
	return profile, nil
}

// ListProfiles returns every profile ordered by ID. A non-empty query keeps the
// profiles whose full name, email or role contains it, ignoring case.
func (s *BunStore) ListProfiles(ctx context.Context, query string) ([]Profile, error) {
	var profiles []Profile
	q := s.db.NewSelect().Model(&profiles)
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + likeEscaper.Replace(query) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("full_name ILIKE ?", pattern).
				WhereOr("email ILIKE ?", pattern).
				WhereOr("role ILIKE ?", pattern)
		})
	}
	if err := dbkit.WithErr1(q.Order("id ASC").Scan(ctx), "ListProfiles").Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// UpdateProfileRole sets the console role of a profile. It reports false when there is no profile.
func (s *BunStore) UpdateProfileRole(ctx context.Context, userID, role string) (bool, error) {
	result, err := s.db.NewUpdate().
		Model((*Profile)(nil)).
		Set("role = ?", role).
		Set("updated_at = current_timestamp").
		Where("id = ?", userID).
		Exec(ctx)
	if err = dbkit.WithErr(result, err, "UpdateProfileRole").Err(); err != nil {
		return false, err
	}
	return affected(result)
}

// InsertAuditLog appends an audit entry.
func (s *BunStore) InsertAuditLog(ctx context.Context, entry *AuditEntry) error {
	result, err := s.db.NewInsert().Model(entry.ToModel()).Returning("NULL").Exec(ctx)
	return dbkit.WithErr(result, err, "InsertAuditLog").Err()
}

// ListAuditLog retrieves audit log entries with optional filters, newest first.
func (s *BunStore) ListAuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleAuditLog, error) {
	var logs []RoleAuditLog
	q := s.db.NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.TargetUserID != "" {
		q = q.Where("target_user_id = ?", filter.TargetUserID)
	}
	if filter.RoleID != 0 {
		q = q.Where("role_id = ?", filter.RoleID)
	}
	if filter.PageID != 0 {
		q = q.Where("page_id = ?", filter.PageID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("timestamp DESC")
	if err := dbkit.WithErr1(q.Scan(ctx), "ListAuditLog").Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// RunInTx runs fn against a store bound to a single transaction.
func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *BunStore) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, NewBunStore(tx))
	})
}

func affected(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
