package pagekit

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// memoryStore is an in-memory Store with injectable failures and latency.
type memoryStore struct {
	mu        sync.Mutex
	pages     map[string]*Page
	userRoles map[string][]int64
	grants    []RolePermission

	pageErr  error
	rolesErr error
	permsErr error
	delay    time.Duration

	pageCalls  atomic.Int32
	rolesCalls atomic.Int32
	permsCalls atomic.Int32
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		pages:     make(map[string]*Page),
		userRoles: make(map[string][]int64),
	}
}

func (m *memoryStore) addPage(id int64, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[code] = &Page{ID: id, Code: code}
}

func (m *memoryStore) assign(userID string, roleIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRoles[userID] = append(m.userRoles[userID], roleIDs...)
}

func (m *memoryStore) grant(roleID, pageID int64, perms Permissions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants = append(m.grants, RolePermission{
		RoleID:    roleID,
		PageID:    pageID,
		CanView:   perms.CanView,
		CanAdd:    perms.CanAdd,
		CanEdit:   perms.CanEdit,
		CanDelete: perms.CanDelete,
		CanPrint:  perms.CanPrint,
	})
}

func (m *memoryStore) totalCalls() int32 {
	return m.pageCalls.Load() + m.rolesCalls.Load() + m.permsCalls.Load()
}

func (m *memoryStore) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *memoryStore) FindPageByCode(ctx context.Context, code string) (*Page, error) {
	m.pageCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.pageErr != nil {
		return nil, m.pageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[code], nil
}

func (m *memoryStore) ListUserRoleIDs(ctx context.Context, userID string) ([]int64, error) {
	m.rolesCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.rolesErr != nil {
		return nil, m.rolesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.userRoles[userID]...), nil
}

func (m *memoryStore) ListRolePermissions(ctx context.Context, pageID int64, roleIDs []int64) ([]RolePermission, error) {
	m.permsCalls.Add(1)
	if m.permsErr != nil {
		return nil, m.permsErr
	}
	held := make(map[int64]bool, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []RolePermission
	for _, g := range m.grants {
		if g.PageID == pageID && held[g.RoleID] {
			rows = append(rows, g)
		}
	}
	return rows, nil
}

// memoryCache is a PermissionCache backed by a map.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]Permissions
	getErr  error
	setErr  error
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]Permissions)}
}

func (c *memoryCache) Get(_ context.Context, userID, pageCode string) (Permissions, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return NoPermissions, false, c.getErr
	}
	perms, ok := c.entries[cacheKey(userID, pageCode)]
	return perms, ok, nil
}

func (c *memoryCache) Set(_ context.Context, userID, pageCode string, perms Permissions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[cacheKey(userID, pageCode)] = perms
	return nil
}

func (c *memoryCache) InvalidateUser(context.Context, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Permissions)
	return nil
}

func (c *memoryCache) InvalidatePage(context.Context, string) error {
	return c.InvalidateUser(context.Background(), "")
}

func (c *memoryCache) InvalidateAll(context.Context) error {
	return c.InvalidateUser(context.Background(), "")
}

// newMockDB returns a bun handle over sqlmock using the PostgreSQL dialect.
func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// sqlContains matches a query containing the literal fragment.
func sqlContains(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// adminContext returns a context whose actor is an administrator by token claim.
func adminContext(actorID string) context.Context {
	ctx := WithActorID(context.Background(), actorID)
	return WithIdentity(ctx, &Identity{UserID: actorID, Admin: true})
}
