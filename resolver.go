package pagekit

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver computes the effective permissions of a user on a page by OR-ing the
// flags of every role the user holds. It is safe for concurrent use and keeps no
// state between calls other than statistics and the optional cache.
type Resolver struct {
	store   Store
	cache   PermissionCache
	logger  *zap.Logger
	metrics *Metrics
	monitor *resolutionMonitor
	timeout time.Duration
}

// NewResolver creates a Resolver reading from store.
//
// Example:
//
//	resolver := pagekit.NewResolver(pagekit.NewBunStore(db),
//	    pagekit.WithTimeout(2*time.Second),
//	    pagekit.WithLogger(logger),
//	)
//	perms, err := resolver.Resolve(ctx, userID, "projects")
func NewResolver(store Store, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return newResolver(store, o)
}

func newResolver(store Store, o options) *Resolver {
	return &Resolver{
		store:   store,
		cache:   o.cache,
		logger:  o.logger,
		metrics: o.metrics,
		monitor: newResolutionMonitor(),
		timeout: o.timeout,
	}
}

// Resolve returns the effective permissions of userID on the page named pageCode.
//
// An empty userID (nobody signed in), an unknown page, a user without roles, or a
// page without matching grants all yield NoPermissions and a nil error. Any failed
// lookup, including a timeout or a cancelled ctx, yields NoPermissions and an error
// satisfying IsLookupFailure; callers must not read that as "no access".
func (r *Resolver) Resolve(ctx context.Context, userID, pageCode string) (Permissions, error) {
	if strings.TrimSpace(pageCode) == "" {
		return NoPermissions, NewError(ErrInvalidPage, "page code cannot be empty")
	}

	start := time.Now()
	perms, outcome, err := r.resolve(ctx, userID, pageCode)
	r.observe(outcome, time.Since(start))

	if err != nil {
		r.logger.Warn("permission resolution failed", append(errorFields(err), zap.Error(err))...)
		return NoPermissions, err
	}

	r.logger.Debug("permissions resolved",
		zap.String("user_id", userID),
		zap.String("page", pageCode),
		zap.String("outcome", string(outcome)),
		zap.Any("granted", perms.Granted()))
	return perms, nil
}

// ResolveCurrent resolves permissions for whoever idp reports as signed in.
// A provider failure is a lookup failure; no identity is the unauthenticated case.
func (r *Resolver) ResolveCurrent(ctx context.Context, idp IdentityProvider, pageCode string) (Permissions, error) {
	if strings.TrimSpace(pageCode) == "" {
		return NoPermissions, NewError(ErrInvalidPage, "page code cannot be empty")
	}

	ident, err := idp.CurrentIdentity(ctx)
	if err != nil {
		r.observe(OutcomeFailed, 0)
		return NoPermissions, lookupError(StepIdentity, err).WithPage(pageCode)
	}
	if ident == nil {
		return r.Resolve(ctx, "", pageCode)
	}
	return r.Resolve(ctx, ident.UserID, pageCode)
}

func (r *Resolver) resolve(ctx context.Context, userID, pageCode string) (Permissions, Outcome, error) {
	if userID == "" {
		return NoPermissions, OutcomeUnauthenticated, nil
	}
	if err := ctx.Err(); err != nil {
		return NoPermissions, OutcomeFailed, lookupError(StepPage, err).WithPage(pageCode).WithUser(userID)
	}

	if perms, ok := r.cached(ctx, userID, pageCode); ok {
		return perms, OutcomeCached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// The page and the user's roles do not depend on each other.
	var (
		page    *Page
		roleIDs []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.store.FindPageByCode(gctx, pageCode)
		if err != nil {
			return lookupError(StepPage, err)
		}
		page = p
		return nil
	})
	g.Go(func() error {
		ids, err := r.store.ListUserRoleIDs(gctx, userID)
		if err != nil {
			return lookupError(StepRoles, err)
		}
		roleIDs = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return NoPermissions, OutcomeFailed, r.annotate(err, pageCode, userID)
	}

	if page == nil {
		r.remember(ctx, userID, pageCode, NoPermissions)
		return NoPermissions, OutcomePageNotFound, nil
	}
	if len(roleIDs) == 0 {
		r.remember(ctx, userID, pageCode, NoPermissions)
		return NoPermissions, OutcomeNoRoles, nil
	}

	rows, err := r.store.ListRolePermissions(ctx, page.ID, roleIDs)
	if err != nil {
		return NoPermissions, OutcomeFailed, lookupError(StepPermissions, err).WithPage(pageCode).WithUser(userID)
	}
	// The caller may have gone away while the last query was in flight.
	if err := ctx.Err(); err != nil {
		return NoPermissions, OutcomeFailed, lookupError(StepPermissions, err).WithPage(pageCode).WithUser(userID)
	}

	perms := MergePermissions(rows...)
	r.remember(ctx, userID, pageCode, perms)
	return perms, OutcomeResolved, nil
}

func (r *Resolver) annotate(err error, pageCode, userID string) error {
	if e, ok := err.(*Error); ok {
		return e.WithPage(pageCode).WithUser(userID)
	}
	return lookupError(StepPage, err).WithPage(pageCode).WithUser(userID)
}

func (r *Resolver) cached(ctx context.Context, userID, pageCode string) (Permissions, bool) {
	if r.cache == nil {
		return NoPermissions, false
	}
	perms, ok, err := r.cache.Get(ctx, userID, pageCode)
	if err != nil {
		r.metrics.observeCacheFailure()
		r.logger.Warn("permission cache read failed",
			zap.String("user_id", userID),
			zap.String("page", pageCode),
			zap.Error(err))
		return NoPermissions, false
	}
	return perms, ok
}

func (r *Resolver) remember(ctx context.Context, userID, pageCode string, perms Permissions) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, userID, pageCode, perms); err != nil {
		r.metrics.observeCacheFailure()
		r.logger.Warn("permission cache write failed",
			zap.String("user_id", userID),
			zap.String("page", pageCode),
			zap.Error(err))
	}
}

func (r *Resolver) observe(outcome Outcome, d time.Duration) {
	r.monitor.record(d, outcome)
	r.metrics.observeResolution(outcome, d)
}

// GetResolutionMetrics returns the current resolution statistics.
func (r *Resolver) GetResolutionMetrics() ResolutionMetrics {
	return r.monitor.snapshot()
}

// ResetResolutionMetrics resets all resolution statistics.
func (r *Resolver) ResetResolutionMetrics() {
	r.monitor.reset()
}

// IsResolutionHealthy checks that failures stay under 5% and resolutions average under a second.
func (r *Resolver) IsResolutionHealthy() bool {
	return r.monitor.healthy()
}

// errorFields turns the context of a pagekit error into log fields.
func errorFields(err error) []zap.Field {
	var pkErr *Error
	if !errors.As(err, &pkErr) {
		return nil
	}
	fields := pkErr.Fields()
	out := make([]zap.Field, 0, len(fields))
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		out = append(out, zap.String(key, fields[key]))
	}
	return out
}
