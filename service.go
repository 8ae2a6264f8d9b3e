package pagekit

import (
	"github.com/fernandezvara/dbkit"
	"github.com/go-playground/validator/v10"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides permission resolution and the administration of roles,
// page grants and console profiles.
//
// Error Handling:
// Resolution failures are *Error values wrapping ErrLookupFailed and must not be
// read as "no access". Administrative failures wrap ErrForbidden, ErrInvalidInput,
// ErrNotFound or ErrDatabaseError; the database cause stays reachable through
// errors.As, so dbkit's classification helpers keep working.
//
// Example error handling:
//
//	perms, err := service.Resolve(ctx, userID, "projects")
//	if pagekit.IsLookupFailure(err) {
//	    // access unknown: show an error, not an empty page
//	}
//
//	err = service.AssignRole(ctx, targetUserID, roleID)
//	if errors.Is(err, pagekit.ErrRoleAlreadyAssigned) {
//	    // nothing to do
//	}
type Service struct {
	db       bun.IDB
	kit      *dbkit.DBKit
	store    *BunStore
	resolver *Resolver
	cache    PermissionCache
	logger   *zap.Logger
	metrics  *Metrics
	validate *validator.Validate
}

// NewService creates a new pagekit service over a bun database handle.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := pagekit.NewService(db.Bun(), pagekit.WithLogger(logger))
func NewService(db bun.IDB, opts ...Option) *Service {
	o := buildOptions(opts)
	store := NewBunStore(db)
	return &Service{
		db:       db,
		store:    store,
		resolver: newResolver(store, o),
		cache:    o.cache,
		logger:   o.logger,
		metrics:  o.metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// NewServiceFromDBKit creates a service that can also report health, pool
// statistics and run migrations through the dbkit connection.
func NewServiceFromDBKit(db *dbkit.DBKit, opts ...Option) *Service {
	s := NewService(db.Bun(), opts...)
	s.kit = db
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *BunStore {
	return s.store
}

// Resolver returns the permission resolver used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}
