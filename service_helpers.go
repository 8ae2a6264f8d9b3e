package pagekit

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// requireAdmin returns the actor of ctx if it is a console administrator.
func (s *Service) requireAdmin(ctx context.Context) (string, error) {
	actorID := GetActorID(ctx)
	if actorID == "" {
		return "", NewError(ErrNoActorID, "actor ID required for administrative changes")
	}

	ident := GetIdentity(ctx)
	if ident == nil || ident.UserID != actorID {
		ident = &Identity{UserID: actorID}
	}

	admin, err := s.IsAdmin(ctx, ident)
	if err != nil {
		return "", err
	}
	if !admin {
		return "", NewError(ErrForbidden, "administrator role required").WithActor(actorID)
	}
	return actorID, nil
}

// newAuditEntry fills the request metadata of an audit entry from ctx.
func newAuditEntry(ctx context.Context, actorID string, action AuditAction) *AuditEntry {
	audit := GetAuditContext(ctx)
	return &AuditEntry{
		ActorID:   actorID,
		Action:    action,
		IPAddress: audit.IPAddress,
		UserAgent: audit.UserAgent,
		RequestID: audit.RequestID,
	}
}

// changed records a committed administrative change.
func (s *Service) changed(entry *AuditEntry) {
	s.metrics.observeAdminChange(entry.Action)
	s.logger.Info("administrative change",
		zap.String("action", string(entry.Action)),
		zap.String("actor_id", entry.ActorID),
		zap.String("target_user_id", entry.TargetUserID),
		zap.Int64("role_id", entry.RoleID),
		zap.Int64("page_id", entry.PageID),
		zap.String("request_id", entry.RequestID))
}

// invalidateUser drops cached permissions of a user. Stale entries expire with the
// cache TTL, so a failure is logged rather than returned.
func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.metrics.observeCacheFailure()
		s.logger.Warn("permission cache invalidation failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// invalidatePage drops cached permissions of every user on a page.
func (s *Service) invalidatePage(ctx context.Context, pageCode string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePage(ctx, pageCode); err != nil {
		s.metrics.observeCacheFailure()
		s.logger.Warn("permission cache invalidation failed",
			zap.String("page", pageCode),
			zap.Error(err))
	}
}

// validationError converts validator failures into ErrInvalidInput.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		if field == "" {
			field = "value"
		}
		return NewError(ErrInvalidInput, field+" failed '"+fe.Tag()+"' validation").WithCause(err)
	}
	return NewError(ErrInvalidInput, "invalid input").WithCause(err)
}

// dbError wraps a store failure unless it is already a pagekit error.
func dbError(err error, message string) *Error {
	var pkErr *Error
	if errors.As(err, &pkErr) {
		return pkErr
	}
	return NewError(ErrDatabaseError, message).WithCause(err)
}

// ============================================================================
// RESOLUTION MONITORING
// ============================================================================

// GetResolutionMetrics returns the current resolution statistics.
func (s *Service) GetResolutionMetrics() ResolutionMetrics {
	return s.resolver.GetResolutionMetrics()
}

// ResetResolutionMetrics resets all resolution statistics.
func (s *Service) ResetResolutionMetrics() {
	s.resolver.ResetResolutionMetrics()
}

// IsResolutionHealthy reports whether resolution performance is within acceptable thresholds.
func (s *Service) IsResolutionHealthy() bool {
	return s.resolver.IsResolutionHealthy()
}
