package pagekit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Transaction executes fn within a database transaction with automatic commit/rollback.
// If fn returns an error, the transaction is rolled back. Otherwise, it's committed.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context, tx *pagekit.BunStore) error {
//	    if _, err := tx.InsertUserRole(ctx, userID, editorRoleID); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    return tx.UpsertRolePermission(ctx, grant)
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context, tx *BunStore) error) error {
	return s.transaction(ctx, "Transaction", fn)
}

func (s *Service) transaction(ctx context.Context, op string, fn func(ctx context.Context, tx *BunStore) error) error {
	start := time.Now()
	err := s.store.RunInTx(ctx, fn)
	duration := time.Since(start)

	if err != nil {
		s.logger.Debug("transaction rolled back",
			zap.String("operation", op),
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}
	s.logger.Debug("transaction committed",
		zap.String("operation", op),
		zap.Duration("duration", duration))
	return nil
}
