package pagekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// HealthService provides health monitoring functionality as an extension to Service
type HealthService struct {
	*Service
}

// NewHealthService creates a new health service extension
func NewHealthService(service *Service) *HealthService {
	return &HealthService{Service: service}
}

// Health performs a comprehensive health check of the database connection.
// Without a dbkit connection it falls back to a ping and says so in Error.
func (hs *HealthService) Health(ctx context.Context) dbkit.HealthStatus {
	if hs.kit != nil {
		return hs.kit.Health(ctx)
	}
	return dbkit.HealthStatus{
		Healthy: hs.IsHealthy(ctx),
		Error:   "Limited health check - not a DBKit instance",
	}
}

// IsHealthy reports whether the database is reachable and resolutions are within thresholds.
func (hs *HealthService) IsHealthy(ctx context.Context) bool {
	if !hs.IsResolutionHealthy() {
		return false
	}
	if hs.kit != nil {
		return hs.kit.IsHealthy(ctx)
	}
	return hs.Ping(ctx) == nil
}

// GetPoolStats returns connection pool statistics for monitoring.
// Returns zero values without a dbkit connection.
func (hs *HealthService) GetPoolStats() dbkit.PoolStats {
	if hs.kit != nil {
		return dbkit.PoolStatsFromSQL(hs.kit.Stats())
	}
	return dbkit.PoolStats{}
}

// Ping performs a basic connectivity test to the database.
func (hs *HealthService) Ping(ctx context.Context) error {
	var result int
	return hs.db.NewSelect().ColumnExpr("1").Scan(ctx, &result)
}
