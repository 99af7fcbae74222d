package service

import (
	"context"

	"go.uber.org/zap"
)

// HealthStatus is the aggregate service health
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is one named probe result
type HealthCheck struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// Health aggregates the individual checks
type Health struct {
	Status HealthStatus  `json:"status"`
	Checks []HealthCheck `json:"checks"`
}

// Health probes the database and the text collection. All checks passing
// is healthy, some is degraded, none is unhealthy.
func (s *Service) Health(ctx context.Context) Health {
	checks := []HealthCheck{
		{Name: "database", OK: s.check(ctx, "database", s.store.Ping)},
		{Name: "text_index", OK: s.check(ctx, "text_index", s.collection.Health)},
	}

	passing := 0
	for _, c := range checks {
		if c.OK {
			passing++
		}
	}

	status := HealthUnhealthy
	switch passing {
	case len(checks):
		status = HealthHealthy
	case 0:
	default:
		status = HealthDegraded
	}

	return Health{Status: status, Checks: checks}
}

func (s *Service) check(ctx context.Context, name string, probe func(context.Context) error) bool {
	if err := probe(ctx); err != nil {
		s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
		return false
	}
	return true
}
