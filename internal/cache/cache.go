package cache

import (
	"context"
	"time"

	"pharmadesk/backend/internal/domain"
)

// ReportCache holds assembled dashboard reports. Invalidate bumps a version
// so every key written before it becomes unreachable at once.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardReport, bool, error)
	Set(ctx context.Context, key string, value *domain.DashboardReport, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.DashboardReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.DashboardReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
