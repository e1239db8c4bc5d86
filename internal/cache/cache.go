package cache

import (
	"context"
	"time"

	"shopbill/backend/internal/domain"
)

// ReportCache holds computed sales analytics for a short TTL so repeated
// dashboard polls do not rescan the sales history.
type ReportCache interface {
	GetAnalytics(ctx context.Context, key string) (*domain.SalesAnalytics, bool, error)
	SetAnalytics(ctx context.Context, key string, value *domain.SalesAnalytics, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopReportCache struct{}

func (NoopReportCache) GetAnalytics(_ context.Context, _ string) (*domain.SalesAnalytics, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) SetAnalytics(_ context.Context, _ string, _ *domain.SalesAnalytics, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Invalidate(_ context.Context) error {
	return nil
}
