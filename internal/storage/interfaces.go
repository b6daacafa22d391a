package storage

import (
	"context"

	"ScanCleanup/internal/cleanup/domain"
)

// CycleStore keeps the history of cleanup cycles.
type CycleStore interface {
	Save(ctx context.Context, report *domain.CycleReport) error
	ListRecent(ctx context.Context, limit int) ([]*domain.CycleReport, error)
	ListByRun(ctx context.Context, runID string) ([]*domain.CycleReport, error)
}

// ReportPublisher broadcasts cycle reports and keeps the latest one around
// for other processes (status command, dashboards). The underlying client is
// owned and closed by the caller.
type ReportPublisher interface {
	Publish(ctx context.Context, report *domain.CycleReport) error
	Latest(ctx context.Context) (*domain.CycleReport, error)
	Recent(ctx context.Context, limit int) ([]*domain.CycleReport, error)
}

// SiteCache stores site lookups. GetSite returns nil, nil on a miss.
type SiteCache interface {
	GetSite(ctx context.Context, siteID int64) (*domain.SiteInfo, error)
	SetSite(ctx context.Context, site *domain.SiteInfo) error
}
