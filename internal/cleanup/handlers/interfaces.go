package handler

import (
	"context"

	"ScanCleanup/internal/cleanup/domain"
)

type SessionManager interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
}

// ScanStatusClient reads scan queue state from the console. ScanQueue answers
// both lists from one snapshot.
type ScanStatusClient interface {
	ScanQueue(ctx context.Context) (active, paused []domain.ScanRecord, err error)
	ActiveScans(ctx context.Context) ([]domain.ScanRecord, error)
	PausedScans(ctx context.Context) ([]domain.ScanRecord, error)
}

type ScanCommander interface {
	ResumeScan(ctx context.Context, scanID int64) error
	StopScan(ctx context.Context, scanID int64) error
}

// Console is the full console surface the handlers drive.
type Console interface {
	SessionManager
	ScanStatusClient
	ScanCommander
}

type SiteResolver interface {
	Site(ctx context.Context, siteID int64) (*domain.SiteInfo, error)
}

// SiteCache stores site lookups between cycles. GetSite returns nil, nil on a miss.
type SiteCache interface {
	GetSite(ctx context.Context, siteID int64) (*domain.SiteInfo, error)
	SetSite(ctx context.Context, site *domain.SiteInfo) error
}

// Reporter is the sink for per-cycle reports and loop events. Implementations
// must not block the loop for long and handle their own failures.
type Reporter interface {
	ReportCycle(ctx context.Context, report *domain.CycleReport)
	ReportRetry(op string, err error)
	ReportStop(scanID int64, err error)
}

type nopReporter struct{}

func (nopReporter) ReportCycle(context.Context, *domain.CycleReport) {}
func (nopReporter) ReportRetry(string, error)                        {}
func (nopReporter) ReportStop(int64, error)                          {}
