package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/metrics"
	"ScanCleanup/internal/shared/constants"
	"ScanCleanup/internal/storage"
)

// ErrHistoryUnavailable is returned for per-run history without a cycle store.
var ErrHistoryUnavailable = errors.New("cycle history store is not configured")

// ReportService fans cycle reports out to the log, metrics, the cycle history
// store and the Redis publisher. Store and publisher are optional. Sink
// failures are logged and never reach the cleanup loop.
type ReportService struct {
	store     storage.CycleStore
	publisher storage.ReportPublisher
	metrics   metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	latest *domain.CycleReport
}

type ReportServiceConfig struct {
	WriteTimeout time.Duration
}

func NewReportService(
	store storage.CycleStore,
	publisher storage.ReportPublisher,
	m metrics.Metrics,
	cfg ReportServiceConfig,
	logger *slog.Logger,
) *ReportService {
	timeout := cfg.WriteTimeout
	if timeout == 0 {
		timeout = constants.StoreWriteTimeout
	}

	if m == nil {
		m = metrics.NoopMetrics{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ReportService{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With("component", "report_service"),
		timeout:   timeout,
	}
}

func (s *ReportService) ReportCycle(ctx context.Context, report *domain.CycleReport) {
	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	s.logger.Info("cycle report",
		"run_id", report.RunID,
		"cycle", report.Cycle,
		"timestamp", report.Timestamp.Format(time.RFC3339),
		"active_count", report.ActiveCount,
		"paused_count", report.PausedCount,
		"slots", report.Slots,
		"resumed_ids", report.ResumedIDs,
		"failed_ids", report.FailedIDs,
		"expected_hosts", report.ExpectedHosts,
		"next_run_at", report.NextRunAt.Format(time.RFC3339),
	)

	s.metrics.ObserveCycle(report)

	// Sinks get their own deadline so a cancelled run still records its last cycle.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if s.store != nil {
		if err := s.store.Save(writeCtx, report); err != nil {
			s.logger.Error("failed to persist cycle report", "run_id", report.RunID, "cycle", report.Cycle, "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(writeCtx, report); err != nil {
			s.logger.Error("failed to publish cycle report", "run_id", report.RunID, "cycle", report.Cycle, "error", err)
		}
	}
}

func (s *ReportService) ReportRetry(op string, err error) {
	s.metrics.IncPollRetry(op)
}

func (s *ReportService) ReportStop(scanID int64, err error) {
	s.metrics.ObserveStop(err)
}

// Latest returns the most recent report seen by this process. A separate
// process falls back to the publisher, then to the cycle store.
func (s *ReportService) Latest(ctx context.Context) (*domain.CycleReport, error) {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()

	if latest != nil {
		return latest, nil
	}

	if s.publisher != nil {
		published, err := s.publisher.Latest(ctx)
		if err != nil || published != nil || s.store == nil {
			return published, err
		}
	}

	if s.store == nil {
		return nil, nil
	}
	recent, err := s.store.ListRecent(ctx, 1)
	if err != nil || len(recent) == 0 {
		return nil, err
	}
	return recent[0], nil
}

// History returns recent cycle reports, newest first, from the store or the publisher.
func (s *ReportService) History(ctx context.Context, limit int) ([]*domain.CycleReport, error) {
	switch {
	case s.store != nil:
		return s.store.ListRecent(ctx, limit)
	case s.publisher != nil:
		return s.publisher.Recent(ctx, limit)
	default:
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.latest == nil {
			return nil, nil
		}
		return []*domain.CycleReport{s.latest}, nil
	}
}

// RunHistory returns the cycles of one run in cycle order. Only the cycle
// store keeps whole runs.
func (s *ReportService) RunHistory(ctx context.Context, runID string) ([]*domain.CycleReport, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.store.ListByRun(ctx, runID)
}
