package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/cleanup/queue"
	"ScanCleanup/internal/shared/constants"
	"ScanCleanup/pkg/uuidutil"
)

type State string

const (
	StateIdle         State = "idle"
	StatePolling      State = "polling"
	StatePrioritizing State = "prioritizing"
	StateAdmitting    State = "admitting"
	StateResuming     State = "resuming"
	StateSleeping     State = "sleeping"
	StateDrained      State = "drained"
)

// NoHeadroom lets the loop fill the queue up to the ceiling.
const NoHeadroom = -1

// LoopConfig tunes the cleanup loop.
type LoopConfig struct {
	QueueCeiling int
	// Headroom is the number of slots kept free below the ceiling. Zero means
	// queue.DefaultHeadroom, NoHeadroom reserves none.
	Headroom     int
	Interval     time.Duration
	RetryBackoff time.Duration
	// CommandRate limits resume commands per second. Zero means unlimited.
	CommandRate float64
}

// CleanupLoop resumes paused scans as queue capacity frees up until both the
// active and the paused queues are empty.
type CleanupLoop struct {
	console  Console
	sites    *SiteAnnotator
	reporter Reporter
	limiter  *rate.Limiter
	poller   *poller
	cfg      LoopConfig
	logger   *slog.Logger

	mu    sync.RWMutex
	state State
}

func NewCleanupLoop(console Console, sites *SiteAnnotator, reporter Reporter, cfg LoopConfig, logger *slog.Logger) *CleanupLoop {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.CleanupInterval
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = constants.RetryBackoff
	}
	switch {
	case cfg.Headroom == 0:
		cfg.Headroom = queue.DefaultHeadroom
	case cfg.Headroom < 0:
		cfg.Headroom = 0
	}

	logger = logger.With("component", "cleanup_loop")

	var limiter *rate.Limiter
	if cfg.CommandRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), 1)
	}

	return &CleanupLoop{
		console:  console,
		sites:    sites,
		reporter: reporter,
		limiter:  limiter,
		poller:   newPoller(console, cfg.RetryBackoff, reporter, logger),
		cfg:      cfg,
		logger:   logger,
		state:    StateIdle,
	}
}

func (l *CleanupLoop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *CleanupLoop) setState(state State) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

// Run drives cycles until the queues drain or ctx is cancelled. Cancellation is
// returned as ctx.Err() together with the summary of the work done so far.
func (l *CleanupLoop) Run(ctx context.Context) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:     uuidutil.New(),
		StartedAt: time.Now(),
	}
	defer func() { summary.EndedAt = time.Now() }()

	// Every run opens a fresh session; the previous run may have logged out.
	l.poller.invalidate()

	l.logger.Info("starting cleanup run",
		"run_id", summary.RunID,
		"queue_ceiling", l.cfg.QueueCeiling,
		"interval", l.cfg.Interval,
	)

	for {
		report, err := l.RunCycle(ctx, summary.RunID, summary.Cycles+1)
		if err != nil {
			l.setState(StateIdle)
			l.logger.Info("cleanup run interrupted", "run_id", summary.RunID, "cycles", summary.Cycles, "error", err)
			return summary, err
		}

		summary.Cycles++
		summary.Resumed += len(report.ResumedIDs)
		summary.Failed += len(report.FailedIDs)

		if report.Drained {
			l.setState(StateDrained)
			summary.Drained = true
			l.logger.Info("no active or paused scans remaining, cleanup complete",
				"run_id", summary.RunID,
				"cycles", summary.Cycles,
				"resumed", summary.Resumed,
			)
			return summary, nil
		}

		l.setState(StateSleeping)
		l.logger.Info("cleanup sleeping", "next_run_at", report.NextRunAt.Format(time.RFC3339))

		timer := time.NewTimer(l.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.setState(StateIdle)
			l.logger.Info("Stopping cleanup loop due to context cancellation", "run_id", summary.RunID)
			return summary, ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle performs one Polling → Prioritizing → Admitting → Resuming pass and
// reports it. Only context cancellation is returned as an error.
func (l *CleanupLoop) RunCycle(ctx context.Context, runID string, cycle int) (*domain.CycleReport, error) {
	start := time.Now()

	l.setState(StatePolling)
	state, err := l.pollState(ctx)
	if err != nil {
		return nil, err
	}

	report := domain.NewCycleReport(runID, cycle, state)
	l.logger.Info("scan queue polled",
		"cycle", cycle,
		"active_count", state.ActiveCount(),
		"paused_count", state.PausedCount(),
	)

	if state.Drained() {
		report.Duration = time.Since(start).Seconds()
		l.reporter.ReportCycle(ctx, report)
		return report, nil
	}

	l.setState(StatePrioritizing)
	prioritized := queue.Prioritize(state.Paused)
	l.logScans(ctx, state.Active, prioritized)

	l.setState(StateAdmitting)
	slots := queue.SlotsAvailableWithHeadroom(state.ActiveCount(), state.QueueCeiling, l.cfg.Headroom)
	report.Slots = slots
	admitted := queue.Admit(prioritized, slots)
	l.logger.Info("admission computed",
		"active_count", state.ActiveCount(),
		"queue_ceiling", state.QueueCeiling,
		"slots", slots,
		"admitted", len(admitted),
	)

	l.setState(StateResuming)
	expected := 0
	for _, scan := range state.Active {
		expected += scan.DiscoveredAssets
	}
	for _, scan := range admitted {
		if ctx.Err() != nil {
			break
		}
		if err := l.resume(ctx, scan); err != nil {
			report.FailedIDs = append(report.FailedIDs, scan.ID)
			continue
		}
		report.ResumedIDs = append(report.ResumedIDs, scan.ID)
		expected += scan.DiscoveredAssets
	}
	report.ExpectedHosts = expected

	report.Duration = time.Since(start).Seconds()
	report.NextRunAt = time.Now().Add(l.cfg.Interval)
	l.logger.Info("cleanup cycle complete",
		"cycle", cycle,
		"resumed", len(report.ResumedIDs),
		"failed", len(report.FailedIDs),
		"expected_hosts", expected,
	)
	l.reporter.ReportCycle(ctx, report)
	return report, nil
}

func (l *CleanupLoop) pollState(ctx context.Context) (*domain.CycleState, error) {
	state := &domain.CycleState{QueueCeiling: l.cfg.QueueCeiling}
	err := l.poller.poll(ctx, "poll_scans", func(ctx context.Context) error {
		active, paused, err := l.console.ScanQueue(ctx)
		if err != nil {
			return fmt.Errorf("fetch scan queue: %w", err)
		}
		state.Active = active
		state.Paused = paused
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (l *CleanupLoop) resume(ctx context.Context, scan domain.ScanRecord) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := l.console.ResumeScan(ctx, scan.ID); err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			l.poller.invalidate()
		}
		l.logger.Warn("failed to resume scan",
			"scan_id", scan.ID,
			"site_id", scan.SiteID,
			"error", fmt.Errorf("%w: scan %d: %w", domain.ErrResumeCommand, scan.ID, err),
		)
		return err
	}

	l.logger.Info("resumed scan",
		"scan_id", scan.ID,
		"site_id", scan.SiteID,
		"site_name", l.siteName(ctx, scan.SiteID),
		"discovered_assets", scan.DiscoveredAssets,
	)
	return nil
}

func (l *CleanupLoop) logScans(ctx context.Context, active, paused []domain.ScanRecord) {
	for _, scan := range active {
		l.logger.Info("active scan",
			"scan_id", scan.ID,
			"site_id", scan.SiteID,
			"site_name", l.siteName(ctx, scan.SiteID),
			"engine_id", scan.EngineID,
			"live_nodes", scan.DiscoveredAssets,
		)
	}
	for _, scan := range paused {
		l.logger.Info("paused scan",
			"scan_id", scan.ID,
			"site_id", scan.SiteID,
			"site_name", l.siteName(ctx, scan.SiteID),
			"discovered_assets", scan.DiscoveredAssets,
		)
	}
}

func (l *CleanupLoop) siteName(ctx context.Context, siteID int64) string {
	if l.sites == nil {
		return ""
	}
	return l.sites.Lookup(ctx, siteID).Name
}
