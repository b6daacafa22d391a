package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/shared/constants"
)

type StopConfig struct {
	Interval     time.Duration
	RetryBackoff time.Duration
	CommandRate  float64
}

// StopHandler stops scans in bulk: every paused scan, or every scan running on
// one engine.
type StopHandler struct {
	console  Console
	reporter Reporter
	limiter  *rate.Limiter
	poller   *poller
	interval time.Duration
	logger   *slog.Logger
}

func NewStopHandler(console Console, reporter Reporter, cfg StopConfig, logger *slog.Logger) *StopHandler {
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

	logger = logger.With("component", "stop_handler")

	var limiter *rate.Limiter
	if cfg.CommandRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CommandRate), 1)
	}

	return &StopHandler{
		console:  console,
		reporter: reporter,
		limiter:  limiter,
		poller:   newPoller(console, cfg.RetryBackoff, reporter, logger),
		interval: cfg.Interval,
		logger:   logger,
	}
}

// StopPaused stops paused scans pass after pass until the console reports none.
func (h *StopHandler) StopPaused(ctx context.Context) (*domain.StopSummary, error) {
	summary := &domain.StopSummary{}

	for {
		var paused []domain.ScanRecord
		err := h.poller.poll(ctx, "poll_paused", func(ctx context.Context) error {
			scans, err := h.console.PausedScans(ctx)
			if err != nil {
				return fmt.Errorf("fetch paused scans: %w", err)
			}
			paused = scans
			return nil
		})
		if err != nil {
			return summary, err
		}

		if len(paused) == 0 {
			h.logger.Info("no paused scans remaining", "passes", summary.Passes, "stopped", len(summary.StoppedID))
			return summary, nil
		}

		summary.Passes++
		h.logger.Info("stopping paused scans", "pass", summary.Passes, "paused_count", len(paused))
		h.stopAll(ctx, paused, summary)

		timer := time.NewTimer(h.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return summary, ctx.Err()
		case <-timer.C:
		}
	}
}

// StopEngine stops every active scan assigned to engineID in a single pass.
func (h *StopHandler) StopEngine(ctx context.Context, engineID int64) (*domain.StopSummary, error) {
	summary := &domain.StopSummary{Passes: 1}

	var targets []domain.ScanRecord
	err := h.poller.poll(ctx, "poll_active", func(ctx context.Context) error {
		active, err := h.console.ActiveScans(ctx)
		if err != nil {
			return fmt.Errorf("fetch active scans: %w", err)
		}
		targets = targets[:0]
		for _, scan := range active {
			if scan.EngineID == engineID {
				targets = append(targets, scan)
			}
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	h.logger.Info("stopping scans for engine", "engine_id", engineID, "count", len(targets))
	h.stopAll(ctx, targets, summary)
	return summary, nil
}

func (h *StopHandler) stopAll(ctx context.Context, scans []domain.ScanRecord, summary *domain.StopSummary) {
	for _, scan := range scans {
		if ctx.Err() != nil {
			return
		}
		if err := h.stop(ctx, scan); err != nil {
			summary.FailedID = append(summary.FailedID, scan.ID)
			continue
		}
		summary.StoppedID = append(summary.StoppedID, scan.ID)
	}
}

func (h *StopHandler) stop(ctx context.Context, scan domain.ScanRecord) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	err := h.console.StopScan(ctx, scan.ID)
	h.reporter.ReportStop(scan.ID, err)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			h.poller.invalidate()
		}
		h.logger.Warn("failed to stop scan",
			"scan_id", scan.ID,
			"error", fmt.Errorf("%w: scan %d: %w", domain.ErrStopCommand, scan.ID, err),
		)
		return err
	}

	h.logger.Info("stopped scan", "scan_id", scan.ID, "site_id", scan.SiteID, "engine_id", scan.EngineID)
	return nil
}
