package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/shared/constants"
)

// IdleWaiter blocks until the console has no active scans, e.g. before
// database maintenance.
type IdleWaiter struct {
	console  Console
	poller   *poller
	interval time.Duration
	logger   *slog.Logger
}

func NewIdleWaiter(console Console, interval, retryBackoff time.Duration, logger *slog.Logger) *IdleWaiter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = constants.IdlePollInterval
	}
	if retryBackoff <= 0 {
		retryBackoff = constants.RetryBackoff
	}

	logger = logger.With("component", "idle_waiter")
	return &IdleWaiter{
		console:  console,
		poller:   newPoller(console, retryBackoff, nopReporter{}, logger),
		interval: interval,
		logger:   logger,
	}
}

func (w *IdleWaiter) WaitIdle(ctx context.Context) error {
	for {
		var active []domain.ScanRecord
		err := w.poller.poll(ctx, "poll_active", func(ctx context.Context) error {
			scans, err := w.console.ActiveScans(ctx)
			if err != nil {
				return fmt.Errorf("fetch active scans: %w", err)
			}
			active = scans
			return nil
		})
		if err != nil {
			return err
		}

		if len(active) == 0 {
			w.logger.Info("no active scans, console is idle")
			return nil
		}

		w.logger.Info("waiting for active scans to finish",
			"active_count", len(active),
			"scan_ids", domain.ScanIDs(active),
		)

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
