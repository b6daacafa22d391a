package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ScanCleanup/internal/shared/constants"
)

type WaiterConfig struct {
	URL       string
	Attempts  int
	Interval  time.Duration
	VerifySSL bool
}

// ServiceWaiter polls the console login page until it answers 200. Anything
// else, including a redirect to the maintenance page, counts as not ready.
type ServiceWaiter struct {
	runner Runner
	cfg    WaiterConfig
	logger *slog.Logger
}

func NewServiceWaiter(runner Runner, cfg WaiterConfig, logger *slog.Logger) *ServiceWaiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = constants.DefaultProbeAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = constants.ProbeInterval
	}
	return &ServiceWaiter{
		runner: runner,
		cfg:    cfg,
		logger: logger.With("component", "service_waiter"),
	}
}

// Wait returns the number of attempts it took, or ErrServiceUnavailable once
// all attempts are used up.
func (w *ServiceWaiter) Wait(ctx context.Context) (int, error) {
	options := map[string]interface{}{"verify_ssl": w.cfg.VerifySSL}

	for attempt := 1; attempt <= w.cfg.Attempts; attempt++ {
		result, err := w.runner.Execute(ctx, w.cfg.URL, options)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}

		switch {
		case err != nil:
			w.logger.Warn("service unavailable", "attempt", attempt, "error", err)
		case result["status_code"] == 200:
			w.logger.Info("console service appears to be up and functional", "attempt", attempt)
			return attempt, nil
		default:
			w.logger.Warn("console service is not yet fully initialized",
				"attempt", attempt,
				"status", result["status"],
				"location", result["location"],
			)
		}

		if attempt == w.cfg.Attempts {
			break
		}

		timer := time.NewTimer(w.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	w.logger.Error("the service was never determined to be available", "attempts", w.cfg.Attempts)
	return w.cfg.Attempts, fmt.Errorf("%w after %d attempts", ErrServiceUnavailable, w.cfg.Attempts)
}
