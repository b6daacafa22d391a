package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	client "ScanCleanup/internal/cleanup/clients"
	"ScanCleanup/internal/cleanup/domain"
)

// poller runs console reads under the fixed-backoff retry policy shared by all
// polling loops: wait, re-authenticate, retry, for as long as ctx lives.
type poller struct {
	session  SessionManager
	backoff  time.Duration
	reporter Reporter
	logger   *slog.Logger

	needsLogin  bool
	established bool
}

func newPoller(session SessionManager, backoffInterval time.Duration, reporter Reporter, logger *slog.Logger) *poller {
	return &poller{
		session:    session,
		backoff:    backoffInterval,
		reporter:   reporter,
		logger:     logger,
		needsLogin: true,
	}
}

// invalidate forces a fresh login before the next read.
func (p *poller) invalidate() {
	p.needsLogin = true
}

func (p *poller) poll(ctx context.Context, op string, fetch func(ctx context.Context) error) error {
	attempt := 0
	operation := func() error {
		attempt++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}

		if p.needsLogin {
			if err := p.session.Login(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return backoff.Permanent(ctxErr)
				}
				if !p.established && errors.Is(err, client.ErrLoginRejected) {
					return backoff.Permanent(err)
				}
				return err
			}
			p.needsLogin = false
			p.established = true
		}

		if err := fetch(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			return err
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		p.needsLogin = true
		p.reporter.ReportRetry(op, err)

		level := slog.LevelWarn
		if !domain.IsRetryable(err) {
			level = slog.LevelError
		}
		p.logger.Log(ctx, level, "connection issue detected, retrying",
			"op", op,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(p.backoff), ctx)
	return backoff.RetryNotify(operation, policy, notify)
}
