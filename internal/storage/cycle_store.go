package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ScanCleanup/internal/cleanup/domain"
)

type cycleStore struct {
	pool *pgxpool.Pool
}

func NewCycleStore(pool *pgxpool.Pool) CycleStore {
	return &cycleStore{pool: pool}
}

const cycleColumns = `run_id, cycle, recorded_at, active_count, paused_count, queue_ceiling, slots,
	resumed_ids, failed_ids, expected_hosts, drained, duration, next_run_at`

func (s *cycleStore) Save(ctx context.Context, report *domain.CycleReport) error {
	query := `
		INSERT INTO scan_cleanup_cycles (` + cycleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, cycle) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		report.RunID,
		report.Cycle,
		report.Timestamp,
		report.ActiveCount,
		report.PausedCount,
		report.QueueCeiling,
		report.Slots,
		nonNilIDs(report.ResumedIDs),
		nonNilIDs(report.FailedIDs),
		report.ExpectedHosts,
		report.Drained,
		report.Duration,
		nullableTime(report.NextRunAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle report: %w", err)
	}

	return nil
}

func (s *cycleStore) ListRecent(ctx context.Context, limit int) ([]*domain.CycleReport, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + cycleColumns + `
		FROM scan_cleanup_cycles
		ORDER BY recorded_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle reports: %w", err)
	}
	return collectReports(rows)
}

func (s *cycleStore) ListByRun(ctx context.Context, runID string) ([]*domain.CycleReport, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM scan_cleanup_cycles
		WHERE run_id = $1
		ORDER BY cycle
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle reports for run %s: %w", runID, err)
	}
	return collectReports(rows)
}

func collectReports(rows pgx.Rows) ([]*domain.CycleReport, error) {
	defer rows.Close()

	var reports []*domain.CycleReport
	for rows.Next() {
		var (
			report    domain.CycleReport
			nextRunAt *time.Time
		)
		if err := rows.Scan(
			&report.RunID,
			&report.Cycle,
			&report.Timestamp,
			&report.ActiveCount,
			&report.PausedCount,
			&report.QueueCeiling,
			&report.Slots,
			&report.ResumedIDs,
			&report.FailedIDs,
			&report.ExpectedHosts,
			&report.Drained,
			&report.Duration,
			&nextRunAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle report: %w", err)
		}
		if nextRunAt != nil {
			report.NextRunAt = *nextRunAt
		}
		reports = append(reports, &report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cycle reports: %w", err)
	}
	return reports, nil
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
