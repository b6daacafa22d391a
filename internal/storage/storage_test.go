package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/config"
	"ScanCleanup/pkg/uuidutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleReport(runID string, cycle int) *domain.CycleReport {
	return &domain.CycleReport{
		RunID:         runID,
		Cycle:         cycle,
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
		ActiveCount:   2,
		PausedCount:   3,
		QueueCeiling:  5,
		Slots:         2,
		ResumedIDs:    []int64{11, 12},
		ExpectedHosts: 40,
		Duration:      0.25,
		NextRunAt:     time.Now().UTC().Add(5 * time.Minute).Truncate(time.Millisecond),
	}
}

func TestKeySet(t *testing.T) {
	k := newKeySet("ops:")
	assert.Equal(t, "ops:cycles:latest", k.latest())
	assert.Equal(t, "ops:cycles:history", k.history())
	assert.Equal(t, "ops:cycles", k.channel())
	assert.Equal(t, "ops:sites:42", k.site(42))

	assert.Equal(t, "scancleanup:cycles", newKeySet("").channel())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, []int64{}, nonNilIDs(nil))
	assert.Nil(t, nullableTime(time.Time{}))
	now := time.Now()
	assert.Equal(t, now, *nullableTime(now))

	_, err := decodeReport([]byte("{not json"))
	assert.Error(t, err)
}

// Integration tests below need a live Redis or Postgres instance.

func TestRedisPublisher_Integration(t *testing.T) {
	addr := os.Getenv("SCANCLEANUP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SCANCLEANUP_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(&config.RedisConfig{Addr: addr}, testLogger())
	require.NoError(t, err)

	prefix := "scancleanup-test-" + uuidutil.New()
	defer client.Close()
	publisher := NewRedisPublisher(client, prefix, time.Minute)

	ctx := context.Background()
	latest, err := publisher.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	runID := uuidutil.New()
	require.NoError(t, publisher.Publish(ctx, sampleReport(runID, 1)))
	require.NoError(t, publisher.Publish(ctx, sampleReport(runID, 2)))

	latest, err = publisher.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Cycle)
	assert.Equal(t, []int64{11, 12}, latest.ResumedIDs)

	recent, err := publisher.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].Cycle)

	cache := NewRedisSiteCache(client, prefix, time.Minute)
	site, err := cache.GetSite(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, site)

	require.NoError(t, cache.SetSite(ctx, &domain.SiteInfo{ID: 7, Name: "DMZ"}))
	site, err = cache.GetSite(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "DMZ", site.Name)
}

func TestCycleStore_Integration(t *testing.T) {
	dsn := os.Getenv("SCANCLEANUP_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("SCANCLEANUP_TEST_DATABASE_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, EnsureSchema(ctx, pool))
	store := NewCycleStore(pool)

	runID := uuidutil.New()
	first := sampleReport(runID, 1)
	second := sampleReport(runID, 2)
	second.Drained = true
	second.ResumedIDs = nil
	second.NextRunAt = time.Time{}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))
	require.NoError(t, store.Save(ctx, second), "saving a cycle twice is a no-op")

	reports, err := store.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []int64{11, 12}, reports[0].ResumedIDs)
	assert.True(t, reports[1].Drained)
	assert.Empty(t, reports[1].ResumedIDs)
	assert.True(t, reports[1].NextRunAt.IsZero())

	recent, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
