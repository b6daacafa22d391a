package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	client "ScanCleanup/internal/cleanup/clients"
	"ScanCleanup/internal/cleanup/clients/consoletest"
	"ScanCleanup/internal/cleanup/domain"
	handler "ScanCleanup/internal/cleanup/handlers"
	"ScanCleanup/internal/cleanup/queue"
	"ScanCleanup/internal/dependencies"
	"ScanCleanup/internal/metrics"
	"ScanCleanup/internal/services"
	"ScanCleanup/pkg/uuidutil"
)

type memoryCycleStore struct {
	mu      sync.Mutex
	reports []*domain.CycleReport
}

func (m *memoryCycleStore) Save(_ context.Context, report *domain.CycleReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func (m *memoryCycleStore) ListRecent(_ context.Context, limit int) ([]*domain.CycleReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.CycleReport, 0, limit)
	for i := len(m.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.reports[i])
	}
	return out, nil
}

func (m *memoryCycleStore) ListByRun(_ context.Context, runID string) ([]*domain.CycleReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CycleReport
	for _, report := range m.reports {
		if report.RunID == runID {
			out = append(out, report)
		}
	}
	return out, nil
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContainer(store *memoryCycleStore) *dependencies.Container {
	registry := prometheus.NewRegistry()
	m := metrics.NewPrometheusMetrics("", registry)

	c := &dependencies.Container{
		Logger:   testLogger(),
		Registry: registry,
		Metrics:  m,
	}
	if store != nil {
		c.CycleStore = store
	}
	c.Reports = services.NewReportService(c.CycleStore, nil, m, services.ReportServiceConfig{}, c.Logger)
	return c
}

func startServer(t *testing.T, c *dependencies.Container) *httptest.Server {
	t.Helper()
	s := New(&Config{Host: "127.0.0.1", Port: 0, Version: "test"}, c)
	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, response) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	ts := startServer(t, newTestContainer(nil))

	code, body := get(t, ts, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestReady_WithoutStorage(t *testing.T) {
	ts := startServer(t, newTestContainer(nil))

	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "disabled", body["database"])
	assert.Equal(t, "disabled", body["redis"])
	assert.Equal(t, "logged_out", body["console"])
}

func TestStatus_AfterDrainedRun(t *testing.T) {
	console := consoletest.NewServer()
	console.FinishOnResume = true
	t.Cleanup(console.Close)
	console.SetScans(
		consoletest.Scan{ID: 7, Status: "paused", Live: 12},
	)

	consoleClient, err := client.NewConsoleClient(client.ClientConfig{
		BaseURL:        console.URL,
		RequestTimeout: time.Second,
	}, testLogger())
	require.NoError(t, err)

	c := newTestContainer(nil)
	c.Console = consoleClient
	c.Loop = handler.NewCleanupLoop(consoleClient, nil, c.Reports, handler.LoopConfig{
		QueueCeiling: 3,
		Headroom:     queue.DefaultHeadroom,
		Interval:     10 * time.Millisecond,
		RetryBackoff: 10 * time.Millisecond,
	}, testLogger())

	ts := startServer(t, c)

	code, body := get(t, ts, "/api/v1/status")
	require.Equal(t, http.StatusOK, code)
	var before struct {
		State  string              `json:"state"`
		Latest *domain.CycleReport `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &before))
	assert.Equal(t, "idle", before.State)
	assert.Nil(t, before.Latest)

	summary, err := c.Loop.Run(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Drained)

	code, body = get(t, ts, "/api/v1/status")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)

	var after struct {
		State  string              `json:"state"`
		Latest *domain.CycleReport `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &after))
	assert.Equal(t, "drained", after.State)
	require.NotNil(t, after.Latest)
	assert.True(t, after.Latest.Drained)
	assert.Equal(t, summary.RunID, after.Latest.RunID)

	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ready map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "logged_in", ready["console"])
}

func TestCycles(t *testing.T) {
	store := &memoryCycleStore{}
	c := newTestContainer(store)
	runID := uuidutil.New()
	for i := 1; i <= 3; i++ {
		c.Reports.ReportCycle(context.Background(), &domain.CycleReport{RunID: runID, Cycle: i, ResumedIDs: []int64{}})
	}
	c.Reports.ReportCycle(context.Background(), &domain.CycleReport{RunID: uuidutil.New(), Cycle: 1, ResumedIDs: []int64{}})

	ts := startServer(t, c)

	t.Run("recent", func(t *testing.T) {
		code, body := get(t, ts, "/api/v1/cycles?limit=2")
		require.Equal(t, http.StatusOK, code)
		var history []domain.CycleReport
		require.NoError(t, json.Unmarshal(body.Data, &history))
		assert.Len(t, history, 2)
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, limit := range []string{"0", "abc", "101"} {
			code, body := get(t, ts, "/api/v1/cycles?limit="+limit)
			assert.Equal(t, http.StatusBadRequest, code, limit)
			assert.Equal(t, "invalid_limit", body.Error)
		}
	})

	t.Run("by run", func(t *testing.T) {
		code, body := get(t, ts, "/api/v1/cycles/"+runID)
		require.Equal(t, http.StatusOK, code)
		var history []domain.CycleReport
		require.NoError(t, json.Unmarshal(body.Data, &history))
		require.Len(t, history, 3)
		assert.Equal(t, 1, history[0].Cycle)
	})

	t.Run("unknown run", func(t *testing.T) {
		code, body := get(t, ts, "/api/v1/cycles/"+uuidutil.New())
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "run_not_found", body.Error)
	})

	t.Run("malformed run id", func(t *testing.T) {
		code, body := get(t, ts, "/api/v1/cycles/not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "invalid_run_id", body.Error)
	})
}

func TestCycles_RunHistoryWithoutStore(t *testing.T) {
	ts := startServer(t, newTestContainer(nil))

	code, body := get(t, ts, "/api/v1/cycles/"+uuidutil.New())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "history_unavailable", body.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	c := newTestContainer(nil)
	c.Reports.ReportCycle(context.Background(), &domain.CycleReport{ResumedIDs: []int64{1, 2}})
	ts := startServer(t, c)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "scancleanup_cleanup_resumed_scans_total 2")
}

func TestNotFound(t *testing.T) {
	ts := startServer(t, newTestContainer(nil))

	code, body := get(t, ts, "/api/v1/nothing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body.Error)
}
