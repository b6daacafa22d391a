package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScanCleanup/internal/cleanup/clients/consoletest"
	"ScanCleanup/internal/cleanup/domain"
)

func fastStopConfig() StopConfig {
	return StopConfig{Interval: 10 * time.Millisecond, RetryBackoff: 10 * time.Millisecond}
}

func TestStopHandler_StopPaused(t *testing.T) {
	console := newConsole(t)
	console.SetScans(
		consoletest.Scan{ID: 1, Status: "paused"},
		consoletest.Scan{ID: 2, Status: "running"},
		consoletest.Scan{ID: 3, Status: "paused"},
	)
	reporter := newRecordingReporter()
	h := NewStopHandler(newClient(t, console, "secret"), reporter, fastStopConfig(), testLogger())

	summary, err := h.StopPaused(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Passes)
	assert.Equal(t, []int64{1, 3}, summary.StoppedID)
	assert.Empty(t, summary.FailedID)
	assert.Equal(t, []int64{1, 3}, console.Stopped())
	require.Len(t, console.Scans(), 1)
	assert.Equal(t, int64(2), console.Scans()[0].ID)
	assert.Len(t, reporter.stops, 2)
}

func TestStopHandler_StopPausedRetriesFailedStop(t *testing.T) {
	console := newConsole(t)
	console.SetScans(consoletest.Scan{ID: 5, Status: "paused"})
	console.FailNextMessage("ScanStopRequest", "Engine busy")

	h := NewStopHandler(newClient(t, console, "secret"), nil, fastStopConfig(), testLogger())
	summary, err := h.StopPaused(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Passes)
	assert.Equal(t, []int64{5}, summary.FailedID)
	assert.Equal(t, []int64{5}, summary.StoppedID)
}

func TestStopHandler_StopPausedNothingToDo(t *testing.T) {
	console := newConsole(t)
	h := NewStopHandler(newClient(t, console, "secret"), nil, fastStopConfig(), testLogger())

	summary, err := h.StopPaused(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Passes)
	assert.Empty(t, console.Stopped())
}

func TestStopHandler_StopEngine(t *testing.T) {
	console := newConsole(t)
	console.SetScans(
		consoletest.Scan{ID: 1, EngineID: 3, Status: "running"},
		consoletest.Scan{ID: 2, EngineID: 4, Status: "running"},
		consoletest.Scan{ID: 3, EngineID: 3, Status: "dispatched"},
		consoletest.Scan{ID: 4, EngineID: 3, Status: "paused"},
	)
	reporter := newRecordingReporter()
	h := NewStopHandler(newClient(t, console, "secret"), reporter, fastStopConfig(), testLogger())

	summary, err := h.StopEngine(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, summary.StoppedID)
	assert.Equal(t, []int64{1, 3}, console.Stopped())
	assert.NoError(t, reporter.stops[1])
}

func TestStopHandler_StopFailureIsReported(t *testing.T) {
	console := newConsole(t)
	console.SetScans(consoletest.Scan{ID: 8, EngineID: 1, Status: "running"})
	console.FailNextMessage("ScanStopRequest", "Scan cannot be stopped")

	reporter := newRecordingReporter()
	h := NewStopHandler(newClient(t, console, "secret"), reporter, fastStopConfig(), testLogger())

	summary, err := h.StopEngine(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{8}, summary.FailedID)
	assert.Error(t, reporter.stops[8])
	assert.False(t, errors.Is(reporter.stops[8], domain.ErrConnectivity))
}

func TestIdleWaiter_WaitsForActiveScans(t *testing.T) {
	console := newConsole(t)
	console.SetScans(consoletest.Scan{ID: 1, Status: "running"})

	go func() {
		time.Sleep(40 * time.Millisecond)
		console.SetScans()
	}()

	w := NewIdleWaiter(newClient(t, console, "secret"), 10*time.Millisecond, 10*time.Millisecond, testLogger())
	require.NoError(t, w.WaitIdle(context.Background()))
	assert.GreaterOrEqual(t, console.Calls("ScanActivityRequest"), 2)
}

func TestIdleWaiter_IgnoresPausedScans(t *testing.T) {
	console := newConsole(t)
	console.SetScans(consoletest.Scan{ID: 1, Status: "paused"})

	w := NewIdleWaiter(newClient(t, console, "secret"), 10*time.Millisecond, 10*time.Millisecond, testLogger())
	require.NoError(t, w.WaitIdle(context.Background()))
	assert.Equal(t, 1, console.Calls("ScanActivityRequest"))
}

func TestIdleWaiter_Cancelled(t *testing.T) {
	console := newConsole(t)
	console.SetScans(consoletest.Scan{ID: 1, Status: "running"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w := NewIdleWaiter(newClient(t, console, "secret"), 10*time.Millisecond, 10*time.Millisecond, testLogger())
	assert.ErrorIs(t, w.WaitIdle(ctx), context.DeadlineExceeded)
}
