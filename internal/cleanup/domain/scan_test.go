package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScanStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want ScanStatus
	}{
		{"running", ScanStatusRunning},
		{"Dispatched", ScanStatusRunning},
		{"integrating", ScanStatusRunning},
		{"paused", ScanStatusPaused},
		{" Paused ", ScanStatusPaused},
		{"finished", ScanStatusStopped},
		{"stopped", ScanStatusStopped},
		{"aborted", ScanStatusError},
		{"error", ScanStatusError},
		{"", ScanStatusUnknown},
		{"something-new", ScanStatusUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseScanStatus(tt.raw), "raw=%q", tt.raw)
	}
}

func TestCycleState_Drained(t *testing.T) {
	state := &CycleState{}
	assert.True(t, state.Drained())

	state.Paused = []ScanRecord{{ID: 1, Status: ScanStatusPaused}}
	assert.False(t, state.Drained())
	assert.Equal(t, 1, state.PausedCount())
	assert.Equal(t, 0, state.ActiveCount())
}

func TestScanHelpers(t *testing.T) {
	scans := []ScanRecord{
		{ID: 3, DiscoveredAssets: 10},
		{ID: 1, DiscoveredAssets: 5},
	}
	assert.Equal(t, []int64{3, 1}, ScanIDs(scans))
	assert.Equal(t, 15, TotalAssets(scans))
	assert.Empty(t, ScanIDs(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("fetch: %w", ErrConnectivity)))
	assert.True(t, IsRetryable(ErrSessionExpired))
	assert.False(t, IsRetryable(ErrResumeCommand))
	assert.False(t, IsRetryable(errors.New("boom")))
}
