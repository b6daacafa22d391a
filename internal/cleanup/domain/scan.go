package domain

import (
	"strings"
	"time"
)

type ScanStatus string

const (
	ScanStatusRunning ScanStatus = "running"
	ScanStatusPaused  ScanStatus = "paused"
	ScanStatusStopped ScanStatus = "stopped"
	ScanStatusError   ScanStatus = "error"
	ScanStatusUnknown ScanStatus = "unknown"
)

// ParseScanStatus maps a console status string onto the statuses the tool acts on.
func ParseScanStatus(raw string) ScanStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "dispatched", "integrating":
		return ScanStatusRunning
	case "paused":
		return ScanStatusPaused
	case "stopped", "finished":
		return ScanStatusStopped
	case "error", "aborted":
		return ScanStatusError
	default:
		return ScanStatusUnknown
	}
}

// ScanRecord is a console scan as observed by the tool. It is never mutated
// locally; state only changes through resume/stop commands sent to the console.
type ScanRecord struct {
	ID               int64      `json:"id"`
	SiteID           int64      `json:"site_id"`
	Name             string     `json:"name,omitempty"`
	Status           ScanStatus `json:"status"`
	DiscoveredAssets int        `json:"discovered_asset_count"`
	EngineID         int64      `json:"engine_id"`
	StartTime        time.Time  `json:"start_time"`
}

func (s ScanRecord) IsPaused() bool {
	return s.Status == ScanStatusPaused
}

func (s ScanRecord) IsActive() bool {
	return s.Status == ScanStatusRunning
}

// ScanIDs returns the ids of scans in order.
func ScanIDs(scans []ScanRecord) []int64 {
	ids := make([]int64, 0, len(scans))
	for _, scan := range scans {
		ids = append(ids, scan.ID)
	}
	return ids
}

// TotalAssets sums the discovered asset counts.
func TotalAssets(scans []ScanRecord) int {
	total := 0
	for _, scan := range scans {
		total += scan.DiscoveredAssets
	}
	return total
}
