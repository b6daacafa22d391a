package domain

import "time"

// CycleState is the console snapshot taken at the start of a cleanup cycle.
// It is recomputed every cycle and never persisted.
type CycleState struct {
	Active       []ScanRecord `json:"active_scans"`
	Paused       []ScanRecord `json:"paused_scans"`
	QueueCeiling int          `json:"queue_ceiling"`
}

func (c *CycleState) ActiveCount() int {
	return len(c.Active)
}

func (c *CycleState) PausedCount() int {
	return len(c.Paused)
}

// Drained reports whether there is nothing left running or waiting to resume.
func (c *CycleState) Drained() bool {
	return c.ActiveCount() == 0 && c.PausedCount() == 0
}

// CycleReport is the structured line emitted once per cleanup cycle.
type CycleReport struct {
	RunID         string    `json:"run_id"`
	Cycle         int       `json:"cycle"`
	Timestamp     time.Time `json:"timestamp"`
	ActiveCount   int       `json:"active_count"`
	PausedCount   int       `json:"paused_count"`
	QueueCeiling  int       `json:"queue_ceiling"`
	Slots         int       `json:"slots"`
	ResumedIDs    []int64   `json:"resumed_ids"`
	FailedIDs     []int64   `json:"failed_ids,omitempty"`
	ExpectedHosts int       `json:"expected_hosts"`
	Drained       bool      `json:"drained"`
	Duration      float64   `json:"duration"` // seconds
	NextRunAt     time.Time `json:"next_run_at,omitzero"`
}

func NewCycleReport(runID string, cycle int, state *CycleState) *CycleReport {
	return &CycleReport{
		RunID:        runID,
		Cycle:        cycle,
		Timestamp:    time.Now(),
		ActiveCount:  state.ActiveCount(),
		PausedCount:  state.PausedCount(),
		QueueCeiling: state.QueueCeiling,
		ResumedIDs:   []int64{},
		Drained:      state.Drained(),
	}
}

// RunSummary describes a finished (or cancelled) cleanup run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Cycles    int       `json:"cycles"`
	Resumed   int       `json:"resumed"`
	Failed    int       `json:"failed"`
	Drained   bool      `json:"drained"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// StopSummary describes a stop-paused or stop-engine pass.
type StopSummary struct {
	Passes    int     `json:"passes"`
	StoppedID []int64 `json:"stopped_ids"`
	FailedID  []int64 `json:"failed_ids,omitempty"`
}
