package processor

import (
	"sync"
	"time"

	"harvest/internal/cleaner"
	"harvest/internal/detector"
	"harvest/internal/models"
)

// DatasetSummary describes one observation type within a run.
type DatasetSummary struct {
	Cleaning        cleaner.Stats `json:"cleaning"`
	DailyAggregates int           `json:"daily_aggregates"`
	Anomalies       int           `json:"anomalies"`
}

// Summary is the outcome of one full curation pass.
type Summary struct {
	RunID          string                    `json:"run_id"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
	DurationMs     int64                     `json:"duration_ms"`
	Products       *DatasetSummary           `json:"products,omitempty"`
	Weather        *DatasetSummary           `json:"weather,omitempty"`
	ConstantSeries []detector.ConstantSeries `json:"constant_series,omitempty"`
	Suggestions    []models.AlarmSuggestion  `json:"suggestions,omitempty"`
	Artifacts      []string                  `json:"artifacts"`
	SinkErrors     []string                  `json:"sink_errors,omitempty"`
}

// Status is what the tracker knows about recent runs.
type Status struct {
	Latest        *Summary  `json:"latest,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Runs          int       `json:"runs"`
	Failures      int       `json:"failures"`
}

// StatusTracker holds the latest run outcome for concurrent readers.
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

// Record stores the outcome of a pass. A failed pass keeps the previous
// successful summary.
func (s *StatusTracker) Record(summary *Summary, err error, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastAttemptAt = at
	s.status.Runs++
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
		return
	}
	s.status.LastError = ""
	s.status.Latest = summary
}

// Snapshot returns a copy of the current status.
func (s *StatusTracker) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
