package models

import "time"

// HealthStatus is the coarse state of the service or one of its parts.
type HealthStatus string

// Health statuses.
const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusDown     HealthStatus = "DOWN"
)

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    time.Time      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus represents the state of the runner and its dependencies.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       time.Time         `json:"time"`
	Running    bool              `json:"running"`
	Runs       RunStats          `json:"runs"`
	Subsystems []SubsystemStatus `json:"subsystems"`
}

// RunStats summarizes the runs since the process started.
type RunStats struct {
	Total         int64      `json:"total"`
	Succeeded     int64      `json:"succeeded"`
	Failed        int64      `json:"failed"`
	LastRunID     string     `json:"lastRunId,omitempty"`
	LastRunStatus string     `json:"lastRunStatus,omitempty"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	RowsWritten   int64      `json:"rowsWritten"`
	Skipped       int64      `json:"samplesSkipped"`
}

// SubsystemStatus represents the status of the store or of a sink.
type SubsystemStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState,omitempty"`
	LastSuccessAt *time.Time   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *time.Time   `json:"lastFailureAt,omitempty"`
	Detail        string       `json:"detail,omitempty"`
}

// RunAccepted is returned when a run has been started.
type RunAccepted struct {
	RunID   string `json:"runId"`
	Trigger string `json:"trigger"`
}
