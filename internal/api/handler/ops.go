// Package handler provides HTTP handlers for the operations API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/veloclimat/veloclimat/internal/api/models"
	"github.com/veloclimat/veloclimat/internal/api/response"
	"github.com/veloclimat/veloclimat/internal/pipeline"
	"github.com/veloclimat/veloclimat/internal/resilience"
)

// Pinger checks a dependency is reachable. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunnerStatus exposes the runner state.
type RunnerStatus interface {
	Running() bool
	Stats() pipeline.RunnerStats
	SinkHealth() []*resilience.SinkHealth
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version string
	store   Pinger
	runner  RunnerStatus
}

// NewOpsHandler creates a new OpsHandler. store may be nil.
func NewOpsHandler(version string, store Pinger, runner RunnerStatus) *OpsHandler {
	return &OpsHandler{version: version, store: store, runner: runner}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  models.HealthStatusOK,
		Time:    time.Now().UTC(),
		Details: map[string]any{"version": h.version},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready when the
// store answers; open sink circuits only degrade it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems(r.Context())

	status := models.HealthStatusOK
	for _, s := range subsystems {
		if s.Status == models.HealthStatusDown && s.Name == "postgis" {
			status = models.HealthStatusDown
			break
		}
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}

	code := http.StatusOK
	if status == models.HealthStatusDown {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    time.Now().UTC(),
		Details: map[string]any{"subsystems": subsystems},
	})
}

// SystemStatus handles GET /v1/ops/status - runner statistics and
// dependency state.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems(r.Context())
	status := models.HealthStatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
	}

	out := models.SystemStatus{
		Status:     status,
		Time:       time.Now().UTC(),
		Subsystems: subsystems,
	}
	if h.runner != nil {
		stats := h.runner.Stats()
		out.Running = h.runner.Running()
		out.Runs = models.RunStats{
			Total:         stats.TotalRuns,
			Succeeded:     stats.SucceededRuns,
			Failed:        stats.FailedRuns,
			LastRunID:     stats.LastRunID,
			LastRunStatus: stats.LastRunStatus,
			RowsWritten:   stats.RowsWritten,
			Skipped:       stats.SamplesSkipped,
		}
		if !stats.LastRunAt.IsZero() {
			out.Runs.LastRunAt = &stats.LastRunAt
		}
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	var out []models.SubsystemStatus

	if h.store != nil {
		s := models.SubsystemStatus{Name: "postgis", Status: models.HealthStatusOK}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.store.Ping(pingCtx); err != nil {
			s.Status = models.HealthStatusDown
			s.Detail = err.Error()
		}
		cancel()
		out = append(out, s)
	}

	if h.runner != nil {
		for _, sh := range h.runner.SinkHealth() {
			out = append(out, sinkStatus(sh))
		}
	}
	return out
}

func sinkStatus(h *resilience.SinkHealth) models.SubsystemStatus {
	s := models.SubsystemStatus{
		Name:          h.Name,
		CircuitState:  h.CircuitState.String(),
		LastSuccessAt: h.LastSuccessAt,
		LastFailureAt: h.LastFailureAt,
		Detail:        h.LastError,
	}
	switch {
	case h.IsHealthy():
		s.Status = models.HealthStatusOK
	case h.IsDegraded():
		s.Status = models.HealthStatusDegraded
	case h.CircuitState == gobreaker.StateOpen:
		s.Status = models.HealthStatusDown
	}
	return s
}
