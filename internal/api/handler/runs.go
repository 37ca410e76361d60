package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/api/middleware"
	"github.com/veloclimat/veloclimat/internal/api/response"
	"github.com/veloclimat/veloclimat/internal/ledger"
	"github.com/veloclimat/veloclimat/internal/pipeline"
)

const maxListLimit = 100

// RunStarter starts runs in the background.
type RunStarter interface {
	Start(ctx context.Context, trigger string) (string, error)
}

// RunHistory reads recorded runs.
type RunHistory interface {
	List(ctx context.Context, limit int) ([]pipeline.RunResult, error)
	Get(ctx context.Context, id string) (*pipeline.RunResult, error)
}

// RunsHandler handles the run endpoints.
type RunsHandler struct {
	// ctx outlives requests: runs keep going after the trigger responds.
	ctx     context.Context
	starter RunStarter
	history RunHistory
}

// NewRunsHandler creates a RunsHandler. Runs started through it are bound
// to ctx. history may be nil when no ledger is configured.
func NewRunsHandler(ctx context.Context, starter RunStarter, history RunHistory) *RunsHandler {
	return &RunsHandler{ctx: ctx, starter: starter, history: history}
}

// TriggerRun handles POST /v1/runs.
func (h *RunsHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	trigger := "api"
	if op := middleware.GetOperator(r.Context()); op != "" {
		trigger += ":" + op
	}

	id, err := h.starter.Start(h.ctx, trigger)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		response.RunInProgress(w, r)
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to start run")
		response.InternalError(w, r, "failed to start run")
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("run_id", id).Str("trigger", trigger).Msg("run started")
	response.RunAccepted(w, r, id, trigger)
}

// ListRuns handles GET /v1/runs?limit=n.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.LedgerUnavailable(w, r)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			response.BadRequest(w, r, "limit must be an integer between 1 and 100")
			return
		}
		limit = n
	}

	runs, err := h.history.List(r.Context(), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list runs")
		response.InternalError(w, r, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []pipeline.RunResult{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"items": runs, "limit": limit})
}

// GetRun handles GET /v1/runs/{runId}.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		response.LedgerUnavailable(w, r)
		return
	}

	run, err := h.history.Get(r.Context(), chi.URLParam(r, "runId"))
	if errors.Is(err, ledger.ErrRunNotFound) {
		response.NotFound(w, r, "run not found")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to get run")
		response.InternalError(w, r, "failed to get run")
		return
	}
	response.JSON(w, r, http.StatusOK, run)
}
