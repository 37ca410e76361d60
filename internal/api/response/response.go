// Package response writes the operations API responses: JSON bodies and
// problem documents stamped with the request id.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/veloclimat/veloclimat/internal/api/middleware"
	"github.com/veloclimat/veloclimat/internal/api/models"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// RunRetryAfter is the delay suggested to clients whose trigger collided
// with a run in progress. Runs are hourly and usually take a few minutes.
const RunRetryAfter = 5 * time.Minute

// RunAccepted writes a 202 Accepted response for a started run, pointing
// Location at the run resource, and tags the request with the run id.
func RunAccepted(w http.ResponseWriter, r *http.Request, runID, trigger string) {
	middleware.TagRun(r.Context(), runID)
	w.Header().Set("Location", "/v1/runs/"+runID)
	w.Header().Set(middleware.RunIDHeader, runID)
	JSON(w, r, http.StatusAccepted, models.RunAccepted{RunID: runID, Trigger: trigger})
}

// RunInProgress writes a 409 Conflict response for a trigger that found a
// run already going.
func RunInProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(int(RunRetryAfter.Seconds())))
	Conflict(w, r, "a run is already in progress")
}

// LedgerUnavailable writes a 503 response when no run ledger is configured.
func LedgerUnavailable(w http.ResponseWriter, r *http.Request) {
	ServiceUnavailable(w, r, "run ledger not configured")
}

// Error writes a Problem+JSON error response for the request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// Conflict writes a 409 Conflict error response.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewConflict(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}
