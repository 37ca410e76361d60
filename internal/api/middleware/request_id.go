// Package middleware provides HTTP middleware for the operations API.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// RunIDHeader carries the id of the run a request started.
const RunIDHeader = "X-Run-Id"

type requestIDKey struct{}

type tagsKey struct{}

// requestTags is filled in while the request is served, so that the
// outer middleware can log and trace which operator started which run.
type requestTags struct {
	runID    string
	operator string
}

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// RequestID propagates the X-Request-Id header, generating one when it is
// missing or malformed, and stores it in the request context together
// with an empty set of run tags.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if !validRequestID.MatchString(requestID) {
			requestID = newRequestID()
		}

		w.Header().Set("X-Request-Id", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, tagsKey{}, &requestTags{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID returns a time-ordered id so that request ids sort the
// same way as the worker logs. It falls back to a random id.
func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return "req_" + id.String()
	}
	return "req_" + uuid.NewString()
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// TagRun records the run started while serving the request. It is a
// no-op outside RequestID.
func TagRun(ctx context.Context, runID string) {
	if t, ok := ctx.Value(tagsKey{}).(*requestTags); ok {
		t.runID = runID
	}
}

// GetRunID returns the run tagged on the request, if any.
func GetRunID(ctx context.Context) string {
	if t, ok := ctx.Value(tagsKey{}).(*requestTags); ok {
		return t.runID
	}
	return ""
}

func tagOperator(ctx context.Context, operator string) {
	if t, ok := ctx.Value(tagsKey{}).(*requestTags); ok {
		t.operator = operator
	}
}

// taggedOperator returns the operator recorded by RequireScope further
// down the chain.
func taggedOperator(ctx context.Context) string {
	if t, ok := ctx.Value(tagsKey{}).(*requestTags); ok {
		return t.operator
	}
	return ""
}
