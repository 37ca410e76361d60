package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "veloclimat/api"

// Span attributes shared with the pipeline spans, so an API trigger and the
// run it started can be joined.
const (
	AttrRunID    = attribute.Key("run.id")
	AttrOperator = attribute.Key("run.operator")
)

// Tracing starts a server span per request, continuing any trace context
// carried by the request headers (a Cloud Scheduler or Pub/Sub push, for
// instance). Once the handler has run the span is renamed after the matched
// route and tagged with the operator and started run, if any.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request.id", GetRequestID(ctx)),
			),
		)
		defer span.End()

		wrapped := newStatusRecorder(w)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
		if op := taggedOperator(ctx); op != "" {
			span.SetAttributes(AttrOperator.String(op))
		}
		if runID := GetRunID(ctx); runID != "" {
			span.SetAttributes(AttrRunID.String(runID))
			span.AddEvent("run started")
		}

		span.SetAttributes(attribute.Int("http.response.status_code", wrapped.statusCode))
		switch {
		case wrapped.statusCode == http.StatusConflict:
			span.AddEvent("run already in progress")
		case wrapped.statusCode >= http.StatusInternalServerError:
			span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
		}
	})
}
