package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. The span starts out named after
// the method and path; otelhttp names it again once routing has set the
// request pattern, and by then the chi route pattern is known, e.g.
// "GET /api/v1/payments/{id}".
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			if pattern := routePattern(r); pattern != unmatchedRoute {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.route", pattern))
			}
		})

		return otelhttp.NewHandler(routed, "http.request",
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}

func spanName(_ string, r *http.Request) string {
	if pattern := routePattern(r); pattern != unmatchedRoute {
		return r.Method + " " + pattern
	}
	return r.Method + " " + r.URL.Path
}
