// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Confirmation outcomes recorded on ConfirmationsResolved.
const (
	OutcomeApplied      = "applied"
	OutcomeExpired      = "expired"
	OutcomeInvalidToken = "invalid_token"
	OutcomeInvalidValue = "invalid_value"
	OutcomeNotFound     = "not_found"
	OutcomeAlreadyUsed  = "already_used"
	OutcomeError        = "error"
)

var (
	// ConfirmationsIssued counts confirmation emails dispatched, by action.
	ConfirmationsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolveit_confirmations_issued_total",
		Help: "Total number of confirmation links dispatched",
	}, []string{"action"})

	// ConfirmationsResolved counts confirmation attempts by action and outcome.
	ConfirmationsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolveit_confirmations_resolved_total",
		Help: "Total number of confirmation link attempts by outcome",
	}, []string{"action", "outcome"})

	// MailDispatchFailures counts notifier errors by stage: "request" when the
	// API server fails to hand an email off, "deliver" when the mailer fails
	// to send a queued one.
	MailDispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resolveit_mail_dispatch_failures_total",
		Help: "Total number of failed email dispatches",
	}, []string{"stage"})

	// HTTPRequestDuration records request latency by route pattern and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resolveit_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveRequest records one served request.
func ObserveRequest(method, route string, status int, start time.Time) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// Middleware records HTTPRequestDuration for every request, labelled with
// the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ObserveRequest(r.Method, route, status, start)
	})
}
