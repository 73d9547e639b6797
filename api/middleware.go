package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tarancss/chainquery/auth"
	"github.com/tarancss/chainquery/lib/msg"
)

// RequestIDHeader carries the request id, generated when the client does not send one.
const RequestIDHeader = "X-Request-Id"

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "chainquery_http_request_duration_seconds",
	Help:    "HTTP request latencies by route, method and status.",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "method", "status"})

type requestIDCtx struct{}

// RequestIDFromContext returns the id of the request ctx belongs to.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtx{}).(string)

	return id
}

func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		rw.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDCtx{}, id)))
	})
}

// statusRecorder remembers the status code written.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}

	return r.URL.Path
}

// instrument logs every request and observes its latency.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		requestDuration.WithLabelValues(routeOf(r), r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())

		a.log.Debug("httpreq", slog.String("requestId", RequestIDFromContext(r.Context())),
			slog.String("remote", r.RemoteAddr), slog.String("method", r.Method), slog.String("uri", r.RequestURI),
			slog.Int("status", rec.status), slog.Duration("elapsed", elapsed))
	})
}

// usage publishes a usage event for every authorized request once it has been served.
func (a *API) usage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		key, _ := auth.KeyFromContext(r.Context())
		e := msg.UsageEvent{
			RequestID: RequestIDFromContext(r.Context()),
			Key:       auth.Fingerprint(key),
			Method:    r.Method,
			Route:     routeOf(r),
			Status:    rec.status,
			Duration:  time.Since(start),
			Time:      start.UTC(),
		}

		if err := a.mb.PublishUsage(e); err != nil {
			a.log.Warn("Cannot publish usage event", slog.String("requestId", e.RequestID), slog.Any("error", err))
		}
	})
}
