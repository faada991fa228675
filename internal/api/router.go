package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/internal/metrics"
)

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// /health and /metrics are unauthenticated; everything under /api
// requires a bearer token. The artifact download routes are exempt from
// the request timeout because encrypted audio streams may legitimately
// run for minutes.
func NewRouter(h *Handler, jwtService *JWTService, m *metrics.Metrics,
	registry *prometheus.Registry, requestTimeout time.Duration) http.Handler {

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(metricsMiddleware(m))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONOK(w, map[string]any{"status": "healthy", "timestamp": time.Now().UTC()})
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(jwtService.RequireAuth)

		// Streaming downloads: no request timeout.
		r.Get("/audio/{id}", h.Audio)
		r.Get("/data/{id}/{kind}", h.Data)
		r.Get("/data/{id}", h.DataCombined)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/join", h.Join)
			r.Post("/leave", h.Leave)
			r.Get("/status/{id}", h.Status)
			r.Get("/meetings", h.ListMeetings)
			r.Post("/edit/{id}", h.Edit)
			r.Post("/verify", h.Verify)
			r.Get("/history/{id}", h.History)
			r.Get("/revision/{rid}/content", h.RevisionContent)
			r.Post("/revert/{id}", h.Revert)
			r.Post("/meeting/{id}/checkout", h.Checkout)
			r.Delete("/meeting/{id}", h.DeleteMeeting)
			r.Post("/retry/{id}", h.Retry)
		})
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// metricsMiddleware records per-route request counts and latencies.
// The chi route pattern keeps label cardinality bounded.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
