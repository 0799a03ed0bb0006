// Package metrics provides Prometheus instrumentation for the world simulator.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DaysSimulated counts persisted simulated days, partitioned by how
	// they were produced ("create" or "advance").
	DaysSimulated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldsim_days_simulated_total",
		Help: "Total number of simulated days persisted",
	}, []string{"mode"})

	// CompaniesCreated counts companies created.
	CompaniesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldsim_companies_created_total",
		Help: "Total number of companies created",
	})

	// ShocksApplied counts applied shock scenarios by name.
	ShocksApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldsim_shocks_applied_total",
		Help: "Total number of shock scenarios applied",
	}, []string{"shock"})

	// UnitsSold counts units sold across all companies.
	UnitsSold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldsim_units_sold_total",
		Help: "Units sold across all simulated days",
	})

	// LostDemand counts demand that could not be served from stock.
	LostDemand = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldsim_lost_demand_total",
		Help: "Units of demand lost to stockouts",
	})

	// PersistDuration tracks how long the store takes to append one day.
	PersistDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worldsim_day_persist_seconds",
		Help:    "Time to append one simulated day to the store",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// StoreErrors counts failed store operations by operation name.
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldsim_store_errors_total",
		Help: "Failed store operations",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worldsim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldsim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worldsim_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi route pattern so company IDs do not
// become label values. Falls back to the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
