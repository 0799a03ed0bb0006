// Package server exposes simulated companies over HTTP: read tables and
// summaries, create companies, advance them and apply shocks. Persisted days
// are pushed to WebSocket subscribers through Hub.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
	"github.com/worldsim/worldsim/sim/metrics"
	"github.com/worldsim/worldsim/sim/store"
)

// Server holds the HTTP handlers.
type Server struct {
	svc *company.Service
	hub *Hub // optional
}

// New creates a server. Pass nil for hub to disable the WebSocket feed.
func New(svc *company.Service, hub *Hub) *Server {
	return &Server{svc: svc, hub: hub}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "worldsim"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
		r.Get("/shocks", s.listShocks)

		// Long-running simulation requests get no timeout; reads do.
		r.Post("/companies", s.createCompany)
		r.Post("/companies/{companyID}/advance", s.advanceCompany)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/companies", s.listCompanies)
			r.Get("/companies/{companyID}", s.getCompany)
			r.Get("/companies/{companyID}/summary", s.getSummary)
			r.Get("/companies/{companyID}/tables/{table}", s.getTable)
			r.Post("/companies/{companyID}/shocks/{shock}", s.applyShock)
		})
	})
	return r
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service and store errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		cfgErr   *sim.ConfigurationError
		rangeErr *sim.InvalidRangeError
		histErr  *sim.InsufficientHistoryError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrExists), errors.Is(err, store.ErrOutOfOrder), errors.As(err, &histErr):
		status = http.StatusConflict
	case errors.Is(err, company.ErrUnknownShock), errors.As(err, &cfgErr), errors.As(err, &rangeErr):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logrus.Errorf("request failed: %v", err)
	}
	writeError(w, err.Error(), status)
}
