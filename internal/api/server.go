// Package api exposes the forecasting engine over HTTP as a JSON API.
// Every computation endpoint resolves a reporting period from query
// parameters, delegates to the forecast service, and renders the service
// response unchanged so CLI and API consumers see identical field names.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/metrics"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
	"github.com/sells-group/forecast-cli/internal/store"
)

// Server wires the forecast service, the settings store, and the snapshot
// history into one router.
type Server struct {
	svc      *forecast.Service
	settings *scoring.SettingsStore
	store    store.Store

	defaultPeriod  model.Period
	excludeOverdue bool
}

// Options carry the config-level defaults applied when a request does not
// specify its own period or overdue handling.
type Options struct {
	DefaultPeriod  string
	ExcludeOverdue bool
}

func NewServer(svc *forecast.Service, settings *scoring.SettingsStore, st store.Store, opts Options) *Server {
	period, err := model.ParsePeriod(opts.DefaultPeriod)
	if err != nil {
		period = model.PeriodThisQuarter
	}
	return &Server{
		svc:            svc,
		settings:       settings,
		store:          st,
		defaultPeriod:  period,
		excludeOverdue: opts.ExcludeOverdue,
	}
}

// Routes builds the full router: health and metrics at the root, the JSON
// API under /api/v1.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/forecast", s.handleForecast)
		r.Get("/reps", s.handleReps)
		r.Post("/scenario", s.handleScenario)
		r.Get("/settings", s.handleSettings)
		r.Get("/settings/defaults", s.handleSettingsDefaults)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/snapshots", s.handleSnapshots)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
