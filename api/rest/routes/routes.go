package routes

import (
	"net/http"
	"time"

	"lora-console/api/rest/handlers"
	"lora-console/core/monitoring"
	"lora-console/core/view"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRoutes configures all control panel routes
func SetupRoutes(r *mux.Router, ctrl handlers.Controller, artifactURL view.URLFunc, logger *zap.Logger) {
	jobHandler := handlers.NewJobHandler(ctrl, logger)
	dashboardHandler := handlers.NewDashboardHandler(ctrl.Store(), artifactURL)

	r.Use(requestLogger(logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	registry := prometheus.NewRegistry()
	registry.MustRegister(monitoring.NewStoreCollector(ctrl.Store()))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()

	// View state
	api.HandleFunc("/state", dashboardHandler.GetState).Methods("GET")
	api.HandleFunc("/dashboard", dashboardHandler.GetDashboard).Methods("GET")
	api.HandleFunc("/suggest", dashboardHandler.Suggest).Methods("POST")

	// Job endpoints
	api.HandleFunc("/select/{id:[0-9]+}", jobHandler.SelectJob).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.SubmitJob).Methods("POST")
	api.HandleFunc("/jobs/{id:[0-9]+}/actions", jobHandler.GetActions).Methods("GET")
	api.HandleFunc("/jobs/{id:[0-9]+}/start", jobHandler.StartJob).Methods("POST")
	api.HandleFunc("/jobs/{id:[0-9]+}/stop", jobHandler.StopJob).Methods("POST")
}

func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("handled request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", id),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
