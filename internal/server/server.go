// Package server exposes the watcher's health, metrics, and status API
// over HTTP. It serves process state only; nothing here touches the CAD
// page or the seen store directly.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vladse1/CHP/internal/watch"
)

// Watcher is the slice of watch.Watcher the server reads from.
type Watcher interface {
	Ready() bool
	Status(ctx context.Context) watch.Status
	Recent() []watch.DispatchedIncident
}

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
}

// New creates the server with its routes mounted.
func New(addr string, w Watcher) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(w))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handleStatus(w))
		r.Get("/incidents", handleIncidents(w))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router: r,
	}
}

// Start begins listening. It returns http.ErrServerClosed after a graceful
// shutdown.
func (s *Server) Start() error {
	zap.L().Info("status server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, which lets tests drive the server
// without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(watcher Watcher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !watcher.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func handleStatus(watcher Watcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		writeJSON(w, http.StatusOK, watcher.Status(ctx))
	}
}

func handleIncidents(watcher Watcher) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		recent := watcher.Recent()
		writeJSON(w, http.StatusOK, map[string]any{
			"count":     len(recent),
			"incidents": recent,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
