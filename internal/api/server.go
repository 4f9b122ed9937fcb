// Package api exposes the HTTP control surface: campaign creation, status,
// manual stage runs, launch, cancel, reschedule, and job inspection.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-pilot/internal/pkg/logger"
)

// Server is the HTTP control-surface server.
type Server struct {
	handlers *Handlers
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates the server and wires its routes.
func NewServer(h *Handlers) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/campaigns", h.CreateCampaign)
		r.Get("/campaigns/{name}", h.CampaignStatus)

		r.Route("/schedules/{id}", func(r chi.Router) {
			r.Post("/preflight", h.RunPreFlight)
			r.Post("/launch", h.Launch)
			r.Post("/wrapup", h.RunWrapUp)
			r.Post("/cancel", h.Cancel)
			r.Post("/reschedule", h.Reschedule)
			r.Get("/jobs", h.JobStatus)
		})

		r.Get("/jobs/dead-letters", h.DeadLetters)
		r.Get("/jobs/failed", h.FailedNotifications)
	})

	return &Server{handlers: h, router: r}
}

// requestLogger emits one structured entry per request. Request bodies carry
// sender addresses, so the entry sticks to routing metadata and the logger's
// redaction covers anything that leaks into the path.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		// Stage runs invoked synchronously can take up to the stage budget.
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
