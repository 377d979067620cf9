// Package server provides the HTTP front end.
//
// Endpoints:
//
//	GET  /         upload form
//	POST /         upload an image and wait for its greyscale version
//	GET  /healthz  liveness probe
//	GET  /metrics  prometheus metrics
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the handler and the metrics endpoint into a chi router.
func NewRouter(h *Handler, metricsHandler http.Handler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/", h.Form)
	r.Post("/", h.Upload)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}

// Server wraps http.Server with timeouts suited to long-polling uploads.
type Server struct {
	srv *http.Server
}

// New creates a Server on addr. writeTimeout must exceed the poll budget,
// otherwise the result page is cut off.
func New(addr string, handler http.Handler, writeTimeout time.Duration) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
