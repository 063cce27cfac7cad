// Package api serves the read and index operations of an app.App over HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /api/search?q=...&corpus=gamedata&mode=auto&limit=10
//	POST /api/search                {"query": "...", "corpora": [...], "mode": "...", "limit": 10}
//	GET  /api/status?corpus=gamedata
//	GET  /api/nodes/{id}
//	GET  /api/nodes/{id}/edges?direction=out|in|both&type=DROPS_ITEM
//	POST /api/index                 {"corpora": ["gamedata"]}
//
// Node ids contain slashes, so {id} must be path-escaped
// (gamedata:Item%2FTorch.json).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/lorekeeper/internal/app"
)

// Server holds the HTTP server dependencies
type Server struct {
	app    *app.App
	logger *slog.Logger
}

// New creates a new API server
func New(a *app.App) *Server {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{app: a, logger: logger}
}

// Router returns the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.Search)
		r.Post("/search", s.Search)
		r.Get("/status", s.Status)
		r.Get("/nodes/{id}", s.GetNode)
		r.Get("/nodes/{id}/edges", s.GetEdges)
		r.Post("/index", s.Index)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Background healing runs for the lifetime of the server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.app.Serve(ctx)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.start", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http.shutdown", "addr", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
