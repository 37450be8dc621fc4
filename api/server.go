// Package api is the HTTP adapter over the query engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/theoremus-urban-solutions/transitcore/ingest"
	"github.com/theoremus-urban-solutions/transitcore/metrics"
	"github.com/theoremus-urban-solutions/transitcore/query"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

// StaticRefresher is the part of the static loader the adapter drives.
type StaticRefresher interface {
	Refresh(ctx context.Context, force bool) error
	Trigger()
	Status() ingest.LoaderStatus
}

// Deps are the collaborators of the HTTP handlers. Loader and Metrics may be nil.
type Deps struct {
	Engine    *query.Engine
	Store     *store.Store
	Loader    StaticRefresher
	Metrics   *metrics.Collector
	Staleness time.Duration
	Logger    *slog.Logger
}

type handlers struct {
	Deps
	now func() time.Time
}

// NewRouter wires the routes. corsOrigins defaults to any origin.
func NewRouter(d Deps, corsOrigins []string) http.Handler {
	h := &handlers{Deps: d, now: time.Now}
	return h.routes(corsOrigins)
}

func (h *handlers) routes(corsOrigins []string) http.Handler {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/routes", h.listRoutes)
		r.Get("/routes/{routeID}/vehicles", h.vehiclePositions)
		r.Get("/stops", h.searchStops)
		r.Get("/stops/{stopID}/arrivals", h.nextArrivals)
		r.Get("/alerts", h.tripAlerts)
		r.Post("/admin/static/refresh", h.refreshStatic)
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"bytes", ww.BytesWritten(), "duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// Server runs the router until its context ends.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

func NewServer(port int, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: logger.With("component", "http"),
	}
}

// Run serves until ctx is done, then shuts down gracefully within 10s.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("server shut down")
	return nil
}
