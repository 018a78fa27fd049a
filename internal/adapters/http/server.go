package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/longregen/reprompt/internal/adapters/http/handlers"
	"github.com/longregen/reprompt/internal/adapters/http/middleware"
	"github.com/longregen/reprompt/internal/config"
	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	runs       handlers.SearchRunner
	defaults   models.SearchConfig
	health     *handlers.HealthHandler
	logger     ports.Logger
}

func NewServer(
	cfg config.ServerConfig,
	runs handlers.SearchRunner,
	defaults models.SearchConfig,
	health *handlers.HealthHandler,
	logger ports.Logger,
) *Server {
	if health == nil {
		health = handlers.NewHealthHandler("")
	}
	s := &Server{
		config:   cfg,
		runs:     runs,
		defaults: defaults,
		health:   health,
		logger:   logger,
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.config.CORSOrigins))
	r.Use(middleware.Metrics)

	r.Get("/health", s.health.Handle)
	r.Get("/health/detailed", s.health.HandleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		searches := handlers.NewSearchesHandler(s.runs, s.defaults, s.logger).WithPathPolicy(handlers.PathPolicy{
			ReferenceRoot: s.config.ReferenceRoot,
			OutputRoot:    s.config.OutputRoot,
		})
		r.Post("/searches", searches.Create)
		r.Get("/searches", searches.List)
		r.Get("/searches/{id}", searches.Get)
		r.Get("/searches/{id}/trace", searches.Trace)
	})

	s.router = r
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Start serves until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", map[string]any{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server", nil)
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
