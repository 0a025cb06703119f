// Package api provides the HTTP API used by the web app.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"points-ledger-bot/internal/config"
)

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(cfg config.APIConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/user/{id}", h.GetUser)
		r.Post("/daily_claim/{id}", h.DailyClaim)
		r.Post("/social_visit/{id}", h.SocialVisit)
		r.Get("/activities/{id}", h.Activities)
		r.Get("/leaderboard", h.Leaderboard)
		r.Post("/withdraw/{id}", h.Withdraw)
		r.Get("/withdrawals/{id}", h.Withdrawals)
	})

	return r
}

// Server wraps http.Server with start and graceful shutdown.
type Server struct {
	srv *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg config.APIConfig, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Starting API server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping API server...")
	return s.srv.Shutdown(ctx)
}
