// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the store, services,
// handlers and middleware, and decides:
//   - Which URL patterns map to which handler functions
//   - Which routes need an authenticated user
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Config, slog.Logger, daykey.Resolver, the AI providers
//
// Server.New() creates:
//
//	store (sqlite or postgres) → Calendar/Outfit/Image/Analysis services → handlers
//
// This is the "composition root" pattern: all dependencies are wired in
// one place instead of being scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/outfit-calendar/internal/auth"
	"github.com/sakif/outfit-calendar/internal/config"
	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/generator"
	"github.com/sakif/outfit-calendar/internal/handler"
	"github.com/sakif/outfit-calendar/internal/middleware"
	"github.com/sakif/outfit-calendar/internal/repository"
	pgRepo "github.com/sakif/outfit-calendar/internal/repository/postgres"
	sqliteRepo "github.com/sakif/outfit-calendar/internal/repository/sqlite"
	"github.com/sakif/outfit-calendar/internal/retry"
	"github.com/sakif/outfit-calendar/internal/service"
)

// Store is everything the server needs from a database backend.
// Both repository/sqlite and repository/postgres satisfy it.
type Store interface {
	repository.DailyRecordRepository
	repository.QuotaRepository
	Ping(ctx context.Context) error
	Close() error
}

// Providers are the AI backends, built by main from config.
type Providers struct {
	Text     generator.TextGenerator
	Images   generator.ImageGenerator
	Analyzer generator.PhotoAnalyzer
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. Start() closes it after the HTTP server has
// drained, so no in-flight request loses its connection.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  Store
}

// New opens the configured database and assembles the router.
func New(ctx context.Context, cfg *config.Config, providers Providers, days *daykey.Resolver, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := newServer(cfg, store, providers, days, logger)
	if err != nil {
		store.Close() // Clean up DB if route setup fails
		return nil, err
	}
	return s, nil
}

// OpenStore picks the backend named by DB_DRIVER.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return pgRepo.New(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		// Like `mkdir -p`: the data directory may not exist on first start.
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqliteRepo.New(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func newServer(cfg *config.Config, store Store, providers Providers, days *daykey.Resolver, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	if err := s.setupRoutes(providers, days); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET  /healthz             → DB ping (public)
// GET  /api/time            → server business day + labels (public)
// GET  /api/calendar        → month entries             [auth]
// POST /api/calendar        → confirm today             [auth]
// PUT  /api/calendar/draft  → save today unconfirmed    [auth]
// POST /api/outfit          → today's outfit text       [auth]
// POST /api/outfit/image    → today's outfit picture    [auth]
// GET  /api/limit           → analyses left today       [auth]
// POST /api/analyze         → analyse an outfit photo   [auth]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (for tracing)
// 2. RealIP: extracts the client IP from proxy headers
// 3. Authenticator: resolves the identity once, so the logger can see it
// 4. Logger: logs each request with timing info and user_id
// 5. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes(providers Providers, days *daykey.Resolver) error {
	var tokens *auth.TokenService
	if s.config.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
	} else {
		s.logger.Warn("JWT_SECRET not set, only VK cookie sessions are accepted")
	}
	authenticator := auth.NewAuthenticator(tokens)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(authenticator.Middleware)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	textRetry := retry.Policy{
		Attempts:  s.config.TextRetryAttempts,
		BaseDelay: s.config.TextRetryBaseDelay,
		Retryable: generator.Retryable,
	}

	imageCfg := service.ImageConfig{
		WaitTimeout: s.config.ImageWaitTimeout,
		StaleAfter:  s.config.ImageStaleAfter,
	}
	if s.config.ImagePixelate {
		imageCfg.PixelSize = s.config.ImagePixelSize
	}

	calendarService := service.NewCalendarService(s.store, days, s.logger)
	outfitService := service.NewOutfitService(s.store, providers.Text, days,
		service.OutfitConfig{LockDuration: s.config.LockDuration, Retry: textRetry}, s.logger)
	imageService := service.NewImageService(s.store, providers.Images, days, imageCfg, s.logger)
	analysisService := service.NewAnalysisService(s.store, providers.Analyzer, days,
		service.AnalysisConfig{DailyLimit: s.config.DailyAnalysisLimit, Retry: textRetry}, s.logger)

	// === Handlers ===
	healthHandler := handler.NewHealthHandler(s.store, s.logger)
	calendarHandler := handler.NewCalendarHandler(calendarService, s.logger)
	outfitHandler := handler.NewOutfitHandler(outfitService, imageService, s.logger)
	analysisHandler := handler.NewAnalysisHandler(analysisService, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.config.RequestTimeout))

		r.Get("/time", calendarHandler.HandleTime)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Get("/calendar", calendarHandler.HandleMonth)
			r.Post("/calendar", calendarHandler.HandleConfirm)
			r.Put("/calendar/draft", calendarHandler.HandleDraft)

			r.Post("/outfit", outfitHandler.HandleOutfit)
			r.Post("/outfit/image", outfitHandler.HandleImage)

			r.Get("/limit", analysisHandler.HandleLimit)
			r.Post("/analyze", analysisHandler.HandleAnalyze)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes the SQLite WAL or drains the pgx pool)
func (s *Server) Start() error {
	defer s.store.Close()

	// WriteTimeout must outlive the per-request timeout on /api, otherwise
	// the connection is cut before the handler can answer 503.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("db_driver", s.config.DBDriver),
			slog.String("image_provider", s.config.ImageProvider),
			slog.String("timezone", s.config.Timezone),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
