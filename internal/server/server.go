// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "load config, start the server")
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config → Server.New() creates:
//   store (sqlite.DB or postgres.Store) → AuthService + PackageService
//   → AuthHandler + PackageHandler + EventsHandler + UploadHandler
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/KeyWizardDev/keywizard/internal/auth"
	"github.com/KeyWizardDev/keywizard/internal/config"
	"github.com/KeyWizardDev/keywizard/internal/handler"
	"github.com/KeyWizardDev/keywizard/internal/live"
	"github.com/KeyWizardDev/keywizard/internal/middleware"
	"github.com/KeyWizardDev/keywizard/internal/repository"
	"github.com/KeyWizardDev/keywizard/internal/repository/postgres"
	sqliteRepo "github.com/KeyWizardDev/keywizard/internal/repository/sqlite"
	"github.com/KeyWizardDev/keywizard/internal/service"
)

// store is the storage backend as the server sees it: both repository
// interfaces plus a Close for shutdown. sqlite.DB and postgres.Store both
// satisfy it, and nothing past this point knows which one is live.
type store interface {
	repository.UserRepository
	repository.PackageRepository
	io.Closer
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the storage backend. When the server shuts down we must
// close it — for SQLite that flushes the WAL and releases the file lock, for
// Postgres it drains the connection pool. Handled in Start() during graceful
// shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     store
	hub    *live.Hub
}

// New creates a new Server with the given config.
//
// STORAGE SELECTION:
// DATABASE_URL set → Postgres (deployments that already run one).
// Otherwise → embedded SQLite at DB_PATH. Both implement the same repository
// interfaces, so the choice is invisible above this function.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	var (
		db  store
		err error
	)
	if cfg.DatabaseURL != "" {
		db, err = postgres.New(context.Background(), cfg.DatabaseURL)
	} else {
		db, err = sqliteRepo.New(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		hub:    live.NewHub(logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                           → SPA shell (index.html)
//	GET    /static/*                   → Static files (CSS, JS, images)
//	GET    /uploads/*                  → Uploaded package images
//	GET    /auth/google/login          → Start the OAuth flow
//	GET    /auth/google/callback       → Complete the OAuth flow
//	POST   /auth/logout                → Clear the session cookie
//	GET    /api/me                     → Current user profile       [auth]
//	GET    /api/packages               → List the full catalog
//	GET    /api/packages/{id}          → Get one package
//	POST   /api/packages               → Publish a package          [auth]
//	PUT    /api/packages/{id}          → Replace a package          [auth+owner]
//	DELETE /api/packages/{id}          → Delete a package           [auth+owner]
//	POST   /api/packages/{id}/download → Count a download
//	POST   /api/upload                 → Upload a package image     [auth]
//	GET    /api/events                 → Live change stream (SSE)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Logger — logs each request with timing info
// 4. Recoverer — catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	// These run on EVERY request, in order

	// Chi's built-in middleware
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500

	// Our custom logging middleware
	s.router.Use(middleware.Logger(s.logger))

	// === Static Files ===
	// http.FileServer serves files from the filesystem.
	// http.StripPrefix removes the route prefix before the filesystem lookup:
	// GET /static/css/app.css → serves {StaticDir}/css/app.css
	staticServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", staticServer))

	// Uploaded package images live outside the static dir so a redeploy
	// (which replaces StaticDir) never touches user content.
	uploadServer := http.FileServer(http.Dir(s.config.UploadDir))
	s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", uploadServer))

	// The SPA shell. Client-side routing handles everything under /.
	indexPath := filepath.Join(s.config.StaticDir, "index.html")
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, indexPath)
	})

	// === Auth Wiring ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	authService := service.NewAuthService(s.db, tokens, s.logger)

	// Without Google credentials the OAuth routes can't work. We still start
	// (the catalog is publicly browsable) but log loudly: nobody can sign in,
	// so nobody can publish.
	if s.config.GoogleClientID != "" && s.config.GoogleClientSecret != "" {
		google := auth.NewGoogleProvider(
			s.config.GoogleClientID,
			s.config.GoogleClientSecret,
			s.config.GoogleCallbackURL,
		)
		authHandler := handler.NewAuthHandler(google, authService, s.logger)

		s.router.Get("/auth/google/login", authHandler.HandleGoogleLogin)
		s.router.Get("/auth/google/callback", authHandler.HandleGoogleCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)

		s.router.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/api/me", authHandler.HandleMe)
		})
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET not set — sign-in is disabled")
	}

	// === API Routes ===
	// DEPENDENCY CHAIN:
	//   s.db → implements repository.PackageRepository
	//   PackageService receives the repository interface and the hub
	//   PackageHandler receives the service
	//
	// Notice: the handler never touches the database directly.
	// The service never touches HTTP. Clean separation!
	packageService := service.NewPackageService(s.db, s.hub, s.logger)
	packageHandler := handler.NewPackageHandler(packageService, s.logger)
	eventsHandler := handler.NewEventsHandler(s.hub, s.logger)
	uploadHandler := handler.NewUploadHandler(s.config.UploadDir, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// Public: browsing, downloading, and the live stream need no account.
		// OptionalAuth still resolves an identity when a valid token rides
		// along (the UI highlights the caller's own packages) but never
		// rejects, and the results are the same for everyone.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Get("/packages", packageHandler.HandleList)
			r.Get("/packages/{id}", packageHandler.HandleGet)
			r.Post("/packages/{id}/download", packageHandler.HandleDownload)
		})
		r.Get("/events", eventsHandler.HandleStream)

		// Authenticated: publishing and editing
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Post("/packages", packageHandler.HandleCreate)
			r.Put("/packages/{id}", packageHandler.HandleUpdate)
			r.Delete("/packages/{id}", packageHandler.HandleDelete)
			r.Post("/upload", uploadHandler.HandleUpload)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (10s timeout)
// 3. Force-close whatever is left — in practice, the SSE streams
// 4. Close the storage backend
//
// Step 3 matters: Shutdown() WAITS for active connections and an event
// stream never finishes on its own, so a server with one connected browser
// would otherwise hang until the timeout on every restart. Close() severs
// those connections; the browser's EventSource reconnects when we're back.
func (s *Server) Start() error {
	// Ensure the database is closed when the server stops.
	// This runs AFTER everything else in this function finishes.
	defer s.db.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
		// No WriteTimeout: it would sever every SSE stream after the deadline.
		// Slowloris-style read abuse is still bounded by ReadHeaderTimeout.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		// Server failed to start
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		// Received shutdown signal
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			// The deadline passed with connections still open — almost
			// certainly SSE streams. Sever them and move on.
			s.logger.Info("forcing close of remaining connections", slog.String("reason", err.Error()))
			if err := srv.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
