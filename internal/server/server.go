// Package server is the composition root: it opens the store, builds the
// service and handlers, mounts them on a chi router and runs the HTTP server
// until a shutdown signal arrives.
//
// DEPENDENCY FLOW:
//
//	config.Config → openStore → repository.Store (sqlite | mysql | postgres)
//	              → service.UserService → handler.UserHandler → routes
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
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/sakif/user-directory/internal/auth"
	"github.com/sakif/user-directory/internal/config"
	_ "github.com/sakif/user-directory/internal/docs" // swagger spec
	"github.com/sakif/user-directory/internal/handler"
	"github.com/sakif/user-directory/internal/middleware"
	"github.com/sakif/user-directory/internal/repository"
	"github.com/sakif/user-directory/internal/repository/mysql"
	"github.com/sakif/user-directory/internal/repository/postgres"
	"github.com/sakif/user-directory/internal/repository/sqlite"
	"github.com/sakif/user-directory/internal/service"
)

// Server owns the router and the store. The store is closed when Start
// returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens the store selected by cfg.DBDriver and wires the server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.DBDriver, err)
	}
	return NewWithStore(cfg, store, logger), nil
}

// NewWithStore wires the server around an already open store.
func NewWithStore(cfg config.Config, store repository.Store, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.setupRoutes()
	return s
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqlite.New(cfg.DBPath)
	case config.DriverMySQL:
		return mysql.New(ctx, cfg.DBDSN)
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
	}
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts middleware and routes.
//
//	GET    /livez            liveness
//	GET    /readyz           readiness (store ping)
//	GET    /swagger/*        API docs
//	POST   /user/signup      create user
//	POST   /user/signin      check credentials (rate limited per IP)
//	GET    /user/users       list users
//	GET    /user/{userid}    get user
//	PUT    /user/{userid}    update user
//	DELETE /user/{userid}    delete user
//
// Middleware runs in the order added: request id, real client IP, panic
// recovery, then request logging.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	passwords := auth.NewPasswordService(s.config.BcryptCost)
	users := service.NewUserService(s.store, passwords, s.logger)
	userHandler := handler.NewUserHandler(users, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	signInLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		Requests: s.config.SignInRateRequests,
		Window:   s.config.SignInRateWindow,
		Burst:    s.config.SignInRateBurst,
	}, s.logger)

	s.router.Get("/livez", healthHandler.HandleLivez)
	s.router.Get("/readyz", healthHandler.HandleReadyz)
	s.router.Get("/swagger/*", httpSwagger.Handler())

	// chi tries static segments before {userid}: GET /user/users lists
	// users instead of looking up a user named "users".
	s.router.Route("/user", func(r chi.Router) {
		r.Post("/signup", userHandler.HandleSignUp)
		r.With(signInLimit).Post("/signin", userHandler.HandleSignIn)
		r.Get("/users", userHandler.HandleList)
		r.Get("/{userid}", userHandler.HandleGet)
		r.Put("/{userid}", userHandler.HandleUpdate)
		r.Delete("/{userid}", userHandler.HandleDelete)
	})
}

// Start serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for up to the configured grace period and
// closes the store.
func (s *Server) Start(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.config.DBDriver),
			slog.String("env", s.config.Env),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
