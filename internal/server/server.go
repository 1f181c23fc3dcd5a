package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deckofthoughts/apiserver/config"
	"github.com/deckofthoughts/apiserver/internal/auth"
	"github.com/deckofthoughts/apiserver/internal/db"
	"github.com/deckofthoughts/apiserver/internal/events"
	"github.com/deckofthoughts/apiserver/internal/handlers"
	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/deckofthoughts/apiserver/internal/mq"
	"github.com/deckofthoughts/apiserver/internal/services"
	"github.com/deckofthoughts/apiserver/internal/storage"
	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const requestTimeout = 60 * time.Second

// Deps are the services the HTTP router is built from. Exports is nil when
// no object storage backend is configured.
type Deps struct {
	Auth    *services.AuthService
	Cards   *services.CardService
	Exports *services.ExportService
	Tokens  handlers.TokenVerifier
	DB      handlers.Pinger
	Log     *logger.Logger
}

// Server wraps the HTTP server and the connections it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	storage    *storage.Storage
	queue      *mq.MQ
	log        *logger.Logger
}

// New connects to the database and the optional storage and event
// backends, then builds the HTTP server.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Server{db: dbConn, log: log}

	userRepo := store.NewUserRepository(dbConn)
	cardRepo := store.NewCardRepository(dbConn)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var publisher services.EventPublisher
	if !isNone(cfg.MQ.Backend) {
		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		s.queue = queue
		publisher = events.NewPublisher(queue)
		log.Info("card events enabled", "backend", cfg.MQ.Backend, "channel", queue.Channel())
	}

	var exports *services.ExportService
	if !isNone(cfg.Storage.Backend) {
		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		s.storage = objects
		exports = services.NewExportService(cardRepo, objects)
		log.Info("card export enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	authService, err := services.NewAuthService(userRepo, tokens, services.PasswordPolicy{
		MinLength:  cfg.Auth.PasswordMinLength,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	if err != nil {
		_ = s.close()
		return nil, err
	}
	cardService := services.NewCardService(cardRepo, publisher, log.With("component", "cards"))

	router := NewRouter(cfg.HTTP, Deps{
		Auth:    authService,
		Cards:   cardService,
		Exports: exports,
		Tokens:  tokens,
		DB:      dbConn,
		Log:     log,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withCORS(router, cfg.HTTP.AllowedOrigins),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	return s, nil
}

// NewRouter mounts the API under cfg.APIPrefix, /healthz at the root and,
// when cfg.StaticDir is set, the single-page app for everything else.
func NewRouter(cfg config.HTTPConfig, deps Deps) *chi.Mux {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(log),
		middleware.Timeout(requestTimeout),
	)
	router.Get("/healthz", handlers.Healthz(deps.DB, log))

	authMiddleware := handlers.RequireAuth(deps.Tokens)
	api := func(r chi.Router) {
		handlers.AuthRouter(r, deps.Auth, authMiddleware, log)
		r.Route("/cards", func(r chi.Router) {
			handlers.CardRouter(r, deps.Cards, deps.Exports, authMiddleware, log)
		})
	}
	if cfg.APIPrefix == "" {
		api(router)
	} else {
		router.Route(cfg.APIPrefix, api)
	}

	if cfg.StaticDir != "" {
		router.NotFound(handlers.SPA(cfg.StaticDir, cfg.APIPrefix))
	} else {
		router.NotFound(jsonStatus(http.StatusNotFound, `{"error":"not found"}`))
	}
	router.MethodNotAllowed(jsonStatus(http.StatusMethodNotAllowed, `{"error":"method not allowed"}`))

	return router
}

func jsonStatus(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body + "\n"))
	}
}

func withCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler(h)
}

func isNone(backend string) bool {
	b := strings.ToLower(strings.TrimSpace(backend))
	return b == "" || b == config.BackendNone
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and then releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.storage != nil {
		errs = append(errs, s.storage.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
