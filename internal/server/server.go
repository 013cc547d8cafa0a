// Package server exposes the chat pipeline to the rendering layer over
// HTTP: turn submission, transcript snapshots, and live event feeds via SSE
// and WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pricepilot-ai/pricepilot/internal/event"
	"github.com/pricepilot-ai/pricepilot/internal/logging"
	"github.com/pricepilot-ai/pricepilot/internal/storage"
	"github.com/pricepilot-ai/pricepilot/internal/transcript"
	"github.com/pricepilot-ai/pricepilot/pkg/types"
)

// Conductor is the orchestrator surface the handlers drive. Narrowed to an
// interface so handler tests can stub it.
type Conductor interface {
	SubmitTurn(text string)
	RetryLastTurn() error
	Cancel()
	Active() bool
}

// Config holds server configuration.
type Config struct {
	Port              int
	EnableCORS        bool
	HeartbeatInterval time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:              types.DefaultPort,
		EnableCORS:        true,
		HeartbeatInterval: time.Duration(types.DefaultHeartbeatSeconds) * time.Second,
	}
}

// Server is the HTTP server.
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	conductor Conductor
	store     *transcript.Store
	bus       *event.Bus

	archive     *storage.Storage
	archiveID   string
	unsubscribe func()
}

// New creates a Server. archive may be nil to disable transcript archiving.
func New(cfg *Config, conductor Conductor, store *transcript.Store, bus *event.Bus, archive *storage.Storage) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		conductor: conductor,
		store:     store,
		bus:       bus,
		archive:   archive,
		archiveID: types.NewMessageID(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupArchiving()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}
}

// setupArchiving mirrors every finalized message into the archive store.
func (s *Server) setupArchiving() {
	if s.archive == nil {
		return
	}
	s.unsubscribe = s.bus.Subscribe(event.MessageCreated, func(e event.Event) {
		data, ok := e.Data.(event.MessageCreatedData)
		if !ok || data.Message == nil {
			return
		}
		if err := s.archive.Put([]string{"transcript", s.archiveID, data.Message.ID}, data.Message); err != nil {
			logging.Warn().Err(err).Str("messageID", data.Message.ID).Msg("transcript archive write failed")
		}
	})
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start begins serving. Blocks until the listener fails or Shutdown is
// called. WriteTimeout stays zero: SSE responses are long-lived.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
	}

	logging.Info().Int("port", s.config.Port).Msg("server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
