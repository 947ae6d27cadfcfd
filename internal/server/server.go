// ABOUTME: HTTP server wiring the session store, dialogue controller, and archive
// ABOUTME: Owns startup, route registration, and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/feynomenon-gateway/internal/archive"
	"github.com/2389/feynomenon-gateway/internal/config"
	"github.com/2389/feynomenon-gateway/internal/gemini"
	"github.com/2389/feynomenon-gateway/internal/session"
	"github.com/2389/feynomenon-gateway/internal/tutor"
)

// turnProcessor is the slice of the dialogue controller the handlers use.
type turnProcessor interface {
	StartSession() (*tutor.TurnResult, error)
	ProcessTurn(ctx context.Context, sessionID, userText string) (*tutor.TurnResult, error)
	SessionState(sessionID string) (*tutor.StateResult, error)
	DeleteSession(sessionID string) bool
}

// Server is the gateway's HTTP front end.
type Server struct {
	config          *config.Config
	store           *session.Store
	controller      turnProcessor
	archive         *archive.Ledger // nil when disabled
	maxMessageChars int
	httpServer      *http.Server
	logger          *slog.Logger
}

// New builds a fully wired server from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store := session.NewStore(cfg.Sessions.IdleTTL, cfg.Sessions.MaxSessions, logger)

	temperature := float32(config.DefaultTemperature)
	if cfg.Gemini.Temperature != nil {
		temperature = *cfg.Gemini.Temperature
	}
	gateway, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:          cfg.Gemini.APIKey,
		Model:           cfg.Gemini.Model,
		Temperature:     temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating model gateway: %w", err)
	}

	var ledger *archive.Ledger
	if cfg.Archive.Enabled {
		ledger, err = archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("opening transcript archive: %w", err)
		}
	}

	var archiver tutor.Archiver
	if ledger != nil {
		archiver = ledger
	}
	controller := tutor.NewController(store, gateway, archiver, tutor.Config{
		MaxContextTurns: cfg.Sessions.MaxContextTurns,
		MaxMessageChars: cfg.Sessions.MaxMessageChars,
		GatewayTimeout:  cfg.Gemini.Timeout,
	}, logger)

	s := &Server{
		config:          cfg,
		store:           store,
		controller:      controller,
		archive:         ledger,
		maxMessageChars: cfg.Sessions.MaxMessageChars,
		logger:          logger.With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s, nil
}

// routes registers all HTTP endpoints.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionState)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /ws/{id}", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	return mux
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails, then shuts everything down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		s.shutdownResources()
		return fmt.Errorf("http server failed: %w", err)
	}

	return s.gracefulShutdown()
}

// gracefulShutdown drains in-flight requests with its own deadline, since
// the run context is already cancelled by the time this runs.
func (s *Server) gracefulShutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.shutdownResources()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

func (s *Server) shutdownResources() {
	s.store.Close()
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Error("failed to close archive", "error", err)
		}
	}
}
