package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/matiasleandrokruk/llmhub/internal/api"
	"github.com/matiasleandrokruk/llmhub/internal/app"
)

// shutdownTimeout bounds graceful shutdown once the serve context ends.
const shutdownTimeout = 10 * time.Second

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default HTTP server configuration. WriteTimeout
// leaves room for a full provider round trip.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 150 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server owns the HTTP listener and the background audit recorder.
type Server struct {
	config Config
	app    *app.App
	logger *slog.Logger
	http   *http.Server
}

// NewServer mounts the API router for a on an http.Server.
func NewServer(a *app.App, config Config) *Server {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      api.NewRouter(a),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{
		config: config,
		app:    a,
		logger: logger,
		http:   httpServer,
	}
}

// Start serves until ctx is cancelled or the listener fails, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	runCtx, stopRecorder := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		s.app.Run(runCtx)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and waits for in-flight ones. The
// database stays open; its owner closes it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.app.Close()
	s.logger.Info("http server stopped")
	return nil
}
