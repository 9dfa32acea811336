package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mw "github.com/rezkam/agentforge/internal/infrastructure/http/middleware"
)

// Default configuration values for the HTTP server.
const (
	DefaultHost         = "" // Empty means all interfaces (0.0.0.0)
	DefaultPort         = "8080"
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodyBytes = 1 << 20 // 1MB
)

// ServerConfig holds configuration for the webhook HTTP server.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// applyDefaults sets default values for any unset (zero) fields.
func (cfg *ServerConfig) applyDefaults() {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// Server wraps a stdlib net/http server around the webhook handler. This is
// deliberately a thin shim, not a router: the webhook ingress has exactly
// one route, so a chi.Mux would be overhead the teacher's REST API server
// needed and this binary doesn't.
type Server struct {
	server *http.Server
}

// New builds the webhook server, mounting webhookHandler under "/webhooks/github"
// and a health check under "/health", both behind the body-size guard.
func New(webhookHandler http.Handler, cfg ServerConfig) *Server {
	cfg.applyDefaults()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			slog.ErrorContext(r.Context(), "failed to write health check response", "error", err)
		}
	})
	mux.Handle("/webhooks/github", webhookHandler)

	handler := mw.MaxBodyBytes(cfg.MaxBodyBytes)(mux)

	return &Server{
		server: &http.Server{
			Addr:         cfg.Host + ":" + cfg.Port,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("starting webhook server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down webhook server")
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
