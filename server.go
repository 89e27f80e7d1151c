package aggproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cention/aggproxy/internal/config"
	"github.com/cention/aggproxy/internal/logging"
)

// ServerConfig configures the listening HTTP server around a Pipeline.
type ServerConfig struct {
	Addr          string
	MetricsPath   string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration
}

// DefaultServerConfig mirrors conservative reverse-proxy server defaults.
var DefaultServerConfig = ServerConfig{
	Addr:          ":8080",
	MetricsPath:   "/metrics",
	ReadTimeout:   30 * time.Second,
	WriteTimeout:  30 * time.Second,
	ShutdownGrace: 30 * time.Second,
}

// Server wraps a Pipeline with an HTTP listener, a health endpoint, a
// Prometheus metrics endpoint, and signal-driven graceful shutdown.
type Server struct {
	pipeline *Pipeline
	watcher  *config.Watcher
	cfg      ServerConfig
	http     *http.Server
}

// NewServer builds a Server serving pipeline, with an optional config
// Watcher (nil disables hot reload) kept alive alongside the server.
func NewServer(pipeline *Pipeline, watcher *config.Watcher, cfg ServerConfig) *Server {
	s := &Server{pipeline: pipeline, watcher: watcher, cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.Handle("/", pipeline)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts down
// gracefully within the configured grace period.
func (s *Server) Run() error {
	errCh := make(chan error, 2)

	if s.watcher != nil {
		s.watcher.OnChange(func(cfg *config.Config) {
			if err := s.pipeline.Reload(cfg); err != nil {
				logging.Error("config reload rejected, keeping previous route table")
				return
			}
			logging.Info("route table reloaded")
		})
		go func() {
			if err := s.watcher.Start(); err != nil {
				errCh <- err
			}
		}()
		defer s.watcher.Close()
	}

	go func() {
		logging.Info("aggregator listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logging.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	return s.http.Shutdown(ctx)
}
