// Package webserver serves the labelling and analytics pages and the JSON
// API behind them.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/microsoft/evallabel/internal/projectconfig"
	"github.com/microsoft/evallabel/internal/webapi"
)

// DefaultSweepInterval is how often idle sessions are dropped.
const DefaultSweepInterval = time.Minute

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port int
	// OpenBrowser opens the labelling page once the server listens.
	OpenBrowser   bool
	SweepInterval time.Duration
	// AllowedOrigins enables CORS for a separately served frontend.
	AllowedOrigins []string
	API            webapi.Config
	Logger         *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg      Config
	srv      *http.Server
	handlers *webapi.Handlers
	logger   *slog.Logger
}

// New creates a new HTTP server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = projectconfig.DefaultServerPort
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.API.Logger == nil {
		cfg.API.Logger = cfg.Logger
	}
	if cfg.API.Project == nil {
		cfg.API.Project = projectconfig.New()
	}

	mux := http.NewServeMux()
	handlers := webapi.NewHandlers(cfg.API)
	if err := registerRoutes(mux, handlers, cfg); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		handlers: handlers,
		logger:   cfg.Logger,
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           withMiddleware(mux, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	return s, nil
}

// ListenAndServe starts the HTTP server and the idle session sweeper. It
// returns once ctx is cancelled and the server has shut down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	url := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("HTTP server starting", "address", s.srv.Addr, "url", url)

	if s.cfg.OpenBrowser {
		// Open browser in background after a short delay.
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := openBrowser(url); err != nil {
				s.logger.Debug("failed to open browser", "error", err)
			}
		}()
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		s.sweep(ctx)
	}()

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	}()

	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	<-sweepDone
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	sessions := s.cfg.API.Sessions
	if sessions == nil {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sessions.Sweep(now)
		}
	}
}

// Handler returns the underlying http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// openBrowser opens the given URL in the default browser.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
