package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gioimtg2003/control-drone-first/internal/auth"
	"github.com/gioimtg2003/control-drone-first/internal/command"
	"github.com/gioimtg2003/control-drone-first/internal/config"
)

// Version is reported by health and capabilities.
const Version = "1.0.0"

// Dependencies are the services the API routes to. Archive, Audit, Auth
// and Logger are optional.
type Dependencies struct {
	Session   SessionPort
	Telemetry TelemetryPort
	Motors    command.MotorPort
	Exporter  ExportPort
	Archive   ArchivePort
	Audit     AuditLogger
	Auth      *auth.Middleware
	Logger    *slog.Logger
}

// Server represents the HTTP API server.
type Server struct {
	httpServer     *http.Server
	session        SessionPort
	telemetryHub   TelemetryPort
	motors         command.MotorPort
	exporter       ExportPort
	archive        ArchivePort
	auditLogger    AuditLogger
	authMiddleware *auth.Middleware
	logger         *slog.Logger
	cfg            config.ServerConfig
	startTime      time.Time
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, cfg config.ServerConfig) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		session:        deps.Session,
		telemetryHub:   deps.Telemetry,
		motors:         deps.Motors,
		exporter:       deps.Exporter,
		archive:        deps.Archive,
		auditLogger:    deps.Audit,
		authMiddleware: deps.Auth,
		logger:         logger,
		cfg:            cfg,
		startTime:      time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Start serves on cfg.Addr until Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

func (s *Server) logAudit(ctx context.Context, action, sessionID string, params map[string]interface{}, err error, start time.Time) {
	if s.auditLogger != nil {
		s.auditLogger.LogAction(ctx, action, sessionID, params, err, time.Since(start))
	}
}
