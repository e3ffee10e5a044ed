package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gioimtg2003/control-drone-first/internal/adapter"
	"github.com/gioimtg2003/control-drone-first/internal/adapter/fake"
	"github.com/gioimtg2003/control-drone-first/internal/adapter/seriallink"
	"github.com/gioimtg2003/control-drone-first/internal/api"
	"github.com/gioimtg2003/control-drone-first/internal/audit"
	"github.com/gioimtg2003/control-drone-first/internal/auth"
	"github.com/gioimtg2003/control-drone-first/internal/command"
	"github.com/gioimtg2003/control-drone-first/internal/config"
	"github.com/gioimtg2003/control-drone-first/internal/export"
	"github.com/gioimtg2003/control-drone-first/internal/logging"
	"github.com/gioimtg2003/control-drone-first/internal/session"
	"github.com/gioimtg2003/control-drone-first/internal/storage"
	"github.com/gioimtg2003/control-drone-first/internal/telemetry"
)

var simInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry service",
	Long: `Run the HTTP API and SSE telemetry stream. With session.link set to
"fake" the service emits synthetic telemetry instead of opening a device.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&simInterval, "sim-interval", 200*time.Millisecond,
		"telemetry interval of the fake link")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)
	logger.Info("starting groundctl", "version", Version, "link", cfg.Session.Link)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The link, the hub and the manager reference each other. The link-lost
	// callback and the ready snapshot only run after manager is set.
	var manager *session.Manager
	link := newLink(ctx, cfg, logger, func(err error) { manager.LinkLost(err) })

	telemetryHub := telemetry.NewHub(cfg.Telemetry,
		telemetry.WithHubLogger(logger),
		telemetry.WithReadySnapshot(func() map[string]interface{} {
			return map[string]interface{}{
				"session":   manager.Info(),
				"recording": manager.RecordingState(),
			}
		}))
	defer telemetryHub.Stop()

	manager = session.NewManager(link, cfg.Session,
		session.WithLogger(logger),
		session.WithPublisher(telemetryHub))

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logger.Error("error closing audit logger", "error", err)
		}
	}()
	logger.Info("audit logger initialized", "path", auditLogger.FilePath())

	orchestrator := command.NewOrchestrator(link, manager, telemetryHub, cfg.Motor, logger)
	orchestrator.SetAuditLogger(auditLogger)

	exportOpts := []export.Option{
		export.WithLogger(logger),
		export.WithPublisher(telemetryHub),
	}
	deps := api.Dependencies{
		Session:   manager,
		Telemetry: telemetryHub,
		Motors:    orchestrator,
		Audit:     auditLogger,
		Logger:    logger,
	}
	if cfg.Export.ArchivePath != "" {
		archive := storage.NewArchive(cfg.Export.ArchivePath)
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Error("error closing export archive", "error", err)
			}
		}()
		exportOpts = append(exportOpts, export.WithArchive(archive))
		deps.Archive = archive
	}
	deps.Exporter = export.NewExporter(manager.Aggregator(), cfg.Export.Dir, exportOpts...)

	verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}
	if verifier != nil {
		deps.Auth = auth.NewMiddleware(verifier)
	} else {
		logger.Warn("authentication disabled", "mode", cfg.Auth.Mode)
	}

	server := api.NewServer(deps, cfg.Server)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	logger.Info("groundctl started", "addr", cfg.Server.Addr,
		"health", "http://localhost"+cfg.Server.Addr+"/api/v1/health")

	select {
	case <-ctx.Done():
		logger.Info("received signal, initiating graceful shutdown")
	case err = <-serverErr:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Motors stop and the link closes before clients lose the stream.
	if err := manager.Disconnect(shutdownCtx); err != nil {
		logger.Error("error closing drone session", "error", err)
	}
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping HTTP server", "error", err)
	}
	logger.Info("groundctl shutdown complete")
	return err
}

func newLink(ctx context.Context, cfg *config.Config, logger *slog.Logger, onLost func(error)) adapter.Link {
	if cfg.Session.Link == config.LinkFake {
		link := fake.NewFakeLink()
		go link.Simulate(ctx, simInterval)
		logger.Warn("using simulated drone link", "interval", simInterval)
		return link
	}
	return seriallink.New(seriallink.WithLogger(logger), seriallink.WithLinkLost(onLost))
}
