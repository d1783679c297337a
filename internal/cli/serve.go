package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/i2y/restbridge/configs"
	"github.com/i2y/restbridge/internal/adapter/inbound/adminhttp"
	"github.com/i2y/restbridge/internal/adapter/inbound/mcptools"
	"github.com/i2y/restbridge/internal/telemetry"
)

const (
	transportSSE   = "sse"
	transportStdio = "stdio"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var transport string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured operations as MCP tools and over the admin API",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if transport != transportSSE && transport != transportStdio {
				return newUsageError(fmt.Sprintf("invalid transport %q: must be %s or %s", transport, transportSSE, transportStdio))
			}
			return runServe(cmd.Context(), flags, transport)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", transportSSE, "Transport mode: sse or stdio")
	return cmd
}

func runServe(ctx context.Context, flags *globalFlags, transport string) error {
	cfg, err := flags.loadConfig(ctx)
	if err != nil {
		return err
	}

	// === Logging ===
	var logOut io.Writer = os.Stderr
	if transport == transportStdio {
		// In STDIO mode, log to file to avoid interfering with stdio communication
		logFile, err := os.OpenFile(filepath.Join(os.TempDir(), "restbridge.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logOut = io.Discard
		} else {
			defer logFile.Close()
			logOut = logFile
		}
	}
	logger := newLogger(logOut, cfg)
	slog.SetDefault(logger)
	logger.Info("Logger initialized.", slog.String("level", cfg.ParsedLogLevel().String()), slog.String("transport", transport))

	// === OpenTelemetry Initialization ===
	shutdownOtel, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    "restbridge",
		ServiceVersion: version,
		Endpoint:       cfg.OtelExporterOtlpEndpoint,
		Insecure:       cfg.OtelExporterOtlpInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Error("Failed to shutdown OpenTelemetry providers.", slog.Any("error", err))
		}
	}()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	if len(cfg.SchemaSources) > 0 {
		logger.Info("Importing configured schema sources...", slog.Int("count", len(cfg.SchemaSources)))
		n := app.ImportSources(ctx, cfg.SchemaSources)
		logger.Info("Schema source import finished.", slog.Int("imported", n), slog.Int("configured", len(cfg.SchemaSources)))
	}

	// === MCP Server (mark3labs/mcp-go) ===
	mcpSrv := mcpGoServer.NewMCPServer("restbridge", version, mcpGoServer.WithToolCapabilities(true))
	registrar := mcptools.NewRegistrar(app.List, app.Invoke, mcpSrv, logger)
	if _, err := registrar.RegisterAll(ctx); err != nil {
		return fmt.Errorf("failed to register MCP tools: %w", err)
	}

	switch transport {
	case transportStdio:
		logger.Info("Starting in STDIO mode")
		stdioServer := mcpGoServer.NewStdioServer(mcpSrv)
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("STDIO server error: %w", err)
		}
		return nil
	default:
		return serveSSE(ctx, cfg.ListenAddr, mcpSrv, newAdminServer(cfg, app, registrar, logger), cfg.ShutdownTimeout, logger)
	}
}

func newAdminServer(cfg *configs.Config, app *App, registrar *mcptools.Registrar, logger *slog.Logger) *http.Server {
	refresh := func(ctx context.Context) {
		if _, err := registrar.RegisterAll(ctx); err != nil {
			logger.Error("Failed to refresh MCP tools after import", slog.Any("error", err))
		}
	}
	adminMux := http.NewServeMux()
	adminhttp.NewHandlers(app.Invoke, app.List, app.Import, refresh, logger).RegisterAdminRoutes(adminMux)
	return &http.Server{
		Addr:         cfg.AdminAddr,
		Handler:      adminMux,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}
}

func serveSSE(ctx context.Context, listenAddr string, mcpSrv *mcpGoServer.MCPServer, adminServer *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	logger.Info("Starting in SSE mode")
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	sseServer := mcpGoServer.NewSSEServer(mcpSrv, mcpGoServer.WithBaseURL("http://"+listenAddr))

	go func() {
		logger.Info("Admin HTTP server starting.", slog.String("address", adminServer.Addr))
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin HTTP server failed to start.", slog.Any("error", err))
			stop()
		}
	}()
	go func() {
		logger.Info("MCP SSE server starting.", slog.String("address", listenAddr))
		if err := sseServer.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("MCP SSE server failed to start.", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin HTTP server graceful shutdown failed.", slog.Any("error", err))
		errs = append(errs, err)
	}
	if err := sseServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("MCP SSE server graceful shutdown failed.", slog.Any("error", err))
		errs = append(errs, err)
	}
	logger.Info("Servers shut down.")
	return errors.Join(errs...)
}
