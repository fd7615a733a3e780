package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skgma1019/music-player-app/internal/analyzer"
	"github.com/skgma1019/music-player-app/internal/config"
	"github.com/skgma1019/music-player-app/internal/metrics"
	"github.com/skgma1019/music-player-app/internal/relay"
	"github.com/skgma1019/music-player-app/internal/server"
	"github.com/skgma1019/music-player-app/internal/staging"
)

var (
	listenAddr string
	logLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address host:port (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cfg, listenAddr, logLevel); err != nil {
		return err
	}

	logger, logCloser := initLogger(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", server.ServiceName),
		slog.String("version", Version),
		slog.String("config_path", cfgFile),
	)
	logger.Info("Configuration loaded",
		slog.String("listen", cfg.HTTP.ListenAddr()),
		slog.String("upload_dir", cfg.Upload.Dir),
		slog.Int64("max_upload_bytes", cfg.Upload.MaxBytes),
		slog.String("analyzer_endpoint", cfg.Analyzer.Endpoint),
		slog.Duration("analyzer_timeout", cfg.Analyzer.GetTimeoutDuration()),
		slog.Bool("cors", cfg.CORS.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	store, err := staging.NewStore(cfg.Upload.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize upload dir: %w", err)
	}
	if age := cfg.Upload.GetSweepAge(); age > 0 {
		removed, err := store.Sweep(age)
		if err != nil {
			logger.Warn("Startup sweep incomplete", slog.String("error", err.Error()))
		}
		logger.Info("Upload dir ready",
			slog.String("dir", store.Dir()),
			slog.Int("orphans_removed", removed),
		)
	}

	appMetrics := metrics.NewMetrics()

	client, err := analyzer.NewClient(analyzer.Config{
		Endpoint: cfg.Analyzer.Endpoint,
		Timeout:  cfg.Analyzer.GetTimeoutDuration(),
	})
	if err != nil {
		return fmt.Errorf("failed to create analyzer client: %w", err)
	}

	handler := relay.NewHandler(relay.Config{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		MaxFieldBytes:  cfg.Upload.MaxFieldBytes,
		Timeout:        cfg.Analyzer.GetTimeoutDuration(),
	}, store, client, appMetrics, logger)

	httpServer := server.NewHTTPServer(cfg, logger, handler, client, appMetrics)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.GetShutdownTimeout())
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()

	stats := client.GetStats()
	logger.Info("Final analyzer statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
	)

	if err != nil {
		logger.Error("Service stopped with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Service stopped")
	return nil
}

// applyServeFlags applies command-line overrides and re-validates.
func applyServeFlags(cfg *config.Config, listen, level string) error {
	if listen != "" {
		host, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("invalid --listen %q: %w", listen, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid --listen port %q: %w", portStr, err)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		cfg.HTTP.Address = host
		cfg.HTTP.Port = port
	}
	if level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
