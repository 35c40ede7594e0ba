package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	errwrap "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/metrics"
	"github.com/leeyeon3724/civic-archive-api/internal/observability"
	"github.com/leeyeon3724/civic-archive-api/internal/server"
	"github.com/leeyeon3724/civic-archive-api/internal/server/guard"
	"github.com/leeyeon3724/civic-archive-api/internal/server/handlers"
)

// telemetryNamespace prefixes exported Prometheus metrics.
const telemetryNamespace = "civic_archive"

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Routes under /api pass the request size guard, then the API key check,
bearer token authorization and the per-client rate limiter, in that order.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (guard settings need a restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := validatedConfig()

		observability.InitServerLogger(config.AppName, cfg.Logging.Level, cfg.Logging.Profile, telemetryNamespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, telemetryNamespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		chain, err := guard.New(cfg, guard.WithLogger(logger))
		if err != nil {
			logger.Error("Failed to build request guards", zap.Error(err))
			return errwrap.Wrap(cmd.Context(), errwrap.CodeConfigInvalid, err, "guard initialization failed")
		}

		logger.Info("Initializing server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.Bool("api_key_enabled", cfg.Security.APIKey.Enabled),
			zap.Bool("jwt_enabled", cfg.Security.JWT.Enabled),
			zap.Int("requests_per_minute", cfg.RateLimit.RequestsPerMinute),
			zap.String("rate_limit_backend", chain.Limiter.BackendName()),
			zap.Bool("rate_limit_fail_open", cfg.RateLimit.FailOpen),
			zap.Int64("max_body_bytes", cfg.Security.RequestSize.MaxBodyBytes),
			zap.Strings("trusted_proxies", cfg.Security.TrustedProxies))

		hm := handlers.InitHealthManager(versionInfo.Version)
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterReadinessChecker("rate_limit_backend", chain.Limiter)

		srv := server.New(cfg.Server, chain, hm)
		metrics.SetServerStartTime(time.Now().Unix())

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server and store first, logger flush last.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}
			logger.Info("HTTP server stopped gracefully")

			if err := observability.ShutdownMetrics(); err != nil {
				logger.Warn("Failed to stop metrics exporter", zap.Error(err))
			}
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: re-reading config file")

			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					logger.Info("No config file found - using defaults and environment variables")
					metrics.RecordConfigReload("unchanged")
					return nil
				}
				metrics.RecordConfigReload("invalid")
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, err, "config reload failed")
			}

			reloaded, err := config.Load(viper.GetViper())
			if err == nil {
				err = reloaded.Validate()
			}
			if err != nil {
				metrics.RecordConfigReload("invalid")
				logger.Error("Reloaded configuration is invalid; keeping running guards", zap.Error(err))
				return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, err, "config reload failed")
			}

			metrics.RecordConfigReload("accepted")
			logger.Info("Configuration reloaded; restart to apply guard changes",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
