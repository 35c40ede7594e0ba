package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/observability"
	"github.com/leeyeon3724/civic-archive-api/internal/server/guard"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the application could start: version metadata, configuration and guard construction.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg := validatedConfig()
		logger.Info("✅ Configuration valid")

		// Building the guards does not contact the rate limit store.
		chain, err := guard.New(cfg, guard.WithLogger(logger))
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Guard construction failed", err)
			return
		}
		_ = chain.Close()
		logger.Info("✅ Request guards constructed",
			zap.String("rate_limit_backend", chain.Limiter.BackendName()))

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
