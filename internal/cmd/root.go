package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	errwrap "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Civic archive API server",
	Long: `civic-archive serves the civic records REST API behind an admission
layer: API key and bearer token checks, per-client rate limiting and a
request body ceiling.

Use the subcommands to run the server or inspect its guards.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml or ./config/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig layers defaults, the optional config file and CIVIC_ARCHIVE_*
// environment variables into viper and decodes the result.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	config.Configure(viper.GetViper(), cfgFile)

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
		}
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}

	if _, err := config.Load(viper.GetViper()); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to decode configuration", err)
	}
}

// validatedConfig returns the loaded configuration, exiting with
// ExitConfigInvalid when it fails validation.
func validatedConfig() *config.Config {
	cfg := config.GetConfig()
	if cfg == nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration not loaded",
			errwrap.NewConfigInvalidError("configuration not loaded"))
	}
	if err := cfg.Validate(); err != nil {
		for _, problem := range unjoin(err) {
			observability.CLILogger.Error("Invalid configuration", zap.String("problem", problem.Error()))
		}
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration is invalid", err)
	}
	return cfg
}

// unjoin splits an errors.Join result into its parts.
func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
