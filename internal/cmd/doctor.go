package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	errwrap "github.com/leeyeon3724/civic-archive-api/internal/errors"
	"github.com/leeyeon3724/civic-archive-api/internal/observability"
	"github.com/leeyeon3724/civic-archive-api/internal/output"
	"github.com/leeyeon3724/civic-archive-api/internal/server/guard"
)

const doctorProbeTimeout = 2 * time.Second

var (
	doctorOutput  string
	doctorNoProbe bool
)

// doctorReport is the machine-readable doctor result.
type doctorReport struct {
	ConfigFile string            `json:"config_file" yaml:"config_file"`
	Checks     []output.CheckRow `json:"checks" yaml:"checks"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Validate the configuration, summarize the request guards and probe the
rate limit backend.

Exits with CONFIG_INVALID when validation fails and with
EXTERNAL_SERVICE_UNAVAILABLE when the backend probe fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(doctorOutput)
		if err != nil {
			return err
		}

		cfg := config.GetConfig()
		if cfg == nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration not loaded",
				errwrap.NewConfigInvalidError("configuration not loaded"))
		}

		configFile := viper.ConfigFileUsed()
		if configFile == "" {
			configFile = "(none: defaults and environment)"
		}

		rows, validationErr := doctorChecks(cfg)
		probeFailed := false
		if validationErr == nil && !doctorNoProbe {
			row := probeRateLimitBackend(cmd.Context(), cfg)
			probeFailed = row.Status == output.StatusFail
			rows = append(rows, row)
		}

		out := cmd.OutOrStdout()
		if format == output.FormatTable {
			_, _ = fmt.Fprintf(out, "%s doctor (config: %s)\n", config.AppName, configFile)
			_, _ = fmt.Fprintln(out, output.FormatChecks("Diagnostics", rows))
		} else if err := output.Write(out, format, doctorReport{ConfigFile: configFile, Checks: rows}); err != nil {
			return err
		}

		switch {
		case validationErr != nil:
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration is invalid", validationErr)
		case probeFailed:
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Rate limit backend unavailable",
				errwrap.NewServiceUnavailableError("rate limit backend probe failed"))
		}
		return nil
	},
}

// doctorChecks summarizes the environment and guard configuration. It
// returns the validation error, if any, alongside the rows.
func doctorChecks(cfg *config.Config) ([]output.CheckRow, error) {
	version := crucible.GetVersion()
	rows := []output.CheckRow{
		{Name: "go", Status: output.StatusOK, Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)},
		{Name: "gofulmen", Status: okIf(version.Gofulmen != ""), Detail: fmt.Sprintf("gofulmen %s, crucible %s", version.Gofulmen, version.Crucible)},
	}

	validationErr := cfg.Validate()
	if validationErr != nil {
		for _, problem := range unjoin(validationErr) {
			rows = append(rows, output.CheckRow{Name: "config", Status: output.StatusFail, Detail: problem.Error()})
		}
	} else {
		rows = append(rows, output.CheckRow{Name: "config", Status: output.StatusOK, Detail: "valid"})
	}

	sec := cfg.Security
	rows = append(rows, output.CheckRow{Name: "strict_mode", Status: onOff(sec.Strict)})

	apiKey := output.CheckRow{Name: "api_key", Status: onOff(sec.APIKey.Enabled)}
	if sec.APIKey.Enabled {
		apiKey.Detail = "header " + sec.APIKey.Header
	}
	rows = append(rows, apiKey)

	tokenRow := output.CheckRow{Name: "token", Status: onOff(sec.JWT.Enabled)}
	if sec.JWT.Enabled {
		tokenRow.Detail = fmt.Sprintf("%s, read=%s write=%s", sec.JWT.Algorithm, sec.JWT.ReadScope, sec.JWT.WriteScope)
	}
	rows = append(rows, tokenRow)

	rl := cfg.RateLimit
	rateRow := output.CheckRow{Name: "rate_limit", Status: onOff(rl.RequestsPerMinute > 0)}
	if rl.RequestsPerMinute > 0 {
		mode := "fail open"
		if !rl.FailOpen {
			mode = "fail closed"
		}
		rateRow.Detail = fmt.Sprintf("%d per %ds via %s, %s, cooldown %s",
			rl.RequestsPerMinute, rl.WindowSeconds, rl.Backend, mode, rl.FailureCooldown)
	}
	rows = append(rows, rateRow)

	proxies := output.CheckRow{Name: "trusted_proxies", Status: output.StatusOK, Detail: "none (peer address only)"}
	if len(sec.TrustedProxies) > 0 {
		proxies.Detail = strings.Join(sec.TrustedProxies, ", ")
	}
	rows = append(rows, proxies)

	rows = append(rows, output.CheckRow{
		Name:   "request_size",
		Status: okIf(sec.RequestSize.MaxBodyBytes > 0),
		Detail: fmt.Sprintf("max %d bytes under %s", sec.RequestSize.MaxBodyBytes, sec.RequestSize.PathPrefix),
	})

	return rows, validationErr
}

// probeRateLimitBackend pings the configured backend the way the readiness
// probe does.
func probeRateLimitBackend(ctx context.Context, cfg *config.Config) output.CheckRow {
	row := output.CheckRow{Name: "rate_limit_backend"}

	limiter, err := guard.NewLimiter(cfg.RateLimit, guard.WithLogger(observability.CLILogger))
	if err != nil {
		row.Status = output.StatusFail
		row.Detail = err.Error()
		return row
	}
	defer func() { _ = limiter.Close() }()

	if cfg.RateLimit.RequestsPerMinute == 0 {
		row.Status = output.StatusOff
		row.Detail = "rate limiting disabled"
		return row
	}

	probeCtx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	start := time.Now()
	if err := limiter.CheckHealth(probeCtx); err != nil {
		observability.CLILogger.Debug("Rate limit backend probe failed", zap.Error(err))
		row.Status = output.StatusFail
		row.Detail = fmt.Sprintf("%s: %v", limiter.BackendName(), err)
		return row
	}
	row.Status = output.StatusOK
	row.Detail = fmt.Sprintf("%s reachable in %s", limiter.BackendName(), time.Since(start).Round(time.Millisecond))
	return row
}

func okIf(ok bool) string {
	if ok {
		return output.StatusOK
	}
	return output.StatusFail
}

func onOff(enabled bool) string {
	if enabled {
		return output.StatusOK
	}
	return output.StatusOff
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorOutput, "output-format", string(output.FormatTable), "Output format: table|json|yaml")
	doctorCmd.Flags().BoolVar(&doctorNoProbe, "no-probe", false, "Skip the rate limit backend probe")
}
