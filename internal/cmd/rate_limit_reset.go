package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leeyeon3724/civic-archive-api/internal/observability"
	"github.com/leeyeon3724/civic-archive-api/internal/output"
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a client's counter for the current window",
	Example: `  civic-archive rate-limit reset --client 203.0.113.7 --dry-run
  civic-archive rate-limit reset --client 203.0.113.7 --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		clientKey, err := clientFlag(cmd)
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if !yes && !dryRun {
			return fmt.Errorf("reset requires --yes (or use --dry-run)")
		}

		cfg := validatedConfig()
		limiter, inspector, err := openInspector(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = limiter.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		now := time.Now()
		bucket := limiter.Quota().Bucket(now)
		count, err := inspector.Count(ctx, clientKey, bucket)
		if err != nil {
			return fmt.Errorf("read counter: %w", err)
		}

		state := newCounterState(limiter, clientKey, now, count)
		if dryRun {
			state.DryRun = true
		} else {
			cleared, err := inspector.Reset(ctx, clientKey, bucket)
			if err != nil {
				return fmt.Errorf("reset counter: %w", err)
			}
			state.Reset = &cleared
			observability.CLILogger.Info("Rate limit counter reset",
				zap.String("client", clientKey),
				zap.Int64("bucket", bucket),
				zap.Int64("previous_count", count),
				zap.Bool("cleared", cleared),
			)
		}

		if format != output.FormatTable {
			return output.Write(cmd.OutOrStdout(), format, state)
		}

		lines := make([]string, 0, 8)
		for _, pair := range state.pairs() {
			lines = append(lines, fmt.Sprintf("%-15s %s", pair[0]+":", pair[1]))
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

func init() {
	rateLimitResetCmd.Flags().String("client", "", "Client key (the resolved client address)")
	rateLimitResetCmd.Flags().Bool("yes", false, "Confirm the reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "Show the counter that would be cleared")
	rateLimitResetCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|yaml")
}
