package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leeyeon3724/civic-archive-api/internal/output"
)

var rateLimitInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show a client's counter for the current window",
	Example: `  civic-archive rate-limit inspect --client 203.0.113.7
  civic-archive rate-limit inspect --client 203.0.113.7 --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		clientKey, err := clientFlag(cmd)
		if err != nil {
			return err
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
		count, err := inspector.Count(ctx, clientKey, limiter.Quota().Bucket(now))
		if err != nil {
			return fmt.Errorf("read counter: %w", err)
		}

		state := newCounterState(limiter, clientKey, now, count)
		if format == output.FormatTable {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), output.FormatKeyValues("Rate limit counter", state.pairs()))
			return err
		}
		return output.Write(cmd.OutOrStdout(), format, state)
	},
}

func init() {
	rateLimitInspectCmd.Flags().String("client", "", "Client key (the resolved client address)")
	rateLimitInspectCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|yaml")
}
