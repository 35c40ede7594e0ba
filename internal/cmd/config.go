package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leeyeon3724/civic-archive-api/internal/config"
	"github.com/leeyeon3724/civic-archive-api/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format == output.FormatTable {
			format = output.FormatYAML
		}

		cfg := config.GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration not loaded")
		}

		outPath, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}
		sink, err := openSink(outPath, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		return output.Write(sink.writer, format, cfg.Redacted())
	},
}

func init() {
	configShowCmd.Flags().String("output-format", string(output.FormatYAML), "Output format: yaml|json")
	configShowCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
