package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/report"
	"github.com/kartlab/kartbench/internal/result"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [results.jsonl]",
		Short: "Summarize the evaluation results log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			logPath := filepath.Join(cfg.Paths.ResultsDir, result.LogName)
			if len(args) > 0 {
				logPath = args[0]
			}
			return report.Generate(logPath, flagFormat, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
