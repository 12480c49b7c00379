package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/config"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kartbench",
		Short: "Train and evaluate kart-racing agents against recorded demonstrations",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A .env next to the config may carry KARTBENCH_* overrides.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("warning: loading .env: %v", err)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "kartbench.yaml", "config file path")
	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newInjectCmd())
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newCompareCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newTensorboardCmd())
	return root
}

// loadConfig reads path, falling back to the built-in defaults when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}
