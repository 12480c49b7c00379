package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/trainer"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List demos, trainer configs and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Demos (%s):\n", cfg.Paths.DemosDir)
			demos, err := demo.List(cfg.Paths.DemosDir)
			if err != nil && !errors.Is(err, demo.ErrNoDemo) {
				return err
			}
			for _, d := range demos {
				fmt.Fprintf(out, "  - %s\n", filepath.Base(d))
			}

			fmt.Fprintf(out, "\nTrainers (%s):\n", cfg.TrainersDir())
			trainers, _ := filepath.Glob(filepath.Join(cfg.TrainersDir(), "*.yaml"))
			for _, t := range trainers {
				fmt.Fprintf(out, "  - %s\n", filepath.Base(t))
			}

			fmt.Fprintf(out, "\nModels (%s):\n", cfg.Paths.ModelsDir)
			models, _ := filepath.Glob(filepath.Join(cfg.Paths.ModelsDir, "*"+trainer.ModelExt))
			for _, m := range models {
				fmt.Fprintf(out, "  - %s\n", filepath.Base(m))
			}
			return nil
		},
	}
}
