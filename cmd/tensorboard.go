package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/trainer"
)

var flagTensorboardPort int

func newTensorboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tensorboard",
		Short: "Serve TensorBoard over the trainer's results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			env, err := trainer.ReadEnvFile(cfg.Training.EnvFile)
			if err != nil {
				return err
			}
			port := cfg.Tensorboard.Port
			if flagTensorboardPort != 0 {
				port = flagTensorboardPort
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			tb, err := trainer.StartTensorboard(ctx, &trainer.TensorboardOpts{
				Script:     cfg.Tensorboard.Script,
				Activation: cfg.Training.ActivationScript,
				WorkDir:    cfg.Paths.TrainingDir,
				LogDir:     filepath.Join(cfg.TrainerResultsDir(), "logs"),
				Port:       port,
				Env:        env,
			})
			if err != nil {
				return fmt.Errorf("starting tensorboard: %w", err)
			}
			defer tb.Stop()
			fmt.Fprintf(cmd.OutOrStdout(), "TensorBoard at %s (Ctrl-C to stop)\n", tb.URL())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().IntVar(&flagTensorboardPort, "port", 0, "port (default from config, 0 picks a free one)")
	return cmd
}
