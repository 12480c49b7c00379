package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/session"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <session.yaml>",
		Short: "Check a session file and print its resolved steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			sess, err := session.Load(args[0])
			if err != nil {
				return err
			}
			if err := sess.Check(cfg); err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s: %d steps, activation %s\n", sess.Name, len(sess.Steps), sess.ActivationScript)
			for i, st := range sess.Steps {
				fmt.Fprintf(out, "  %2d. %s\n", i, session.Describe(st))
			}
			return nil
		},
	}
}
