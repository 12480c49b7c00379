package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/session"
)

var (
	flagInjectUser    string
	flagInjectTrainer string
	flagInjectSuffix  string
	flagInjectOut     string
)

func newInjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject <session.yaml>",
		Short: "Prefix run ids with a user name and retarget trainer files",
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
			user := flagInjectUser
			if user == "" {
				user = cfg.Training.Username
			}
			sess.InjectData(session.InjectOptions{
				Username:    user,
				Trainer:     flagInjectTrainer,
				TrackSuffix: flagInjectSuffix,
			})
			out := flagInjectOut
			if out == "" {
				out = args[0]
			}
			if err := sess.Save(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagInjectUser, "username", "", "user prefix for run ids (default from config)")
	cmd.Flags().StringVar(&flagInjectTrainer, "trainer", "", "trainer config for every training step")
	cmd.Flags().StringVar(&flagInjectSuffix, "suffix", "", "track suffix appended to trainer file names")
	cmd.Flags().StringVarP(&flagInjectOut, "output", "o", "", "output path (default: overwrite input)")
	return cmd
}
