package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/trajectory"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <reference.state> <candidate.state>",
		Short: "Score one recording against another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := demo.ReadTrajectory(args[0])
			if err != nil {
				return err
			}
			cand, err := demo.ReadTrajectory(args[1])
			if err != nil {
				return err
			}
			score, err := trajectory.Evaluate(ref, cand)
			if err != nil {
				return err
			}
			dis, err := trajectory.Dissimilarity(ref, cand)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reference:     %s (%d samples)\n", args[0], ref.Len())
			fmt.Fprintf(out, "candidate:     %s (%d samples)\n", args[1], cand.Len())
			fmt.Fprintf(out, "score:         %.4f\n", score)
			fmt.Fprintf(out, "dissimilarity: %.4f\n", dis)
			return nil
		},
	}
}
