package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kartlab/kartbench/internal/demo"
	"github.com/kartlab/kartbench/internal/result"
	"github.com/kartlab/kartbench/internal/runner"
)

var (
	flagDemo        string
	flagDemoFolder  string
	flagModel       string
	flagSplitAmount int
	flagSplitLength int
	flagEvaluations int
	flagEvalAgent   string
	flagParallel    int
	flagNoRecord    bool
	flagLatest      bool
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score an agent against demo recordings on the headless host",
		RunE:  runEvaluate,
	}
	cmd.Flags().StringVar(&flagDemo, "demo", "", "single demo file")
	cmd.Flags().StringVar(&flagDemoFolder, "demo-folder", "", "folder of demo files (default from config)")
	cmd.Flags().StringVar(&flagModel, "model", "", "model run id to label the results with")
	cmd.Flags().IntVar(&flagSplitAmount, "split-amount", 0, "windows per pass (default from config)")
	cmd.Flags().IntVar(&flagSplitLength, "split-length", 0, "samples per window (default from config)")
	cmd.Flags().IntVar(&flagEvaluations, "evaluations", 0, "passes over every window (default from config)")
	cmd.Flags().StringVar(&flagEvalAgent, "agent", "kinematic", "candidate agent (kinematic, ghost)")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "demo files evaluated concurrently")
	cmd.Flags().BoolVar(&flagNoRecord, "no-record", false, "do not append to the results log")
	cmd.Flags().BoolVar(&flagLatest, "latest", false, "only the most recent recording of the demo folder")
	cmd.MarkFlagsMutuallyExclusive("demo", "demo-folder")
	cmd.MarkFlagsMutuallyExclusive("demo", "latest")
	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	files, err := demoFiles(flagDemo, flagDemoFolder, cfg.Paths.DemosDir, flagLatest)
	if err != nil {
		return err
	}
	factory, err := agentFactory(flagEvalAgent)
	if err != nil {
		return err
	}

	opts := &runner.BatchOpts{
		DemoFiles:   files,
		ModelRunID:  flagModel,
		Label:       "evaluate",
		Evaluations: orDefault(flagEvaluations, cfg.Evaluation.DefaultEvaluations),
		SplitAmount: orDefault(flagSplitAmount, cfg.Evaluation.DefaultSplitAmount),
		SplitLength: orDefault(flagSplitLength, cfg.Evaluation.DefaultSplitLength),
		Timestep:    cfg.Evaluation.FixedDeltaTime,
		NewAgent:    factory,
		Parallel:    flagParallel,
	}
	if !flagNoRecord {
		sink, err := result.OpenLog(filepath.Join(cfg.Paths.ResultsDir, result.LogName))
		if err != nil {
			return err
		}
		opts.Sink = sink
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	records, errs := runner.RunBatch(ctx, opts)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEMO\tWINDOWS\tMEAN\tMIN\tMAX\tSTDDEV")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%dx%d\t%.4f\t%.4f\t%.4f\t%.4f\n",
			r.DemoFile, r.Repeats, r.SplitAmount, r.MeanScore, r.MinScore, r.MaxScore, r.StdDev)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, err := range errs {
		fmt.Fprintf(cmd.ErrOrStderr(), "  ERROR: %v\n", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no demo could be evaluated")
	}
	return nil
}

// demoFiles resolves --demo or --demo-folder, in that order, then the
// configured demos folder. With latest only the newest recording of the
// folder is kept.
func demoFiles(file, folder, fallback string, latest bool) ([]string, error) {
	if file != "" {
		if err := demo.CheckFile(file, demo.Ext); err != nil {
			return nil, err
		}
		return []string{file}, nil
	}
	if folder == "" {
		folder = fallback
	}
	if latest {
		f, err := demo.Latest(folder)
		if err != nil {
			return nil, err
		}
		return []string{f}, nil
	}
	return demo.List(folder)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
