package runner

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/kartlab/kartbench/internal/evaluator"
	"github.com/kartlab/kartbench/internal/result"
	"github.com/kartlab/kartbench/internal/simhost"
	"github.com/kartlab/kartbench/internal/trajectory"
)

// Sink receives each record as soon as its evaluation finishes. It must be
// safe for concurrent use.
type Sink interface {
	Append(rec result.EvaluationRecord) error
}

type BatchOpts struct {
	DemoFiles   []string
	ModelRunID  string
	Label       string
	Evaluations int
	SplitAmount int
	SplitLength int
	Timestep    time.Duration
	// NewAgent builds a fresh agent for one demo file.
	NewAgent func(ref trajectory.Trajectory) simhost.Agent
	Sink     Sink
	Parallel int
	Logger   *log.Logger
}

// RunBatch evaluates every demo file on the headless host, up to Parallel at
// a time. Records come back sorted by demo file; a file that cannot be
// evaluated contributes an error instead.
func RunBatch(ctx context.Context, opts *BatchOpts) ([]result.EvaluationRecord, []error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	var (
		mu      sync.Mutex
		records []result.EvaluationRecord
	)
	jobs := make([]Job, 0, len(opts.DemoFiles))
	for _, file := range opts.DemoFiles {
		jobs = append(jobs, func(ctx context.Context) error {
			rec, err := evaluateFile(ctx, opts, file, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(file), err)
			}
			if opts.Sink != nil {
				if err := opts.Sink.Append(*rec); err != nil {
					logger.Printf("warning: recording %s: %v", rec.DemoFile, err)
				}
			}
			mu.Lock()
			records = append(records, *rec)
			mu.Unlock()
			return nil
		})
	}
	errs := RunPool(ctx, opts.Parallel, jobs)
	sort.Slice(records, func(i, j int) bool { return records[i].DemoFile < records[j].DemoFile })
	return records, errs
}

func evaluateFile(ctx context.Context, opts *BatchOpts, file string, logger *log.Logger) (*result.EvaluationRecord, error) {
	ev := evaluator.New(evaluator.Options{
		DemoFile:    file,
		Evaluations: opts.Evaluations,
		SplitAmount: opts.SplitAmount,
		SplitLength: opts.SplitLength,
		Logger:      logger,
	})
	if ev.Disabled() {
		return nil, ev.Err()
	}
	sum, err := simhost.RunEvaluation(ctx, ev, opts.NewAgent(ev.Reference()), opts.Timestep)
	if err != nil {
		return nil, err
	}
	split := ev.Split()
	return &result.EvaluationRecord{
		Session:     opts.Label,
		Step:        -1,
		DemoFile:    filepath.Base(file),
		ModelRunID:  opts.ModelRunID,
		Repeats:     opts.Evaluations,
		SplitAmount: split.Amount,
		SplitLength: split.Length,
		MeanScore:   sum.Mean,
		MinScore:    sum.Min,
		MaxScore:    sum.Max,
		StdDev:      sum.StdDev,
		Scores:      sum.Scores,
	}, nil
}
