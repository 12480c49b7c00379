package runner

import (
	"context"
	"fmt"
	"sync"
)

// Job is one unit of pool work. It should return early once ctx is done.
type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently and returns all
// errors. Once ctx is done no further job is started; the jobs left behind
// are reported as a single error wrapping ctx.Err().
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, maxWorkers)

	for i, job := range jobs {
		if err := acquire(ctx, sem); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%d of %d jobs not started: %w", len(jobs)-i, len(jobs), err))
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := j(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()
	return errs
}

// acquire takes a worker slot unless ctx is done first.
func acquire(ctx context.Context, sem chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case sem <- struct{}{}:
		if err := ctx.Err(); err != nil {
			<-sem
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
