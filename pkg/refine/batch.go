package refine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Job is one independent refinement in a batch.
type Job struct {
	Name          string
	Code          string
	Language      string
	MaxIterations int
}

// RefineAll runs jobs concurrently with at most concurrency runs in flight
// (GOMAXPROCS when concurrency <= 0). Results are returned in job order.
// Runs share nothing but the Refiner, whose fields are read-only.
func (r *Refiner) RefineAll(ctx context.Context, jobs []Job, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = r.Refine(gctx, job.Code, job.Language, job.MaxIterations)
			return nil
		})
	}
	_ = g.Wait() // runs never return errors
	return results
}
