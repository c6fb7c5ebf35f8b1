package dcl

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunSpec names one configuration of a sweep.
type RunSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Params BondParameters `json:"params" yaml:"params"`
}

// Sweep runs every RunSpec against the same read-only series, at most limit at
// a time. Results keep the order of specs; a failed run carries its error in
// Result.Errors and does not stop the others. Only context cancellation is
// returned as an error.
func Sweep(ctx context.Context, series Series, specs []RunSpec, limit int) ([]Result, error) {
	return SweepObserved(ctx, series, specs, limit, nil)
}

// Observer is told about every finished run of a sweep, failed ones
// included. It may be called from several goroutines at once.
type Observer func(res Result, elapsed time.Duration)

// SweepObserved is Sweep with a per-run callback.
func SweepObserved(ctx context.Context, series Series, specs []RunSpec, limit int, observe Observer) ([]Result, error) {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	out := make([]Result, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := Simulate(spec.Name, spec.Params, series)
			if err != nil {
				res = Result{Name: spec.Name, Params: spec.Params, Errors: []string{err.Error()}}
			}
			out[i] = res
			if observe != nil {
				observe(res, time.Since(start))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
