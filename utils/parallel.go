// Package utils holds small concurrency helpers shared by the offline
// pipeline stages and the online localizer.
package utils

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// SimpleFunc is one unit of parallel work.
type SimpleFunc func(ctx context.Context) error

// RunInParallel runs every function concurrently and waits for all of
// them. The first failure cancels the shared context; panics are captured
// and reported as errors. Returns the elapsed wall time and the combined
// errors.
func RunInParallel(ctx context.Context, fs []SimpleFunc) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined error
	)
	fail := func(err error) {
		mu.Lock()
		if joined == nil || !errors.Is(err, context.Canceled) {
			joined = multierr.Combine(joined, err)
		}
		mu.Unlock()
		cancel()
	}

	for _, f := range fs {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					fail(errors.Errorf("panic running work in parallel: %v", thePanic))
				}
			}()
			if err := f(ctx); err != nil {
				fail(err)
			}
		}()
	}
	wg.Wait()
	return time.Since(start), joined
}

// FloatFunc is a unit of parallel work producing a score.
type FloatFunc func(ctx context.Context) (float64, error)

// GetInParallel runs every function concurrently and collects each result
// into its own slot, so the parallel phase needs no locks on the data path.
func GetInParallel(ctx context.Context, fs []FloatFunc) (time.Duration, []float64, error) {
	results := make([]float64, len(fs))
	wrapped := make([]SimpleFunc, len(fs))
	for i, f := range fs {
		i, f := i, f
		wrapped[i] = func(ctx context.Context) error {
			v, err := f(ctx)
			results[i] = v
			return err
		}
	}
	elapsed, err := RunInParallel(ctx, wrapped)
	return elapsed, results, err
}
