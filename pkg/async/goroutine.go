package async

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/bookrank/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used when Batch is given workers <= 0
const DefaultWorkers = 8

// Batch runs fn for every item on at most workers goroutines and waits for all of them.
// The returned slice is index-aligned with items: errs[i] is the outcome of items[i].
// One item failing never cancels the others. A panic inside fn becomes that item's error.
// A non-positive timeout means no per-item deadline beyond ctx.
//
// Example:
//
//	errs := async.Batch(ctx, rows, 8, 5*time.Second, func(ctx context.Context, row storage.DailyStats) error {
//	    return store.AddCumulativeStats(ctx, row)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = DefaultWorkers
	}

	errs := make([]error, len(items))

	var eg errgroup.Group
	eg.SetLimit(workers)

	for i, item := range items {
		i, item := i, item
		eg.Go(func() error {
			errs[i] = runOne(ctx, timeout, item, fn)
			return nil
		})
	}
	eg.Wait()

	return errs
}

func runOne[T any](ctx context.Context, timeout time.Duration, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if perr := observability.MustRecover(recover()); perr != nil {
			err = perr
		}
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("skipped: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, item)
}

// Failures counts the non-nil errors returned by Batch
func Failures(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
