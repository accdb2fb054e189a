// Package async provides bounded concurrent execution for background jobs.
//
// Batch fans a slice of items out over a fixed number of workers (an errgroup
// with SetLimit) and returns one error slot per item, so a job can log and count
// individual failures without aborting the rest:
//
//	errs := async.Batch(ctx, rows, 8, 5*time.Second, func(ctx context.Context, row storage.DailyStats) error {
//		return store.AddCumulativeStats(ctx, row)
//	})
//	failed := async.Failures(errs)
//
// Panics inside a task are recovered and reported as that item's error.
package async
