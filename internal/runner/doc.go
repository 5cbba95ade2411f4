// Package runner provides the execution engine for simulation jobs.
//
// The runner package offers two building blocks:
//   - [RunBatches]: a bounded-concurrency executor that splits work into
//     consecutive batches no larger than a pool's ceiling and waits for each
//     batch to settle before starting the next
//   - [RetryPolicy]: a per-phase retry loop with pluggable backoff and
//     retry classification
//
// # Basic Usage
//
//	limiter := pool.NewLimiter(pool.Light, 20, false)
//	res := runner.RunBatches(ctx, jobs, limiter, func(ctx context.Context, j *job.Job) error {
//		return simulate(ctx, j)
//	})
//	for _, o := range res.Outcomes {
//		if o.Err != nil {
//			// job-level failure, captured as data
//		}
//	}
//
// # Failure Isolation
//
// Every item yields exactly one [Outcome]. An error or panic inside one item
// is captured into that item's outcome and never aborts siblings in the same
// or later batches.
//
// # Retries
//
// Wrap a phase in [RetryPolicy.Do]:
//
//	policy := runner.PolicyFromBackoff(backoff.Default())
//	attempts, err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
//		return emitter.Emit(ctx, id, events)
//	})
package runner
