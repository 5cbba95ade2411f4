package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/torosent/ga4sim/internal/pool"
)

// Outcome is the tagged result of executing one item.
type Outcome[T any] struct {
	Item T
	Err  error
}

// Result captures the execution summary of a RunBatches call.
type Result[T any] struct {
	Outcomes []Outcome[T]
	Batches  int
	Errors   int
	Duration time.Duration
}

// PanicError is recorded when an item's function panics.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// BatchHook observes the start of each batch. It is called from the
// coordinating goroutine, never concurrently.
type BatchHook func(index, size int)

// RunBatches executes fn for every item, at most limiter.Limit() at a time.
// Items are split into consecutive batches; all items of a batch run
// concurrently and the whole batch settles before the next one starts. The
// ceiling is re-read at every batch boundary so a narrowed limiter takes
// effect on the following batch. The returned outcomes are positionally
// aligned with items.
func RunBatches[T any](ctx context.Context, items []T, limiter *pool.Limiter, fn func(context.Context, T) error, hooks ...BatchHook) Result[T] {
	start := time.Now()
	res := Result[T]{Outcomes: make([]Outcome[T], len(items))}
	if limiter == nil {
		limiter = pool.NewLimiter("default", 1, true)
	}

	for offset := 0; offset < len(items); {
		size := limiter.Limit()
		if size < 1 {
			size = 1
		}
		end := offset + size
		if end > len(items) {
			end = len(items)
		}
		for _, hook := range hooks {
			if hook != nil {
				hook(res.Batches, end-offset)
			}
		}

		var wg sync.WaitGroup
		wg.Add(end - offset)
		for i := offset; i < end; i++ {
			go func(i int) {
				defer wg.Done()
				res.Outcomes[i] = Outcome[T]{Item: items[i], Err: runOne(ctx, limiter, items[i], fn)}
			}(i)
		}
		wg.Wait()

		res.Batches++
		offset = end
	}

	for _, o := range res.Outcomes {
		if o.Err != nil {
			res.Errors++
		}
	}
	res.Duration = time.Since(start)
	return res
}

func runOne[T any](ctx context.Context, limiter *pool.Limiter, item T, fn func(context.Context, T) error) (err error) {
	if err := limiter.Acquire(ctx); err != nil {
		return err
	}
	defer limiter.Release()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	if fn == nil {
		return nil
	}
	return fn(ctx, item)
}
