package runner

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNoUnits        = errors.New("runner: no work units")
	ErrInvalidWorkers = errors.New("runner: workers must be positive")
	ErrInvalidRetries = errors.New("runner: retries must not be negative")
)

// ProgressFunc is called after each unit reaches a terminal state. Calls are
// serialized.
type ProgressFunc func(completed, total int)

// Options configures a Run call.
type Options struct {
	// Workers caps concurrent units and must be positive.
	Workers int
	// Retries is the number of extra attempts after the first failure.
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Progress  ProgressFunc
}

// Result is the outcome of one work unit. Exactly one of Value or Err is meaningful.
type Result[R any] struct {
	Index    int
	Value    R
	Err      error
	Attempts int
}

// OK reports whether the unit succeeded.
func (r Result[R]) OK() bool { return r.Err == nil }

// UnitFunc processes a single input. attempt starts at 1.
type UnitFunc[T, R any] func(ctx context.Context, index int, input T, attempt int) (R, error)

// Run processes inputs with at most opts.Workers in flight and returns results
// in input order. Cancelling ctx stops new attempts; unfinished units record
// ctx.Err().
func Run[T, R any](ctx context.Context, inputs []T, opts Options, fn UnitFunc[T, R]) ([]Result[R], error) {
	if len(inputs) == 0 {
		return nil, ErrNoUnits
	}
	workers := opts.Workers
	if workers <= 0 {
		return nil, ErrInvalidWorkers
	}
	if opts.Retries < 0 {
		return nil, ErrInvalidRetries
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	results := make([]Result[R], len(inputs))
	indexes := make(chan int)

	var (
		progressMu sync.Mutex
		completed  int
	)
	finish := func(i int, res Result[R]) {
		results[i] = res
		progressMu.Lock()
		completed++
		if opts.Progress != nil {
			opts.Progress(completed, len(inputs))
		}
		progressMu.Unlock()
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				finish(i, runUnit(ctx, i, inputs[i], opts, fn))
			}
		}()
	}

	dispatched := 0
dispatch:
	for ; dispatched < len(inputs); dispatched++ {
		select {
		case <-ctx.Done():
			break dispatch
		case indexes <- dispatched:
		}
	}
	close(indexes)
	wg.Wait()

	for i := dispatched; i < len(inputs); i++ {
		finish(i, Result[R]{Index: i, Err: ctx.Err()})
	}
	return results, nil
}

func runUnit[T, R any](ctx context.Context, index int, input T, opts Options, fn UnitFunc[T, R]) Result[R] {
	res := Result[R]{Index: index}
	for attempt := 1; attempt <= opts.Retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		res.Attempts = attempt
		value, err := fn(ctx, index, input, attempt)
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err
		if attempt <= opts.Retries {
			if waitErr := sleep(ctx, Backoff(attempt, opts.BaseDelay, opts.MaxDelay)); waitErr != nil {
				res.Err = waitErr
				return res
			}
		}
	}
	return res
}

// Backoff returns base*2^(attempt-1) capped at max. A non-positive max disables the cap.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if max > 0 && delay >= max {
			break
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
