// Package batch applies a unit of work to a list of items in consecutive
// concurrency-capped batches, pacing between batches to stay under the remote
// backend's request-rate budget. One item's failure never aborts the rest.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Options bounds a run. A Concurrency below one is treated as one.
type Options struct {
	Concurrency int
	Pause       time.Duration
}

// Run partitions items into batches of Options.Concurrency, launches every
// worker of a batch concurrently, waits for all of them to settle, then
// pauses before the next batch. Outcomes are returned in input order
// regardless of completion order. A worker error or panic is captured into a
// Failed outcome attributed via owner.
func Run[T any](ctx context.Context, items []T, owner func(T) string, worker func(context.Context, T) (Outcome, error), opts Options) []Outcome {
	if len(items) == 0 {
		return nil
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(items))
	for start := 0; start < len(items); start += concurrency {
		end := min(start+concurrency, len(items))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = settle(ctx, items[i], owner, worker)
			}(i)
		}
		wg.Wait()

		if end < len(items) && opts.Pause > 0 {
			sleep(ctx, opts.Pause)
		}
	}
	return outcomes
}

// settle runs one worker and converts errors and panics into Failed outcomes
// so a batch always completes.
func settle[T any](ctx context.Context, item T, owner func(T) string, worker func(context.Context, T) (Outcome, error)) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failed(owner(item), fmt.Sprintf("panic: %v", r))
		}
	}()

	outcome, err := worker(ctx, item)
	if err != nil {
		return Failed(owner(item), err.Error())
	}
	if outcome.OwnerID == "" {
		outcome.OwnerID = owner(item)
	}
	return outcome
}

// sleep waits for the inter-batch pause. Context cancellation skips the
// remaining pause; the next batch's workers then fail fast on the canceled
// context, so every item still receives an outcome.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
