package batch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func itemOwner(item int) string {
	return strconv.Itoa(item)
}

func TestRunEmptyItems(t *testing.T) {
	outcomes := Run(context.Background(), nil, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			t.Fatal("worker must not be called")
			return Outcome{}, nil
		}, Options{Concurrency: 3})
	require.Empty(t, outcomes)
}

func TestRunPreservesInputOrder(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	outcomes := Run(context.Background(), items, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			// Later items in a batch finish first.
			time.Sleep(time.Duration(5-item%5) * time.Millisecond)
			return Graded(itemOwner(item)), nil
		}, Options{Concurrency: 5})

	require.Len(t, outcomes, len(items))
	for i, outcome := range outcomes {
		require.Equal(t, strconv.Itoa(i), outcome.OwnerID)
		require.Equal(t, StatusGraded, outcome.Status)
	}
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	const limit = 4
	var inFlight, peak atomic.Int32

	items := make([]int, 23)
	outcomes := Run(context.Background(), items, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			current := inFlight.Add(1)
			for {
				observed := peak.Load()
				if current <= observed || peak.CompareAndSwap(observed, current) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return Graded(""), nil
		}, Options{Concurrency: limit})

	require.Len(t, outcomes, len(items))
	require.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestRunPausesBetweenBatches(t *testing.T) {
	const pause = 20 * time.Millisecond

	var mu sync.Mutex
	var starts []time.Time

	items := []int{0, 1, 2, 3}
	Run(context.Background(), items, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return Graded(""), nil
		}, Options{Concurrency: 2, Pause: pause})

	require.Len(t, starts, 4)
	firstBatch := starts[0]
	if starts[1].Before(firstBatch) {
		firstBatch = starts[1]
	}
	secondBatch := starts[2]
	if starts[3].Before(secondBatch) {
		secondBatch = starts[3]
	}
	require.GreaterOrEqual(t, secondBatch.Sub(firstBatch), pause)
}

func TestRunNoPauseAfterLastBatch(t *testing.T) {
	start := time.Now()
	Run(context.Background(), []int{0, 1}, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			return Graded(""), nil
		}, Options{Concurrency: 2, Pause: 500 * time.Millisecond})
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestRunIsolatesWorkerFailures(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}
	outcomes := Run(context.Background(), items, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			if item == 2 {
				return Outcome{}, errors.New("backend exploded")
			}
			return Graded(itemOwner(item)), nil
		}, Options{Concurrency: 2})

	summary := Summarize(outcomes)
	require.Equal(t, 5, summary.Total)
	require.Equal(t, 4, summary.Graded)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, "2", summary.Failures[0].OwnerID)
	require.Contains(t, summary.Failures[0].Reason, "backend exploded")
}

func TestRunCapturesPanics(t *testing.T) {
	outcomes := Run(context.Background(), []int{0, 1}, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			if item == 1 {
				panic(fmt.Sprintf("worker %d blew up", item))
			}
			return Graded(itemOwner(item)), nil
		}, Options{Concurrency: 2})

	require.Equal(t, StatusGraded, outcomes[0].Status)
	require.Equal(t, StatusFailed, outcomes[1].Status)
	require.Contains(t, outcomes[1].Reason, "panic")
	require.Equal(t, "1", outcomes[1].OwnerID)
}

func TestRunFillsMissingOwner(t *testing.T) {
	outcomes := Run(context.Background(), []int{7}, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			return Outcome{Status: StatusGraded}, nil
		}, Options{Concurrency: 1})
	require.Equal(t, "7", outcomes[0].OwnerID)
}

func TestRunTreatsZeroConcurrencyAsOne(t *testing.T) {
	var inFlight, peak atomic.Int32
	outcomes := Run(context.Background(), []int{0, 1, 2}, itemOwner,
		func(ctx context.Context, item int) (Outcome, error) {
			current := inFlight.Add(1)
			if current > peak.Load() {
				peak.Store(current)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return Graded(""), nil
		}, Options{})

	require.Len(t, outcomes, 3)
	require.EqualValues(t, 1, peak.Load())
}
