package parallel_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cryptad/update-releaser/pkg/utils/parallel"
)

func TestForEachRunsAllItems(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	err := parallel.ForEach(context.Background(), 3, []int{1, 2, 3, 4, 5}, func(ctx context.Context, item int) error {
		mu.Lock()
		seen[item] = true
		mu.Unlock()
		return nil
	})

	gt.NoError(t, err)
	gt.Number(t, len(seen)).Equal(5)
}

func TestForEachCollectsAllErrors(t *testing.T) {
	errA := errors.New("item a failed")
	errB := errors.New("item b failed")

	var completed atomic.Int32
	err := parallel.ForEach(context.Background(), 2, []string{"a", "b", "c"}, func(ctx context.Context, item string) error {
		switch item {
		case "a":
			return errA
		case "b":
			return errB
		}
		completed.Add(1)
		return nil
	})

	gt.Error(t, err)
	gt.True(t, errors.Is(err, errA))
	gt.True(t, errors.Is(err, errB))

	// The healthy item still ran despite the failures.
	gt.Number(t, completed.Load()).Equal(int32(1))
}

func TestForEachBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int32

	items := make([]int, 20)
	err := parallel.ForEach(context.Background(), 2, items, func(ctx context.Context, item int) error {
		now := current.Add(1)
		for {
			observed := peak.Load()
			if now <= observed || peak.CompareAndSwap(observed, now) {
				break
			}
		}
		current.Add(-1)
		return nil
	})

	gt.NoError(t, err)
	gt.Number(t, peak.Load()).LessOrEqual(int32(2))
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	err := parallel.ForEach(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, item int) error {
		ran.Add(1)
		return nil
	})

	gt.Error(t, err)
	gt.Number(t, ran.Load()).Equal(int32(0))
}

func TestForEachEmptyItems(t *testing.T) {
	err := parallel.ForEach(context.Background(), 4, []string{}, func(ctx context.Context, item string) error {
		t.Fatal("must not be called")
		return nil
	})
	gt.NoError(t, err)
}
