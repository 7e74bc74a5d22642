package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	pool := NewPool(context.Background(), 4)
	pool.Start()

	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		pool.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	if errs := pool.Wait(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := ran.Load(); got != 20 {
		t.Errorf("ran %d tasks, want 20", got)
	}
}

func TestPoolCollectsFailures(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		i := i
		pool.Submit(func(ctx context.Context) error {
			if i%2 == 0 {
				return boom
			}
			return nil
		})
	}
	errs := pool.Wait()
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, boom) {
			t.Errorf("unexpected error %v", err)
		}
	}
}

func TestPoolZeroWorkersStillRuns(t *testing.T) {
	pool := NewPool(context.Background(), 0)
	pool.Start()

	done := false
	pool.Submit(func(ctx context.Context) error {
		done = true
		return nil
	})
	if errs := pool.Wait(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !done {
		t.Error("task did not run")
	}
}
