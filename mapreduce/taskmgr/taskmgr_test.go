package taskmgr

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOrderPerKey(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]int)
	mgr := NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		key := keyCtx.(string)
		mu.Lock()
		seen[key] = append(seen[key], task.(int))
		mu.Unlock()
		return nil
	})
	for _, key := range []string{"a", "b"} {
		mgr.AddContext(key, key)
		for i := range 5 {
			mgr.AddTask(key, i)
		}
	}
	if err := mgr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 2, 3, 4}
	for _, key := range []string{"a", "b"} {
		if !slices.Equal(seen[key], want) {
			t.Fatalf("key %s ran %v, want %v", key, seen[key], want)
		}
	}
	// drained queues do not run again
	if err := mgr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen["a"]) != 5 || len(seen["b"]) != 5 {
		t.Fatalf("second Run ran tasks again: %v", seen)
	}
}

func TestRunKeysInParallel(t *testing.T) {
	// both tasks must be running at once to get past the barrier
	var wg sync.WaitGroup
	wg.Add(2)
	mgr := NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		wg.Done()
		wg.Wait()
		return nil
	})
	mgr.AddTask("a", 1)
	mgr.AddTask("b", 1)
	done := make(chan error)
	go func() { done <- mgr.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("keys did not run in parallel")
	}
}

func TestRunFirstErrorCancels(t *testing.T) {
	errBoom := errors.New("boom")
	var ran atomic.Int32
	mgr := NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		ran.Add(1)
		if task == "fail" {
			return errBoom
		}
		<-ctx.Done()
		return ctx.Err()
	})
	mgr.AddTask("fail", "fail")
	mgr.AddTask("wait", "wait")
	mgr.AddTask("wait", "never")

	err := mgr.Run(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("Run err = %v, want errBoom", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, cancellation noise must not be reported", err)
	}
	if n := ran.Load(); n > 2 {
		t.Fatalf("%d tasks ran, queued tasks after the failure must be dropped", n)
	}
}

func TestRunJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var wg sync.WaitGroup
	wg.Add(2)
	mgr := NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		wg.Done()
		wg.Wait()
		return task.(error)
	})
	mgr.AddTask("a", errA)
	mgr.AddTask("b", errB)
	err := mgr.Run(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Run err = %v, want both failures", err)
	}
}

func TestAddTaskWhileRunning(t *testing.T) {
	var mgr *TaskManager
	var count atomic.Int32
	mgr = NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		count.Add(1)
		if n := task.(int); n > 0 {
			// requeue on another key, the way a failed upload moves on to the next server
			mgr.AddTask("retry", n-1)
		}
		return nil
	})
	mgr.AddTask("first", 3)
	if err := mgr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if count.Load() != 4 {
		t.Fatalf("ran %d tasks, want 4", count.Load())
	}
}

func TestKeyWithoutContext(t *testing.T) {
	var got []any
	mgr := NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		got = append(got, keyCtx)
		return nil
	})
	mgr.AddTask("bare", 1)
	if err := mgr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != nil {
		t.Fatalf("handler saw key contexts %v, want a single nil", got)
	}
}

func TestRunCancelledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mgr := NewTaskManager(func(ctx context.Context, keyCtx any, task any) error {
		t.Error("task ran after cancellation")
		return nil
	})
	mgr.AddTask("a", 1)
	if err := mgr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
}
