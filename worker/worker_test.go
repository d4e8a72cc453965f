package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(Config{Workers: 2, QueueCapacity: 8})
	defer p.Shutdown(context.Background())

	var ran int32
	done := make(chan struct{})
	err := p.Submit(Task{Kind: KindIndexDocument, UserID: 1, Run: func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		close(done)
		return nil
	}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run in time")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("expected task to run")
	}
}

func TestPerUserTasksRunInOrder(t *testing.T) {
	p := New(Config{Workers: 4, QueueCapacity: 64})
	defer p.Shutdown(context.Background())

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)

	for i := 0; i < 10; i++ {
		i := i
		err := p.Submit(Task{Kind: KindIndexDocument, UserID: 42, Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
			return nil
		}})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	waitOrTimeout(t, &wg, 2*time.Second)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order for one user, got %v", order)
		}
	}
}

func TestSubmitReturnsErrQueueFullWhenSaturated(t *testing.T) {
	// One worker, one unit of queue capacity: the first task occupies
	// the running worker (and doesn't count against capacity), the
	// second occupies the one queued slot, and a third must be
	// rejected (spec §8 scenario 6: "one running + one queued").
	p := New(Config{Workers: 1, QueueCapacity: 1})

	block := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(Task{Kind: KindIndexDocument, UserID: 1, Run: func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	// Occupies the pool's one queued slot, behind the busy worker for a
	// different user so it can't be drained either.
	if err := p.Submit(Task{Kind: KindIndexDocument, UserID: 2, Run: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err := p.Submit(Task{Kind: KindIndexDocument, UserID: 3, Run: func(ctx context.Context) error { return nil }})
	close(block)
	if err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	p := New(Config{Workers: 2, QueueCapacity: 8})

	var count int32
	for i := 0; i < 5; i++ {
		p.Submit(Task{Kind: KindIndexDocument, UserID: int64(i), Run: func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if atomic.LoadInt32(&count) != 5 {
		t.Errorf("expected all 5 tasks to drain before shutdown returns, got %d", count)
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for tasks")
	}
}
