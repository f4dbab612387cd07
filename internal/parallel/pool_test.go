package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}

	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n, 0)
		expected := min(runtime.GOMAXPROCS(0), MaxWorkers)
		if pool.Workers() != expected {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d", n, pool.Workers(), expected)
		}
		pool.Close()
	}
}

func TestWorkerPool_CreateClamped(t *testing.T) {
	pool := NewWorkerPool(64, 0)
	defer pool.Close()

	if pool.Workers() != MaxWorkers {
		t.Errorf("Workers() = %d, want %d", pool.Workers(), MaxWorkers)
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	var counter atomic.Int64
	numTasks := 100

	work := make([]func(), numTasks)
	for i := range work {
		work[i] = func() {
			counter.Add(1)
		}
	}

	if err := pool.ExecuteAll(context.Background(), work); err != nil {
		t.Fatal(err)
	}

	if counter.Load() != int64(numTasks) {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	if err := pool.ExecuteAll(context.Background(), nil); err != nil {
		t.Errorf("ExecuteAll(nil) = %v", err)
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestWorkerPool_SubmitFIFO(t *testing.T) {
	pool := NewWorkerPool(1, 64)
	defer pool.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		err := pool.Submit(context.Background(), func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, single worker must run in submission order", i, v)
		}
	}
}

func TestWorkerPool_Submit_Nil(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	defer pool.Close()

	if err := pool.Submit(context.Background(), nil); err != nil {
		t.Errorf("Submit(nil) = %v", err)
	}
}

func TestWorkerPool_SubmitBlocksWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	defer pool.Close()

	gate := make(chan struct{})
	started := make(chan struct{})
	_ = pool.Submit(context.Background(), func() {
		close(started)
		<-gate
	})
	<-started
	_ = pool.Submit(context.Background(), func() {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Submit(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit on full queue = %v, want deadline exceeded", err)
	}
	close(gate)
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
}

func TestWorkerPool_CloseWithPendingWork(t *testing.T) {
	pool := NewWorkerPool(1, 16)

	var counter atomic.Int64
	for range 10 {
		_ = pool.Submit(context.Background(), func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}
	pool.Close()

	if counter.Load() != 10 {
		t.Errorf("counter = %d after Close, want 10 (queued work drained)", counter.Load())
	}
}

func TestWorkerPool_OperationsAfterClose(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	pool.Close()

	if err := pool.Submit(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	if err := pool.ExecuteAll(context.Background(), []func(){func() {}}); !errors.Is(err, ErrClosed) {
		t.Errorf("ExecuteAll after Close = %v, want ErrClosed", err)
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4, 0)
	defer pool.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work := make([]func(), 50)
			for i := range work {
				work[i] = func() { counter.Add(1) }
			}
			_ = pool.ExecuteAll(context.Background(), work)
		}()
	}
	wg.Wait()

	if counter.Load() != 400 {
		t.Errorf("counter = %d, want 400", counter.Load())
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	before := runtime.NumGoroutine()
	for range 10 {
		pool := NewWorkerPool(4, 0)
		_ = pool.ExecuteAll(context.Background(), []func(){func() {}, func() {}})
		pool.Close()
	}
	time.Sleep(10 * time.Millisecond)

	if after := runtime.NumGoroutine(); after > before+2 {
		t.Errorf("goroutines before = %d, after = %d", before, after)
	}
}

func TestWorkerPool_ActiveWork(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	defer pool.Close()

	gate := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	for range 2 {
		_ = pool.Submit(context.Background(), func() {
			started.Done()
			<-gate
		})
	}
	started.Wait()
	if got := pool.ActiveWork(); got != 2 {
		t.Errorf("ActiveWork() = %d, want 2", got)
	}
	if got := pool.QueuedWork(); got != 0 {
		t.Errorf("QueuedWork() = %d, want 0", got)
	}
	close(gate)
}
