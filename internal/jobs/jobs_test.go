package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingProcessor struct {
	mu        sync.Mutex
	processed map[string]int
	failFirst map[string]bool
	done      chan string
}

func newCountingProcessor() *countingProcessor {
	return &countingProcessor{
		processed: make(map[string]int),
		failFirst: make(map[string]bool),
		done:      make(chan string, 64),
	}
}

func (p *countingProcessor) Process(ctx context.Context, evidenceID string) error {
	p.mu.Lock()
	p.processed[evidenceID]++
	attempt := p.processed[evidenceID]
	shouldFail := p.failFirst[evidenceID] && attempt == 1
	p.mu.Unlock()

	if shouldFail {
		return errors.New("transient failure")
	}
	p.done <- evidenceID
	return nil
}

func (p *countingProcessor) count(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed[id]
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("Expected %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for %s", want)
	}
}

func TestDispatcherProcessesJobs(t *testing.T) {
	proc := newCountingProcessor()
	d := NewDispatcher(proc, Config{Workers: 2})
	d.Start(context.Background())
	defer d.Stop()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		if err := d.Enqueue(id); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-proc.done:
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for jobs")
		}
	}
	if len(seen) != 3 {
		t.Errorf("Expected 3 distinct jobs processed, got %d", len(seen))
	}
}

func TestDispatcherRetriesFailedJob(t *testing.T) {
	proc := newCountingProcessor()
	proc.failFirst["ev-retry"] = true

	d := NewDispatcher(proc, Config{Workers: 1, RetryDelay: 10 * time.Millisecond})
	d.Start(context.Background())
	defer d.Stop()

	if err := d.Enqueue("ev-retry"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitFor(t, proc.done, "ev-retry")
	if got := proc.count("ev-retry"); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	proc := newCountingProcessor()
	d := NewDispatcher(proc, Config{Workers: 1, QueueDepth: 1})
	// Not started: nothing drains the queue.

	if err := d.Enqueue("ev-a"); err != nil {
		t.Fatalf("First enqueue failed: %v", err)
	}
	if err := d.Enqueue("ev-b"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcherStopDuringRetryDelay(t *testing.T) {
	proc := newCountingProcessor()
	proc.failFirst["ev-flaky"] = true

	d := NewDispatcher(proc, Config{Workers: 1, RetryDelay: 200 * time.Millisecond})
	d.Start(context.Background())

	if err := d.Enqueue("ev-flaky"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Let the first attempt fail, then stop while the worker is
	// sleeping out the retry delay. The retry must be dropped, not sent
	// into the closed queue.
	for proc.count("ev-flaky") == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	d.Stop()

	if got := proc.count("ev-flaky"); got != 1 {
		t.Errorf("Expected the retry to be dropped on stop, got %d attempts", got)
	}
}

func TestDispatcherStopWaitsForInflight(t *testing.T) {
	proc := newCountingProcessor()
	d := NewDispatcher(proc, Config{Workers: 1})
	d.Start(context.Background())

	if err := d.Enqueue("ev-last"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitFor(t, proc.done, "ev-last")
	d.Stop()

	if err := d.Enqueue("ev-after"); err == nil {
		t.Error("Expected error enqueueing after stop")
	}
}
