// Package jobs runs evidence processing in the background. The queue
// is in-process: uploads return immediately and a fixed worker pool
// drains the backlog. Delivery is at-least-once; the pipeline's
// checkpointing makes duplicate delivery harmless.
package jobs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("processing queue is full")

// Processor is the work a job performs; the pipeline orchestrator
// satisfies it.
type Processor interface {
	Process(ctx context.Context, evidenceID string) error
}

type Job struct {
	EvidenceID string
	Attempts   int
	EnqueuedAt time.Time
}

type Config struct {
	Workers     int
	QueueDepth  int
	MaxAttempts int
	// RetryDelay separates attempts for the same job.
	RetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

type Dispatcher struct {
	cfg       Config
	processor Processor
	queue     chan Job

	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
	stopped  bool
}

func NewDispatcher(processor Processor, cfg Config) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:       cfg,
		processor: processor,
		queue:     make(chan Job, cfg.QueueDepth),
	}
}

// Start launches the worker pool. Workers exit when the context is
// cancelled or Stop closes the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	log.Printf("[JOBS] dispatcher started with %d workers", d.cfg.Workers)
}

// Enqueue submits evidence for processing without blocking.
func (d *Dispatcher) Enqueue(evidenceID string) error {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return errors.New("dispatcher stopped")
	}

	select {
	case d.queue <- Job{EvidenceID: evidenceID, Attempts: 0, EnqueuedAt: time.Now().UTC()}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()
	log.Printf("[JOBS] dispatcher stopped")
}

// Backlog reports queued (not in-flight) jobs.
func (d *Dispatcher) Backlog() int {
	return len(d.queue)
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.queue:
			if !ok {
				return
			}
			d.runJob(ctx, job)
		}
	}
}

func (d *Dispatcher) runJob(ctx context.Context, job Job) {
	job.Attempts++
	log.Printf("[JOBS] processing evidence %s (attempt %d)", job.EvidenceID, job.Attempts)

	err := d.processor.Process(ctx, job.EvidenceID)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Shutting down; the job resumes from its checkpoint next start.
		return
	}

	if job.Attempts >= d.cfg.MaxAttempts {
		log.Printf("[JOBS] evidence %s failed after %d attempts: %v", job.EvidenceID, job.Attempts, err)
		return
	}

	log.Printf("[JOBS] evidence %s attempt %d failed, retrying: %v", job.EvidenceID, job.Attempts, err)
	select {
	case <-ctx.Done():
	case <-time.After(d.cfg.RetryDelay):
		d.requeue(job)
	}
}

// requeue re-submits a failed job unless Stop has already closed the
// queue; a send after close would panic the worker.
func (d *Dispatcher) requeue(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		log.Printf("[JOBS] dispatcher stopping, dropping retry for %s", job.EvidenceID)
		return
	}

	select {
	case d.queue <- job:
	default:
		log.Printf("[JOBS] queue full, dropping retry for %s", job.EvidenceID)
	}
}
