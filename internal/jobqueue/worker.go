package jobqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often each worker checks for due jobs.
const DefaultPollInterval = time.Second

// Handler executes one job. A nil return completes the job; an error
// requeues it with backoff unless Permanent classifies it otherwise.
type Handler func(ctx context.Context, job *Job) error

// permanentError marks an error as not worth retrying.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker pool dead-letters the job immediately
// instead of spending the retry budget.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	for err != nil {
		if _, ok := err.(*permanentError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// WorkerPool claims and executes due jobs concurrently. A reaper goroutine
// returns lease-expired jobs from crashed workers to the queue.
type WorkerPool struct {
	queue        *Queue
	handler      Handler
	workers      int
	pollInterval time.Duration

	// Stats
	processed int64
	failed    int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewWorkerPool creates a pool of the given size.
func NewWorkerPool(queue *Queue, handler Handler, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	return &WorkerPool{
		queue:        queue,
		handler:      handler,
		workers:      workers,
		pollInterval: DefaultPollInterval,
	}
}

// SetPollInterval overrides the claim cadence. Tests only.
func (p *WorkerPool) SetPollInterval(d time.Duration) { p.pollInterval = d }

// Start launches the worker and reaper goroutines.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("worker pool already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	log.Printf("[JobQueue] Starting %d workers (poll interval %v)", p.workers, p.pollInterval)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workLoop()
	}
	p.wg.Add(1)
	go p.reapLoop()
	return nil
}

// Stop cancels in-flight jobs and waits for the goroutines. An interrupted
// job's lease expires and it re-delivers on the next start.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	log.Printf("[JobQueue] Stopped. Processed: %d, failed executions: %d",
		atomic.LoadInt64(&p.processed), atomic.LoadInt64(&p.failed))
}

func (p *WorkerPool) workLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.drain()
		}
	}
}

// drain claims and executes jobs until the due backlog is empty.
func (p *WorkerPool) drain() {
	for {
		jobs, err := p.queue.claimDue(p.ctx, 1)
		if err != nil {
			if p.ctx.Err() == nil {
				log.Printf("[JobQueue] Claim failed: %v", err)
			}
			return
		}
		if len(jobs) == 0 {
			return
		}
		for _, job := range jobs {
			p.execute(job)
		}
	}
}

func (p *WorkerPool) execute(job *Job) {
	err := p.handler(p.ctx, job)

	// Bookkeeping gets its own context so a shutdown mid-job still records
	// the outcome instead of leaking the lease until it expires.
	bkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err == nil {
		atomic.AddInt64(&p.processed, 1)
		if cErr := p.queue.complete(bkCtx, job); cErr != nil {
			log.Printf("[JobQueue] Complete failed for %s/%s: %v", job.ScheduleID, job.Stage, cErr)
		}
		return
	}
	if p.ctx.Err() != nil {
		// Interrupted by shutdown, not a real failure; leave the lease to
		// expire and re-deliver.
		return
	}

	atomic.AddInt64(&p.failed, 1)
	if fErr := p.queue.fail(bkCtx, job, err, isPermanent(err)); fErr != nil {
		log.Printf("[JobQueue] Failure handling failed for %s/%s: %v", job.ScheduleID, job.Stage, fErr)
	}
}

func (p *WorkerPool) reapLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.reapExpired(p.ctx, 100); err != nil {
				log.Printf("[JobQueue] Reap failed: %v", err)
			}
		}
	}
}
