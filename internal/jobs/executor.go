// -----------------------------------------------------------------------
// Executor - Bounded worker pool for long-running work functions
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Task is a unit of work scheduled on the pool. The context carries the
// job's cooperative cancellation signal.
type Task func(ctx context.Context)

// ErrQueueFull is returned by Submit when the pending-task buffer is
// saturated. Submit never blocks the caller waiting for a free slot.
var ErrQueueFull = fmt.Errorf("executor queue is full")

type taskEntry struct {
	jobID string
	ctx   context.Context
	run   Task
}

// Executor runs work functions off the caller's goroutine on a fixed-size
// pool. Each submitted task gets its own cancellable context, tracked by job
// identity so queued tasks can be prevented from ever starting. Bookkeeping
// entries are removed when a task finishes, so identities can be reused
// indefinitely without memory growth.
type Executor struct {
	logger  arbor.ILogger
	workers int

	queue chan taskEntry

	mu      sync.Mutex
	handles map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started bool
	closed  bool
}

// NewExecutor creates an executor with the given pool size and queue capacity
func NewExecutor(workers, queueSize int, logger arbor.ILogger) *Executor {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		logger:  logger,
		workers: workers,
		queue:   make(chan taskEntry, queueSize),
		handles: make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines
func (e *Executor) Start() {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.logger.Info().Int("workers", e.workers).Msg("Starting executor pool")

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Submit queues a task for execution and returns immediately. Returns
// ErrQueueFull when the buffer is saturated and an error after Shutdown.
func (e *Executor) Submit(jobID string, task Task) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("executor is shut down")
	}
	taskCtx, cancel := context.WithCancel(e.ctx)
	e.handles[jobID] = cancel
	e.mu.Unlock()

	select {
	case e.queue <- taskEntry{jobID: jobID, ctx: taskCtx, run: task}:
		return nil
	default:
		e.removeHandle(jobID)
		cancel()
		return ErrQueueFull
	}
}

// Cancel signals cancellation for the given job. A still-queued task is
// prevented from ever starting; an in-flight task observes the cancelled
// context at its own safe points. Returns false if no handle exists.
func (e *Executor) Cancel(jobID string) bool {
	e.mu.Lock()
	cancel, ok := e.handles[jobID]
	e.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// InFlight returns the number of tracked task handles (queued + running)
func (e *Executor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Shutdown cancels all tracked tasks and waits for the workers to drain.
// Returns the context error if the wait deadline expires first.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.logger.Info().Msg("Shutting down executor pool")
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info().Msg("Executor pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) worker(workerID int) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case entry := <-e.queue:
			e.runTask(workerID, entry)
		}
	}
}

func (e *Executor) runTask(workerID int, entry taskEntry) {
	defer e.removeHandle(entry.jobID)

	// A task cancelled while queued never starts
	if entry.ctx.Err() != nil {
		e.logger.Debug().
			Str("job_id", entry.jobID).
			Msg("Skipping cancelled queued task")
		return
	}

	e.logger.Debug().
		Int("worker_id", workerID).
		Str("job_id", entry.jobID).
		Msg("Worker picked up task")

	// Last line of defense: a panicking task must not kill the pool. The
	// service wrapper translates the panic into a failed job before this
	// recover sees anything.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("job_id", entry.jobID).
				Msgf("Task panicked: %v", r)
		}
	}()

	entry.run(entry.ctx)
}

func (e *Executor) removeHandle(jobID string) {
	e.mu.Lock()
	delete(e.handles, jobID)
	e.mu.Unlock()
}
