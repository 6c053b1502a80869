// internal/engine/pool.go
package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Sentinel errors returned by Submit. Callers treat both as a step failure,
// not as a reason to block or retry.
var (
	// ErrPoolStopped is returned when submitting to a pool that is not running.
	ErrPoolStopped = errors.New("worker pool is not running")
	// ErrQueueFull is returned when the intake queue cannot accept more work.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Pool distributes submitted jobs across a fixed set of worker goroutines.
// One pool is shared by every concurrently running workflow; deadlines belong
// to the submissions, not to the pool.
type Pool struct {
	logger *zap.Logger
	size   int
	jobs   chan func()
	wg     sync.WaitGroup

	// stateLock protects the running flag and orders Submit against Stop's
	// close of the intake channel.
	stateLock sync.Mutex
	isRunning bool
}

// NewPool creates a pool with the given worker count and intake queue depth.
func NewPool(size, queueDepth int, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if size <= 0 {
		size = 4 // A sensible default.
	}
	if queueDepth <= 0 {
		queueDepth = 16
	}

	return &Pool{
		logger: logger.With(zap.String("component", "worker_pool")),
		size:   size,
		jobs:   make(chan func(), queueDepth),
	}, nil
}

// Start launches the worker goroutines. Calling Start on a running pool is a
// no-op.
func (p *Pool) Start(ctx context.Context) {
	p.stateLock.Lock()
	if p.isRunning {
		p.stateLock.Unlock()
		p.logger.Warn("Pool.Start called, but pool is already running.")
		return
	}
	p.isRunning = true
	p.stateLock.Unlock()

	p.logger.Info("Starting worker pool", zap.Int("workers", p.size))
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i+1)
	}
}

// Submit enqueues a job. It fails fast with ErrPoolStopped, ErrQueueFull, or
// the context error; it never blocks on a saturated queue.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	p.stateLock.Lock()
	defer p.stateLock.Unlock()
	if !p.isRunning {
		return ErrPoolStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the intake and waits for the workers to finish. Jobs already
// accepted still run; new submissions fail with ErrPoolStopped.
func (p *Pool) Stop() {
	p.stateLock.Lock()
	if !p.isRunning {
		p.stateLock.Unlock()
		return
	}
	p.isRunning = false
	close(p.jobs)
	p.stateLock.Unlock()

	p.logger.Info("Stopping worker pool... waiting for workers to finish.")
	p.wg.Wait()
	p.logger.Info("Worker pool stopped gracefully.")
}

// runWorker is the main loop for a single worker goroutine. The select keeps
// the worker responsive to context cancellation while draining the queue.
func (p *Pool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down.", zap.Error(ctx.Err()))
			return
		case job, ok := <-p.jobs:
			if !ok {
				logger.Debug("Job queue closed and drained, worker shutting down.")
				return
			}
			job()
		}
	}
}
