package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by Submit when the pool cannot take more work.
var ErrQueueFull = errors.New("jobs: queue full")

// ErrPoolStopped is returned by Submit after the pool has stopped.
var ErrPoolStopped = errors.New("jobs: pool stopped")

// Pool runs submitted jobs on a fixed set of workers.
// All workers share a single queue; Go channel semantics balance the load.
// Jobs for different books run concurrently. Jobs for the same book never
// overlap because each one holds the book's ActiveJob token.
type Pool struct {
	name        string
	logger      *slog.Logger
	workerCount int

	queue chan Job

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	inFlight  atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
}

// PoolConfig configures a new Pool.
type PoolConfig struct {
	Name        string
	Logger      *slog.Logger
	WorkerCount int // default 2
	QueueSize   int // default 100
}

// NewPool creates a new job pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "jobs"
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 2
	}
	return &Pool{
		name:        name,
		logger:      logger.With("pool", name, "workers", workerCount),
		workerCount: workerCount,
		queue:       make(chan Job, queueSize),
	}
}

// Start launches the workers and blocks until ctx is cancelled and every
// in-flight job has returned.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("pool starting")
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	<-ctx.Done()
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
	p.logger.Info("pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, job Job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	logger := p.logger.With("worker_id", worker, "job_id", job.ID(), "kind", job.Kind())
	logger.Debug("job started")
	if err := job.Execute(ctx); err != nil {
		p.failed.Add(1)
		logger.Warn("job failed", "error", err)
		return
	}
	p.completed.Add(1)
	logger.Debug("job completed")
}

// Submit queues a job. It never blocks.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- job:
		p.logger.Debug("job queued", "job_id", job.ID(), "queue_len", len(p.queue))
		return nil
	default:
		p.logger.Warn("pool queue full", "job_id", job.ID())
		return fmt.Errorf("%w: %s", ErrQueueFull, p.name)
	}
}

// PoolStatus reports a pool's current state.
type PoolStatus struct {
	Name       string `json:"name"`
	Workers    int    `json:"workers"`
	InFlight   int    `json:"in_flight"`
	QueueDepth int    `json:"queue_depth"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}

// Status returns current pool status.
func (p *Pool) Status() PoolStatus {
	return PoolStatus{
		Name:       p.name,
		Workers:    p.workerCount,
		InFlight:   int(p.inFlight.Load()),
		QueueDepth: len(p.queue),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
	}
}
