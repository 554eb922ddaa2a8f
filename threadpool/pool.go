package threadpool

import (
	"context"

	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrInvalidWorkerCount = utils.Error("Invalid workerCount value")
	ErrInvalidQueueSize   = utils.Error("Invalid queueSize value")
	ErrPoolNotStarted     = utils.Error("ThreadPool not started")
	ErrPoolAlreadyStarted = utils.Error("ThreadPool already started")
)

type Pool interface {
	Stop() error
	Dispatch(j Job)
	TryDispatch(j Job) bool
	Start(ctx context.Context) error
}

type ThreadPool struct {
	workers     *WorkerGroup
	workerCount int
	jobQueue    chan Job
	logger      *log.Logger
}

// PoolOption is a functional option for configuring a ThreadPool
type PoolOption func(*ThreadPool)

// WithLogger sets a logger for the pool workers; without one, job panics are
// recovered silently
func WithLogger(logger *log.Logger) PoolOption {
	return func(t *ThreadPool) {
		t.logger = logger
	}
}

// NewThreadPool creates a new ThreadPool with workerCount workers consuming a
// job queue of queueSize entries. Both values must be greater than zero.
//
// Example usage:
// pool, err := NewThreadPool(5, 10)
//
//	if err != nil {
//	  // handle error
//	}
//
// pool.Dispatch(job)
// ...
func NewThreadPool(workerCount int, queueSize int, opts ...PoolOption) (*ThreadPool, error) {
	if workerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}
	if queueSize < 1 {
		return nil, ErrInvalidQueueSize
	}
	pool := &ThreadPool{
		workers:     nil,
		workerCount: workerCount,
		jobQueue:    make(chan Job, queueSize),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool, nil
}

// GetRequestCount returns the total number of jobs processed by the ThreadPool.
// If the ThreadPool has not been started, it returns 0.
func (t *ThreadPool) GetRequestCount() uint64 {
	if t.workers == nil {
		return 0
	}
	return t.workers.RequestCount()
}

// GetQueueLen returns the number of jobs currently waiting in the jobQueue.
func (t *ThreadPool) GetQueueLen() int {
	return len(t.jobQueue)
}

// GetQueueCapacity returns the capacity of the job queue in the ThreadPool.
func (t *ThreadPool) GetQueueCapacity() int {
	return cap(t.jobQueue)
}

// GetWorkerCount returns the current number of workers in the ThreadPool.
// The count is zero until Start is called.
func (t *ThreadPool) GetWorkerCount() int {
	if t.workers == nil {
		return 0
	}
	return t.workerCount
}

// Start starts the execution of the ThreadPool. It returns an error if the ThreadPool
// has already been started. If the given context is nil, it will default to the background context.
// It creates a new WorkerGroup with the specified workerCount
func (t *ThreadPool) Start(ctx context.Context) error {
	if t.workers != nil {
		return ErrPoolAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	t.workers, err = NewWorkerGroup(t.workerCount, t.jobQueue, ctx, t.logger)
	return err
}

// Stop stops the execution of the ThreadPool. It returns an error if the ThreadPool
// has not been started yet. It cancels the context and waits for all workers to finish
// their current jobs. After that, it cleans the worker list.
// Note: this function is blocking
func (t *ThreadPool) Stop() error {
	if t.workers == nil {
		return ErrPoolNotStarted
	}
	t.workers.Stop()
	t.workers = nil
	return nil
}

// Dispatch adds a new job to the jobQueue of the ThreadPool.
// The job will be executed by one of the worker goroutines in the ThreadPool.
//
// Note: This function is blocking if jobQueue is full
func (t *ThreadPool) Dispatch(j Job) {
	t.jobQueue <- j
}

// TryDispatch attempts to queue a job without blocking.
// Returns false when the jobQueue is full and the job was discarded.
func (t *ThreadPool) TryDispatch(j Job) bool {
	select {
	case t.jobQueue <- j:
		return true
	default:
		return false
	}
}
