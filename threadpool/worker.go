package threadpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oddbit-project/chargebridge/log"
)

// WorkerGroup runs a fixed set of goroutines consuming jobs from a shared
// queue until the group context is cancelled
type WorkerGroup struct {
	jobQueue chan Job
	cancelFn context.CancelFunc
	wg       sync.WaitGroup
	stop     sync.Once
	executed atomic.Uint64
	logger   *log.Logger
}

// NewWorkerGroup creates and starts workerCount workers.
// If logger is nil, job panics are recovered silently.
func NewWorkerGroup(workerCount int, jobQueue chan Job, parentCtx context.Context, logger *log.Logger) (*WorkerGroup, error) {
	if workerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancelFn := context.WithCancel(parentCtx)
	g := &WorkerGroup{
		jobQueue: jobQueue,
		cancelFn: cancelFn,
		logger:   logger,
	}
	g.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go g.worker(ctx)
	}
	return g, nil
}

// worker consumes jobs until the group context is cancelled
func (g *WorkerGroup) worker(ctx context.Context) {
	defer g.wg.Done()
	for {
		select {
		case job := <-g.jobQueue:
			g.runJob(ctx, job)
			g.executed.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

// runJob executes a single job, recovering a panic so a bad job cannot kill
// the worker
func (g *WorkerGroup) runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			if g.logger != nil {
				g.logger.Warn("worker recovered from job panic", log.KV{"panic": r})
			}
		}
	}()
	job.Run(ctx)
}

// RequestCount returns the total number of jobs executed by the group
func (g *WorkerGroup) RequestCount() uint64 {
	return g.executed.Load()
}

// Stop cancels the group context and waits for all workers to finish their
// current job
func (g *WorkerGroup) Stop() {
	g.stop.Do(func() {
		g.cancelFn()
		g.wg.Wait()
	})
}
