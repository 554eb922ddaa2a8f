package alert

import (
	"context"
	"sync/atomic"

	"github.com/oddbit-project/chargebridge/audit"
	"github.com/oddbit-project/chargebridge/log"
	"github.com/oddbit-project/chargebridge/threadpool"
	"github.com/oddbit-project/chargebridge/utils"
)

const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 64

	ErrQueueFull = utils.Error("alert queue is full")
)

// AsyncNotifier decouples alert delivery from the relay hot path: Notify
// queues the event on a worker pool and returns immediately. When the queue
// is full the event is dropped and ErrQueueFull returned; a stalled broker
// must never back-pressure message forwarding.
type AsyncNotifier struct {
	next      Notifier
	pool      *threadpool.ThreadPool
	logger    *log.Logger
	workers   int
	queueSize int
	dropped   atomic.Uint64
}

// AsyncOption is a functional option for configuring an AsyncNotifier
type AsyncOption func(*AsyncNotifier)

// WithWorkerCount sets the number of delivery workers
func WithWorkerCount(n int) AsyncOption {
	return func(a *AsyncNotifier) {
		a.workers = n
	}
}

// WithQueueSize sets the pending alert queue capacity
func WithQueueSize(n int) AsyncOption {
	return func(a *AsyncNotifier) {
		a.queueSize = n
	}
}

// WithLogger sets the logger used for delivery failures
func WithLogger(logger *log.Logger) AsyncOption {
	return func(a *AsyncNotifier) {
		a.logger = logger
	}
}

// NewAsyncNotifier wraps next with an asynchronous delivery queue; workers
// run until ctx is cancelled or Close is called
func NewAsyncNotifier(ctx context.Context, next Notifier, opts ...AsyncOption) (*AsyncNotifier, error) {
	if next == nil {
		next = NopNotifier{}
	}
	a := &AsyncNotifier{
		next:      next,
		workers:   DefaultWorkerCount,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.New("alert")
	}
	pool, err := threadpool.NewThreadPool(a.workers, a.queueSize, threadpool.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err = pool.Start(ctx); err != nil {
		return nil, err
	}
	a.pool = pool
	return a, nil
}

// Notify queues the event for delivery and returns without waiting for the
// broker roundtrip
func (a *AsyncNotifier) Notify(_ context.Context, ev audit.Event) error {
	job := threadpool.FuncRunner(func(ctx context.Context) {
		if err := a.next.Notify(ctx, ev); err != nil {
			a.logger.Warn("alert delivery failed", log.KV{
				"kind":       ev.Kind,
				"session_id": ev.SessionID,
				"error":      err.Error(),
			})
		}
	})
	if !a.pool.TryDispatch(job) {
		a.dropped.Add(1)
		return ErrQueueFull
	}
	return nil
}

// Dropped returns the number of alerts discarded because the queue was full
func (a *AsyncNotifier) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops the delivery workers and closes the wrapped notifier; queued
// alerts that have not started delivery are discarded
func (a *AsyncNotifier) Close() error {
	if err := a.pool.Stop(); err != nil && err != threadpool.ErrPoolNotStarted {
		return err
	}
	return a.next.Close()
}
