package batchwriter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oddbit-project/chargebridge/log"
)

// ErrCapacityTooSmall is returned when batch capacity is less than 1
var ErrCapacityTooSmall = errors.New("batch capacity must be at least 1")

// ErrNilFlushFunction is returned when flush function is nil
var ErrNilFlushFunction = errors.New("flush function cannot be nil")

// ErrInvalidFlushInterval is returned when flush interval is less than 1ms
var ErrInvalidFlushInterval = errors.New("flush interval must be at least 1ms")

// Metrics contains the performance metrics for the BatchWriter
type Metrics struct {
	RecordsAdded      uint64        // Total number of records added
	RecordsProcessed  uint64        // Total number of records processed by flush
	RecordsDropped    uint64        // Total number of records dropped (TryAdd failures)
	RecordsInBuffer   uint64        // Current number of records in the pending batch
	FlushCount        uint64        // Number of flushes performed
	LastFlushDuration time.Duration // Duration of the last flush operation
	AvgFlushDuration  time.Duration // Average flush duration
	TotalFlushTime    time.Duration // Total time spent in flush operations
}

// FlushFn represents a function that processes a batch of records
type FlushFn func(records ...any)

// BatchWriter accumulates records and hands them to a flush function when
// the batch fills or the flush interval elapses. Records enter through a
// buffered channel, so producers are decoupled from flush latency.
type BatchWriter struct {
	mu       sync.Mutex // guards pending and spare
	pending  []any
	spare    []any
	flushMu  sync.Mutex // serializes calls to flushFn
	capacity int
	interval time.Duration
	input    chan any
	stop     chan struct{}
	wg       sync.WaitGroup
	flushFn  FlushFn
	logger   *log.Logger

	recordsAdded     atomic.Uint64
	recordsProcessed atomic.Uint64
	recordsDropped   atomic.Uint64
	flushCount       atomic.Uint64
	lastFlushTime    atomic.Int64
	totalFlushTime   atomic.Int64
}

// BatchWriterOption is a functional option for configuring BatchWriter
type BatchWriterOption func(*BatchWriter)

// WithLogger sets a logger for the BatchWriter
func WithLogger(logger *log.Logger) BatchWriterOption {
	return func(b *BatchWriter) {
		b.logger = logger
	}
}

// NewBatchWriter creates a BatchWriter and starts its background flush loop.
// The loop runs until Stop is called or ctx is cancelled; both paths drain
// queued records before the final flush.
func NewBatchWriter(ctx context.Context, capacity int, flushInterval time.Duration, flushFn FlushFn, opts ...BatchWriterOption) (*BatchWriter, error) {
	if capacity < 1 {
		return nil, ErrCapacityTooSmall
	}
	if flushFn == nil {
		return nil, ErrNilFlushFunction
	}
	if flushInterval < time.Millisecond {
		return nil, ErrInvalidFlushInterval
	}

	b := &BatchWriter{
		pending:  make([]any, 0, capacity),
		spare:    make([]any, 0, capacity),
		capacity: capacity,
		interval: flushInterval,
		input:    make(chan any, capacity),
		stop:     make(chan struct{}),
		flushFn:  flushFn,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(1)
	go b.run(ctx)
	return b, nil
}

// Add queues a record for batch writing
// This method blocks if the input channel is full
func (b *BatchWriter) Add(record any) {
	b.input <- record
	b.recordsAdded.Add(1)
}

// TryAdd attempts to add a record without blocking
// Returns true if successful, false if the buffer is full
func (b *BatchWriter) TryAdd(record any) bool {
	select {
	case b.input <- record:
		b.recordsAdded.Add(1)
		return true
	default:
		b.recordsDropped.Add(1)
		return false
	}
}

// AddWithContext attempts to add a record, respecting context cancellation.
// A context that is already done always fails, even if the queue has room.
func (b *BatchWriter) AddWithContext(ctx context.Context, record any) error {
	if err := ctx.Err(); err != nil {
		b.recordsDropped.Add(1)
		return err
	}
	select {
	case b.input <- record:
		b.recordsAdded.Add(1)
		return nil
	case <-ctx.Done():
		b.recordsDropped.Add(1)
		return ctx.Err()
	}
}

// Stop gracefully stops the BatchWriter and flushes remaining records
// This method blocks until all pending records are processed
func (b *BatchWriter) Stop() {
	close(b.stop)
	b.wg.Wait()
}

// FlushNow forces an immediate flush of the pending batch
func (b *BatchWriter) FlushNow() {
	b.mu.Lock()
	batch := b.detachLocked()
	b.mu.Unlock()
	b.write(batch)
}

// GetMetrics returns the current performance metrics
func (b *BatchWriter) GetMetrics() Metrics {
	b.mu.Lock()
	inBuffer := uint64(len(b.pending))
	b.mu.Unlock()

	flushCount := b.flushCount.Load()
	totalFlushTime := time.Duration(b.totalFlushTime.Load())
	var avgFlushDuration time.Duration
	if flushCount > 0 {
		avgFlushDuration = totalFlushTime / time.Duration(flushCount)
	}

	return Metrics{
		RecordsAdded:      b.recordsAdded.Load(),
		RecordsProcessed:  b.recordsProcessed.Load(),
		RecordsDropped:    b.recordsDropped.Load(),
		RecordsInBuffer:   inBuffer,
		FlushCount:        flushCount,
		LastFlushDuration: time.Duration(b.lastFlushTime.Load()),
		AvgFlushDuration:  avgFlushDuration,
		TotalFlushTime:    totalFlushTime,
	}
}

// run is the main processing loop
func (b *BatchWriter) run(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case record := <-b.input:
			b.append(record)
		case <-ticker.C:
			b.FlushNow()
		case <-b.stop:
			b.drain()
			return
		case <-ctx.Done():
			b.drain()
			return
		}
	}
}

// drain consumes queued records and performs the final flush
func (b *BatchWriter) drain() {
	if b.logger != nil {
		b.logger.Info("shutting down, flushing remaining records")
	}
	for {
		select {
		case record := <-b.input:
			b.append(record)
		default:
			b.FlushNow()
			return
		}
	}
}

// append adds a record to the pending batch and flushes when it fills
func (b *BatchWriter) append(record any) {
	b.mu.Lock()
	b.pending = append(b.pending, record)
	var batch []any
	if len(b.pending) >= b.capacity {
		batch = b.detachLocked()
	}
	b.mu.Unlock()

	if batch != nil {
		b.write(batch)
	}
}

// detachLocked takes ownership of the pending batch and installs a fresh
// buffer, reusing the spare when one is available. Callers must hold mu.
func (b *BatchWriter) detachLocked() []any {
	batch := b.pending
	if b.spare != nil {
		b.pending = b.spare
		b.spare = nil
	} else {
		b.pending = make([]any, 0, b.capacity)
	}
	return batch
}

// write runs the flush function over a detached batch and updates metrics.
// Flushes are serialized so the flush function never runs concurrently with
// itself.
func (b *BatchWriter) write(batch []any) {
	if len(batch) == 0 {
		b.recycle(batch)
		return
	}

	b.flushMu.Lock()
	start := time.Now()
	b.invoke(batch)
	elapsed := time.Since(start)
	b.flushMu.Unlock()

	b.lastFlushTime.Store(int64(elapsed))
	b.totalFlushTime.Add(int64(elapsed))
	b.flushCount.Add(1)
	b.recordsProcessed.Add(uint64(len(batch)))
	b.recycle(batch)
}

// invoke calls the flush function, recovering a panic so one bad batch
// cannot kill the flush loop
func (b *BatchWriter) invoke(batch []any) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Warn("recovered from panic in flush function", log.KV{"panic": r})
			}
		}
	}()
	if b.logger != nil {
		b.logger.Debug("flushing records", log.KV{"count": len(batch)})
	}
	b.flushFn(batch...)
}

// recycle clears a flushed batch and keeps it for reuse
func (b *BatchWriter) recycle(batch []any) {
	clear(batch)
	b.mu.Lock()
	if b.spare == nil {
		b.spare = batch[:0]
	}
	b.mu.Unlock()
}
