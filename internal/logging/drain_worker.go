package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// BatchWriter persists drained log records
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*LogRecord) error
}

// DrainWorker moves records from a RedisBuffer into durable storage
type DrainWorker struct {
	buffer      *RedisBuffer
	writer      BatchWriter
	interval    time.Duration
	stopChan    chan struct{}
	stoppedChan chan struct{}
	started     atomic.Bool
	stopOnce    sync.Once
}

// NewDrainWorker creates a worker that drains buffer every interval
func NewDrainWorker(buffer *RedisBuffer, writer BatchWriter, interval time.Duration) *DrainWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DrainWorker{
		buffer:      buffer,
		writer:      writer,
		interval:    interval,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine. Later calls are no-ops.
func (w *DrainWorker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Stop drains what is left and waits for the worker to exit. It is safe to
// call more than once and before Start.
func (w *DrainWorker) Stop() error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	if w.started.Load() {
		<-w.stoppedChan
	}
	return nil
}

func (w *DrainWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			w.drainAll(context.Background())
			Infof("request log drain worker stopped")
			return
		case <-ctx.Done():
			Infof("request log drain worker context cancelled")
			return
		case <-ticker.C:
			w.drainAll(ctx)
		}
	}
}

// drainAll writes batches until the buffer is empty or a write fails
func (w *DrainWorker) drainAll(ctx context.Context) {
	for {
		n, err := w.DrainOnce(ctx)
		if err != nil {
			Errorf("request log drain failed: %v", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// DrainOnce moves one batch and returns how many records were written. On a
// write failure the batch is pushed back onto the head of the buffer.
func (w *DrainWorker) DrainOnce(ctx context.Context) (int, error) {
	records, err := w.buffer.DequeueBatch(ctx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := w.writer.WriteBatch(ctx, records); err != nil {
		if qErr := w.buffer.Requeue(ctx, records); qErr != nil {
			Errorf("dropping %d request logs: %v", len(records), qErr)
		}
		return 0, err
	}

	Debugf("drained %d request logs", len(records))
	return len(records), nil
}
