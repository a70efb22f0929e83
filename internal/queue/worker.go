package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Worker polls the queue and drains it through a [Processor]. It implements suture.Service.
//
// Workers share nothing but the store; claim exclusivity comes from the store's locking.
type Worker struct {
	name      string
	processor *Processor
	interval  time.Duration
	batchSize int
}

// NewWorker creates a Worker that wakes every interval and processes up to batchSize jobs.
func NewWorker(name string, processor *Processor, interval time.Duration, batchSize int) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Worker{name: name, processor: processor, interval: interval, batchSize: batchSize}
}

// Serve runs until ctx is canceled. A store error is returned so the supervisor restarts the worker.
func (w *Worker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.drain(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("%s: %w", w.name, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	batch, err := w.processor.ProcessBatch(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if batch.Processed > 0 {
		w.processor.logger.Info("worker pass",
			"worker", w.name, "processed", batch.Processed,
			"completed", batch.Completed, "retried", batch.Retried, "failed", batch.Failed)
	}
	return nil
}

// String names the worker in supervisor events.
func (w *Worker) String() string { return w.name }
