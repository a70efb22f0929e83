package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/tasks"
)

// Store is the durable job queue. [repositories.JobRepository] (SQLite) and
// [repositories.PostgresJobRepository] both satisfy it.
type Store interface {
	Enqueue(ctx context.Context, req models.EnqueueRequest) (string, error)
	ClaimNext(ctx context.Context) (*models.SyncJob, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, message string) error
	FailPermanently(ctx context.Context, id, message string) error
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
	Get(ctx context.Context, id string) (*models.SyncJob, error)
	List(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, error)
	Stats(ctx context.Context) (models.QueueStats, error)
}

// Handler runs the sync for one claimed job. [tasks.Engine] is the production handler.
type Handler interface {
	Handle(ctx context.Context, job *models.SyncJob) (*tasks.Outcome, error)
}

// Job outcomes reported by [Processor].
const (
	OutcomeCompleted = "completed"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
)

// JobResult is what happened to one claimed job.
type JobResult struct {
	JobID      string            `json:"jobId"`
	EntityType models.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Outcome    string            `json:"outcome"`
	InternalID string            `json:"internalId,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	Cascaded   int               `json:"cascaded,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// BatchResult summarizes a [Processor.ProcessBatch] call.
type BatchResult struct {
	Processed int         `json:"processed"`
	Completed int         `json:"completed"`
	Retried   int         `json:"retried"`
	Failed    int         `json:"failed"`
	Jobs      []JobResult `json:"jobs"`
}

func (b *BatchResult) add(r JobResult) {
	b.Processed++
	switch r.Outcome {
	case OutcomeCompleted:
		b.Completed++
	case OutcomeRetried:
		b.Retried++
	case OutcomeFailed:
		b.Failed++
	}
	b.Jobs = append(b.Jobs, r)
}

// Processor claims jobs and settles them according to the handler's error.
//
// A nil error completes the job. Not-found and validation errors fail it permanently.
// Everything else, including a missing dependency, goes through Fail and is retried
// until max_attempts.
type Processor struct {
	store   Store
	handler Handler
	logger  *log.Logger
	now     func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, handler Handler, logger *log.Logger) *Processor {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Processor{store: store, handler: handler, logger: logger, now: time.Now}
}

// Store returns the queue the processor claims from.
func (p *Processor) Store() Store { return p.store }

// ProcessNext claims and runs one job. It returns nil, nil when nothing is eligible.
func (p *Processor) ProcessNext(ctx context.Context) (*JobResult, error) {
	job, err := p.store.ClaimNext(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	logger := p.logger.With("job", job.ID, "type", job.EntityType, "entity", job.EntityID, "attempt", job.Attempts)
	logger.Debug("claimed job")

	start := p.now()
	outcome, herr := p.handler.Handle(ctx, job)
	res := JobResult{
		JobID:      job.ID,
		EntityType: job.EntityType,
		EntityID:   job.EntityID,
		Duration:   p.now().Sub(start),
	}
	if outcome != nil {
		res.InternalID = outcome.InternalID
		res.Skipped = outcome.Skipped
		res.Cascaded = len(outcome.Cascaded)
		res.Warnings = outcome.Warnings
	}

	if err := p.settle(ctx, job, herr, &res); err != nil {
		return nil, err
	}

	metrics.RecordJob(job.EntityType, res.Outcome, res.Duration)
	switch res.Outcome {
	case OutcomeCompleted:
		logger.Info("job completed", "internal_id", res.InternalID, "skipped", res.Skipped, "cascaded", res.Cascaded)
	case OutcomeRetried:
		logger.Warn("job will be retried", "err", herr)
	default:
		logger.Error("job failed", "err", herr)
	}
	return &res, nil
}

func (p *Processor) settle(ctx context.Context, job *models.SyncJob, herr error, res *JobResult) error {
	if herr == nil {
		res.Outcome = OutcomeCompleted
		if err := p.store.Complete(ctx, job.ID); err != nil {
			return fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		return nil
	}

	res.Error = herr.Error()
	if shared.IsPermanent(herr) {
		res.Outcome = OutcomeFailed
		if err := p.store.FailPermanently(ctx, job.ID, res.Error); err != nil {
			return fmt.Errorf("fail job %s: %w", job.ID, err)
		}
		return nil
	}

	var dep *shared.DependencyError
	if errors.As(herr, &dep) {
		p.logger.Debug("dependency not ready", "job", job.ID, "needs", dep.Needs)
	}
	if err := p.store.Fail(ctx, job.ID, res.Error); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	res.Outcome = OutcomeRetried
	if settled, err := p.store.Get(ctx, job.ID); err == nil && settled.Status == models.JobFailed {
		res.Outcome = OutcomeFailed
	}
	return nil
}

// ProcessBatch runs up to limit jobs one after another and stops early when the queue is empty.
//
// Handler errors never abort the batch; only store errors and cancellation do.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		return nil, &shared.ValidationError{Field: "limit", Message: "must be positive"}
	}

	batch := &BatchResult{Jobs: []JobResult{}}
	for batch.Processed < limit {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := p.ProcessNext(ctx)
		if err != nil {
			return batch, err
		}
		if res == nil {
			break
		}
		batch.add(*res)
	}

	p.ObserveStats(ctx)
	return batch, nil
}

// ObserveStats refreshes the queue depth gauges. Failures are logged only.
func (p *Processor) ObserveStats(ctx context.Context) {
	stats, err := p.store.Stats(ctx)
	if err != nil {
		p.logger.Warn("failed to read queue stats", "err", err)
		return
	}
	metrics.ObserveQueueStats(stats)
}
