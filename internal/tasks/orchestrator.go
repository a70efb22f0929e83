package tasks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/validation"
	"golang.org/x/sync/errgroup"
)

// Task is one orchestrated sync request.
type Task struct {
	EntityType    models.EntityType `json:"type" validate:"required,entitytype"`
	EntityID      string            `json:"id" validate:"required,max=255"`
	Operation     models.Operation  `json:"operation,omitempty" validate:"operation"`
	Priority      int               `json:"priority,omitempty" validate:"gte=0,lte=10"`
	ReferenceData map[string]any    `json:"referenceData,omitempty"`
}

// RunOptions controls one orchestrated batch. Zero values take the configured defaults;
// a nil RetryFailed does too, so an explicit false turns retries off.
type RunOptions struct {
	TrackInDatabase bool   `json:"trackInDatabase"`
	ParallelLimit   int    `json:"parallelLimit" validate:"gte=0,lte=50"`
	DependencyCheck bool   `json:"dependencyCheck"`
	RetryFailed     *bool  `json:"retryFailed,omitempty"`
	BatchID         string `json:"batchId,omitempty"`
}

// retryFailed resolves the request's retry flag against the configured default.
func (o *Orchestrator) retryFailed(opts RunOptions) bool {
	if opts.RetryFailed != nil {
		return *opts.RetryFailed
	}
	return o.defaults.RetryFailed
}

// TaskError reports one failed task.
type TaskError struct {
	Error      string            `json:"error"`
	EntityType models.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Operation  models.Operation  `json:"operation"`
}

// RunResult summarizes a batch.
type RunResult struct {
	Success        bool        `json:"success"`
	CompletedTasks int         `json:"completedTasks"`
	FailedTasks    int         `json:"failedTasks"`
	Errors         []TaskError `json:"errors,omitempty"`
	Messages       []string    `json:"messages,omitempty"`
	BatchID        string      `json:"batchId"`
}

// OperationStore persists operation records.
type OperationStore interface {
	Save(ctx context.Context, rec *models.OperationRecord) error
}

// Orchestrator runs batches of tasks through the [Engine] synchronously.
// Its own tasks never go through the durable queue; cascaded work still does.
type Orchestrator struct {
	engine   *Engine
	ops      OperationStore
	defaults shared.OrchestratorConfig
	logger   *log.Logger
}

// NewOrchestrator creates an Orchestrator. ops may be nil when tracking is never requested.
func NewOrchestrator(engine *Engine, ops OperationStore, defaults shared.OrchestratorConfig, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	if defaults.ParallelLimit <= 0 {
		defaults.ParallelLimit = shared.DefaultConfig().Orchestrator.ParallelLimit
	}
	return &Orchestrator{engine: engine, ops: ops, defaults: defaults, logger: logger.With("component", "orchestrator")}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run validates and executes tasks.
//
// Tasks are ordered by priority, highest first, keeping input order for ties. With DependencyCheck,
// ties are broken so artists and venues run before shows and songs, which run before setlists.
// Each batch of ParallelLimit tasks runs concurrently; cancellation stops new batches from starting.
func (o *Orchestrator) Run(ctx context.Context, progress chan<- ProgressUpdate, tasks []Task, opts RunOptions) (*RunResult, error) {
	if len(tasks) == 0 {
		return nil, &shared.ValidationError{Field: "tasks", Message: "at least one task is required"}
	}
	if err := validation.ValidateStruct(&opts); err != nil {
		return nil, err
	}
	for i := range tasks {
		if err := validation.ValidateStruct(&tasks[i]); err != nil {
			return nil, err
		}
		if tasks[i].Operation == "" {
			tasks[i].Operation = models.OpRefresh
		}
	}
	if opts.ParallelLimit <= 0 {
		opts.ParallelLimit = o.defaults.ParallelLimit
	}
	if opts.BatchID == "" {
		opts.BatchID = shared.GenerateID()
	}

	ordered := orderTasks(tasks, opts.DependencyCheck)
	sendProgress(progress, planUpdate(len(ordered), opts.DependencyCheck))

	res := &RunResult{BatchID: opts.BatchID}
	var mu sync.Mutex
	batches := chunk(ordered, opts.ParallelLimit)

	for b, batch := range batches {
		if err := ctx.Err(); err != nil {
			res.Messages = append(res.Messages, fmt.Sprintf("cancelled before batch %d/%d", b+1, len(batches)))
			break
		}
		sendProgress(progress, batchUpdate(b+1, len(batches), len(batch)))

		var g errgroup.Group
		for i, t := range batch {
			step := b*opts.ParallelLimit + i + 1
			g.Go(func() error {
				sendProgress(progress, taskStartedUpdate(step, len(ordered), t))
				outcome, msgs, err := o.runTask(ctx, progress, t, opts)

				mu.Lock()
				defer mu.Unlock()
				res.Messages = append(res.Messages, msgs...)
				if err != nil {
					res.FailedTasks++
					res.Errors = append(res.Errors, TaskError{
						Error: err.Error(), EntityType: t.EntityType, EntityID: t.EntityID, Operation: t.Operation,
					})
					sendProgress(progress, taskFailedUpdate(step, len(ordered), t, err))
					return nil
				}
				res.CompletedTasks++
				sendProgress(progress, taskFinishedUpdate(step, len(ordered), t, outcome))
				return nil
			})
		}
		g.Wait()
	}

	res.Success = res.FailedTasks == 0 && res.CompletedTasks == len(ordered)
	o.logger.Info("batch finished", "batch", res.BatchID, "completed", res.CompletedTasks, "failed", res.FailedTasks)
	sendProgress(progress, finishedUpdate(res))
	return res, nil
}

// runTask runs one task with its optional retry and operation record.
func (o *Orchestrator) runTask(ctx context.Context, progress chan<- ProgressUpdate, t Task, opts RunOptions) (*Outcome, []string, error) {
	rec := &models.OperationRecord{
		ID:         shared.GenerateID(),
		BatchID:    opts.BatchID,
		EntityType: t.EntityType,
		EntityID:   t.EntityID,
		Operation:  t.Operation,
		Status:     models.OpStarted,
		StartedAt:  time.Now().UTC(),
	}
	o.track(ctx, opts, rec)

	outcome, msgs, err := o.execute(ctx, progress, t)
	if err != nil && o.retryFailed(opts) && !shared.IsPermanent(err) {
		sendProgress(progress, retryUpdate(t, err))
		var retryMsgs []string
		outcome, retryMsgs, err = o.execute(ctx, progress, t)
		msgs = append(msgs, retryMsgs...)
	}

	finished := time.Now().UTC()
	rec.FinishedAt = &finished
	switch {
	case err != nil:
		rec.Status = models.OpFailed
		rec.Message = err.Error()
	case outcome.Degraded() || len(msgs) > 0:
		rec.Status = models.OpCompletedWithErrors
		rec.Message = fmt.Sprintf("%d provider warnings, %d cascade messages", len(outcome.Warnings), len(msgs))
	default:
		rec.Status = models.OpCompleted
	}
	o.track(ctx, opts, rec)
	metrics.OrchestratorTasks.WithLabelValues(string(t.Operation), string(rec.Status)).Inc()
	return outcome, msgs, err
}

func (o *Orchestrator) track(ctx context.Context, opts RunOptions, rec *models.OperationRecord) {
	if !opts.TrackInDatabase || o.ops == nil {
		return
	}
	if err := o.ops.Save(ctx, rec); err != nil {
		o.logger.Warn("failed to record operation", "entity", rec.EntityType, "id", rec.EntityID, "err", err)
	}
}

// execute maps the operation onto a handler run.
func (o *Orchestrator) execute(ctx context.Context, progress chan<- ProgressUpdate, t Task) (*Outcome, []string, error) {
	job := taskJob(t)
	switch t.Operation {
	case models.OpCreate:
		out, err := o.engine.HandleWithMode(ctx, job, RunMode{Force: true})
		return out, nil, err
	case models.OpExpandRelations:
		out, err := o.engine.HandleWithMode(ctx, job, RunMode{Expand: true})
		return out, nil, err
	case models.OpCascadeSync:
		out, err := o.engine.HandleWithMode(ctx, job, RunMode{Expand: true})
		if err != nil {
			return out, nil, err
		}
		visited := map[string]bool{visitKey(t.EntityType, t.EntityID): true}
		msgs := o.cascadeChildren(ctx, progress, out.Cascaded, 1, visited)
		return out, msgs, nil
	default:
		out, err := o.engine.Handle(ctx, job)
		return out, nil, err
	}
}

// cascadeChildren syncs discovered children in-process up to the engine's cascade depth.
// Each entity runs at most once per task. Child failures are reported as messages.
func (o *Orchestrator) cascadeChildren(ctx context.Context, progress chan<- ProgressUpdate, children []models.EnqueueRequest, depth int, visited map[string]bool) []string {
	if depth > o.engine.cfg.CascadeDepth || len(children) == 0 {
		return nil
	}

	reqs := slices.Clone(children)
	slices.SortStableFunc(reqs, func(a, b models.EnqueueRequest) int {
		return dependencyRank(a.EntityType) - dependencyRank(b.EntityType)
	})

	var msgs []string
	for _, req := range reqs {
		if ctx.Err() != nil {
			return append(msgs, "cascade cancelled")
		}
		key := visitKey(req.EntityType, req.EntityID)
		if visited[key] {
			continue
		}
		visited[key] = true

		sendProgress(progress, cascadeUpdate(depth, req.EntityType, req.EntityID))
		job := &models.SyncJob{
			EntityType:    req.EntityType,
			EntityID:      req.EntityID,
			ReferenceData: req.ReferenceData,
			Priority:      req.Priority,
		}
		out, err := o.engine.Handle(ctx, job)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("%s %s: %v", req.EntityType, req.EntityID, err))
			continue
		}
		msgs = append(msgs, o.cascadeChildren(ctx, progress, out.Cascaded, depth+1, visited)...)
	}
	return msgs
}

func taskJob(t Task) *models.SyncJob {
	ref := map[string]any{}
	for k, v := range t.ReferenceData {
		ref[k] = v
	}
	return &models.SyncJob{
		EntityType:    t.EntityType,
		EntityID:      t.EntityID,
		ReferenceData: ref,
		Priority:      queuePriority(t.Priority),
	}
}

// queuePriority maps a task priority (0..10, higher first) onto the queue scale
// (1..maxPriority, lower first). Zero keeps the queue default.
func queuePriority(p int) int {
	if p <= 0 {
		return 0
	}
	return max(1, maxPriority+1-min(p, maxPriority))
}

// orderTasks sorts a copy of tasks by priority descending, stable.
func orderTasks(tasks []Task, dependencyCheck bool) []Task {
	ordered := slices.Clone(tasks)
	slices.SortStableFunc(ordered, func(a, b Task) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		if dependencyCheck {
			return dependencyRank(a.EntityType) - dependencyRank(b.EntityType)
		}
		return 0
	})
	return ordered
}

// dependencyRank orders entity types so a task's prerequisites usually exist when it runs.
func dependencyRank(t models.EntityType) int {
	switch t {
	case models.EntityArtist, models.EntityVenue:
		return 0
	case models.EntityShow, models.EntitySong:
		return 1
	default:
		return 2
	}
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	return append(out, items)
}

func visitKey(t models.EntityType, id string) string { return string(t) + ":" + id }
