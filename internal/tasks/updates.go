package tasks

import (
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
)

// ProgressUpdate represents a progress event during an orchestrated run.
//
// Used to send real-time updates to the CLI or HTTP layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	PlanTasks Phase = iota
	RunBatch
	TaskStarted
	TaskFinished
	TaskFailed
	RetryTask
	CascadeChild
	Finished
	ExportSetlist
)

func (p Phase) String() string {
	switch p {
	case PlanTasks:
		return "plan_tasks"
	case RunBatch:
		return "run_batch"
	case TaskStarted:
		return "task_started"
	case TaskFinished:
		return "task_finished"
	case TaskFailed:
		return "task_failed"
	case RetryTask:
		return "retry_task"
	case CascadeChild:
		return "cascade_child"
	case Finished:
		return "finished"
	case ExportSetlist:
		return "export_setlist"
	default:
		return ""
	}
}

func planUpdate(total int, dependencyCheck bool) ProgressUpdate {
	order := "priority"
	if dependencyCheck {
		order = "priority and dependencies"
	}
	return ProgressUpdate{
		Phase:   PlanTasks,
		Total:   total,
		Message: fmt.Sprintf("Planned %d tasks ordered by %s", total, order),
	}
}

func batchUpdate(step, total, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RunBatch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Running batch %d/%d (%d tasks)...", step, total, size),
	}
}

func taskStartedUpdate(step, total int, t Task) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TaskStarted,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s %s...", step, total, t.Operation, t.EntityType, t.EntityID),
		Data:    t,
	}
}

func taskFinishedUpdate(step, total int, t Task, o *Outcome) ProgressUpdate {
	state := "synced"
	switch {
	case o == nil:
	case o.Skipped:
		state = "fresh"
	case o.Created:
		state = "created"
	}
	return ProgressUpdate{
		Phase:   TaskFinished,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s %s %s", step, total, t.EntityType, t.EntityID, state),
		Data:    o,
	}
}

func taskFailedUpdate(step, total int, t Task, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TaskFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s %s: %v", step, total, t.EntityType, t.EntityID, err),
	}
}

func retryUpdate(t Task, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RetryTask,
		Message: fmt.Sprintf("Retrying %s %s after: %v", t.EntityType, t.EntityID, err),
	}
}

func cascadeUpdate(depth int, entityType models.EntityType, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CascadeChild,
		Step:    depth,
		Message: fmt.Sprintf("Cascading into %s %s (depth %d)", entityType, id, depth),
	}
}

func finishedUpdate(res *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finished,
		Step:    res.CompletedTasks,
		Total:   res.CompletedTasks + res.FailedTasks,
		Message: fmt.Sprintf("Finished: %d completed, %d failed", res.CompletedTasks, res.FailedTasks),
		Data:    res,
	}
}

func exportingUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSetlist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSetlist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, reason string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportSetlist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, name, reason),
	}
}
