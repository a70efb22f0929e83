package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/tasks"
	"github.com/desertthunder/setlistsync/internal/ui"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

// Sync runs one entity, or the task list in --file, through the orchestrator in this process.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	list, err := syncTasks(cmd)
	if err != nil {
		return err
	}

	opts := tasks.RunOptions{
		TrackInDatabase: cmd.Bool("track"),
		ParallelLimit:   int(cmd.Int("parallel")),
		DependencyCheck: cmd.Bool("dependency-check"),
	}
	if cmd.IsSet("retry") {
		retry := cmd.Bool("retry")
		opts.RetryFailed = &retry
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("starting sync", "tasks", len(list), "parallel", opts.ParallelLimit)

	quiet := cmd.Bool("json")
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if quiet {
				continue
			}
			switch update.Phase {
			case tasks.PlanTasks:
				r.writePlain("📋 %s\n", update.Message)
			case tasks.RunBatch:
				r.writePlain("\n▶ %s\n", update.Message)
			case tasks.TaskFinished:
				r.writePlain("   %s\n", ui.OK(update.Message))
			case tasks.TaskFailed:
				r.writePlain("   %s\n", ui.Err(update.Message))
			case tasks.RetryTask:
				r.writePlain("   %s\n", ui.Warn(update.Message))
			case tasks.CascadeChild:
				r.writePlain("     ↳ %s\n", ui.Help(update.Message))
			}
		}
	}()

	result, err := d.orchestrator.Run(ctx, progressCh, list, opts)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	if quiet {
		return r.writeJSON(result, true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete!")
	r.writePlain("Batch: %s\n", result.BatchID)
	r.writePlain("Completed: %d\n", result.CompletedTasks)
	if result.FailedTasks > 0 {
		r.writePlain("Failed: %s\n", ui.Err(fmt.Sprint(result.FailedTasks)))
		for _, e := range result.Errors {
			r.writePlain("  ✗ %s %s (%s): %s\n", e.EntityType, e.EntityID, e.Operation, e.Error)
		}
	}
	for _, msg := range result.Messages {
		r.writePlain("  %s\n", ui.Help(msg))
	}
	return nil
}

// syncTasks reads tasks from --file, or builds one from the positional type and id.
func syncTasks(cmd *cli.Command) ([]tasks.Task, error) {
	if path := cmd.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read task file: %w", err)
		}
		var list []tasks.Task
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: task file %s: %v", shared.ErrInvalidInput, path, err)
		}
		return list, nil
	}

	if cmd.Args().Len() < 2 {
		return nil, fmt.Errorf("%w: usage: sync <type> <id> or sync --file tasks.json", shared.ErrMissingArgument)
	}

	refs, err := parseRefs(cmd.StringSlice("ref"))
	if err != nil {
		return nil, err
	}

	return []tasks.Task{{
		EntityType:    models.EntityType(cmd.Args().Get(0)),
		EntityID:      cmd.Args().Get(1),
		Operation:     models.Operation(cmd.String("op")),
		ReferenceData: refs,
	}}, nil
}
