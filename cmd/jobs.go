package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/setlistsync/internal/formatter"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/queue"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/ui"
	"github.com/desertthunder/setlistsync/internal/validation"
	"github.com/urfave/cli/v3"
)

// JobsEnqueue adds one sync job. A pending job for the same entity is returned instead of a duplicate.
func (r *Runner) JobsEnqueue(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("%w: usage: jobs enqueue <type> <id>", shared.ErrMissingArgument)
	}

	refs, err := parseRefs(cmd.StringSlice("ref"))
	if err != nil {
		return err
	}

	req := models.EnqueueRequest{
		EntityType:    models.EntityType(cmd.Args().Get(0)),
		EntityID:      cmd.Args().Get(1),
		ReferenceData: refs,
		Priority:      int(cmd.Int("priority")),
		MaxAttempts:   int(cmd.Int("max-attempts")),
	}
	if err := validation.ValidateStruct(&req); err != nil {
		return err
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	id, err := d.jobs.Enqueue(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	r.logger.Info("job enqueued", "id", id, "type", req.EntityType, "entity", req.EntityID)
	r.writePlain("%s %s\n", ui.OK("✓ enqueued"), id)
	return nil
}

// JobsProcess claims and runs up to --limit jobs in this process.
func (r *Runner) JobsProcess(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	result, err := d.processor.ProcessBatch(ctx, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	if result.Processed == 0 {
		r.writePlain("No jobs ready to run.\n")
		return nil
	}

	for _, job := range result.Jobs {
		line := fmt.Sprintf("%-10s %-8s %s", ui.Outcome(job.Outcome), job.EntityType, job.EntityID)
		switch {
		case job.Error != "":
			line += "  " + ui.Help(job.Error)
		case job.Skipped:
			line += "  " + ui.Help("fresh")
		case job.Cascaded > 0:
			line += "  " + ui.Help(fmt.Sprintf("+%d jobs", job.Cascaded))
		}
		r.writePlain("%s\n", line)
	}
	r.writePlainln("Processed %d: %d completed, %d retried, %d failed",
		result.Processed, result.Completed, result.Retried, result.Failed)
	return nil
}

// JobsList prints jobs matching --status and --type as a table, JSON or CSV.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	filter := models.JobFilter{
		Status:     models.JobStatus(cmd.String("status")),
		EntityType: models.EntityType(cmd.String("type")),
		Limit:      int(cmd.Int("limit")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, filter.Status)
	}

	format := cmd.String("format")
	switch format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("%w: unknown format %q (table, json or csv)", shared.ErrInvalidArgument, format)
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	jobs, err := d.jobs.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	switch format {
	case "json":
		return r.writeJSON(jobs, true)
	case "csv":
		return formatter.WriteJobsCSV(r.output, jobs)
	}

	if len(jobs) == 0 {
		r.writePlain("No jobs found.\n")
		return nil
	}

	r.writePlain("%s\n", ui.Title(fmt.Sprintf("%-36s  %-10s  %-8s  %-4s  %-8s  %-12s  %s", "ID", "STATUS", "TYPE", "PRI", "ATTEMPTS", "LAST RUN", "ENTITY")))
	for _, job := range jobs {
		r.writePlain("%-36s  %-10s  %-8s  %-4d  %-8s  %-12s  %s\n",
			job.ID, ui.JobStatus(job.Status), job.EntityType, job.Priority,
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts), since(job.LastAttemptedAt), job.EntityID)
	}
	r.writePlainln("Total: %d jobs", len(jobs))
	return nil
}

// JobsShow prints a single job as JSON.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("%w: job ID required", shared.ErrMissingArgument)
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	job, err := d.jobs.Get(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	return r.writeJSON(job, cmd.Bool("pretty"))
}

// JobsStats prints job counts by status.
func (r *Runner) JobsStats(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	stats, err := d.jobs.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlainHeader("Queue")
	for _, row := range []struct {
		status models.JobStatus
		count  int
	}{
		{models.JobPending, stats.Pending},
		{models.JobProcessing, stats.Processing},
		{models.JobRetrying, stats.Retrying},
		{models.JobCompleted, stats.Completed},
		{models.JobFailed, stats.Failed},
	} {
		r.writePlain("%-22s %d\n", ui.JobStatus(row.status), row.count)
	}
	r.writePlain("%-11s %d\n", "total", stats.Total())
	return nil
}

// JobsReclaim returns jobs stuck in processing to the retry pool.
func (r *Runner) JobsReclaim(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	cfg := r.scheduleConfig()
	if older := cmd.Duration("older-than"); older > 0 {
		cfg.StuckAfter = older
	}

	n, err := queue.NewScheduler(d.jobs, d.artists, d.shows, cfg, r.logger).Reclaim(ctx)
	if err != nil {
		return err
	}
	r.writePlain("%s %d jobs\n", ui.OK("✓ reclaimed"), n)
	return nil
}

// JobsRefresh enqueues refresh jobs for stale artists and shows missing an artist or venue.
func (r *Runner) JobsRefresh(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	report, err := queue.NewScheduler(d.jobs, d.artists, d.shows, r.scheduleConfig(), r.logger).Refresh(ctx)
	if err != nil {
		return err
	}
	r.writePlain("%s %d artists, %d shows\n", ui.OK("✓ enqueued"), report.Artists, report.Shows)
	return nil
}

func (r *Runner) scheduleConfig() queue.ScheduleConfig {
	return queue.ScheduleConfig{
		ReclaimSchedule: r.config.Queue.ReclaimSchedule,
		RefreshSchedule: r.config.Queue.RefreshSchedule,
		StuckAfter:      r.config.Queue.StuckAfter,
		Freshness:       r.config.Sync.ArtistFreshness,
		BatchSize:       r.config.Queue.BatchSize,
	}
}

// parseRefs turns key=value pairs into reference data. "true" and "false" become booleans and
// depth is numeric. Everything else stays a string, since provider IDs can be all digits.
func parseRefs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	refs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: reference %q must be key=value", shared.ErrInvalidArgument, pair)
		}

		switch {
		case value == "true" || value == "false":
			refs[key] = value == "true"
		case key == models.RefDepth:
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: depth must be an integer, got %q", shared.ErrInvalidArgument, value)
			}
			refs[key] = n
		default:
			refs[key] = value
		}
	}
	return refs, nil
}

// since formats how long ago t was, rounded to the second.
func since(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return time.Since(*t).Round(time.Second).String() + " ago"
}
