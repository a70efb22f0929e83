package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	json "github.com/goccy/go-json"
)

const jobColumns = `id, entity_type, entity_id, reference_data, status, priority, attempts, max_attempts,
	last_attempted_at, last_error, created_at, updated_at, processed_at`

// enqueueRetries bounds how often a conflicting insert is retried as an update.
const enqueueRetries = 3

// JobDefaults are applied to enqueue requests that leave fields zero.
type JobDefaults struct {
	Priority    int
	MaxAttempts int
	Backoff     time.Duration // retry delay per attempt
}

// DefaultJobDefaults returns priority 3, three attempts and a five minute backoff.
func DefaultJobDefaults() JobDefaults {
	return JobDefaults{Priority: 3, MaxAttempts: 3, Backoff: 5 * time.Minute}
}

// JobDefaultsFromConfig maps the queue section of the config file onto [JobDefaults].
func JobDefaultsFromConfig(cfg shared.QueueConfig) JobDefaults {
	d := DefaultJobDefaults()
	if cfg.DefaultPriority > 0 {
		d.Priority = cfg.DefaultPriority
	}
	if cfg.DefaultMaxAttempts > 0 {
		d.MaxAttempts = cfg.DefaultMaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		d.Backoff = cfg.RetryBackoff
	}
	return d
}

// JobRepository is the SQLite implementation of the durable sync queue.
//
// At most one pending or retrying row exists per (entity_type, entity_id); the partial unique
// index idx_sync_jobs_active enforces it and Enqueue folds duplicates into the existing row.
// SQLite serializes writers, so ClaimNext is a single UPDATE ... RETURNING over the best
// candidate and two workers can never claim the same row.
type JobRepository struct {
	db       *sql.DB
	defaults JobDefaults
	clock    func() time.Time
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB, defaults JobDefaults) *JobRepository {
	return &JobRepository{db: db, defaults: defaults, clock: time.Now}
}

// WithClock replaces the time source, for tests that exercise backoff.
func (r *JobRepository) WithClock(clock func() time.Time) *JobRepository {
	r.clock = clock
	return r
}

func (r *JobRepository) nowMillis() int64 {
	return r.clock().UTC().UnixMilli()
}

// Enqueue adds a pending job or folds the request into the entity's existing pending/retrying job.
//
// The existing row keeps the more urgent priority, takes the new reference data only when it is
// non-nil and has updated_at refreshed. The returned ID is the surviving row's.
func (r *JobRepository) Enqueue(ctx context.Context, req models.EnqueueRequest) (string, error) {
	req, err := normalizeRequest(req, r.defaults)
	if err != nil {
		return "", err
	}

	ref, err := encodeReference(req.ReferenceData)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO sync_jobs (id, entity_type, entity_id, reference_data, status, priority, attempts, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, 0, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) WHERE status IN ('pending', 'retrying') DO UPDATE SET
			priority = MIN(sync_jobs.priority, excluded.priority),
			reference_data = COALESCE(excluded.reference_data, sync_jobs.reference_data),
			updated_at = excluded.updated_at
		RETURNING id
	`

	var lastErr error
	for range enqueueRetries {
		ts := r.nowMillis()
		var id string
		err := r.db.QueryRowContext(ctx, query,
			shared.GenerateID(), req.EntityType, req.EntityID, ref, req.Priority, req.MaxAttempts, ts, ts,
		).Scan(&id)
		if err == nil {
			metrics.RecordEnqueue(req.EntityType)
			return id, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("failed to enqueue job: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to enqueue job after %d attempts: %w", enqueueRetries, lastErr)
}

// ClaimNext moves the most urgent eligible job to processing and returns it.
//
// Eligible means pending, or retrying with last_attempted_at + attempts*backoff in the past.
// Ordering is priority, then fewest attempts, then oldest. It returns nil, nil when nothing is eligible.
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.SyncJob, error) {
	ts := r.nowMillis()
	query := `
		UPDATE sync_jobs
		SET status = 'processing', attempts = attempts + 1, last_attempted_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM sync_jobs
			WHERE status = 'pending'
				OR (status = 'retrying' AND COALESCE(last_attempted_at, 0) + attempts * ? <= ?)
			ORDER BY priority ASC, attempts ASC, created_at ASC
			LIMIT 1
		) AND status IN ('pending', 'retrying')
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, ts, ts, r.defaults.Backoff.Milliseconds(), ts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		if isBusy(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job completed.
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	ts := r.nowMillis()
	result, err := r.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = 'completed', processed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`, ts, ts, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return r.explainMiss(ctx, result, id)
}

// Fail records message and moves the job to retrying, or to failed once attempts reach max_attempts.
func (r *JobRepository) Fail(ctx context.Context, id, message string) error {
	return r.fail(ctx, id, message, false)
}

// FailPermanently records message and moves the job straight to failed.
func (r *JobRepository) FailPermanently(ctx context.Context, id, message string) error {
	return r.fail(ctx, id, message, true)
}

func (r *JobRepository) fail(ctx context.Context, id, message string, terminal bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return err
	}
	if job.Status == models.JobCompleted || job.Status == models.JobFailed {
		return fmt.Errorf("%w: %s is %s", shared.ErrJobNotActive, id, job.Status)
	}

	ts := r.nowMillis()
	if err := settleJob(ctx, tx, job, message, terminal, ts); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job failure: %w", err)
	}
	return nil
}

// settleJob applies the retry-or-terminal decision to a job inside tx.
//
// When retrying would create a second active row for the entity, the job is superseded instead:
// it fails and the active sibling inherits the more urgent priority.
func settleJob(ctx context.Context, tx *sql.Tx, job *models.SyncJob, message string, terminal bool, ts int64) error {
	status := models.JobRetrying
	if terminal || job.Attempts >= job.MaxAttempts {
		status = models.JobFailed
	}

	if status == models.JobRetrying && job.Status == models.JobProcessing {
		var siblingID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM sync_jobs
			WHERE entity_type = ? AND entity_id = ? AND status IN ('pending', 'retrying') AND id != ?
		`, job.EntityType, job.EntityID, job.ID).Scan(&siblingID)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
				UPDATE sync_jobs SET priority = MIN(priority, ?), updated_at = ? WHERE id = ?
			`, job.Priority, ts, siblingID); err != nil {
				return fmt.Errorf("failed to update superseding job: %w", err)
			}
			status = models.JobFailed
			message = fmt.Sprintf("superseded by %s: %s", siblingID, message)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up active job: %w", err)
		}
	}

	lastError, err := encodeJobError(message, time.UnixMilli(ts))
	if err != nil {
		return err
	}

	var processedAt any
	if status == models.JobFailed {
		processedAt = ts
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, last_error = ?, updated_at = ?, processed_at = COALESCE(?, processed_at)
		WHERE id = ?
	`, status, lastError, ts, processedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

// ReclaimStale returns processing jobs whose last attempt started before cutoff to the retry pool.
//
// Jobs out of attempts are failed. It returns the number of jobs touched.
func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM sync_jobs
		WHERE status = 'processing' AND last_attempted_at < ?
	`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to query stale jobs: %w", err)
	}

	var stale []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, job)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("row iteration error: %w", err)
	}

	ts := r.nowMillis()
	for _, job := range stale {
		if err := settleJob(ctx, tx, job, "reclaimed after worker timeout", false, ts); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reclaim: %w", err)
	}
	return len(stale), nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM sync_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

// List returns jobs matching filter, newest first.
func (r *JobRepository) List(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE 1 = 1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.EntityType != "" {
		query += " AND entity_type = ?"
		args = append(args, filter.EntityType)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs by status.
func (r *JobRepository) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM sync_jobs GROUP BY status")
	if err != nil {
		return stats, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status models.JobStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats.Set(status, count)
	}
	return stats, rows.Err()
}

func (r *JobRepository) explainMiss(ctx context.Context, result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", shared.ErrJobNotActive, id, job.Status)
}

// normalizeRequest validates req and fills in queue defaults.
func normalizeRequest(req models.EnqueueRequest, d JobDefaults) (models.EnqueueRequest, error) {
	if !req.EntityType.Valid() {
		return req, &shared.ValidationError{Field: "entityType", Message: fmt.Sprintf("unknown entity type %q", req.EntityType)}
	}
	if req.EntityID == "" {
		return req, &shared.ValidationError{Field: "entityId", Message: "entity id is required"}
	}
	if req.Priority <= 0 {
		req.Priority = d.Priority
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = d.MaxAttempts
	}
	return req, nil
}

func encodeReference(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, &shared.ValidationError{Field: "referenceData", Message: err.Error()}
	}
	return string(b), nil
}

func encodeJobError(message string, at time.Time) (string, error) {
	b, err := json.Marshal(models.JobError{Message: message, Timestamp: at.UTC()})
	if err != nil {
		return "", fmt.Errorf("failed to encode job error: %w", err)
	}
	return string(b), nil
}

func decodeJobPayloads(job *models.SyncJob, ref, lastErr []byte) error {
	if len(ref) > 0 {
		if err := json.Unmarshal(ref, &job.ReferenceData); err != nil {
			return fmt.Errorf("failed to decode reference data: %w", err)
		}
	}
	if len(lastErr) > 0 {
		var je models.JobError
		if err := json.Unmarshal(lastErr, &je); err != nil {
			return fmt.Errorf("failed to decode last error: %w", err)
		}
		job.LastError = &je
	}
	return nil
}

func millisPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func scanJob(s scanner) (*models.SyncJob, error) {
	var (
		job           models.SyncJob
		ref, lastErr  sql.NullString
		lastAttempted sql.NullInt64
		processed     sql.NullInt64
		created       int64
		updated       int64
	)

	err := s.Scan(&job.ID, &job.EntityType, &job.EntityID, &ref, &job.Status, &job.Priority, &job.Attempts,
		&job.MaxAttempts, &lastAttempted, &lastErr, &created, &updated, &processed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.LastAttemptedAt = millisPtr(lastAttempted)
	job.ProcessedAt = millisPtr(processed)
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()

	if err := decodeJobPayloads(&job, []byte(ref.String), []byte(lastErr.String)); err != nil {
		return nil, err
	}
	return &job, nil
}
