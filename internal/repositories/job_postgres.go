package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresJobSchema = `
CREATE TABLE IF NOT EXISTS sync_jobs (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL CHECK (entity_type IN ('artist', 'venue', 'show', 'setlist', 'song')),
    entity_id TEXT NOT NULL,
    reference_data JSONB,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'retrying', 'completed', 'failed')),
    priority INTEGER NOT NULL DEFAULT 3,
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    last_attempted_at TIMESTAMPTZ,
    last_error JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    processed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_jobs_active ON sync_jobs (entity_type, entity_id) WHERE status IN ('pending', 'retrying');
CREATE INDEX IF NOT EXISTS idx_sync_jobs_claim ON sync_jobs (status, priority, attempts, created_at);
`

const pgJobColumns = `id, entity_type, entity_id, reference_data, status, priority, attempts, max_attempts,
	last_attempted_at, last_error, created_at, updated_at, processed_at`

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresJobRepository is the PostgreSQL implementation of the durable sync queue.
//
// Claims lock the candidate row with FOR UPDATE SKIP LOCKED so workers on many hosts never
// block on, or double-claim, the same job.
type PostgresJobRepository struct {
	pool     *pgxpool.Pool
	defaults JobDefaults
}

// NewPostgresJobRepository connects to dsn and returns a queue store.
func NewPostgresJobRepository(ctx context.Context, dsn string, defaults JobDefaults) (*PostgresJobRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &PostgresJobRepository{pool: pool, defaults: defaults}, nil
}

// Close releases the connection pool.
func (r *PostgresJobRepository) Close() {
	r.pool.Close()
}

// EnsureSchema creates the sync_jobs table and its indexes when missing.
func (r *PostgresJobRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range shared.SplitStatements(postgresJobSchema) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create queue schema: %w", err)
		}
	}
	return nil
}

// Enqueue adds a pending job or folds the request into the entity's existing pending/retrying job.
func (r *PostgresJobRepository) Enqueue(ctx context.Context, req models.EnqueueRequest) (string, error) {
	req, err := normalizeRequest(req, r.defaults)
	if err != nil {
		return "", err
	}

	ref, err := encodeReference(req.ReferenceData)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO sync_jobs (id, entity_type, entity_id, reference_data, priority, max_attempts)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (entity_type, entity_id) WHERE status IN ('pending', 'retrying') DO UPDATE SET
			priority = LEAST(sync_jobs.priority, EXCLUDED.priority),
			reference_data = COALESCE(EXCLUDED.reference_data, sync_jobs.reference_data),
			updated_at = now()
		RETURNING id
	`

	var lastErr error
	for range enqueueRetries {
		var id string
		err := r.pool.QueryRow(ctx, query,
			shared.GenerateID(), string(req.EntityType), req.EntityID, ref, req.Priority, req.MaxAttempts,
		).Scan(&id)
		if err == nil {
			metrics.RecordEnqueue(req.EntityType)
			return id, nil
		}
		if !isPgUniqueViolation(err) {
			return "", fmt.Errorf("failed to enqueue job: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to enqueue job after %d attempts: %w", enqueueRetries, lastErr)
}

// ClaimNext locks and claims the most urgent eligible job, skipping rows other workers hold.
func (r *PostgresJobRepository) ClaimNext(ctx context.Context) (*models.SyncJob, error) {
	query := `
		WITH next AS (
			SELECT id FROM sync_jobs
			WHERE status = 'pending'
				OR (status = 'retrying' AND COALESCE(last_attempted_at, 'epoch'::timestamptz) + attempts * $1::bigint * interval '1 millisecond' <= now())
			ORDER BY priority ASC, attempts ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sync_jobs j
		SET status = 'processing', attempts = j.attempts + 1, last_attempted_at = now(), updated_at = now()
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.entity_type, j.entity_id, j.reference_data, j.status, j.priority, j.attempts, j.max_attempts,
			j.last_attempted_at, j.last_error, j.created_at, j.updated_at, j.processed_at
	`

	job, err := scanPgJob(r.pool.QueryRow(ctx, query, r.defaults.Backoff.Milliseconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job completed.
func (r *PostgresJobRepository) Complete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sync_jobs SET status = 'completed', processed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", shared.ErrJobNotActive, id, job.Status)
}

// Fail records message and moves the job to retrying, or to failed once attempts reach max_attempts.
func (r *PostgresJobRepository) Fail(ctx context.Context, id, message string) error {
	return r.fail(ctx, id, message, false)
}

// FailPermanently records message and moves the job straight to failed.
func (r *PostgresJobRepository) FailPermanently(ctx context.Context, id, message string) error {
	return r.fail(ctx, id, message, true)
}

func (r *PostgresJobRepository) fail(ctx context.Context, id, message string, terminal bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := scanPgJob(tx.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM sync_jobs WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return err
	}
	if job.Status == models.JobCompleted || job.Status == models.JobFailed {
		return fmt.Errorf("%w: %s is %s", shared.ErrJobNotActive, id, job.Status)
	}

	if err := settlePgJob(ctx, tx, job, message, terminal); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job failure: %w", err)
	}
	return nil
}

func settlePgJob(ctx context.Context, tx pgx.Tx, job *models.SyncJob, message string, terminal bool) error {
	status := models.JobRetrying
	if terminal || job.Attempts >= job.MaxAttempts {
		status = models.JobFailed
	}

	if status == models.JobRetrying && job.Status == models.JobProcessing {
		var siblingID string
		err := tx.QueryRow(ctx, `
			SELECT id FROM sync_jobs
			WHERE entity_type = $1 AND entity_id = $2 AND status IN ('pending', 'retrying') AND id <> $3
			FOR UPDATE
		`, string(job.EntityType), job.EntityID, job.ID).Scan(&siblingID)
		switch {
		case err == nil:
			if _, err := tx.Exec(ctx, `
				UPDATE sync_jobs SET priority = LEAST(priority, $1), updated_at = now() WHERE id = $2
			`, job.Priority, siblingID); err != nil {
				return fmt.Errorf("failed to update superseding job: %w", err)
			}
			status = models.JobFailed
			message = fmt.Sprintf("superseded by %s: %s", siblingID, message)
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("failed to look up active job: %w", err)
		}
	}

	lastError, err := encodeJobError(message, time.Now())
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE sync_jobs
		SET status = $1, last_error = $2::jsonb, updated_at = now(),
			processed_at = CASE WHEN $1 = 'failed' THEN now() ELSE processed_at END
		WHERE id = $3
	`, string(status), lastError, job.ID)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

// ReclaimStale returns processing jobs whose last attempt started before cutoff to the retry pool.
func (r *PostgresJobRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+pgJobColumns+` FROM sync_jobs
		WHERE status = 'processing' AND last_attempted_at < $1
		FOR UPDATE SKIP LOCKED
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale jobs: %w", err)
	}
	stale, err := collectPgJobs(rows)
	if err != nil {
		return 0, err
	}

	for _, job := range stale {
		if err := settlePgJob(ctx, tx, job, "reclaimed after worker timeout", false); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit reclaim: %w", err)
	}
	return len(stale), nil
}

// Get retrieves a job by ID
func (r *PostgresJobRepository) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := scanPgJob(r.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM sync_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return job, err
}

// List returns jobs matching filter, newest first.
func (r *PostgresJobRepository) List(ctx context.Context, filter models.JobFilter) ([]*models.SyncJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+pgJobColumns+` FROM sync_jobs
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR entity_type = $2)
		ORDER BY created_at DESC, id
		LIMIT $3
	`, string(filter.Status), string(filter.EntityType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return collectPgJobs(rows)
}

// Stats counts jobs by status.
func (r *PostgresJobRepository) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats

	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM sync_jobs GROUP BY status")
	if err != nil {
		return stats, fmt.Errorf("failed to query job stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan job stats: %w", err)
		}
		stats.Set(models.JobStatus(status), count)
	}
	return stats, rows.Err()
}

func collectPgJobs(rows pgx.Rows) ([]*models.SyncJob, error) {
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanPgJob(rows)
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

func scanPgJob(row pgx.Row) (*models.SyncJob, error) {
	var (
		job          models.SyncJob
		entityType   string
		status       string
		ref, lastErr []byte
	)

	err := row.Scan(&job.ID, &entityType, &job.EntityID, &ref, &status, &job.Priority, &job.Attempts,
		&job.MaxAttempts, &job.LastAttemptedAt, &lastErr, &job.CreatedAt, &job.UpdatedAt, &job.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.EntityType = models.EntityType(entityType)
	job.Status = models.JobStatus(status)
	if err := decodeJobPayloads(&job, ref, lastErr); err != nil {
		return nil, err
	}
	return &job, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
