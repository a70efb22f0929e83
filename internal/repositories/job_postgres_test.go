package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// postgresDSNEnv names the database the Postgres queue tests run against. The tests truncate sync_jobs.
const postgresDSNEnv = "SETLISTSYNC_TEST_POSTGRES_DSN"

func newPgJobRepo(t *testing.T, defaults JobDefaults) *PostgresJobRepository {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	ctx := context.Background()
	repo, err := NewPostgresJobRepository(ctx, dsn, defaults)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(repo.Close)

	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	if _, err := repo.pool.Exec(ctx, `TRUNCATE sync_jobs`); err != nil {
		t.Fatalf("failed to truncate sync_jobs: %v", err)
	}
	return repo
}

// immediateRetry makes retrying jobs eligible as soon as they fail.
func immediateRetry() JobDefaults {
	d := DefaultJobDefaults()
	d.Backoff = 0
	return d
}

func TestPostgresJobRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent enqueues fold into one job", func(t *testing.T) {
		repo := newPgJobRepo(t, DefaultJobDefaults())

		const n = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			ids  = map[string]int{}
			errs []error
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := repo.Enqueue(ctx, models.EnqueueRequest{
					EntityType: models.EntityArtist, EntityID: "sp1", Priority: 1 + i%5,
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				ids[id]++
			}()
		}
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("expected every enqueue to succeed, got %v", errs)
		}
		if len(ids) != 1 {
			t.Fatalf("expected a single job ID, got %d", len(ids))
		}

		jobs, err := repo.List(ctx, models.JobFilter{EntityType: models.EntityArtist})
		if err != nil {
			t.Fatalf("failed to list jobs: %v", err)
		}
		if len(jobs) != 1 {
			t.Fatalf("expected one row, got %d", len(jobs))
		}
		if jobs[0].Priority != 1 {
			t.Errorf("expected the most urgent priority to win, got %d", jobs[0].Priority)
		}
	})

	t.Run("concurrent claims never share a job", func(t *testing.T) {
		repo := newPgJobRepo(t, DefaultJobDefaults())

		const jobs = 20
		for i := range jobs {
			if _, err := repo.Enqueue(ctx, models.EnqueueRequest{
				EntityType: models.EntitySong, EntityID: fmt.Sprintf("track-%d", i),
			}); err != nil {
				t.Fatalf("failed to enqueue: %v", err)
			}
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed = map[string]int{}
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := repo.ClaimNext(ctx)
					if err != nil {
						t.Errorf("failed to claim: %v", err)
						return
					}
					if job == nil {
						return
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if len(claimed) != jobs {
			t.Errorf("expected %d distinct claims, got %d", jobs, len(claimed))
		}
		for id, n := range claimed {
			if n != 1 {
				t.Errorf("job %s claimed %d times", id, n)
			}
		}

		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("failed to read stats: %v", err)
		}
		if stats.Processing != jobs || stats.Pending != 0 {
			t.Errorf("expected all jobs processing, got %+v", stats)
		}
	})

	t.Run("fail retries until max attempts then fails", func(t *testing.T) {
		repo := newPgJobRepo(t, immediateRetry())
		id, err := repo.Enqueue(ctx, models.EnqueueRequest{
			EntityType: models.EntityVenue, EntityID: "KovZ1", MaxAttempts: 2,
		})
		if err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}

		tests := []struct {
			attempt int
			want    models.JobStatus
		}{
			{1, models.JobRetrying},
			{2, models.JobFailed},
		}
		for _, tt := range tests {
			job, err := repo.ClaimNext(ctx)
			if err != nil || job == nil || job.ID != id {
				t.Fatalf("attempt %d: expected to claim %s, got %+v, %v", tt.attempt, id, job, err)
			}
			if job.Attempts != tt.attempt {
				t.Errorf("expected attempts %d, got %d", tt.attempt, job.Attempts)
			}
			if err := repo.Fail(ctx, id, "ticketmaster unavailable"); err != nil {
				t.Fatalf("failed to fail job: %v", err)
			}
			got, err := repo.Get(ctx, id)
			if err != nil {
				t.Fatalf("failed to get job: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("attempt %d: expected %s, got %s", tt.attempt, tt.want, got.Status)
			}
		}

		if err := repo.Fail(ctx, id, "again"); !errors.Is(err, shared.ErrJobNotActive) {
			t.Errorf("expected ErrJobNotActive for a failed job, got %v", err)
		}
		if job, err := repo.ClaimNext(ctx); err != nil || job != nil {
			t.Errorf("expected an empty queue, got %+v, %v", job, err)
		}
	})

	t.Run("fail is superseded by a newer active job", func(t *testing.T) {
		repo := newPgJobRepo(t, immediateRetry())
		first, err := repo.Enqueue(ctx, models.EnqueueRequest{EntityType: models.EntityShow, EntityID: "G5v1", Priority: 2})
		if err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		if _, err := repo.ClaimNext(ctx); err != nil {
			t.Fatalf("failed to claim: %v", err)
		}
		second, err := repo.Enqueue(ctx, models.EnqueueRequest{EntityType: models.EntityShow, EntityID: "G5v1", Priority: 5})
		if err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		if second == first {
			t.Fatal("expected a new job while the first is processing")
		}

		if err := repo.Fail(ctx, first, "timeout"); err != nil {
			t.Fatalf("failed to fail job: %v", err)
		}
		old, _ := repo.Get(ctx, first)
		if old.Status != models.JobFailed {
			t.Errorf("expected the older job to fail, got %s", old.Status)
		}
		newer, _ := repo.Get(ctx, second)
		if newer.Status != models.JobPending || newer.Priority != 2 {
			t.Errorf("expected the pending job to take priority 2, got %s/%d", newer.Status, newer.Priority)
		}
	})

	t.Run("reclaim returns stale processing jobs", func(t *testing.T) {
		repo := newPgJobRepo(t, immediateRetry())
		id, err := repo.Enqueue(ctx, models.EnqueueRequest{EntityType: models.EntityArtist, EntityID: "sp2"})
		if err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		if _, err := repo.ClaimNext(ctx); err != nil {
			t.Fatalf("failed to claim: %v", err)
		}

		n, err := repo.ReclaimStale(ctx, time.Now().Add(-time.Hour))
		if err != nil || n != 0 {
			t.Fatalf("expected nothing reclaimed for a fresh claim, got %d, %v", n, err)
		}

		n, err = repo.ReclaimStale(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("failed to reclaim: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected one reclaimed job, got %d", n)
		}

		got, _ := repo.Get(ctx, id)
		if got.Status != models.JobRetrying || got.LastError == nil {
			t.Errorf("expected a retrying job with an error, got %+v", got)
		}

		job, err := repo.ClaimNext(ctx)
		if err != nil || job == nil || job.ID != id || job.Attempts != 2 {
			t.Errorf("expected to reclaim %s on attempt 2, got %+v, %v", id, job, err)
		}
	})
}
