package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/matching"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// maxPriority is the least urgent queue priority. Queue priorities run 1..maxPriority, lower first.
const maxPriority = 10

// cascadePriority is one queue priority step less urgent than parent. A zero parent
// leaves the child on the queue default. Children of a maxPriority job are clamped to
// maxPriority and share their parent's urgency.
func cascadePriority(parent int) int {
	if parent <= 0 {
		return 0
	}
	return min(parent+1, maxPriority)
}

// Enqueuer is the queue surface handlers cascade through.
type Enqueuer interface {
	Enqueue(ctx context.Context, req models.EnqueueRequest) (string, error)
}

// Stores groups the canonical repositories the handlers write.
type Stores struct {
	Artists  *repositories.ArtistRepository
	Venues   *repositories.VenueRepository
	Shows    *repositories.ShowRepository
	Songs    *repositories.SongRepository
	Setlists *repositories.SetlistRepository
}

// Providers groups the external catalogs. A nil catalog is treated as unavailable.
type Providers struct {
	Events   services.EventsCatalog
	Music    services.MusicCatalog
	Setlists services.SetlistCatalog
}

// Outcome describes what one handler run did.
type Outcome struct {
	EntityType models.EntityType
	InternalID string
	MatchedBy  string
	Created    bool
	Skipped    bool // fresh row returned unchanged
	Cascaded   []models.EnqueueRequest
	Warnings   []string
}

// Degraded reports whether a provider failed during the run.
func (o *Outcome) Degraded() bool { return len(o.Warnings) > 0 }

// Engine runs entity sync handlers.
type Engine struct {
	stores    Stores
	providers Providers
	queue     Enqueuer
	matcher   *matching.SongMatcher
	cfg       shared.SyncConfig
	prec      Precedence
	logger    *log.Logger
	now       func() time.Time
}

// NewEngine creates an Engine. Zero values in cfg fall back to the embedded defaults.
func NewEngine(stores Stores, providers Providers, queue Enqueuer, cfg shared.SyncConfig, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	cfg = withSyncDefaults(cfg)
	return &Engine{
		stores:    stores,
		providers: providers,
		queue:     queue,
		matcher:   matching.NewSongMatcher(stores.Songs),
		cfg:       cfg,
		prec:      PrecedenceFromConfig(cfg.Precedence),
		logger:    logger.With("component", "engine"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the engine clock used for freshness checks and sync stamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func withSyncDefaults(cfg shared.SyncConfig) shared.SyncConfig {
	def := shared.DefaultConfig().Sync
	if cfg.ArtistFreshness <= 0 {
		cfg.ArtistFreshness = def.ArtistFreshness
	}
	if cfg.VenueFreshness <= 0 {
		cfg.VenueFreshness = def.VenueFreshness
	}
	if cfg.ShowFreshness <= 0 {
		cfg.ShowFreshness = def.ShowFreshness
	}
	if cfg.SetlistFreshness <= 0 {
		cfg.SetlistFreshness = def.SetlistFreshness
	}
	if cfg.SongFreshness <= 0 {
		cfg.SongFreshness = def.SongFreshness
	}
	if cfg.TopSongs <= 0 {
		cfg.TopSongs = def.TopSongs
	}
	if cfg.MaxDiscoveredShows <= 0 {
		cfg.MaxDiscoveredShows = def.MaxDiscoveredShows
	}
	if cfg.MaxDiscoveredSetlists <= 0 {
		cfg.MaxDiscoveredSetlists = def.MaxDiscoveredSetlists
	}
	if cfg.CascadeDepth <= 0 {
		cfg.CascadeDepth = def.CascadeDepth
	}
	return cfg
}

// RunMode adjusts a handler run beyond what the job itself carries.
type RunMode struct {
	// Force ignores freshness windows.
	Force bool
	// Expand cascades dependent work even when the entity is fresh.
	Expand bool
}

// run is the per-invocation state shared by a handler and its helpers.
type run struct {
	job     *models.SyncJob
	mode    RunMode
	depth   int
	outcome *Outcome

	mu sync.Mutex
}

func (r *run) warn(logger *log.Logger, provider string, err error) {
	r.mu.Lock()
	r.outcome.Warnings = append(r.outcome.Warnings, fmt.Sprintf("%s: %v", provider, err))
	r.mu.Unlock()
	logger.Warn("provider call failed, continuing", "provider", provider, "entity", r.job.EntityType, "id", r.job.EntityID, "err", err)
}

// Handle runs job through its entity handler.
func (e *Engine) Handle(ctx context.Context, job *models.SyncJob) (*Outcome, error) {
	return e.HandleWithMode(ctx, job, RunMode{})
}

// HandleWithMode runs job with extra run options. Reference data "force" also forces the run.
func (e *Engine) HandleWithMode(ctx context.Context, job *models.SyncJob, mode RunMode) (*Outcome, error) {
	if job == nil {
		return nil, &shared.ValidationError{Field: "job", Message: "job is required"}
	}
	if !job.EntityType.Valid() {
		return nil, &shared.ValidationError{Field: "entityType", Message: fmt.Sprintf("unknown entity type %q", job.EntityType)}
	}
	if job.EntityID == "" {
		return nil, &shared.ValidationError{Field: "entityId", Message: "entity id is required"}
	}
	mode.Force = mode.Force || job.RefBool(models.RefForce)

	r := &run{
		job:     job,
		mode:    mode,
		depth:   refInt(job, models.RefDepth),
		outcome: &Outcome{EntityType: job.EntityType},
	}

	start := time.Now()
	var err error
	switch job.EntityType {
	case models.EntityArtist:
		err = e.syncArtist(ctx, r)
	case models.EntityVenue:
		err = e.syncVenue(ctx, r)
	case models.EntityShow:
		err = e.syncShow(ctx, r)
	case models.EntitySetlist:
		err = e.syncSetlist(ctx, r)
	case models.EntitySong:
		err = e.syncSong(ctx, r)
	}

	logger := e.logger.With("entity", job.EntityType, "id", job.EntityID)
	if err != nil {
		logger.Error("sync failed", "err", err, "took", time.Since(start))
		return r.outcome, err
	}
	logger.Info("sync finished",
		"internal_id", r.outcome.InternalID,
		"created", r.outcome.Created,
		"skipped", r.outcome.Skipped,
		"cascaded", len(r.outcome.Cascaded),
		"warnings", len(r.outcome.Warnings),
		"took", time.Since(start),
	)
	return r.outcome, nil
}

// fresh reports whether a row synced at last is inside window and may be returned unchanged.
func (e *Engine) fresh(r *run, last *time.Time, window time.Duration) bool {
	if r.mode.Force || last == nil {
		return false
	}
	return e.now().Sub(*last) < window
}

// cascade enqueues dependent work one priority step below the current job. Failures are logged, not returned.
func (e *Engine) cascade(ctx context.Context, r *run, entityType models.EntityType, entityID string, ref map[string]any) {
	if entityID == "" {
		return
	}
	priority := cascadePriority(r.job.Priority)
	if ref == nil {
		ref = map[string]any{}
	}
	ref[models.RefDepth] = r.depth + 1

	req := models.EnqueueRequest{
		EntityType:    entityType,
		EntityID:      entityID,
		ReferenceData: ref,
		Priority:      priority,
	}

	r.mu.Lock()
	r.outcome.Cascaded = append(r.outcome.Cascaded, req)
	r.mu.Unlock()

	if e.queue == nil {
		return
	}
	if _, err := e.queue.Enqueue(ctx, req); err != nil {
		e.logger.Warn("cascade enqueue failed", "entity", entityType, "id", entityID, "err", err)
	}
}

// canDiscover reports whether the run may fan out into newly discovered shows and setlists.
func (e *Engine) canDiscover(r *run) bool {
	return r.depth < e.cfg.CascadeDepth
}

// allMissing turns a fetch round with no usable data into the right terminal or retryable error.
func allMissing(entityType models.EntityType, id string, errs []error) error {
	if len(errs) == 0 {
		return &shared.NotFoundError{EntityType: string(entityType), EntityID: id}
	}
	for _, err := range errs {
		if !services.IsNotFound(err) {
			return fmt.Errorf("no provider data for %s %s: %w", entityType, id, errors.Join(errs...))
		}
	}
	return &shared.NotFoundError{EntityType: string(entityType), EntityID: id}
}

func refInt(job *models.SyncJob, key string) int {
	if job == nil || job.ReferenceData == nil {
		return 0
	}
	switch v := job.ReferenceData[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func persist(op string, err error) error {
	return shared.NewPersistenceError(op, err)
}
