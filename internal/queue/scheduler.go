package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/metrics"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/robfig/cron/v3"
)

// Priorities of scheduler-issued jobs. Lower is more urgent.
const (
	RefreshPriority = 7
	RelinkPriority  = 5
)

// StaleArtists lists artists due for a refresh.
type StaleArtists interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Artist, error)
}

// UnlinkedShows lists shows still missing an artist or venue.
type UnlinkedShows interface {
	ListWithoutRelations(ctx context.Context, limit int) ([]*models.Show, error)
}

// ScheduleConfig holds the cron expressions and sweep parameters.
//
// Expressions use the standard five fields or a descriptor such as "@every 5m".
// An empty expression disables that sweep.
type ScheduleConfig struct {
	ReclaimSchedule string
	RefreshSchedule string
	StuckAfter      time.Duration
	Freshness       time.Duration
	BatchSize       int
}

// Scheduler runs the periodic sweeps on a cron. It implements suture.Service.
type Scheduler struct {
	store   Store
	artists StaleArtists
	shows   UnlinkedShows
	cfg     ScheduleConfig
	logger  *log.Logger
	now     func() time.Time
	parser  cron.Parser
}

// NewScheduler creates a Scheduler. artists or shows may be nil to skip that part of the refresh.
func NewScheduler(store Store, artists StaleArtists, shows UnlinkedShows, cfg ScheduleConfig, logger *log.Logger) *Scheduler {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 30 * time.Minute
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	return &Scheduler{
		store:   store,
		artists: artists,
		shows:   shows,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate parses both expressions without starting anything.
func (s *Scheduler) Validate() error {
	for name, expr := range map[string]string{"reclaim_schedule": s.cfg.ReclaimSchedule, "refresh_schedule": s.cfg.RefreshSchedule} {
		if expr == "" {
			continue
		}
		if _, err := s.parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, expr, err)
		}
	}
	return nil
}

// Serve starts the cron and blocks until ctx is canceled, then waits for running sweeps.
func (s *Scheduler) Serve(ctx context.Context) error {
	c := cron.New(cron.WithParser(s.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if s.cfg.ReclaimSchedule != "" {
		if _, err := c.AddFunc(s.cfg.ReclaimSchedule, func() { s.runReclaim(ctx) }); err != nil {
			return fmt.Errorf("register reclaim sweep: %w", err)
		}
	}
	if s.cfg.RefreshSchedule != "" {
		if _, err := c.AddFunc(s.cfg.RefreshSchedule, func() { s.runRefresh(ctx) }); err != nil {
			return fmt.Errorf("register refresh sweep: %w", err)
		}
	}

	c.Start()
	s.logger.Info("scheduler started", "reclaim", s.cfg.ReclaimSchedule, "refresh", s.cfg.RefreshSchedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// String names the scheduler in supervisor events.
func (s *Scheduler) String() string { return "queue-scheduler" }

func (s *Scheduler) runReclaim(ctx context.Context) {
	if _, err := s.Reclaim(ctx); err != nil {
		s.logger.Error("reclaim sweep failed", "err", err)
	}
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Error("refresh sweep failed", "err", err)
	}
}

// Reclaim returns processing jobs older than StuckAfter to the pool.
func (s *Scheduler) Reclaim(ctx context.Context) (int, error) {
	n, err := s.store.ReclaimStale(ctx, s.now().Add(-s.cfg.StuckAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.JobsReclaimed.Add(float64(n))
		s.logger.Warn("reclaimed stuck jobs", "count", n, "stuck_after", s.cfg.StuckAfter)
	}
	return n, nil
}

// RefreshReport counts what one refresh sweep enqueued.
type RefreshReport struct {
	Artists int `json:"artists"`
	Shows   int `json:"shows"`
}

// Refresh enqueues stale artists and shows still missing their artist or venue.
//
// Enqueue deduplicates, so overlapping sweeps only touch existing rows.
func (s *Scheduler) Refresh(ctx context.Context) (RefreshReport, error) {
	var report RefreshReport

	if s.artists != nil {
		stale, err := s.artists.ListStale(ctx, s.now().Add(-s.cfg.Freshness), s.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("list stale artists: %w", err)
		}
		for _, a := range stale {
			if _, err := s.store.Enqueue(ctx, artistRefresh(a)); err != nil {
				return report, fmt.Errorf("enqueue artist %s: %w", a.ID, err)
			}
			report.Artists++
		}
	}

	if s.shows != nil {
		unlinked, err := s.shows.ListWithoutRelations(ctx, s.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("list unlinked shows: %w", err)
		}
		for _, show := range unlinked {
			req := models.EnqueueRequest{EntityType: models.EntityShow, EntityID: show.ID, Priority: RelinkPriority}
			if show.TicketmasterID != "" {
				req.ReferenceData = map[string]any{models.RefTicketmasterID: show.TicketmasterID}
			}
			if _, err := s.store.Enqueue(ctx, req); err != nil {
				return report, fmt.Errorf("enqueue show %s: %w", show.ID, err)
			}
			report.Shows++
		}
	}

	if report.Artists > 0 || report.Shows > 0 {
		s.logger.Info("refresh sweep enqueued jobs", "artists", report.Artists, "shows", report.Shows)
	}
	return report, nil
}

func artistRefresh(a *models.Artist) models.EnqueueRequest {
	ref := map[string]any{}
	if a.TicketmasterID != "" {
		ref[models.RefTicketmasterID] = a.TicketmasterID
	}
	if a.SpotifyID != "" {
		ref[models.RefSpotifyID] = a.SpotifyID
	}
	if a.MBID != "" {
		ref[models.RefMBID] = a.MBID
	}
	return models.EnqueueRequest{
		EntityType:    models.EntityArtist,
		EntityID:      a.ID,
		ReferenceData: ref,
		Priority:      RefreshPriority,
	}
}
