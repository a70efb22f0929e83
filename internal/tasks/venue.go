package tasks

import (
	"context"

	"github.com/desertthunder/setlistsync/internal/identity"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"golang.org/x/sync/errgroup"
)

func (e *Engine) syncVenue(ctx context.Context, r *run) error {
	repo := e.stores.Venues
	keys := identity.KeysFromJob(r.job)

	res, err := identity.Resolve(ctx, identity.VenueStrategies(repo, keys))
	if err != nil {
		return persist("resolve venue", err)
	}
	r.outcome.MatchedBy = string(res.MatchedBy)

	var stored *models.Venue
	if res.Found() {
		if stored, err = repo.Get(ctx, res.InternalID); err != nil {
			return persist("load venue", err)
		}
		r.outcome.InternalID = stored.ID
		if e.fresh(r, stored.LastSyncedAt, e.cfg.VenueFreshness) {
			r.outcome.Skipped = true
			return nil
		}
	}

	tmID, fmID := venueFetchIDs(r.job, stored)

	var (
		events, setlist *services.ExternalVenue
		tmErr, fmErr    error
		g               errgroup.Group
	)
	if tmID != "" && e.providers.Events != nil {
		g.Go(func() error {
			if events, tmErr = e.providers.Events.GetVenue(ctx, tmID); tmErr != nil {
				r.warn(e.logger, services.ProviderTicketmaster, tmErr)
			}
			return nil
		})
	}
	if fmID != "" && e.providers.Setlists != nil {
		g.Go(func() error {
			if setlist, fmErr = e.providers.Setlists.GetVenue(ctx, fmID); fmErr != nil {
				r.warn(e.logger, services.ProviderSetlistFM, fmErr)
			}
			return nil
		})
	}
	g.Wait()

	if events == nil && setlist == nil {
		return allMissing(models.EntityVenue, r.job.EntityID, nonNil(tmErr, fmErr))
	}

	merged := mergeVenue(e.prec, stored, events, setlist)
	ts := e.now()
	merged.LastSyncedAt = &ts

	if merged.ID != "" {
		if err := repo.Update(ctx, merged); err != nil {
			return persist("update venue", err)
		}
		return nil
	}

	err = repo.Create(ctx, merged)
	if repositories.IsConflict(err) {
		res, rerr := identity.Resolve(ctx, identity.VenueStrategies(repo, identity.Keys{
			Events: merged.TicketmasterID, Setlist: merged.SetlistFMID,
		}))
		if rerr == nil && res.Found() {
			merged.ID = res.InternalID
			err = repo.Update(ctx, merged)
		}
	} else if err == nil {
		r.outcome.Created = true
	}
	if err != nil {
		return persist("save venue", err)
	}
	r.outcome.InternalID = merged.ID
	return nil
}

// venueFetchIDs picks provider IDs from the stored row, then reference data, then a guess on the bare entity ID.
func venueFetchIDs(job *models.SyncJob, stored *models.Venue) (tm, fm string) {
	if stored != nil {
		tm, fm = stored.TicketmasterID, stored.SetlistFMID
	}
	tm = firstNonEmpty(tm, job.Ref(models.RefTicketmasterID))
	fm = firstNonEmpty(fm, job.Ref(models.RefSetlistFMID))

	if stored == nil && tm == "" && fm == "" {
		switch identity.VenueSource(job.EntityID) {
		case identity.SourceSetlist:
			fm = job.EntityID
		case identity.SourceEvents:
			tm = job.EntityID
		}
	}
	return tm, fm
}

func nonNil(errs ...error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
