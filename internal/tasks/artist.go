package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/desertthunder/setlistsync/internal/identity"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"golang.org/x/sync/errgroup"
)

// artistIDs are the provider IDs used to fetch one artist.
type artistIDs struct {
	events, music, setlist string
}

func (e *Engine) syncArtist(ctx context.Context, r *run) error {
	repo := e.stores.Artists
	keys := identity.KeysFromJob(r.job)

	res, err := identity.Resolve(ctx, identity.ArtistStrategies(repo, keys))
	if err != nil {
		return persist("resolve artist", err)
	}
	r.outcome.MatchedBy = string(res.MatchedBy)

	var stored *models.Artist
	if res.Found() {
		if stored, err = repo.Get(ctx, res.InternalID); err != nil {
			return persist("load artist", err)
		}
		r.outcome.InternalID = stored.ID

		if e.fresh(r, stored.LastSyncedAt, e.cfg.ArtistFreshness) {
			r.outcome.Skipped = true
			if r.mode.Expand {
				e.cascadeArtist(ctx, r, stored)
			}
			return nil
		}
	}

	ids := artistFetchIDs(r.job, stored)
	src, errs := e.fetchArtist(ctx, r, ids)
	if !src.any() {
		return allMissing(models.EntityArtist, r.job.EntityID, errs)
	}

	merged := mergeArtist(e.prec, stored, src)
	if learned := learnedIDs(ids, merged, src); learned != (artistIDs{}) {
		more, _ := e.fetchArtist(ctx, r, learned)
		src.fill(more)
		merged = mergeArtist(e.prec, stored, src)
	}
	e.crossLink(ctx, r, merged, &src)
	merged = mergeArtist(e.prec, stored, src)

	ts := e.now()
	merged.LastSyncedAt = &ts

	saved, created, err := e.upsertArtist(ctx, merged)
	if err != nil {
		return err
	}
	r.outcome.InternalID = saved.ID
	r.outcome.Created = created

	e.cascadeArtist(ctx, r, saved)
	return nil
}

// artistFetchIDs picks provider IDs from the stored row, then reference data, then the bare entity ID.
func artistFetchIDs(job *models.SyncJob, stored *models.Artist) artistIDs {
	var ids artistIDs
	if stored != nil {
		ids = artistIDs{events: stored.TicketmasterID, music: stored.SpotifyID, setlist: stored.MBID}
	}
	ids.events = firstNonEmpty(ids.events, job.Ref(models.RefTicketmasterID))
	ids.music = firstNonEmpty(ids.music, job.Ref(models.RefSpotifyID))
	ids.setlist = firstNonEmpty(ids.setlist, job.Ref(models.RefMBID))

	if stored == nil && ids == (artistIDs{}) {
		switch identity.ArtistSource(job.EntityID) {
		case identity.SourceEvents:
			ids.events = job.EntityID
		case identity.SourceMusic:
			ids.music = job.EntityID
		case identity.SourceSetlist:
			ids.setlist = job.EntityID
		}
	}
	return ids
}

// learnedIDs returns provider IDs that the first fetch round revealed but did not query.
func learnedIDs(asked artistIDs, merged *models.Artist, src artistSources) artistIDs {
	var ids artistIDs
	if src.events == nil && asked.events == "" {
		ids.events = merged.TicketmasterID
	}
	if src.music == nil && asked.music == "" {
		ids.music = merged.SpotifyID
	}
	if src.setlist == nil && asked.setlist == "" {
		ids.setlist = merged.MBID
	}
	return ids
}

// fetchArtist queries each provider with a known ID concurrently.
// Provider errors are recorded as warnings and returned for the not-found decision.
func (e *Engine) fetchArtist(ctx context.Context, r *run, ids artistIDs) (artistSources, []error) {
	var (
		src  artistSources
		errs []error
		mu   sync.Mutex
		g    errgroup.Group
	)
	record := func(provider string, err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		r.warn(e.logger, provider, err)
	}

	if ids.events != "" && e.providers.Events != nil {
		g.Go(func() error {
			a, err := e.providers.Events.GetAttraction(ctx, ids.events)
			if err != nil {
				record(services.ProviderTicketmaster, err)
				return nil
			}
			src.events = a
			return nil
		})
	}
	if ids.music != "" && e.providers.Music != nil {
		g.Go(func() error {
			a, err := e.providers.Music.GetArtist(ctx, ids.music)
			if err != nil {
				record(services.ProviderSpotify, err)
				return nil
			}
			src.music = a
			return nil
		})
	}
	if ids.setlist != "" && e.providers.Setlists != nil {
		g.Go(func() error {
			a, err := e.providers.Setlists.GetArtist(ctx, ids.setlist)
			if err != nil {
				record(services.ProviderSetlistFM, err)
				return nil
			}
			src.setlist = a
			return nil
		})
	}
	g.Wait()
	return src, errs
}

// crossLink searches providers the artist is not yet linked to by exact (case-insensitive) name.
func (e *Engine) crossLink(ctx context.Context, r *run, merged *models.Artist, src *artistSources) {
	name := merged.Name
	if name == "" {
		return
	}

	var g errgroup.Group
	if merged.SpotifyID == "" && src.music == nil && e.providers.Music != nil {
		g.Go(func() error {
			found, err := e.providers.Music.SearchArtists(ctx, name)
			if err != nil {
				r.warn(e.logger, services.ProviderSpotify, err)
				return nil
			}
			if a := exactName(found, name); a != nil {
				src.music = a
			}
			return nil
		})
	}
	if merged.MBID == "" && src.setlist == nil && e.providers.Setlists != nil {
		g.Go(func() error {
			found, err := e.providers.Setlists.SearchArtists(ctx, name)
			if err != nil {
				r.warn(e.logger, services.ProviderSetlistFM, err)
				return nil
			}
			if a := exactName(found, name); a != nil {
				src.setlist = a
			}
			return nil
		})
	}
	if merged.TicketmasterID == "" && src.events == nil && e.providers.Events != nil {
		g.Go(func() error {
			found, err := e.providers.Events.SearchAttractions(ctx, name)
			if err != nil {
				r.warn(e.logger, services.ProviderTicketmaster, err)
				return nil
			}
			if a := exactName(found, name); a != nil {
				src.events = a
			}
			return nil
		})
	}
	g.Wait()
}

func exactName(candidates []services.ExternalArtist, name string) *services.ExternalArtist {
	for i := range candidates {
		if strings.EqualFold(strings.TrimSpace(candidates[i].Name), strings.TrimSpace(name)) {
			return &candidates[i]
		}
	}
	return nil
}

// upsertArtist updates an existing row or inserts a new one. An insert that loses a race on an
// external-ID unique constraint re-resolves by those IDs and updates the winner instead.
func (e *Engine) upsertArtist(ctx context.Context, a *models.Artist) (*models.Artist, bool, error) {
	repo := e.stores.Artists
	if a.ID != "" {
		if err := repo.Update(ctx, a); err != nil {
			return nil, false, persist("update artist", err)
		}
		return a, false, nil
	}

	err := repo.Create(ctx, a)
	if err == nil {
		return a, true, nil
	}
	if !repositories.IsConflict(err) {
		return nil, false, persist("insert artist", err)
	}

	res, rerr := identity.Resolve(ctx, identity.ArtistStrategies(repo, identity.Keys{
		Events: a.TicketmasterID, Music: a.SpotifyID, Setlist: a.MBID,
	}))
	if rerr != nil || !res.Found() {
		return nil, false, persist("insert artist", errors.Join(err, rerr))
	}
	winner, gerr := repo.Get(ctx, res.InternalID)
	if gerr != nil {
		return nil, false, persist("load artist", gerr)
	}
	a.ID = winner.ID
	a.CatalogSyncedAt = winner.CatalogSyncedAt
	a.TicketmasterID = firstNonEmpty(winner.TicketmasterID, a.TicketmasterID)
	a.SpotifyID = firstNonEmpty(winner.SpotifyID, a.SpotifyID)
	a.MBID = firstNonEmpty(winner.MBID, a.MBID)
	if err := repo.Update(ctx, a); err != nil {
		return nil, false, persist("update artist", err)
	}
	return a, false, nil
}

// cascadeArtist enqueues the song catalog, upcoming shows and historical setlists of a.
func (e *Engine) cascadeArtist(ctx context.Context, r *run, a *models.Artist) {
	if a.SpotifyID != "" && (r.mode.Force || r.mode.Expand || !e.fresh(r, a.CatalogSyncedAt, e.cfg.SongFreshness)) {
		e.cascade(ctx, r, models.EntitySong, a.SpotifyID, map[string]any{
			models.RefMode:     models.ModeCatalog,
			models.RefArtistID: a.ID,
		})
	}

	if !e.canDiscover(r) {
		return
	}

	var g errgroup.Group
	if a.TicketmasterID != "" && e.providers.Events != nil {
		g.Go(func() error {
			events, err := e.providers.Events.ListAttractionEvents(ctx, a.TicketmasterID, e.cfg.MaxDiscoveredShows)
			if err != nil {
				r.warn(e.logger, services.ProviderTicketmaster, err)
				return nil
			}
			for _, ev := range events {
				e.cascade(ctx, r, models.EntityShow, ev.ID, map[string]any{
					models.RefTicketmasterID: ev.ID,
					models.RefArtistID:       a.ID,
				})
			}
			return nil
		})
	}
	if a.MBID != "" && e.providers.Setlists != nil {
		g.Go(func() error {
			setlists, err := e.providers.Setlists.ListArtistSetlists(ctx, a.MBID, 1)
			if err != nil {
				r.warn(e.logger, services.ProviderSetlistFM, err)
				return nil
			}
			for i, sl := range setlists {
				if i >= e.cfg.MaxDiscoveredSetlists {
					break
				}
				if len(sl.Songs) == 0 {
					continue
				}
				e.cascade(ctx, r, models.EntitySetlist, sl.ID, map[string]any{
					models.RefSetlistFMID: sl.ID,
					models.RefArtistID:    a.ID,
				})
			}
			return nil
		})
	}
	g.Wait()
}
