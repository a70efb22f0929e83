package tasks

import (
	"context"

	"github.com/desertthunder/setlistsync/internal/identity"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
)

func (e *Engine) syncShow(ctx context.Context, r *run) error {
	repo := e.stores.Shows
	keys := identity.KeysFromJob(r.job)

	res, err := identity.Resolve(ctx, identity.ShowStrategies(repo, keys))
	if err != nil {
		return persist("resolve show", err)
	}
	r.outcome.MatchedBy = string(res.MatchedBy)

	var stored *models.Show
	if res.Found() {
		if stored, err = repo.Get(ctx, res.InternalID); err != nil {
			return persist("load show", err)
		}
		r.outcome.InternalID = stored.ID

		if stored.Linked() && e.fresh(r, stored.LastSyncedAt, e.cfg.ShowFreshness) {
			r.outcome.Skipped = true
			if r.mode.Expand {
				return e.ensurePredicted(ctx, stored)
			}
			return nil
		}
	}

	eventID := r.job.Ref(models.RefTicketmasterID)
	if stored != nil {
		eventID = firstNonEmpty(stored.TicketmasterID, eventID)
	}
	eventID = firstNonEmpty(eventID, r.job.EntityID)

	if e.providers.Events == nil {
		return allMissing(models.EntityShow, r.job.EntityID, nil)
	}
	ev, err := e.providers.Events.GetEvent(ctx, eventID)
	if err != nil {
		r.warn(e.logger, services.ProviderTicketmaster, err)
		return allMissing(models.EntityShow, r.job.EntityID, []error{err})
	}

	show := &models.Show{}
	if stored != nil {
		cp := *stored
		show = &cp
	}
	show.Name = firstNonEmpty(ev.Name, show.Name)
	show.Date = firstNonEmpty(ev.Date, show.Date)
	show.StartTime = firstNonEmpty(ev.StartTime, show.StartTime)
	show.Status = firstNonEmpty(ev.Status, show.Status)
	show.TicketURL = firstNonEmpty(ev.URL, show.TicketURL)
	show.TicketmasterID = firstNonEmpty(show.TicketmasterID, ev.ID)

	if show.ArtistID == "" {
		if show.ArtistID, err = e.showArtist(ctx, r, ev); err != nil {
			return err
		}
	}
	show.NoVenue = ev.Venue == nil || ev.Venue.TicketmasterID == ""
	if show.VenueID == "" {
		if show.VenueID, err = e.showVenue(ctx, r, ev); err != nil {
			return err
		}
	}

	ts := e.now()
	show.LastSyncedAt = &ts

	if err := e.upsertShow(ctx, r, show); err != nil {
		return err
	}
	return e.ensurePredicted(ctx, show)
}

// showArtist returns the internal ID of the event's headliner, enqueueing an artist job when it is unknown.
func (e *Engine) showArtist(ctx context.Context, r *run, ev *services.ExternalEvent) (string, error) {
	if id := r.job.Ref(models.RefArtistID); id != "" {
		if a, err := e.stores.Artists.Get(ctx, id); err == nil {
			return a.ID, nil
		} else if !repositories.IsNotFound(err) {
			return "", persist("load artist", err)
		}
	}

	for _, a := range ev.Artists {
		res, err := identity.Resolve(ctx, identity.ArtistStrategies(e.stores.Artists, identity.Keys{
			Events: a.TicketmasterID, Music: a.SpotifyID, Setlist: a.MBID,
		}))
		if err != nil {
			return "", persist("resolve artist", err)
		}
		if res.Found() {
			return res.InternalID, nil
		}
	}

	if len(ev.Artists) > 0 {
		a := ev.Artists[0]
		e.cascade(ctx, r, models.EntityArtist, firstNonEmpty(a.TicketmasterID, a.SpotifyID, a.MBID), map[string]any{
			models.RefTicketmasterID: a.TicketmasterID,
			models.RefSpotifyID:      a.SpotifyID,
			models.RefMBID:           a.MBID,
		})
	}
	return "", nil
}

// showVenue returns the internal ID of the event's venue, enqueueing a venue job when it is unknown.
func (e *Engine) showVenue(ctx context.Context, r *run, ev *services.ExternalEvent) (string, error) {
	if ev.Venue == nil || ev.Venue.TicketmasterID == "" {
		return "", nil
	}
	v, err := e.stores.Venues.GetByTicketmasterID(ctx, ev.Venue.TicketmasterID)
	if err == nil {
		return v.ID, nil
	}
	if !repositories.IsNotFound(err) {
		return "", persist("resolve venue", err)
	}
	e.cascade(ctx, r, models.EntityVenue, ev.Venue.TicketmasterID, map[string]any{
		models.RefTicketmasterID: ev.Venue.TicketmasterID,
	})
	return "", nil
}

func (e *Engine) upsertShow(ctx context.Context, r *run, show *models.Show) error {
	repo := e.stores.Shows
	if show.ID != "" {
		if err := repo.Update(ctx, show); err != nil {
			return persist("update show", err)
		}
		r.outcome.InternalID = show.ID
		return nil
	}

	err := repo.Create(ctx, show)
	if err == nil {
		r.outcome.InternalID = show.ID
		r.outcome.Created = true
		return nil
	}
	if !repositories.IsConflict(err) {
		return persist("insert show", err)
	}

	winner, gerr := repo.GetByTicketmasterID(ctx, show.TicketmasterID)
	if gerr != nil {
		return persist("insert show", err)
	}
	show.ID = winner.ID
	show.ArtistID = firstNonEmpty(winner.ArtistID, show.ArtistID)
	show.VenueID = firstNonEmpty(winner.VenueID, show.VenueID)
	if err := repo.Update(ctx, show); err != nil {
		return persist("update show", err)
	}
	r.outcome.InternalID = show.ID
	return nil
}

// ensurePredicted gives show its votable setlist, seeded from the artist's most popular songs.
func (e *Engine) ensurePredicted(ctx context.Context, show *models.Show) error {
	setlists := e.stores.Setlists
	predicted, err := setlists.GetPredictedForShow(ctx, show.ID)
	switch {
	case repositories.IsNotFound(err):
		predicted = &models.Setlist{
			ShowID:    show.ID,
			ArtistID:  show.ArtistID,
			Kind:      models.SetlistPredicted,
			Name:      show.Name,
			EventDate: show.Date,
		}
		if err := setlists.Create(ctx, predicted); err != nil && !repositories.IsConflict(err) {
			return persist("create predicted setlist", err)
		}
		if predicted, err = setlists.GetPredictedForShow(ctx, show.ID); err != nil {
			return persist("load predicted setlist", err)
		}
	case err != nil:
		return persist("load predicted setlist", err)
	}

	if predicted.ArtistID == "" && show.ArtistID != "" {
		predicted.ArtistID = show.ArtistID
		if err := setlists.Update(ctx, predicted); err != nil {
			return persist("update predicted setlist", err)
		}
	}
	return e.populatePredicted(ctx, predicted, show.ArtistID)
}

// populatePredicted fills an empty predicted setlist with the artist's top songs.
// It does nothing when the setlist already has songs or the catalog is empty.
func (e *Engine) populatePredicted(ctx context.Context, predicted *models.Setlist, artistID string) error {
	if artistID == "" {
		return nil
	}
	existing, err := e.stores.Setlists.ListSongs(ctx, predicted.ID)
	if err != nil {
		return persist("list predicted songs", err)
	}
	if len(existing) > 0 {
		return nil
	}

	top, err := e.stores.Songs.TopByArtist(ctx, artistID, e.cfg.TopSongs)
	if err != nil {
		return persist("list top songs", err)
	}
	if len(top) == 0 {
		return nil
	}

	links := make([]models.SetlistSong, 0, len(top))
	for _, s := range top {
		links = append(links, models.SetlistSong{SongID: s.ID, SongName: s.Name})
	}
	if err := e.stores.Setlists.ReplaceSongs(ctx, predicted.ID, links); err != nil {
		return persist("seed predicted setlist", err)
	}
	return nil
}
