package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/identity"
	"github.com/desertthunder/setlistsync/internal/matching"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
)

func (e *Engine) syncSetlist(ctx context.Context, r *run) error {
	repo := e.stores.Setlists
	keys := identity.KeysFromJob(r.job)

	res, err := identity.Resolve(ctx, identity.SetlistStrategies(repo, keys))
	if err != nil {
		return persist("resolve setlist", err)
	}
	r.outcome.MatchedBy = string(res.MatchedBy)

	var stored *models.Setlist
	if res.Found() {
		if stored, err = repo.Get(ctx, res.InternalID); err != nil {
			return persist("load setlist", err)
		}
		r.outcome.InternalID = stored.ID

		if stored.Kind == models.SetlistPredicted {
			r.outcome.Skipped = true
			return e.populatePredicted(ctx, stored, stored.ArtistID)
		}
		if e.fresh(r, stored.LastSyncedAt, e.cfg.SetlistFreshness) {
			r.outcome.Skipped = true
			return nil
		}
	}

	fmID := r.job.Ref(models.RefSetlistFMID)
	if stored != nil {
		fmID = firstNonEmpty(stored.SetlistFMID, fmID)
	}
	fmID = firstNonEmpty(fmID, r.job.EntityID)

	if e.providers.Setlists == nil {
		return allMissing(models.EntitySetlist, r.job.EntityID, nil)
	}
	sl, err := e.providers.Setlists.GetSetlist(ctx, fmID)
	if err != nil {
		r.warn(e.logger, services.ProviderSetlistFM, err)
		return allMissing(models.EntitySetlist, r.job.EntityID, []error{err})
	}

	artist, err := e.setlistArtist(ctx, r, sl)
	if err != nil {
		return err
	}
	venueID, err := e.setlistVenue(ctx, r, sl)
	if err != nil {
		return err
	}

	var showID string
	if sl.EventDate != "" {
		if showID, err = e.setlistShow(ctx, artist, venueID, sl); err != nil {
			return err
		}
	}

	setlist := &models.Setlist{}
	if stored != nil {
		cp := *stored
		setlist = &cp
	}
	setlist.Kind = models.SetlistPlayed
	setlist.ArtistID = artist.ID
	setlist.ShowID = firstNonEmpty(showID, setlist.ShowID)
	setlist.SetlistFMID = firstNonEmpty(setlist.SetlistFMID, sl.ID)
	setlist.EventDate = firstNonEmpty(sl.EventDate, setlist.EventDate)
	setlist.TourName = firstNonEmpty(sl.TourName, setlist.TourName)
	setlist.Name = setlistName(artist.Name, sl)
	ts := e.now()
	setlist.LastSyncedAt = &ts

	if err := e.upsertSetlist(ctx, r, setlist); err != nil {
		return err
	}

	catalog, err := e.matcher.Catalog(ctx, artist.ID)
	if err != nil {
		return persist("load song catalog", err)
	}
	links := matchEntries(catalog, sl.Songs)
	if err := repo.ReplaceSongs(ctx, setlist.ID, links); err != nil {
		return persist("replace setlist songs", err)
	}
	return nil
}

// setlistArtist loads the performing artist. An unknown artist is enqueued and the job is retried later.
func (e *Engine) setlistArtist(ctx context.Context, r *run, sl *services.ExternalSetlist) (*models.Artist, error) {
	artists := e.stores.Artists
	if id := r.job.Ref(models.RefArtistID); id != "" {
		a, err := artists.Get(ctx, id)
		if err == nil {
			return a, nil
		}
		if !repositories.IsNotFound(err) {
			return nil, persist("load artist", err)
		}
	}

	a, err := artists.GetByMBID(ctx, sl.Artist.MBID)
	if err == nil {
		return a, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, persist("resolve artist", err)
	}

	if sl.Artist.MBID == "" {
		return nil, &shared.ValidationError{Field: "artist", Message: fmt.Sprintf("setlist %s has no artist mbid", sl.ID)}
	}
	e.cascade(ctx, r, models.EntityArtist, sl.Artist.MBID, map[string]any{models.RefMBID: sl.Artist.MBID})
	return nil, &shared.DependencyError{
		EntityType: string(models.EntitySetlist),
		EntityID:   r.job.EntityID,
		Needs:      "artist " + sl.Artist.MBID,
	}
}

// setlistVenue returns the internal venue ID, or "" after enqueueing a venue job for an unknown one.
func (e *Engine) setlistVenue(ctx context.Context, r *run, sl *services.ExternalSetlist) (string, error) {
	fmID := sl.Venue.SetlistFMID
	if fmID == "" {
		return "", nil
	}
	v, err := e.stores.Venues.GetBySetlistFMID(ctx, fmID)
	if err == nil {
		return v.ID, nil
	}
	if !repositories.IsNotFound(err) {
		return "", persist("resolve venue", err)
	}
	e.cascade(ctx, r, models.EntityVenue, fmID, map[string]any{models.RefSetlistFMID: fmID})
	return "", nil
}

// setlistShow finds the artist's show on the setlist's date whose venue best matches, creating one when none does.
func (e *Engine) setlistShow(ctx context.Context, artist *models.Artist, venueID string, sl *services.ExternalSetlist) (string, error) {
	shows := e.stores.Shows
	candidates, err := shows.ListByArtistAndDate(ctx, artist.ID, sl.EventDate)
	if err != nil {
		return "", persist("list shows", err)
	}

	if match := pickShow(candidates, venueID, sl.Venue.Name); match != nil {
		if match.VenueID == "" && venueID != "" {
			match.VenueID = venueID
			if err := shows.Update(ctx, match); err != nil {
				return "", persist("link show venue", err)
			}
		}
		return match.ID, nil
	}

	show := &models.Show{
		Name:     artist.Name + " at " + firstNonEmpty(sl.Venue.Name, "unknown venue"),
		Date:     sl.EventDate,
		Status:   "played",
		ArtistID: artist.ID,
		VenueID:  venueID,
	}
	if err := shows.Create(ctx, show); err != nil {
		return "", persist("create show", err)
	}
	return show.ID, nil
}

// pickShow prefers a same-venue link, then a fuzzy venue-name match, then a lone candidate with no venue yet.
func pickShow(candidates []repositories.ShowWithVenue, venueID, venueName string) *models.Show {
	if len(candidates) == 0 {
		return nil
	}
	if venueID != "" {
		for _, c := range candidates {
			if c.Show.VenueID == venueID {
				return c.Show
			}
		}
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.VenueName
	}
	if i := matching.BestVenue(venueName, names); i >= 0 {
		return candidates[i].Show
	}
	if len(candidates) == 1 && candidates[0].Show.VenueID == "" {
		return candidates[0].Show
	}
	return nil
}

func (e *Engine) upsertSetlist(ctx context.Context, r *run, s *models.Setlist) error {
	repo := e.stores.Setlists
	if s.ID != "" {
		if err := repo.Update(ctx, s); err != nil {
			return persist("update setlist", err)
		}
		r.outcome.InternalID = s.ID
		return nil
	}

	err := repo.Create(ctx, s)
	if repositories.IsConflict(err) {
		winner, gerr := repo.GetBySetlistFMID(ctx, s.SetlistFMID)
		if gerr != nil {
			return persist("insert setlist", err)
		}
		s.ID = winner.ID
		err = repo.Update(ctx, s)
	} else if err == nil {
		r.outcome.Created = true
	}
	if err != nil {
		return persist("save setlist", err)
	}
	r.outcome.InternalID = s.ID
	return nil
}

// matchEntries links each performed song to the catalog. Unmatched entries keep their name with no song.
func matchEntries(catalog *matching.Catalog, entries []services.SetlistEntry) []models.SetlistSong {
	links := make([]models.SetlistSong, 0, len(entries))
	for _, entry := range entries {
		link := models.SetlistSong{SongName: entry.Name, IsEncore: entry.Encore}
		if m, ok := catalog.Match(entry.Name); ok {
			link.SongID = m.SongID
		}
		links = append(links, link)
	}
	return links
}

func setlistName(artist string, sl *services.ExternalSetlist) string {
	switch {
	case sl.Venue.Name != "" && sl.EventDate != "":
		return fmt.Sprintf("%s at %s, %s", artist, sl.Venue.Name, sl.EventDate)
	case sl.EventDate != "":
		return fmt.Sprintf("%s, %s", artist, sl.EventDate)
	default:
		return artist
	}
}
