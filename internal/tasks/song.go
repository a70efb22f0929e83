package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/identity"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
	"golang.org/x/sync/errgroup"
)

func (e *Engine) syncSong(ctx context.Context, r *run) error {
	if r.job.Ref(models.RefMode) == models.ModeCatalog {
		return e.syncCatalog(ctx, r)
	}
	return e.syncTrack(ctx, r)
}

// syncCatalog imports an artist's Spotify catalog. The job's entity ID is the artist's Spotify ID.
func (e *Engine) syncCatalog(ctx context.Context, r *run) error {
	artist, err := e.catalogArtist(ctx, r)
	if err != nil {
		return err
	}
	r.outcome.InternalID = artist.ID
	r.outcome.MatchedBy = string(identity.SourceMusic)

	if e.fresh(r, artist.CatalogSyncedAt, e.cfg.SongFreshness) {
		r.outcome.Skipped = true
		if r.mode.Expand {
			return e.populateArtistPredictions(ctx, artist.ID)
		}
		return nil
	}
	if e.providers.Music == nil {
		return allMissing(models.EntitySong, r.job.EntityID, nil)
	}

	var (
		top, all     []services.ExternalTrack
		topErr, lErr error
		g            errgroup.Group
	)
	g.Go(func() error {
		if top, topErr = e.providers.Music.GetTopTracks(ctx, artist.SpotifyID); topErr != nil {
			r.warn(e.logger, services.ProviderSpotify, topErr)
		}
		return nil
	})
	g.Go(func() error {
		if all, lErr = e.providers.Music.ListArtistTracks(ctx, artist.SpotifyID); lErr != nil {
			r.warn(e.logger, services.ProviderSpotify, lErr)
		}
		return nil
	})
	g.Wait()

	if topErr != nil && lErr != nil {
		return allMissing(models.EntitySong, r.job.EntityID, []error{topErr, lErr})
	}

	seen := map[string]bool{}
	for _, t := range append(top, all...) {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		created, err := e.upsertTrack(ctx, artist.ID, t)
		if err != nil {
			return err
		}
		if created {
			r.outcome.Created = true
		}
	}

	if err := e.stores.Artists.MarkCatalogSynced(ctx, artist.ID, e.now()); err != nil {
		return persist("mark catalog synced", err)
	}
	return e.populateArtistPredictions(ctx, artist.ID)
}

func (e *Engine) catalogArtist(ctx context.Context, r *run) (*models.Artist, error) {
	artists := e.stores.Artists
	if id := r.job.Ref(models.RefArtistID); id != "" {
		a, err := artists.Get(ctx, id)
		if err == nil && a.SpotifyID != "" {
			return a, nil
		}
		if err != nil && !repositories.IsNotFound(err) {
			return nil, persist("load artist", err)
		}
	}

	spotifyID := firstNonEmpty(r.job.Ref(models.RefSpotifyID), r.job.EntityID)
	a, err := artists.GetBySpotifyID(ctx, spotifyID)
	if err == nil {
		return a, nil
	}
	if !repositories.IsNotFound(err) {
		return nil, persist("resolve artist", err)
	}
	e.cascade(ctx, r, models.EntityArtist, spotifyID, map[string]any{models.RefSpotifyID: spotifyID})
	return nil, &shared.DependencyError{
		EntityType: string(models.EntitySong),
		EntityID:   r.job.EntityID,
		Needs:      "artist " + spotifyID,
	}
}

// populateArtistPredictions seeds every empty predicted setlist of the artist's shows.
func (e *Engine) populateArtistPredictions(ctx context.Context, artistID string) error {
	empty, err := e.stores.Setlists.ListEmptyPredictedByArtist(ctx, artistID)
	if err != nil {
		return persist("list empty predicted setlists", err)
	}
	for _, s := range empty {
		if err := e.populatePredicted(ctx, s, artistID); err != nil {
			return err
		}
	}
	return nil
}

// syncTrack refreshes one song from its Spotify track.
func (e *Engine) syncTrack(ctx context.Context, r *run) error {
	repo := e.stores.Songs
	res, err := identity.Resolve(ctx, identity.SongStrategies(repo, identity.KeysFromJob(r.job)))
	if err != nil {
		return persist("resolve song", err)
	}
	r.outcome.MatchedBy = string(res.MatchedBy)

	var stored *models.Song
	if res.Found() {
		if stored, err = repo.Get(ctx, res.InternalID); err != nil {
			return persist("load song", err)
		}
		r.outcome.InternalID = stored.ID
		if e.fresh(r, stored.LastSyncedAt, e.cfg.SongFreshness) {
			r.outcome.Skipped = true
			return nil
		}
	}

	trackID := r.job.Ref(models.RefSpotifyID)
	if stored != nil {
		trackID = firstNonEmpty(stored.SpotifyID, trackID)
	}
	trackID = firstNonEmpty(trackID, r.job.EntityID)

	if e.providers.Music == nil {
		return allMissing(models.EntitySong, r.job.EntityID, nil)
	}
	track, err := e.providers.Music.GetTrack(ctx, trackID)
	if err != nil {
		r.warn(e.logger, services.ProviderSpotify, err)
		return allMissing(models.EntitySong, r.job.EntityID, []error{err})
	}

	artistID := r.job.Ref(models.RefArtistID)
	if stored != nil {
		artistID = firstNonEmpty(stored.ArtistID, artistID)
	}
	if artistID == "" {
		if artistID, err = e.trackArtist(ctx, r, track); err != nil {
			return err
		}
	}

	created, err := e.upsertTrack(ctx, artistID, *track)
	if err != nil {
		return err
	}
	r.outcome.Created = created
	if r.outcome.InternalID == "" {
		if s, err := repo.GetBySpotifyID(ctx, track.ID); err == nil {
			r.outcome.InternalID = s.ID
		}
	}
	return nil
}

func (e *Engine) trackArtist(ctx context.Context, r *run, track *services.ExternalTrack) (string, error) {
	for _, id := range track.ArtistIDs {
		a, err := e.stores.Artists.GetBySpotifyID(ctx, id)
		if err == nil {
			return a.ID, nil
		}
		if !repositories.IsNotFound(err) {
			return "", persist("resolve artist", err)
		}
	}
	if len(track.ArtistIDs) == 0 {
		return "", &shared.ValidationError{Field: "artist", Message: fmt.Sprintf("track %s has no artist", track.ID)}
	}
	first := track.ArtistIDs[0]
	e.cascade(ctx, r, models.EntityArtist, first, map[string]any{models.RefSpotifyID: first})
	return "", &shared.DependencyError{
		EntityType: string(models.EntitySong),
		EntityID:   r.job.EntityID,
		Needs:      "artist " + first,
	}
}

// upsertTrack writes t as a song of artistID keyed by its Spotify ID. Vote counts are preserved.
func (e *Engine) upsertTrack(ctx context.Context, artistID string, t services.ExternalTrack) (bool, error) {
	repo := e.stores.Songs
	ts := e.now()

	song, err := repo.GetBySpotifyID(ctx, t.ID)
	created := false
	switch {
	case repositories.IsNotFound(err):
		song = &models.Song{SpotifyID: t.ID}
		created = true
	case err != nil:
		return false, persist("load song", err)
	}

	song.ArtistID = firstNonEmpty(song.ArtistID, artistID)
	song.Name = firstNonEmpty(t.Name, song.Name)
	song.Album = firstNonEmpty(t.Album, song.Album)
	song.PreviewURL = firstNonEmpty(t.PreviewURL, song.PreviewURL)
	song.ISRC = firstNonEmpty(t.ISRC, song.ISRC)
	if t.DurationMS > 0 {
		song.DurationMS = t.DurationMS
	}
	if t.Popularity > 0 {
		song.Popularity = t.Popularity
	}
	song.LastSyncedAt = &ts

	if !created {
		if err := repo.Update(ctx, song); err != nil {
			return false, persist("update song", err)
		}
		return false, nil
	}

	err = repo.Create(ctx, song)
	if repositories.IsConflict(err) {
		winner, gerr := repo.GetBySpotifyID(ctx, t.ID)
		if gerr != nil {
			return false, persist("insert song", err)
		}
		song.ID, song.VoteCount = winner.ID, winner.VoteCount
		return false, persist("update song", repo.Update(ctx, song))
	}
	if err != nil {
		return false, persist("insert song", err)
	}
	return true, nil
}
