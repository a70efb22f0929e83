package tasks

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
	th "github.com/desertthunder/setlistsync/internal/testing"
)

const (
	killersTM      = "K8vZ9171ob7"
	killersSpotify = "0C0XlULifJtAgn6ZNCW2eu"
	killersMBID    = "95e1ead9-4d31-4808-a7ac-32c3614c116b"
)

type harness struct {
	db       *sql.DB
	stores   Stores
	jobs     *repositories.JobRepository
	events   *th.FakeEvents
	music    *th.FakeMusic
	setlists *th.FakeSetlists
	engine   *Engine
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := th.NewTestDB(t)

	h := &harness{
		db: db,
		stores: Stores{
			Artists:  repositories.NewArtistRepository(db),
			Venues:   repositories.NewVenueRepository(db),
			Shows:    repositories.NewShowRepository(db),
			Songs:    repositories.NewSongRepository(db),
			Setlists: repositories.NewSetlistRepository(db),
		},
		jobs:     repositories.NewJobRepository(db, repositories.DefaultJobDefaults()),
		events:   th.NewFakeEvents(),
		music:    th.NewFakeMusic(),
		setlists: th.NewFakeSetlists(),
		now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	providers := Providers{Events: h.events, Music: h.music, Setlists: h.setlists}
	h.engine = NewEngine(h.stores, providers, h.jobs, shared.SyncConfig{}, log.New(io.Discard)).
		WithClock(func() time.Time { return h.now })
	return h
}

func (h *harness) providerCalls() int {
	return h.events.Calls("") + h.music.Calls("") + h.setlists.Calls("")
}

func (h *harness) resetCalls() {
	h.events.Reset()
	h.music.Reset()
	h.setlists.Reset()
}

func (h *harness) pending(t *testing.T, entityType models.EntityType) []*models.SyncJob {
	t.Helper()
	jobs, err := h.jobs.List(context.Background(), models.JobFilter{Status: models.JobPending, EntityType: entityType})
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	return jobs
}

func (h *harness) seedKillers() {
	h.events.Attractions[killersTM] = &services.ExternalArtist{
		Source:         services.ProviderTicketmaster,
		Name:           "The Killers",
		TicketmasterID: killersTM,
		SpotifyID:      killersSpotify,
		Genres:         []string{"rock"},
		Images:         []models.Image{{URL: "https://tm.example/small.jpg", Width: 100, Height: 100}},
	}
	h.music.Artists[killersSpotify] = &services.ExternalArtist{
		Source:     services.ProviderSpotify,
		Name:       "The Killers",
		SpotifyID:  killersSpotify,
		Genres:     []string{"alternative rock", "modern rock"},
		Images:     []models.Image{{URL: "https://sp.example/large.jpg", Width: 640, Height: 640}},
		Popularity: 80,
		Followers:  9000000,
	}
	h.setlists.Artists[killersMBID] = &services.ExternalArtist{
		Source: services.ProviderSetlistFM,
		Name:   "The Killers",
		MBID:   killersMBID,
	}
}

func artistJob(id string, ref map[string]any) *models.SyncJob {
	return &models.SyncJob{EntityType: models.EntityArtist, EntityID: id, ReferenceData: ref, Priority: 3}
}

func TestEngineArtist(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip merges providers and skips fresh rows", func(t *testing.T) {
		h := newHarness(t)
		h.seedKillers()

		job := artistJob(killersTM, map[string]any{models.RefTicketmasterID: killersTM})
		out, err := h.engine.Handle(ctx, job)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !out.Created || out.InternalID == "" {
			t.Fatalf("expected a created artist, got %+v", out)
		}

		a, err := h.stores.Artists.Get(ctx, out.InternalID)
		if err != nil {
			t.Fatalf("failed to load artist: %v", err)
		}
		if a.TicketmasterID != killersTM || a.SpotifyID != killersSpotify || a.MBID != killersMBID {
			t.Errorf("expected all provider IDs linked, got tm=%q spotify=%q mbid=%q", a.TicketmasterID, a.SpotifyID, a.MBID)
		}
		if len(a.Genres) != 2 || a.Genres[0] != "alternative rock" {
			t.Errorf("expected music genres wholesale, got %v", a.Genres)
		}
		if a.ImageURL != "https://sp.example/large.jpg" {
			t.Errorf("expected largest image, got %q", a.ImageURL)
		}
		if a.Popularity != 80 {
			t.Errorf("expected popularity 80, got %d", a.Popularity)
		}
		if h.setlists.Calls("SearchArtists") != 1 {
			t.Errorf("expected one setlist.fm search to link the mbid, got %d", h.setlists.Calls("SearchArtists"))
		}

		songs := h.pending(t, models.EntitySong)
		if len(songs) != 1 || songs[0].EntityID != killersSpotify || songs[0].Ref(models.RefMode) != models.ModeCatalog {
			t.Fatalf("expected one catalog job, got %+v", songs)
		}
		if songs[0].Priority != 4 {
			t.Errorf("expected cascaded priority 4, got %d", songs[0].Priority)
		}

		h.resetCalls()
		again, err := h.engine.Handle(ctx, job)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Skipped || again.InternalID != out.InternalID {
			t.Errorf("expected the fresh row to be returned unchanged, got %+v", again)
		}
		if n := h.providerCalls(); n != 0 {
			t.Errorf("expected zero provider calls on the second run, got %d", n)
		}
	})

	t.Run("force ignores freshness", func(t *testing.T) {
		h := newHarness(t)
		h.seedKillers()
		if _, err := h.engine.Handle(ctx, artistJob(killersSpotify, nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		h.resetCalls()
		out, err := h.engine.Handle(ctx, artistJob(killersSpotify, map[string]any{models.RefForce: true}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Skipped || out.Created {
			t.Errorf("expected a forced update, got %+v", out)
		}
		if h.music.Calls("GetArtist") != 1 {
			t.Errorf("expected spotify to be refetched")
		}
	})

	t.Run("stale rows are refetched", func(t *testing.T) {
		h := newHarness(t)
		h.seedKillers()
		if _, err := h.engine.Handle(ctx, artistJob(killersMBID, nil)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		h.now = h.now.Add(30 * 24 * time.Hour)
		h.resetCalls()
		out, err := h.engine.Handle(ctx, artistJob(killersMBID, nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Skipped {
			t.Error("expected a stale artist to resync")
		}
		if h.providerCalls() == 0 {
			t.Error("expected provider calls for a stale artist")
		}
	})

	t.Run("one provider outage degrades the result", func(t *testing.T) {
		h := newHarness(t)
		h.seedKillers()
		h.music.Err = th.Outage(services.ProviderSpotify)

		out, err := h.engine.Handle(ctx, artistJob(killersTM, map[string]any{models.RefTicketmasterID: killersTM}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !out.Degraded() {
			t.Error("expected warnings from the spotify outage")
		}
		a, err := h.stores.Artists.Get(ctx, out.InternalID)
		if err != nil {
			t.Fatalf("failed to load artist: %v", err)
		}
		if a.Name != "The Killers" || a.Genres[0] != "rock" {
			t.Errorf("expected ticketmaster data, got %+v", a)
		}
	})

	t.Run("every provider missing fails permanently", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.engine.Handle(ctx, artistJob("K8vZunknown", nil))

		var notFound *shared.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if !shared.IsPermanent(err) {
			t.Error("expected a permanent error")
		}
	})

	t.Run("every provider down is retryable", func(t *testing.T) {
		h := newHarness(t)
		h.seedKillers()
		h.events.Err = th.Outage(services.ProviderTicketmaster)

		_, err := h.engine.Handle(ctx, artistJob(killersTM, map[string]any{models.RefTicketmasterID: killersTM}))
		if err == nil {
			t.Fatal("expected an error")
		}
		if shared.IsPermanent(err) {
			t.Errorf("expected a retryable error, got %v", err)
		}
	})

	t.Run("discovers shows and setlists within the cascade depth", func(t *testing.T) {
		h := newHarness(t)
		h.seedKillers()
		h.events.Events["E1"] = &services.ExternalEvent{ID: "E1", Name: "The Killers", Date: "2026-06-01"}
		h.events.ByAttraction[killersTM] = []string{"E1"}
		h.setlists.Setlists["63de4613"] = &services.ExternalSetlist{
			ID: "63de4613", EventDate: "2025-08-02",
			Songs: []services.SetlistEntry{{Name: "Mr. Brightside"}},
		}
		h.setlists.Setlists["empty"] = &services.ExternalSetlist{ID: "empty", EventDate: "2025-08-03"}
		h.setlists.ByArtist[killersMBID] = []string{"63de4613", "empty"}

		if _, err := h.engine.Handle(ctx, artistJob(killersTM, map[string]any{models.RefTicketmasterID: killersTM})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if shows := h.pending(t, models.EntityShow); len(shows) != 1 || shows[0].EntityID != "E1" {
			t.Errorf("expected one show job, got %+v", shows)
		}
		if setlists := h.pending(t, models.EntitySetlist); len(setlists) != 1 || setlists[0].EntityID != "63de4613" {
			t.Errorf("expected one setlist job for the non-empty setlist, got %+v", setlists)
		}

		h2 := newHarness(t)
		h2.seedKillers()
		h2.events.Events, h2.events.ByAttraction = h.events.Events, h.events.ByAttraction
		deep := artistJob(killersTM, map[string]any{models.RefTicketmasterID: killersTM, models.RefDepth: 2})
		if _, err := h2.engine.Handle(ctx, deep); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if shows := h2.pending(t, models.EntityShow); len(shows) != 0 {
			t.Errorf("expected no discovery at max depth, got %d show jobs", len(shows))
		}
	})
}

func TestEngineShowCascade(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedKillers()
	h.events.Venues["KovZpZA7AAEA"] = &services.ExternalVenue{
		Source: services.ProviderTicketmaster, Name: "Madison Square Garden", City: "New York",
		TicketmasterID: "KovZpZA7AAEA",
	}
	h.events.Events["G5vYZ9"] = &services.ExternalEvent{
		ID: "G5vYZ9", Name: "The Killers - Rebel Diamonds Tour", Date: "2026-06-01", Status: "onsale",
		Venue:   h.events.Venues["KovZpZA7AAEA"],
		Artists: []services.ExternalArtist{*h.events.Attractions[killersTM]},
	}
	h.music.Tracks["t1"] = &services.ExternalTrack{ID: "t1", Name: "Mr. Brightside", Popularity: 90, ArtistIDs: []string{killersSpotify}}
	h.music.Tracks["t2"] = &services.ExternalTrack{ID: "t2", Name: "Somebody Told Me", Popularity: 80, ArtistIDs: []string{killersSpotify}}
	h.music.TopTracks[killersSpotify] = []string{"t1", "t2"}
	showJob := &models.SyncJob{EntityType: models.EntityShow, EntityID: "G5vYZ9", Priority: 3}

	out, err := h.engine.Handle(ctx, showJob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	show, err := h.stores.Shows.Get(ctx, out.InternalID)
	if err != nil {
		t.Fatalf("failed to load show: %v", err)
	}

	t.Run("unknown artist and venue are enqueued and left unlinked", func(t *testing.T) {
		if show.ArtistID != "" || show.VenueID != "" {
			t.Errorf("expected no links yet, got artist=%q venue=%q", show.ArtistID, show.VenueID)
		}
		if n := len(h.pending(t, models.EntityArtist)) + len(h.pending(t, models.EntityVenue)); n != 2 {
			t.Errorf("expected two pending jobs, got %d", n)
		}
		if _, err := h.stores.Setlists.GetPredictedForShow(ctx, show.ID); err != nil {
			t.Errorf("expected a predicted setlist: %v", err)
		}
	})

	t.Run("resync links both once they exist", func(t *testing.T) {
		for _, j := range append(h.pending(t, models.EntityArtist), h.pending(t, models.EntityVenue)...) {
			if _, err := h.engine.Handle(ctx, j); err != nil {
				t.Fatalf("failed to sync %s: %v", j.EntityType, err)
			}
		}

		h.resetCalls()
		again, err := h.engine.Handle(ctx, showJob)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Skipped {
			t.Fatal("an unlinked show must not be considered fresh")
		}
		linked, _ := h.stores.Shows.Get(ctx, show.ID)
		if linked.ArtistID == "" || linked.VenueID == "" {
			t.Errorf("expected both links, got artist=%q venue=%q", linked.ArtistID, linked.VenueID)
		}
	})

	t.Run("catalog sync populates the empty predicted setlist", func(t *testing.T) {
		catalog := h.pending(t, models.EntitySong)
		if len(catalog) != 1 {
			t.Fatalf("expected one catalog job, got %d", len(catalog))
		}
		if _, err := h.engine.Handle(ctx, catalog[0]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		predicted, err := h.stores.Setlists.GetPredictedForShow(ctx, show.ID)
		if err != nil {
			t.Fatalf("failed to load predicted setlist: %v", err)
		}
		songs, err := h.stores.Setlists.ListSongs(ctx, predicted.ID)
		if err != nil {
			t.Fatalf("failed to list songs: %v", err)
		}
		if len(songs) != 2 || songs[0].SongName != "Mr. Brightside" {
			t.Errorf("expected top songs by popularity, got %+v", songs)
		}
	})
}

func TestEngineShowWithoutVenue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedKillers()
	if _, err := h.engine.Handle(ctx, artistJob(killersTM, map[string]any{models.RefTicketmasterID: killersTM})); err != nil {
		t.Fatalf("failed to sync artist: %v", err)
	}
	h.events.Events["G5vTBA"] = &services.ExternalEvent{
		ID: "G5vTBA", Name: "The Killers - Secret Show", Date: "2026-07-04", Status: "onsale",
		Artists: []services.ExternalArtist{*h.events.Attractions[killersTM]},
	}
	showJob := &models.SyncJob{EntityType: models.EntityShow, EntityID: "G5vTBA", Priority: 3}

	out, err := h.engine.Handle(ctx, showJob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	show, err := h.stores.Shows.Get(ctx, out.InternalID)
	if err != nil {
		t.Fatalf("failed to load show: %v", err)
	}

	t.Run("artist linked and venue marked absent", func(t *testing.T) {
		if show.ArtistID == "" || show.VenueID != "" || !show.NoVenue {
			t.Errorf("expected artist link and no venue, got artist=%q venue=%q no_venue=%v", show.ArtistID, show.VenueID, show.NoVenue)
		}
		if n := len(h.pending(t, models.EntityVenue)); n != 0 {
			t.Errorf("expected no venue jobs, got %d", n)
		}
	})

	t.Run("second run is fresh without provider calls", func(t *testing.T) {
		h.resetCalls()
		again, err := h.engine.Handle(ctx, showJob)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !again.Skipped {
			t.Error("expected a linked venue-less show to be fresh")
		}
		if n := h.providerCalls(); n != 0 {
			t.Errorf("expected no provider calls, got %d", n)
		}
	})
}

func TestEngineSetlist(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, h *harness) *models.Artist {
		t.Helper()
		a := &models.Artist{Name: "The Killers", MBID: killersMBID, SpotifyID: killersSpotify}
		if err := h.stores.Artists.Create(ctx, a); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}
		for _, name := range []string{"Mr. Brightside", "Somebody Told Me", "When You Were Young"} {
			if err := h.stores.Songs.Create(ctx, &models.Song{ArtistID: a.ID, Name: name}); err != nil {
				t.Fatalf("failed to create song: %v", err)
			}
		}
		h.setlists.Setlists["63de4613"] = &services.ExternalSetlist{
			ID: "63de4613", EventDate: "2025-08-02", TourName: "Rebel Diamonds",
			Artist: services.ExternalArtist{Name: "The Killers", MBID: killersMBID},
			Venue:  services.ExternalVenue{Name: "Madison Square Garden", SetlistFMID: "6bd6ca6e"},
			Songs: []services.SetlistEntry{
				{Name: "Mr. Brightside"},
				{Name: "somebody told me (live)"},
			},
		}
		return a
	}
	job := func(force bool) *models.SyncJob {
		ref := map[string]any{models.RefSetlistFMID: "63de4613"}
		if force {
			ref[models.RefForce] = true
		}
		return &models.SyncJob{EntityType: models.EntitySetlist, EntityID: "63de4613", ReferenceData: ref}
	}

	t.Run("replaces links on resync", func(t *testing.T) {
		h := newHarness(t)
		artist := seed(t, h)

		out, err := h.engine.Handle(ctx, job(false))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		songs, _ := h.stores.Setlists.ListSongs(ctx, out.InternalID)
		if len(songs) != 2 || songs[0].SongID == "" || songs[1].SongID == "" {
			t.Fatalf("expected two matched songs, got %+v", songs)
		}
		if venues := h.pending(t, models.EntityVenue); len(venues) != 1 || venues[0].EntityID != "6bd6ca6e" {
			t.Errorf("expected the unknown venue to be enqueued, got %+v", venues)
		}

		h.setlists.Setlists["63de4613"].Songs = []services.SetlistEntry{
			{Name: "Mr. Brightside"},
			{Name: "When You Were Young", Encore: true},
		}
		if _, err := h.engine.Handle(ctx, job(true)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		songs, _ = h.stores.Setlists.ListSongs(ctx, out.InternalID)
		if len(songs) != 2 {
			t.Fatalf("expected two songs after replace, got %d", len(songs))
		}
		if songs[1].SongName != "When You Were Young" || !songs[1].IsEncore || songs[1].Position != 2 {
			t.Errorf("unexpected second song: %+v", songs[1])
		}

		shows, err := h.stores.Shows.ListByArtistAndDate(ctx, artist.ID, "2025-08-02")
		if err != nil {
			t.Fatalf("failed to list shows: %v", err)
		}
		if len(shows) != 1 {
			t.Errorf("expected the show to be reused, got %d shows", len(shows))
		}
	})

	t.Run("unmatched entries keep their name", func(t *testing.T) {
		h := newHarness(t)
		seed(t, h)
		h.setlists.Setlists["63de4613"].Songs = []services.SetlistEntry{{Name: "Shadowplay"}}

		out, err := h.engine.Handle(ctx, job(false))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		songs, _ := h.stores.Setlists.ListSongs(ctx, out.InternalID)
		if len(songs) != 1 || songs[0].SongID != "" || songs[0].SongName != "Shadowplay" {
			t.Errorf("expected an unmatched entry, got %+v", songs)
		}
	})

	t.Run("missing artist is a retryable dependency", func(t *testing.T) {
		h := newHarness(t)
		h.setlists.Setlists["63de4613"] = &services.ExternalSetlist{
			ID: "63de4613", EventDate: "2025-08-02",
			Artist: services.ExternalArtist{Name: "The Killers", MBID: killersMBID},
		}

		_, err := h.engine.Handle(ctx, job(false))
		var dep *shared.DependencyError
		if !errors.As(err, &dep) {
			t.Fatalf("expected DependencyError, got %v", err)
		}
		if shared.IsPermanent(err) {
			t.Error("dependency errors must be retryable")
		}
		if artists := h.pending(t, models.EntityArtist); len(artists) != 1 || artists[0].EntityID != killersMBID {
			t.Errorf("expected the artist to be enqueued, got %+v", artists)
		}
	})
}

func TestEngineVenue(t *testing.T) {
	ctx := context.Background()
	lat, long := 40.7505, -73.9934

	h := newHarness(t)
	h.events.Venues["KovZpZA7AAEA"] = &services.ExternalVenue{
		Name: "Madison Square Garden", City: "New York", State: "NY", Country: "US",
		Latitude: &lat, Longitude: &long, TicketmasterID: "KovZpZA7AAEA",
	}

	out, err := h.engine.Handle(ctx, &models.SyncJob{EntityType: models.EntityVenue, EntityID: "KovZpZA7AAEA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := h.stores.Venues.Get(ctx, out.InternalID)
	if err != nil {
		t.Fatalf("failed to load venue: %v", err)
	}
	if v.City != "New York" || v.Latitude == nil || *v.Latitude != lat {
		t.Errorf("unexpected venue: %+v", v)
	}
	if h.setlists.Calls("GetVenue") != 0 {
		t.Error("a ticketmaster id should not be sent to setlist.fm")
	}
}

func TestEngineSongTrack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.music.Tracks["3n3Ppam7vgaVa1iaRUc9Lp"] = &services.ExternalTrack{
		ID: "3n3Ppam7vgaVa1iaRUc9Lp", Name: "Mr. Brightside", ISRC: "USIR20400274", ArtistIDs: []string{killersSpotify},
	}
	job := &models.SyncJob{EntityType: models.EntitySong, EntityID: "3n3Ppam7vgaVa1iaRUc9Lp"}

	t.Run("unknown artist is a dependency", func(t *testing.T) {
		_, err := h.engine.Handle(ctx, job)
		var dep *shared.DependencyError
		if !errors.As(err, &dep) {
			t.Fatalf("expected DependencyError, got %v", err)
		}
	})

	t.Run("creates the song once the artist exists", func(t *testing.T) {
		if err := h.stores.Artists.Create(ctx, &models.Artist{Name: "The Killers", SpotifyID: killersSpotify}); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}
		out, err := h.engine.Handle(ctx, job)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s, err := h.stores.Songs.Get(ctx, out.InternalID)
		if err != nil {
			t.Fatalf("failed to load song: %v", err)
		}
		if s.ISRC != "USIR20400274" {
			t.Errorf("unexpected song: %+v", s)
		}
	})
}

func TestHandleValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		job  *models.SyncJob
	}{
		{"nil job", nil},
		{"unknown type", &models.SyncJob{EntityType: "album", EntityID: "1"}},
		{"empty id", &models.SyncJob{EntityType: models.EntityArtist}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Handle(context.Background(), tt.job)
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
