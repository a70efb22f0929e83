package tasks

import (
	"testing"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
)

func TestMergeArtist(t *testing.T) {
	events := &services.ExternalArtist{
		Name: "the killers", TicketmasterID: "tm1", Genres: []string{"rock"},
		Images: []models.Image{{URL: "big", Width: 1000, Height: 1000}},
	}
	music := &services.ExternalArtist{
		Name: "The Killers", SpotifyID: "sp1", Genres: []string{"alternative rock", "modern rock"},
		Images: []models.Image{{URL: "small", Width: 64, Height: 64}}, Popularity: 70, Followers: 12,
	}

	t.Run("default precedence", func(t *testing.T) {
		got := mergeArtist(DefaultPrecedence(), nil, artistSources{events: events, music: music})
		if got.Name != "The Killers" {
			t.Errorf("expected music name, got %q", got.Name)
		}
		if len(got.Genres) != 2 {
			t.Errorf("expected genres copied wholesale from music, got %v", got.Genres)
		}
		if got.ImageURL != "big" {
			t.Errorf("expected highest resolution image, got %q", got.ImageURL)
		}
		if got.TicketmasterID != "tm1" || got.SpotifyID != "sp1" {
			t.Errorf("expected both IDs, got %q %q", got.TicketmasterID, got.SpotifyID)
		}
	})

	t.Run("configured precedence", func(t *testing.T) {
		p := PrecedenceFromConfig(shared.PrecedenceConfig{ArtistName: []string{SourceEvents, SourceMusic}})
		got := mergeArtist(p, nil, artistSources{events: events, music: music})
		if got.Name != "the killers" {
			t.Errorf("expected events name, got %q", got.Name)
		}
		if got.Genres[0] != "alternative rock" {
			t.Errorf("genre order should keep its default, got %v", got.Genres)
		}
	})

	t.Run("stored values survive missing sources", func(t *testing.T) {
		stored := &models.Artist{ID: "a1", Name: "Stored", ImageURL: "old", Genres: []string{"indie"}, MBID: "mb"}
		got := mergeArtist(DefaultPrecedence(), stored, artistSources{setlist: &services.ExternalArtist{Name: "From Setlist"}})
		if got.ID != "a1" || got.MBID != "mb" || got.ImageURL != "old" || got.Genres[0] != "indie" {
			t.Errorf("unexpected merge: %+v", got)
		}
		if got.Name != "From Setlist" {
			t.Errorf("expected setlist name over stored, got %q", got.Name)
		}
		if stored.Name != "Stored" {
			t.Error("merge must not mutate the stored row")
		}
	})

	t.Run("existing IDs are never overwritten", func(t *testing.T) {
		stored := &models.Artist{Name: "x", SpotifyID: "keep"}
		got := mergeArtist(DefaultPrecedence(), stored, artistSources{music: music})
		if got.SpotifyID != "keep" {
			t.Errorf("expected stored spotify id, got %q", got.SpotifyID)
		}
	})
}

func TestMergeVenue(t *testing.T) {
	lat, long := 51.5, -0.1
	events := &services.ExternalVenue{Name: "O2 Arena", TicketmasterID: "tm"}
	setlist := &services.ExternalVenue{
		Name: "The O2", City: "London", Country: "GB", SetlistFMID: "fm", Latitude: &lat, Longitude: &long,
	}

	got := mergeVenue(DefaultPrecedence(), nil, events, setlist)
	if got.Name != "O2 Arena" {
		t.Errorf("expected events name, got %q", got.Name)
	}
	if got.City != "London" || got.Country != "GB" {
		t.Errorf("expected location from the first source with a city, got %q %q", got.City, got.Country)
	}
	if got.Latitude == nil || *got.Latitude != lat {
		t.Errorf("expected setlist coordinates")
	}
	if got.TicketmasterID != "tm" || got.SetlistFMID != "fm" {
		t.Errorf("expected both IDs, got %q %q", got.TicketmasterID, got.SetlistFMID)
	}
}

func TestLearnedIDs(t *testing.T) {
	merged := &models.Artist{TicketmasterID: "tm", SpotifyID: "sp", MBID: "mb"}
	got := learnedIDs(artistIDs{events: "tm"}, merged, artistSources{events: &services.ExternalArtist{}})
	if got != (artistIDs{music: "sp", setlist: "mb"}) {
		t.Errorf("unexpected learned ids: %+v", got)
	}
}
