package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

type fakeArtists struct {
	byID, byTM, bySpotify, byMBID map[string]*models.Artist
	err                           error
}

func miss(key string) error { return fmt.Errorf("%w: artist %s", shared.ErrNotFound, key) }

func lookupIn(m map[string]*models.Artist, key string) (*models.Artist, error) {
	if a, ok := m[key]; ok {
		return a, nil
	}
	return nil, miss(key)
}

func (f *fakeArtists) Get(_ context.Context, id string) (*models.Artist, error) {
	if f.err != nil {
		return nil, f.err
	}
	return lookupIn(f.byID, id)
}

func (f *fakeArtists) GetByTicketmasterID(_ context.Context, id string) (*models.Artist, error) {
	return lookupIn(f.byTM, id)
}

func (f *fakeArtists) GetBySpotifyID(_ context.Context, id string) (*models.Artist, error) {
	return lookupIn(f.bySpotify, id)
}

func (f *fakeArtists) GetByMBID(_ context.Context, id string) (*models.Artist, error) {
	return lookupIn(f.byMBID, id)
}

func TestResolve(t *testing.T) {
	artist := &models.Artist{ID: "internal-1", Name: "Phoebe Bridgers", TicketmasterID: "K8vZ", SpotifyID: "sp1"}
	repo := &fakeArtists{
		byID:      map[string]*models.Artist{"internal-1": artist},
		byTM:      map[string]*models.Artist{"K8vZ": artist},
		bySpotify: map[string]*models.Artist{"sp1": artist},
		byMBID:    map[string]*models.Artist{},
	}

	tests := []struct {
		name    string
		keys    Keys
		wantID  string
		matched Source
	}{
		{name: "internal ID", keys: Keys{Internal: "internal-1"}, wantID: "internal-1", matched: SourceInternal},
		{name: "events ID", keys: Keys{Internal: "K8vZ", Events: "K8vZ", Music: "K8vZ", Setlist: "K8vZ"}, wantID: "internal-1", matched: SourceEvents},
		{name: "music ID only", keys: Keys{Music: "sp1"}, wantID: "internal-1", matched: SourceMusic},
		{name: "unknown", keys: Keys{Internal: "x", Events: "x", Music: "x", Setlist: "x"}, matched: SourceNone},
		{name: "no keys", keys: Keys{}, matched: SourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), ArtistStrategies(repo, tt.keys))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got.InternalID != tt.wantID || got.MatchedBy != tt.matched {
				t.Errorf("expected (%q, %s), got (%q, %s)", tt.wantID, tt.matched, got.InternalID, got.MatchedBy)
			}
			if got.Found() != (tt.wantID != "") {
				t.Errorf("Found() = %v", got.Found())
			}
		})
	}

	t.Run("Order Is Respected", func(t *testing.T) {
		var calls []Source
		record := func(src Source, id string) Lookup {
			return func(context.Context, string) (string, error) {
				calls = append(calls, src)
				return id, nil
			}
		}
		got, err := Resolve(context.Background(), []Strategy{
			{Source: SourceMusic, Key: "k", Lookup: record(SourceMusic, "")},
			{Source: SourceSetlist, Key: "k", Lookup: record(SourceSetlist, "a")},
			{Source: SourceEvents, Key: "k", Lookup: record(SourceEvents, "b")},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.InternalID != "a" || len(calls) != 2 {
			t.Errorf("expected first hit 'a' after 2 lookups, got %q after %v", got.InternalID, calls)
		}
	})

	t.Run("Store Errors Abort", func(t *testing.T) {
		broken := &fakeArtists{err: errors.New("disk I/O error")}
		_, err := Resolve(context.Background(), ArtistStrategies(broken, Keys{Internal: "x"}))
		if err == nil {
			t.Error("expected store error to abort resolution")
		}
	})
}

func TestKeysFromJob(t *testing.T) {
	t.Run("Bare Entity ID Offered Everywhere", func(t *testing.T) {
		k := KeysFromJob(&models.SyncJob{EntityType: models.EntityArtist, EntityID: "abc"})
		if k != (Keys{Internal: "abc", Events: "abc", Music: "abc", Setlist: "abc"}) {
			t.Errorf("unexpected keys %+v", k)
		}
	})

	t.Run("Reference Data Wins", func(t *testing.T) {
		k := KeysFromJob(&models.SyncJob{
			EntityType:    models.EntityArtist,
			EntityID:      "abc",
			ReferenceData: map[string]any{models.RefSpotifyID: "sp1"},
		})
		if k != (Keys{Internal: "abc", Music: "sp1"}) {
			t.Errorf("unexpected keys %+v", k)
		}
	})

	t.Run("Setlist ID For Setlists", func(t *testing.T) {
		k := KeysFromJob(&models.SyncJob{
			EntityType:    models.EntitySetlist,
			EntityID:      "abc",
			ReferenceData: map[string]any{models.RefSetlistFMID: "63de4613"},
		})
		if k.Setlist != "63de4613" {
			t.Errorf("expected setlist key, got %+v", k)
		}
	})
}

func TestArtistSource(t *testing.T) {
	tests := []struct {
		id   string
		want Source
	}{
		{"9f8e7d6c-0000-4000-8000-123456789abc", SourceSetlist},
		{"1r1uxoy19fzMxunt3ONAkG", SourceMusic},
		{"K8vZ917G7x0", SourceEvents},
		{"", SourceNone},
	}
	for _, tt := range tests {
		if got := ArtistSource(tt.id); got != tt.want {
			t.Errorf("ArtistSource(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}

func TestVenueSource(t *testing.T) {
	tests := []struct {
		id   string
		want Source
	}{
		{"6bd6ca6e", SourceSetlist},
		{"KovZpZAEdFtJ", SourceEvents},
		{"", SourceNone},
	}
	for _, tt := range tests {
		if got := VenueSource(tt.id); got != tt.want {
			t.Errorf("VenueSource(%q) = %s, want %s", tt.id, got, tt.want)
		}
	}
}
