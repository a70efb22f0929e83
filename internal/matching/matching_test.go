package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/setlistsync/internal/models"
)

func catalog(names ...string) []*models.Song {
	songs := make([]*models.Song, len(names))
	for i, n := range names {
		songs[i] = &models.Song{ID: "song-" + n, ArtistID: "artist-1", Name: n}
	}
	return songs
}

func TestCatalogMatch(t *testing.T) {
	songs := catalog("Dont Stop Believin", "Motion Sickness", "Kyoto - Acoustic Version", "Garden Song", "Me")

	tests := []struct {
		name   string
		query  string
		wantID string
		exact  bool
	}{
		{name: "punctuation stripped", query: "Don't Stop Believin'", wantID: "song-Dont Stop Believin"},
		{name: "case-insensitive exact", query: "GARDEN SONG", wantID: "song-Garden Song", exact: true},
		{name: "containment above threshold", query: "Motion Sickness (Live)", wantID: "song-Motion Sickness"},
		{name: "containment below threshold", query: "Kyoto"},
		{name: "unrelated", query: "xyz"},
		{name: "too short after normalization", query: "M.E."},
		{name: "exact short name still matches", query: "me", wantID: "song-Me", exact: true},
		{name: "diacritics folded", query: "Motión Sickness", wantID: "song-Motion Sickness"},
		{name: "empty", query: "   "},
	}

	c := NewCatalog(songs)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Match(tt.query)
			if ok != (tt.wantID != "") {
				t.Fatalf("Match(%q) ok = %v, want %v (got %+v)", tt.query, ok, tt.wantID != "", got)
			}
			if got.SongID != tt.wantID {
				t.Errorf("Match(%q) = %q, want %q", tt.query, got.SongID, tt.wantID)
			}
			if ok && got.Exact != tt.exact {
				t.Errorf("Match(%q) exact = %v, want %v", tt.query, got.Exact, tt.exact)
			}
		})
	}

	t.Run("Best Candidate Wins", func(t *testing.T) {
		c := NewCatalog(catalog("Scott Street", "Scott Street Reprise"))
		got, ok := c.Match("Scott Street!")
		if !ok || got.SongID != "song-Scott Street" || got.Score != 1 {
			t.Errorf("expected full-score match on 'Scott Street', got %+v", got)
		}
	})
}

func TestContainment(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"abcd", "ab", 0.5},
		{"ab", "abcd", 0.5},
		{"abc", "xyz", 0},
		{"", "abc", 0},
	}
	for _, tt := range tests {
		if got := Containment(tt.a, tt.b); got != tt.want {
			t.Errorf("Containment(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

type fakeSongs struct {
	songs []*models.Song
	err   error
}

func (f fakeSongs) ListByArtist(context.Context, string) ([]*models.Song, error) {
	return f.songs, f.err
}

func TestSongMatcher(t *testing.T) {
	t.Run("Match", func(t *testing.T) {
		m := NewSongMatcher(fakeSongs{songs: catalog("Dont Stop Believin")})

		id, err := m.Match(context.Background(), "Don't Stop Believin'", "artist-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "song-Dont Stop Believin" {
			t.Errorf("expected match, got %q", id)
		}

		id, err = m.Match(context.Background(), "xyz", "artist-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "" {
			t.Errorf("expected no match, got %q", id)
		}
	})

	t.Run("Store Error", func(t *testing.T) {
		m := NewSongMatcher(fakeSongs{err: errors.New("boom")})
		if _, err := m.Match(context.Background(), "x", "artist-1"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestVenueMatches(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Red Rocks Amphitheatre", "Red Rocks Amphitheatre", true},
		{"Red Rocks Amphitheatre", "red rocks amphitheatre", true},
		{"Red Rocks Amphitheatre", "Red Rocks Park and Amphitheatre", true},
		{"The Fillmore", "Fillmore", true},
		{"Madison Square Garden", "Red Rocks Amphitheatre", false},
		{"", "Fillmore", false},
	}
	for _, tt := range tests {
		if got := VenueMatches(tt.a, tt.b); got != tt.want {
			t.Errorf("VenueMatches(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBestVenue(t *testing.T) {
	candidates := []string{"Madison Square Garden", "Red Rocks Park and Amphitheatre", "The Fillmore"}

	if got := BestVenue("Red Rocks Amphitheatre", candidates); got != 1 {
		t.Errorf("expected index 1, got %d", got)
	}
	if got := BestVenue("Fillmore", candidates); got != 2 {
		t.Errorf("expected index 2, got %d", got)
	}
	if got := BestVenue("Hollywood Bowl", candidates); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}
