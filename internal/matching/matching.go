// Package matching links free-text setlist entries to catalog songs and compares venue names.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

const (
	// Threshold is the containment score a fuzzy candidate must exceed.
	Threshold = 0.6
	// MinNormalizedLength rejects normalized names too short to compare.
	MinNormalizedLength = 3
)

// Match is a catalog hit for a setlist entry.
type Match struct {
	SongID string
	Name   string
	Score  float64
	Exact  bool
}

type entry struct {
	song       *models.Song
	normalized string
}

// Catalog is one artist's songs prepared for repeated matching.
type Catalog struct {
	songs []entry
}

// NewCatalog normalizes songs once so a whole setlist can be matched against them.
func NewCatalog(songs []*models.Song) *Catalog {
	c := &Catalog{songs: make([]entry, 0, len(songs))}
	for _, s := range songs {
		c.songs = append(c.songs, entry{song: s, normalized: shared.NormalizeName(s.Name)})
	}
	return c
}

// Len is the number of catalog songs.
func (c *Catalog) Len() int { return len(c.songs) }

// Match finds the catalog song for name.
//
// A case-insensitive exact match wins outright. Otherwise both sides are normalized and scored by
// containment (shorter/longer when one contains the other); the best score must exceed [Threshold].
func (c *Catalog) Match(name string) (Match, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Match{}, false
	}
	for _, e := range c.songs {
		if strings.EqualFold(e.song.Name, trimmed) {
			return Match{SongID: e.song.ID, Name: e.song.Name, Score: 1, Exact: true}, true
		}
	}

	query := shared.NormalizeName(trimmed)
	if len([]rune(query)) < MinNormalizedLength {
		return Match{}, false
	}

	var best Match
	for _, e := range c.songs {
		if len([]rune(e.normalized)) < MinNormalizedLength {
			continue
		}
		score := Containment(query, e.normalized)
		if score > best.Score {
			best = Match{SongID: e.song.ID, Name: e.song.Name, Score: score}
		}
	}
	if best.Score > Threshold {
		return best, true
	}
	return Match{}, false
}

// Containment returns len(shorter)/len(longer) when one string contains the other, else 0.
func Containment(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	shorter, longer := a, b
	if len([]rune(shorter)) > len([]rune(longer)) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	return float64(len([]rune(shorter))) / float64(len([]rune(longer)))
}

// SongLister loads an artist's catalog.
type SongLister interface {
	ListByArtist(ctx context.Context, artistID string) ([]*models.Song, error)
}

// SongMatcher matches single names against the stored catalog.
type SongMatcher struct {
	songs SongLister
}

// NewSongMatcher creates a matcher backed by songs.
func NewSongMatcher(songs SongLister) *SongMatcher {
	return &SongMatcher{songs: songs}
}

// Match returns the song ID for songName in artistID's catalog, or "" when nothing qualifies.
func (m *SongMatcher) Match(ctx context.Context, songName, artistID string) (string, error) {
	catalog, err := m.Catalog(ctx, artistID)
	if err != nil {
		return "", err
	}
	match, ok := catalog.Match(songName)
	if !ok {
		return "", nil
	}
	return match.SongID, nil
}

// Catalog loads and prepares artistID's songs.
func (m *SongMatcher) Catalog(ctx context.Context, artistID string) (*Catalog, error) {
	songs, err := m.songs.ListByArtist(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog for artist %s: %w", artistID, err)
	}
	return NewCatalog(songs), nil
}

// VenueMatches reports whether two venue names plausibly refer to the same place.
//
// Names are normalized first; containment either way matches, otherwise the shorter name must
// fuzzy-match the longer one with a Levenshtein distance no more than half the longer length.
func VenueMatches(a, b string) bool {
	na, nb := shared.NormalizeName(a), shared.NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	distance := fuzzy.RankMatchNormalizedFold(shorter, longer)
	return distance >= 0 && distance <= len(longer)/2
}

// BestVenue returns the index of the candidate closest to name, or -1 when none qualifies.
func BestVenue(name string, candidates []string) int {
	normalized := make([]string, len(candidates))
	for i, c := range candidates {
		normalized[i] = shared.NormalizeName(c)
	}
	query := shared.NormalizeName(name)

	for i, c := range normalized {
		if c != "" && c == query {
			return i
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(query, normalized)
	sort.Sort(ranks)
	for _, r := range ranks {
		if VenueMatches(name, candidates[r.OriginalIndex]) {
			return r.OriginalIndex
		}
	}
	for i, c := range candidates {
		if VenueMatches(name, c) {
			return i
		}
	}
	return -1
}
