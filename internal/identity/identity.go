// Package identity resolves any known identifier of an entity to its internal ID.
//
// Resolution is an explicit ordered list of [Strategy] values. Each strategy is one
// lookup capability (internal ID, or one provider's external-ID column) bound to a key;
// [Resolve] returns the first hit. Strategies with an empty key are skipped.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/google/uuid"
)

// Source names the ID space a strategy searches.
type Source string

const (
	SourceInternal Source = "internal"
	SourceEvents   Source = "events"
	SourceMusic    Source = "music"
	SourceSetlist  Source = "setlist"
	SourceNone     Source = "none"
)

// Lookup returns the internal ID stored for key, or "" (or an error wrapping [shared.ErrNotFound]) on a miss.
type Lookup func(ctx context.Context, key string) (string, error)

// Strategy is one step of identity resolution.
type Strategy struct {
	Source Source
	Key    string
	Lookup Lookup
}

// Result is the outcome of [Resolve]. MatchedBy is [SourceNone] when nothing hit.
type Result struct {
	InternalID string
	MatchedBy  Source
}

// Found reports whether any strategy matched.
func (r Result) Found() bool { return r.InternalID != "" }

// Resolve runs strategies in order and returns the first match.
//
// Misses fall through to the next strategy; any other lookup error aborts resolution.
func Resolve(ctx context.Context, strategies []Strategy) (Result, error) {
	for _, s := range strategies {
		if s.Key == "" || s.Lookup == nil {
			continue
		}
		id, err := s.Lookup(ctx, s.Key)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return Result{MatchedBy: SourceNone}, fmt.Errorf("resolve by %s: %w", s.Source, err)
		}
		if id != "" {
			return Result{InternalID: id, MatchedBy: s.Source}, nil
		}
	}
	return Result{MatchedBy: SourceNone}, nil
}

// Keys are the identifiers known for one entity. A job's entity ID is tried against
// every column unless reference data names the provider explicitly.
type Keys struct {
	Internal string
	Events   string
	Music    string
	Setlist  string
}

// KeysFromJob builds Keys for job. Explicit reference-data IDs win; otherwise the entity ID
// is offered to every ID space.
func KeysFromJob(job *models.SyncJob) Keys {
	k := Keys{
		Internal: job.EntityID,
		Events:   job.Ref(models.RefTicketmasterID),
		Music:    job.Ref(models.RefSpotifyID),
		Setlist:  job.Ref(models.RefMBID),
	}
	if job.EntityType == models.EntitySetlist || job.EntityType == models.EntityVenue {
		if id := job.Ref(models.RefSetlistFMID); id != "" {
			k.Setlist = id
		}
	}
	if k.Events == "" && k.Music == "" && k.Setlist == "" {
		k.Events, k.Music, k.Setlist = job.EntityID, job.EntityID, job.EntityID
	}
	return k
}

func by[T any](get func(context.Context, string) (*T, error), id func(*T) string) Lookup {
	return func(ctx context.Context, key string) (string, error) {
		v, err := get(ctx, key)
		if err != nil {
			return "", err
		}
		if v == nil {
			return "", nil
		}
		return id(v), nil
	}
}

// ArtistFinder is the artist store surface used for resolution.
type ArtistFinder interface {
	Get(ctx context.Context, id string) (*models.Artist, error)
	GetByTicketmasterID(ctx context.Context, id string) (*models.Artist, error)
	GetBySpotifyID(ctx context.Context, id string) (*models.Artist, error)
	GetByMBID(ctx context.Context, mbid string) (*models.Artist, error)
}

// ArtistStrategies: internal, events, music, setlist (MBID).
func ArtistStrategies(repo ArtistFinder, k Keys) []Strategy {
	id := func(a *models.Artist) string { return a.ID }
	return []Strategy{
		{Source: SourceInternal, Key: k.Internal, Lookup: by(repo.Get, id)},
		{Source: SourceEvents, Key: k.Events, Lookup: by(repo.GetByTicketmasterID, id)},
		{Source: SourceMusic, Key: k.Music, Lookup: by(repo.GetBySpotifyID, id)},
		{Source: SourceSetlist, Key: k.Setlist, Lookup: by(repo.GetByMBID, id)},
	}
}

// VenueFinder is the venue store surface used for resolution.
type VenueFinder interface {
	Get(ctx context.Context, id string) (*models.Venue, error)
	GetByTicketmasterID(ctx context.Context, id string) (*models.Venue, error)
	GetBySetlistFMID(ctx context.Context, id string) (*models.Venue, error)
}

// VenueStrategies: internal, events, setlist.
func VenueStrategies(repo VenueFinder, k Keys) []Strategy {
	id := func(v *models.Venue) string { return v.ID }
	return []Strategy{
		{Source: SourceInternal, Key: k.Internal, Lookup: by(repo.Get, id)},
		{Source: SourceEvents, Key: k.Events, Lookup: by(repo.GetByTicketmasterID, id)},
		{Source: SourceSetlist, Key: k.Setlist, Lookup: by(repo.GetBySetlistFMID, id)},
	}
}

// ShowFinder is the show store surface used for resolution.
type ShowFinder interface {
	Get(ctx context.Context, id string) (*models.Show, error)
	GetByTicketmasterID(ctx context.Context, id string) (*models.Show, error)
}

// ShowStrategies: internal, events.
func ShowStrategies(repo ShowFinder, k Keys) []Strategy {
	id := func(s *models.Show) string { return s.ID }
	return []Strategy{
		{Source: SourceInternal, Key: k.Internal, Lookup: by(repo.Get, id)},
		{Source: SourceEvents, Key: k.Events, Lookup: by(repo.GetByTicketmasterID, id)},
	}
}

// SetlistFinder is the setlist store surface used for resolution.
type SetlistFinder interface {
	Get(ctx context.Context, id string) (*models.Setlist, error)
	GetBySetlistFMID(ctx context.Context, id string) (*models.Setlist, error)
}

// SetlistStrategies: internal, setlist.
func SetlistStrategies(repo SetlistFinder, k Keys) []Strategy {
	id := func(s *models.Setlist) string { return s.ID }
	return []Strategy{
		{Source: SourceInternal, Key: k.Internal, Lookup: by(repo.Get, id)},
		{Source: SourceSetlist, Key: k.Setlist, Lookup: by(repo.GetBySetlistFMID, id)},
	}
}

// SongFinder is the song store surface used for resolution.
type SongFinder interface {
	Get(ctx context.Context, id string) (*models.Song, error)
	GetBySpotifyID(ctx context.Context, id string) (*models.Song, error)
}

// SongStrategies: internal, music.
func SongStrategies(repo SongFinder, k Keys) []Strategy {
	id := func(s *models.Song) string { return s.ID }
	return []Strategy{
		{Source: SourceInternal, Key: k.Internal, Lookup: by(repo.Get, id)},
		{Source: SourceMusic, Key: k.Music, Lookup: by(repo.GetBySpotifyID, id)},
	}
}

var spotifyID = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// ArtistSource guesses which provider issued an artist ID that arrived without reference data:
// MusicBrainz IDs are UUIDs, Spotify IDs are 22 base62 characters, anything else is Ticketmaster's.
func ArtistSource(id string) Source {
	switch {
	case id == "":
		return SourceNone
	case isUUID(id):
		return SourceSetlist
	case spotifyID.MatchString(id):
		return SourceMusic
	default:
		return SourceEvents
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

var setlistVenueID = regexp.MustCompile(`^[0-9a-f]{8}$`)

// VenueSource guesses the provider of a venue ID: setlist.fm venue IDs are 8 lowercase hex characters.
func VenueSource(id string) Source {
	switch {
	case id == "":
		return SourceNone
	case setlistVenueID.MatchString(id):
		return SourceSetlist
	default:
		return SourceEvents
	}
}
