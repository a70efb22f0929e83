// package services defines the provider catalogs the sync handlers read from
//
// Ticketmaster (events), Spotify (music metadata), setlist.fm (historical setlists)
package services

import (
	"context"
	"slices"

	"github.com/desertthunder/setlistsync/internal/models"
)

// Provider names, used as the Client name and in logs, metrics and errors.
const (
	ProviderTicketmaster = "ticketmaster"
	ProviderSpotify      = "spotify"
	ProviderSetlistFM    = "setlistfm"
)

// EventsCatalog is the events provider: attractions (artists), venues and dated events.
type EventsCatalog interface {
	// GetAttraction retrieves an attraction by Ticketmaster ID.
	GetAttraction(ctx context.Context, id string) (*ExternalArtist, error)

	// SearchAttractions finds music attractions by keyword.
	SearchAttractions(ctx context.Context, name string) ([]ExternalArtist, error)

	// GetVenue retrieves a venue by Ticketmaster ID.
	GetVenue(ctx context.Context, id string) (*ExternalVenue, error)

	// GetEvent retrieves one event with its embedded venue and attractions.
	GetEvent(ctx context.Context, id string) (*ExternalEvent, error)

	// ListAttractionEvents lists upcoming events for an attraction, soonest first.
	ListAttractionEvents(ctx context.Context, attractionID string, limit int) ([]ExternalEvent, error)

	Name() string
}

// MusicCatalog is the music-metadata provider.
type MusicCatalog interface {
	// GetArtist retrieves an artist by Spotify ID.
	GetArtist(ctx context.Context, id string) (*ExternalArtist, error)

	// SearchArtists finds artists by name.
	SearchArtists(ctx context.Context, name string) ([]ExternalArtist, error)

	// GetTopTracks returns the artist's most popular tracks in the configured market.
	GetTopTracks(ctx context.Context, artistID string) ([]ExternalTrack, error)

	// ListArtistTracks walks the artist's albums and singles and returns their tracks.
	ListArtistTracks(ctx context.Context, artistID string) ([]ExternalTrack, error)

	// GetTrack retrieves a single track by Spotify ID.
	GetTrack(ctx context.Context, id string) (*ExternalTrack, error)

	Name() string
}

// SetlistCatalog is the historical-setlist provider.
type SetlistCatalog interface {
	// GetArtist retrieves an artist by MusicBrainz ID.
	GetArtist(ctx context.Context, mbid string) (*ExternalArtist, error)

	// SearchArtists finds artists by name, most relevant first.
	SearchArtists(ctx context.Context, name string) ([]ExternalArtist, error)

	// ListArtistSetlists returns one page (1-based) of the artist's setlists, newest first.
	ListArtistSetlists(ctx context.Context, mbid string, page int) ([]ExternalSetlist, error)

	// GetSetlist retrieves a setlist by setlist.fm ID.
	GetSetlist(ctx context.Context, id string) (*ExternalSetlist, error)

	// GetVenue retrieves a venue by setlist.fm ID.
	GetVenue(ctx context.Context, id string) (*ExternalVenue, error)

	Name() string
}

// ExternalArtist is an artist as one provider reports it.
//
// Only the ID field of the reporting provider is guaranteed; the others are filled
// when the provider links to other catalogs (Ticketmaster external links).
type ExternalArtist struct {
	Source         string
	Name           string
	TicketmasterID string
	SpotifyID      string
	MBID           string
	Genres         []string
	Images         []models.Image
	Popularity     int
	Followers      int
	URL            string
}

// ExternalVenue is a venue as one provider reports it.
type ExternalVenue struct {
	Source         string
	Name           string
	Address        string
	City           string
	State          string
	Country        string
	PostalCode     string
	Timezone       string
	Latitude       *float64
	Longitude      *float64
	TicketmasterID string
	SetlistFMID    string
}

// ExternalEvent is a dated Ticketmaster event.
type ExternalEvent struct {
	ID        string
	Name      string
	Date      string // YYYY-MM-DD
	StartTime string
	Status    string
	URL       string
	Venue     *ExternalVenue
	Artists   []ExternalArtist
}

// ExternalTrack is a Spotify track.
type ExternalTrack struct {
	ID         string
	Name       string
	Album      string
	DurationMS int
	Popularity int
	PreviewURL string
	ISRC       string
	ArtistIDs  []string
}

// ExternalSetlist is a setlist.fm setlist with its entries in performance order.
type ExternalSetlist struct {
	ID        string
	EventDate string // YYYY-MM-DD
	TourName  string
	URL       string
	Artist    ExternalArtist
	Venue     ExternalVenue
	Songs     []SetlistEntry
}

// SetlistEntry is one performed song.
type SetlistEntry struct {
	Name   string
	Encore bool
}

// LargestImage returns the URL of the highest resolution image, or "" when there are none.
func LargestImage(images []models.Image) string {
	if len(images) == 0 {
		return ""
	}
	best := slices.MaxFunc(images, func(a, b models.Image) int { return a.Area() - b.Area() })
	return best.URL
}
