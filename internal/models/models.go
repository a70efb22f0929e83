// package models defines the data model for the setlist sync engine
package models

import (
	"fmt"
	"time"
)

// EntityType names one of the five synchronized entity kinds.
type EntityType string

const (
	EntityArtist  EntityType = "artist"
	EntityVenue   EntityType = "venue"
	EntityShow    EntityType = "show"
	EntitySetlist EntityType = "setlist"
	EntitySong    EntityType = "song"
)

// EntityTypes lists every valid [EntityType].
var EntityTypes = []EntityType{EntityArtist, EntityVenue, EntityShow, EntitySetlist, EntitySong}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	switch e {
	case EntityArtist, EntityVenue, EntityShow, EntitySetlist, EntitySong:
		return true
	}
	return false
}

func (e EntityType) String() string { return string(e) }

// ParseEntityType converts s into an [EntityType].
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return e, nil
}

// Image is a provider image candidate. Merges keep the largest one.
type Image struct {
	URL    string
	Width  int
	Height int
}

// Area is the pixel count used to rank images.
func (i Image) Area() int { return i.Width * i.Height }

// Artist is a performer known to at least one provider.
type Artist struct {
	ID              string
	Name            string
	ImageURL        string
	Genres          []string
	Popularity      int
	Followers       int
	TicketmasterID  string
	SpotifyID       string
	MBID            string
	LastSyncedAt    *time.Time
	CatalogSyncedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks that the artist can be persisted.
func (a *Artist) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artist name is required")
	}
	return nil
}

// Venue is a place where shows happen.
type Venue struct {
	ID             string
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
	LastSyncedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks that the venue can be persisted.
func (v *Venue) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("venue name is required")
	}
	return nil
}

// Show is a dated performance. ArtistID and VenueID stay empty until those entities resolve.
type Show struct {
	ID             string
	Name           string
	Date           string // YYYY-MM-DD
	StartTime      string
	Status         string
	TicketURL      string
	ArtistID       string
	VenueID        string
	NoVenue        bool // the event has no venue to link
	TicketmasterID string
	LastSyncedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Linked reports whether the show has every relation its event provides.
func (s *Show) Linked() bool {
	return s.ArtistID != "" && (s.VenueID != "" || s.NoVenue)
}

// Validate checks that the show can be persisted.
func (s *Show) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("show name is required")
	}
	if _, err := time.Parse(time.DateOnly, s.Date); err != nil {
		return fmt.Errorf("show date %q must be YYYY-MM-DD", s.Date)
	}
	return nil
}

// Song is one track in an artist's canonical catalog.
type Song struct {
	ID           string
	ArtistID     string
	Name         string
	Album        string
	DurationMS   int
	Popularity   int
	PreviewURL   string
	ISRC         string
	SpotifyID    string
	VoteCount    int
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks that the song can be persisted.
func (s *Song) Validate() error {
	if s.ArtistID == "" {
		return fmt.Errorf("song artist is required")
	}
	if s.Name == "" {
		return fmt.Errorf("song name is required")
	}
	return nil
}

// SetlistKind separates the votable pre-show setlist from a historical one.
type SetlistKind string

const (
	SetlistPredicted SetlistKind = "predicted"
	SetlistPlayed    SetlistKind = "played"
)

// Setlist is an ordered list of songs for a show.
type Setlist struct {
	ID           string
	ShowID       string
	ArtistID     string
	Kind         SetlistKind
	Name         string
	EventDate    string
	TourName     string
	SetlistFMID  string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Songs        []SetlistSong
}

// Validate checks that the setlist can be persisted.
func (s *Setlist) Validate() error {
	switch s.Kind {
	case SetlistPredicted:
		if s.ShowID == "" {
			return fmt.Errorf("predicted setlist requires a show")
		}
	case SetlistPlayed:
	default:
		return fmt.Errorf("unknown setlist kind %q", s.Kind)
	}
	return nil
}

// SetlistSong links a setlist position to a song.
//
// SongName keeps the provider's original text so an unmatched entry is still shown.
type SetlistSong struct {
	ID        string
	SetlistID string
	SongID    string
	Position  int
	IsEncore  bool
	SongName  string
	VoteCount int
	CreatedAt time.Time
}

// VoteTarget is what a vote counts toward.
type VoteTarget string

const (
	VoteSong        VoteTarget = "song"
	VoteSetlistSong VoteTarget = "setlist_song"
)

// Vote is one voter's vote for a target.
type Vote struct {
	ID         string
	TargetKind VoteTarget
	TargetID   string
	VoterKey   string
	CreatedAt  time.Time
}
