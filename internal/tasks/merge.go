package tasks

import (
	"slices"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// Merge sources named in [shared.PrecedenceConfig].
const (
	SourceMusic   = "music"
	SourceEvents  = "events"
	SourceSetlist = "setlist"
	SourceStored  = "stored"
)

// Precedence is the per-field source order used when merging provider data.
type Precedence struct {
	ArtistName    []string
	ArtistGenres  []string
	VenueName     []string
	VenueLocation []string
	VenueGeo      []string
}

// DefaultPrecedence: names and genres prefer music over events over stored; venues prefer events over setlist.
func DefaultPrecedence() Precedence {
	return Precedence{
		ArtistName:    []string{SourceMusic, SourceEvents, SourceSetlist, SourceStored},
		ArtistGenres:  []string{SourceMusic, SourceEvents, SourceStored},
		VenueName:     []string{SourceEvents, SourceSetlist, SourceStored},
		VenueLocation: []string{SourceEvents, SourceSetlist, SourceStored},
		VenueGeo:      []string{SourceEvents, SourceSetlist, SourceStored},
	}
}

// PrecedenceFromConfig keeps configured orders and fills empty ones with the defaults.
func PrecedenceFromConfig(cfg shared.PrecedenceConfig) Precedence {
	p := DefaultPrecedence()
	if len(cfg.ArtistName) > 0 {
		p.ArtistName = cfg.ArtistName
	}
	if len(cfg.ArtistGenres) > 0 {
		p.ArtistGenres = cfg.ArtistGenres
	}
	if len(cfg.VenueName) > 0 {
		p.VenueName = cfg.VenueName
	}
	if len(cfg.VenueLocation) > 0 {
		p.VenueLocation = cfg.VenueLocation
	}
	if len(cfg.VenueGeo) > 0 {
		p.VenueGeo = cfg.VenueGeo
	}
	return p
}

// pick returns the first non-empty value in order.
func pick(order []string, values map[string]string) string {
	for _, src := range order {
		if v := values[src]; v != "" {
			return v
		}
	}
	return ""
}

// pickSlice returns the first non-empty slice in order, copied wholesale. Sources are never unioned.
func pickSlice(order []string, values map[string][]string) []string {
	for _, src := range order {
		if v := values[src]; len(v) > 0 {
			return slices.Clone(v)
		}
	}
	return nil
}

// bestImage returns the highest resolution candidate, falling back to stored.
func bestImage(stored string, candidates ...[]models.Image) string {
	var all []models.Image
	for _, c := range candidates {
		all = append(all, c...)
	}
	if url := services.LargestImage(all); url != "" {
		return url
	}
	return stored
}

// artistSources holds what each provider returned for one artist. Nil means no data.
type artistSources struct {
	events  *services.ExternalArtist
	music   *services.ExternalArtist
	setlist *services.ExternalArtist
}

func (s artistSources) any() bool {
	return s.events != nil || s.music != nil || s.setlist != nil
}

// fill copies sources from other that s does not have yet.
func (s *artistSources) fill(other artistSources) {
	if s.events == nil {
		s.events = other.events
	}
	if s.music == nil {
		s.music = other.music
	}
	if s.setlist == nil {
		s.setlist = other.setlist
	}
}

// mergeArtist folds provider data into stored (nil for a new artist) and returns the merged row.
func mergeArtist(p Precedence, stored *models.Artist, src artistSources) *models.Artist {
	merged := &models.Artist{}
	if stored != nil {
		cp := *stored
		merged = &cp
	}

	names := map[string]string{SourceStored: merged.Name}
	genres := map[string][]string{SourceStored: merged.Genres}
	var images [][]models.Image

	if a := src.events; a != nil {
		names[SourceEvents] = a.Name
		genres[SourceEvents] = a.Genres
		images = append(images, a.Images)
		merged.TicketmasterID = firstNonEmpty(merged.TicketmasterID, a.TicketmasterID)
		merged.SpotifyID = firstNonEmpty(merged.SpotifyID, a.SpotifyID)
		merged.MBID = firstNonEmpty(merged.MBID, a.MBID)
	}
	if a := src.music; a != nil {
		names[SourceMusic] = a.Name
		genres[SourceMusic] = a.Genres
		images = append(images, a.Images)
		merged.SpotifyID = firstNonEmpty(merged.SpotifyID, a.SpotifyID)
		merged.Popularity = a.Popularity
		merged.Followers = a.Followers
	}
	if a := src.setlist; a != nil {
		names[SourceSetlist] = a.Name
		merged.MBID = firstNonEmpty(merged.MBID, a.MBID)
	}

	merged.Name = pick(p.ArtistName, names)
	if merged.Name == "" {
		merged.Name = pick([]string{SourceMusic, SourceEvents, SourceSetlist, SourceStored}, names)
	}
	merged.Genres = pickSlice(p.ArtistGenres, genres)
	merged.ImageURL = bestImage(merged.ImageURL, images...)
	return merged
}

// mergeVenue folds provider venues into stored (nil for a new venue).
//
// Location fields (address, city, state, country, postal code, timezone) move together from one
// source so a venue never mixes a city from one provider with a street from another.
func mergeVenue(p Precedence, stored *models.Venue, events, setlist *services.ExternalVenue) *models.Venue {
	merged := &models.Venue{}
	if stored != nil {
		cp := *stored
		merged = &cp
	}

	bySource := map[string]*services.ExternalVenue{SourceStored: venueAsExternal(merged)}
	if events != nil {
		bySource[SourceEvents] = events
		merged.TicketmasterID = firstNonEmpty(merged.TicketmasterID, events.TicketmasterID)
	}
	if setlist != nil {
		bySource[SourceSetlist] = setlist
		merged.SetlistFMID = firstNonEmpty(merged.SetlistFMID, setlist.SetlistFMID)
	}

	names := map[string]string{}
	for src, v := range bySource {
		names[src] = v.Name
	}
	merged.Name = pick(p.VenueName, names)

	for _, src := range p.VenueLocation {
		if v := bySource[src]; v != nil && v.City != "" {
			merged.Address = v.Address
			merged.City = v.City
			merged.State = v.State
			merged.Country = v.Country
			merged.PostalCode = v.PostalCode
			merged.Timezone = firstNonEmpty(v.Timezone, merged.Timezone)
			break
		}
	}
	for _, src := range p.VenueGeo {
		if v := bySource[src]; v != nil && v.Latitude != nil && v.Longitude != nil {
			merged.Latitude, merged.Longitude = v.Latitude, v.Longitude
			break
		}
	}
	return merged
}

func venueAsExternal(v *models.Venue) *services.ExternalVenue {
	return &services.ExternalVenue{
		Name:       v.Name,
		Address:    v.Address,
		City:       v.City,
		State:      v.State,
		Country:    v.Country,
		PostalCode: v.PostalCode,
		Timezone:   v.Timezone,
		Latitude:   v.Latitude,
		Longitude:  v.Longitude,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
