// setlist.fm REST API implementation of [SetlistCatalog]
//
// Response types based on https://api.setlist.fm/docs/1.0/index.html
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// setlist.fm event dates are dd-MM-yyyy.
const setlistFMDateLayout = "02-01-2006"

// SetlistFMArtist represents an artist keyed by MusicBrainz ID.
type SetlistFMArtist struct {
	MBID           string `json:"mbid"`
	Name           string `json:"name"`
	SortName       string `json:"sortName"`
	Disambiguation string `json:"disambiguation"`
	URL            string `json:"url"`
}

// SetlistFMVenue represents a venue with its city.
type SetlistFMVenue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	City struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		State     string `json:"state"`
		StateCode string `json:"stateCode"`
		Coords    struct {
			Lat  float64 `json:"lat"`
			Long float64 `json:"long"`
		} `json:"coords"`
		Country struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"country"`
	} `json:"city"`
}

// SetlistFMSong is one entry of a set. Tape entries are recordings played over the PA.
type SetlistFMSong struct {
	Name string `json:"name"`
	Info string `json:"info"`
	Tape bool   `json:"tape"`
}

// SetlistFMSet is a main set or an encore.
type SetlistFMSet struct {
	Name   string          `json:"name"`
	Encore int             `json:"encore"`
	Songs  []SetlistFMSong `json:"song"`
}

// SetlistFMSetlist represents one performed setlist.
type SetlistFMSetlist struct {
	ID        string          `json:"id"`
	EventDate string          `json:"eventDate"`
	URL       string          `json:"url"`
	Artist    SetlistFMArtist `json:"artist"`
	Venue     SetlistFMVenue  `json:"venue"`
	Tour      struct {
		Name string `json:"name"`
	} `json:"tour"`
	Sets struct {
		Set []SetlistFMSet `json:"set"`
	} `json:"sets"`
}

// SetlistFMService implements [SetlistCatalog].
type SetlistFMService struct {
	client *Client
}

// NewSetlistFMService creates a setlist.fm client from cfg. The API key travels in the x-api-key header.
func NewSetlistFMService(cfg shared.SetlistFMConfig, httpClient *http.Client, logger *log.Logger) (*SetlistFMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: setlistfm api_key", shared.ErrMissingCredentials)
	}

	apiKey := cfg.APIKey
	client := NewClient(ClientOptions{
		Name:        ProviderSetlistFM,
		BaseURL:     cfg.BaseURL,
		MinInterval: cfg.MinInterval,
		HTTPClient:  httpClient,
		Logger:      logger,
		Authorize: func(req *http.Request) error {
			req.Header.Set("x-api-key", apiKey)
			return nil
		},
	})
	return &SetlistFMService{client: client}, nil
}

func (s *SetlistFMService) Name() string { return ProviderSetlistFM }

// Client exposes the underlying rate-limited client.
func (s *SetlistFMService) Client() *Client { return s.client }

// GetArtist implements [SetlistCatalog].
func (s *SetlistFMService) GetArtist(ctx context.Context, mbid string) (*ExternalArtist, error) {
	var a SetlistFMArtist
	if err := s.client.Call(ctx, "/artist/"+url.PathEscape(mbid), nil, &a); err != nil {
		return nil, err
	}
	artist := a.toExternal()
	return &artist, nil
}

// SearchArtists implements [SetlistCatalog].
func (s *SetlistFMService) SearchArtists(ctx context.Context, name string) ([]ExternalArtist, error) {
	params := url.Values{}
	params.Set("artistName", name)
	params.Set("sort", "relevance")

	var response struct {
		Artist []SetlistFMArtist `json:"artist"`
	}
	if err := s.client.Call(ctx, "/search/artists", params, &response); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	artists := make([]ExternalArtist, 0, len(response.Artist))
	for _, a := range response.Artist {
		artists = append(artists, a.toExternal())
	}
	return artists, nil
}

// ListArtistSetlists implements [SetlistCatalog]. An artist with no setlists yields an empty page.
func (s *SetlistFMService) ListArtistSetlists(ctx context.Context, mbid string, page int) ([]ExternalSetlist, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("p", strconv.Itoa(page))

	var response struct {
		Setlist []SetlistFMSetlist `json:"setlist"`
	}
	if err := s.client.Call(ctx, "/artist/"+url.PathEscape(mbid)+"/setlists", params, &response); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	setlists := make([]ExternalSetlist, 0, len(response.Setlist))
	for _, sl := range response.Setlist {
		setlists = append(setlists, sl.toExternal())
	}
	return setlists, nil
}

// GetSetlist implements [SetlistCatalog].
func (s *SetlistFMService) GetSetlist(ctx context.Context, id string) (*ExternalSetlist, error) {
	var sl SetlistFMSetlist
	if err := s.client.Call(ctx, "/setlist/"+url.PathEscape(id), nil, &sl); err != nil {
		return nil, err
	}
	setlist := sl.toExternal()
	return &setlist, nil
}

// GetVenue implements [SetlistCatalog].
func (s *SetlistFMService) GetVenue(ctx context.Context, id string) (*ExternalVenue, error) {
	var v SetlistFMVenue
	if err := s.client.Call(ctx, "/venue/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	venue := v.toExternal()
	return &venue, nil
}

func (a SetlistFMArtist) toExternal() ExternalArtist {
	return ExternalArtist{
		Source: ProviderSetlistFM,
		Name:   a.Name,
		MBID:   a.MBID,
		URL:    a.URL,
	}
}

func (v SetlistFMVenue) toExternal() ExternalVenue {
	venue := ExternalVenue{
		Source:      ProviderSetlistFM,
		Name:        v.Name,
		City:        v.City.Name,
		State:       v.City.StateCode,
		Country:     v.City.Country.Code,
		SetlistFMID: v.ID,
	}
	if venue.State == "" {
		venue.State = v.City.State
	}
	if v.City.Coords.Lat != 0 || v.City.Coords.Long != 0 {
		lat, long := v.City.Coords.Lat, v.City.Coords.Long
		venue.Latitude, venue.Longitude = &lat, &long
	}
	return venue
}

func (sl SetlistFMSetlist) toExternal() ExternalSetlist {
	setlist := ExternalSetlist{
		ID:        sl.ID,
		EventDate: ParseSetlistFMDate(sl.EventDate),
		TourName:  sl.Tour.Name,
		URL:       sl.URL,
		Artist:    sl.Artist.toExternal(),
		Venue:     sl.Venue.toExternal(),
	}
	for _, set := range sl.Sets.Set {
		encore := set.Encore > 0
		for _, song := range set.Songs {
			name := strings.TrimSpace(song.Name)
			if name == "" || song.Tape {
				continue
			}
			setlist.Songs = append(setlist.Songs, SetlistEntry{Name: name, Encore: encore})
		}
	}
	return setlist
}

// ParseSetlistFMDate converts dd-MM-yyyy to YYYY-MM-DD, returning "" for malformed input.
func ParseSetlistFMDate(s string) string {
	t, err := time.Parse(setlistFMDateLayout, s)
	if err != nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
