// Ticketmaster Discovery API implementation of [EventsCatalog]
//
// Response types based on https://developer.ticketmaster.com/products-and-docs/apis/discovery-api/v2/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// TicketmasterImage is an image resource.
type TicketmasterImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

type namedValue struct {
	Name string `json:"name"`
}

type classification struct {
	Primary  bool       `json:"primary"`
	Segment  namedValue `json:"segment"`
	Genre    namedValue `json:"genre"`
	SubGenre namedValue `json:"subGenre"`
}

type externalLink struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// TicketmasterAttraction represents a performer.
type TicketmasterAttraction struct {
	ID              string                    `json:"id"`
	Name            string                    `json:"name"`
	URL             string                    `json:"url"`
	Images          []TicketmasterImage       `json:"images"`
	Classifications []classification          `json:"classifications"`
	ExternalLinks   map[string][]externalLink `json:"externalLinks"`
}

// TicketmasterVenue represents a venue.
type TicketmasterVenue struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PostalCode string `json:"postalCode"`
	Timezone   string `json:"timezone"`
	Address    struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	City  namedValue `json:"city"`
	State struct {
		Name      string `json:"name"`
		StateCode string `json:"stateCode"`
	} `json:"state"`
	Country struct {
		Name        string `json:"name"`
		CountryCode string `json:"countryCode"`
	} `json:"country"`
	Location struct {
		Longitude string `json:"longitude"`
		Latitude  string `json:"latitude"`
	} `json:"location"`
}

// TicketmasterEvent represents a dated event.
type TicketmasterEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Dates struct {
		Start struct {
			LocalDate string `json:"localDate"`
			LocalTime string `json:"localTime"`
		} `json:"start"`
		Status struct {
			Code string `json:"code"`
		} `json:"status"`
	} `json:"dates"`
	Embedded struct {
		Venues      []TicketmasterVenue      `json:"venues"`
		Attractions []TicketmasterAttraction `json:"attractions"`
	} `json:"_embedded"`
}

type ticketmasterEventPage struct {
	Embedded struct {
		Events []TicketmasterEvent `json:"events"`
	} `json:"_embedded"`
}

type ticketmasterAttractionPage struct {
	Embedded struct {
		Attractions []TicketmasterAttraction `json:"attractions"`
	} `json:"_embedded"`
}

// TicketmasterService implements [EventsCatalog] over the Discovery v2 API.
type TicketmasterService struct {
	client *Client
}

// NewTicketmasterService creates a Ticketmaster client from cfg. The API key is sent as the apikey query parameter.
func NewTicketmasterService(cfg shared.TicketmasterConfig, httpClient *http.Client, logger *log.Logger) (*TicketmasterService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: ticketmaster api_key", shared.ErrMissingCredentials)
	}

	apiKey := cfg.APIKey
	client := NewClient(ClientOptions{
		Name:        ProviderTicketmaster,
		BaseURL:     cfg.BaseURL,
		MinInterval: cfg.MinInterval,
		HTTPClient:  httpClient,
		Logger:      logger,
		Authorize: func(req *http.Request) error {
			q := req.URL.Query()
			q.Set("apikey", apiKey)
			req.URL.RawQuery = q.Encode()
			return nil
		},
	})
	return &TicketmasterService{client: client}, nil
}

func (s *TicketmasterService) Name() string { return ProviderTicketmaster }

// Client exposes the underlying rate-limited client.
func (s *TicketmasterService) Client() *Client { return s.client }

// GetAttraction implements [EventsCatalog].
func (s *TicketmasterService) GetAttraction(ctx context.Context, id string) (*ExternalArtist, error) {
	var a TicketmasterAttraction
	if err := s.client.Call(ctx, "/attractions/"+url.PathEscape(id)+".json", nil, &a); err != nil {
		return nil, err
	}
	artist := a.toExternal()
	return &artist, nil
}

// SearchAttractions implements [EventsCatalog].
func (s *TicketmasterService) SearchAttractions(ctx context.Context, name string) ([]ExternalArtist, error) {
	params := url.Values{}
	params.Set("keyword", name)
	params.Set("classificationName", "music")
	params.Set("size", "10")

	var page ticketmasterAttractionPage
	if err := s.client.Call(ctx, "/attractions.json", params, &page); err != nil {
		return nil, err
	}

	artists := make([]ExternalArtist, 0, len(page.Embedded.Attractions))
	for _, a := range page.Embedded.Attractions {
		artists = append(artists, a.toExternal())
	}
	return artists, nil
}

// GetVenue implements [EventsCatalog].
func (s *TicketmasterService) GetVenue(ctx context.Context, id string) (*ExternalVenue, error) {
	var v TicketmasterVenue
	if err := s.client.Call(ctx, "/venues/"+url.PathEscape(id)+".json", nil, &v); err != nil {
		return nil, err
	}
	venue := v.toExternal()
	return &venue, nil
}

// GetEvent implements [EventsCatalog].
func (s *TicketmasterService) GetEvent(ctx context.Context, id string) (*ExternalEvent, error) {
	var e TicketmasterEvent
	if err := s.client.Call(ctx, "/events/"+url.PathEscape(id)+".json", nil, &e); err != nil {
		return nil, err
	}
	event := e.toExternal()
	return &event, nil
}

// ListAttractionEvents implements [EventsCatalog].
func (s *TicketmasterService) ListAttractionEvents(ctx context.Context, attractionID string, limit int) ([]ExternalEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	params := url.Values{}
	params.Set("attractionId", attractionID)
	params.Set("sort", "date,asc")
	params.Set("size", strconv.Itoa(limit))

	var page ticketmasterEventPage
	if err := s.client.Call(ctx, "/events.json", params, &page); err != nil {
		return nil, err
	}

	events := make([]ExternalEvent, 0, len(page.Embedded.Events))
	for _, e := range page.Embedded.Events {
		events = append(events, e.toExternal())
	}
	return events, nil
}

func (a TicketmasterAttraction) toExternal() ExternalArtist {
	artist := ExternalArtist{
		Source:         ProviderTicketmaster,
		Name:           a.Name,
		TicketmasterID: a.ID,
		URL:            a.URL,
		Genres:         a.genres(),
	}
	for _, img := range a.Images {
		artist.Images = append(artist.Images, models.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	for _, link := range a.ExternalLinks["spotify"] {
		if id := spotifyIDFromURL(link.URL); id != "" {
			artist.SpotifyID = id
			break
		}
	}
	for _, link := range a.ExternalLinks["musicbrainz"] {
		if link.ID != "" {
			artist.MBID = link.ID
			break
		}
	}
	return artist
}

// genres collects genre and sub-genre names, skipping Ticketmaster's "Undefined" placeholders.
func (a TicketmasterAttraction) genres() []string {
	var genres []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name == "" || strings.EqualFold(name, "undefined") || strings.EqualFold(name, "other") {
			return
		}
		key := strings.ToLower(name)
		if !seen[key] {
			seen[key] = true
			genres = append(genres, strings.ToLower(name))
		}
	}
	for _, c := range a.Classifications {
		add(c.Genre.Name)
		add(c.SubGenre.Name)
	}
	return genres
}

func (v TicketmasterVenue) toExternal() ExternalVenue {
	state := v.State.StateCode
	if state == "" {
		state = v.State.Name
	}
	country := v.Country.CountryCode
	if country == "" {
		country = v.Country.Name
	}
	return ExternalVenue{
		Source:         ProviderTicketmaster,
		Name:           v.Name,
		Address:        v.Address.Line1,
		City:           v.City.Name,
		State:          state,
		Country:        country,
		PostalCode:     v.PostalCode,
		Timezone:       v.Timezone,
		Latitude:       parseCoord(v.Location.Latitude),
		Longitude:      parseCoord(v.Location.Longitude),
		TicketmasterID: v.ID,
	}
}

func (e TicketmasterEvent) toExternal() ExternalEvent {
	event := ExternalEvent{
		ID:        e.ID,
		Name:      e.Name,
		Date:      e.Dates.Start.LocalDate,
		StartTime: e.Dates.Start.LocalTime,
		Status:    e.Dates.Status.Code,
		URL:       e.URL,
	}
	if len(e.Embedded.Venues) > 0 {
		venue := e.Embedded.Venues[0].toExternal()
		event.Venue = &venue
	}
	for _, a := range e.Embedded.Attractions {
		event.Artists = append(event.Artists, a.toExternal())
	}
	return event
}

func parseCoord(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// spotifyIDFromURL extracts the ID from an open.spotify.com/artist/{id} link.
func spotifyIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 2 && parts[0] == "artist" {
		return parts[1]
	}
	return ""
}
