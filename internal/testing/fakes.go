package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// calls counts fake provider calls by method.
type calls struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *calls) add(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// Calls returns the number of calls to method, or to every method when method is "".
func (c *calls) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if method != "" {
		return c.counts[method]
	}
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Reset zeroes the counters.
func (c *calls) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = nil
}

func notFound(provider, endpoint string) error {
	return &shared.ProviderError{Provider: provider, Endpoint: endpoint, Status: 404, Body: `{"error":"not found"}`}
}

// FakeEvents is an in-memory [services.EventsCatalog].
type FakeEvents struct {
	calls
	mu          sync.Mutex
	Attractions map[string]*services.ExternalArtist
	Venues      map[string]*services.ExternalVenue
	Events      map[string]*services.ExternalEvent
	// ByAttraction lists event IDs per attraction in date order.
	ByAttraction map[string][]string
	// Err, when set, is returned by every call.
	Err error
}

// NewFakeEvents returns an empty FakeEvents.
func NewFakeEvents() *FakeEvents {
	return &FakeEvents{
		Attractions:  map[string]*services.ExternalArtist{},
		Venues:       map[string]*services.ExternalVenue{},
		Events:       map[string]*services.ExternalEvent{},
		ByAttraction: map[string][]string{},
	}
}

func (f *FakeEvents) Name() string { return services.ProviderTicketmaster }

func (f *FakeEvents) GetAttraction(_ context.Context, id string) (*services.ExternalArtist, error) {
	f.add("GetAttraction")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if a, ok := f.Attractions[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/attractions/"+id)
}

func (f *FakeEvents) SearchAttractions(_ context.Context, name string) ([]services.ExternalArtist, error) {
	f.add("SearchAttractions")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []services.ExternalArtist
	for _, a := range f.Attractions {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(name)) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *FakeEvents) GetVenue(_ context.Context, id string) (*services.ExternalVenue, error) {
	f.add("GetVenue")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if v, ok := f.Venues[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/venues/"+id)
}

func (f *FakeEvents) GetEvent(_ context.Context, id string) (*services.ExternalEvent, error) {
	f.add("GetEvent")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if e, ok := f.Events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/events/"+id)
}

func (f *FakeEvents) ListAttractionEvents(_ context.Context, attractionID string, limit int) ([]services.ExternalEvent, error) {
	f.add("ListAttractionEvents")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []services.ExternalEvent
	for _, id := range f.ByAttraction[attractionID] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if e, ok := f.Events[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

// FakeMusic is an in-memory [services.MusicCatalog].
type FakeMusic struct {
	calls
	mu      sync.Mutex
	Artists map[string]*services.ExternalArtist
	Tracks  map[string]*services.ExternalTrack
	// TopTracks and Catalog list track IDs per artist.
	TopTracks map[string][]string
	Catalog   map[string][]string
	Err       error
}

// NewFakeMusic returns an empty FakeMusic.
func NewFakeMusic() *FakeMusic {
	return &FakeMusic{
		Artists:   map[string]*services.ExternalArtist{},
		Tracks:    map[string]*services.ExternalTrack{},
		TopTracks: map[string][]string{},
		Catalog:   map[string][]string{},
	}
}

func (f *FakeMusic) Name() string { return services.ProviderSpotify }

func (f *FakeMusic) GetArtist(_ context.Context, id string) (*services.ExternalArtist, error) {
	f.add("GetArtist")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if a, ok := f.Artists[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/artists/"+id)
}

func (f *FakeMusic) SearchArtists(_ context.Context, name string) ([]services.ExternalArtist, error) {
	f.add("SearchArtists")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []services.ExternalArtist
	for _, a := range f.Artists {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(name)) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *FakeMusic) tracks(ids []string) []services.ExternalTrack {
	out := make([]services.ExternalTrack, 0, len(ids))
	for _, id := range ids {
		if t, ok := f.Tracks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

func (f *FakeMusic) GetTopTracks(_ context.Context, artistID string) ([]services.ExternalTrack, error) {
	f.add("GetTopTracks")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.tracks(f.TopTracks[artistID]), nil
}

func (f *FakeMusic) ListArtistTracks(_ context.Context, artistID string) ([]services.ExternalTrack, error) {
	f.add("ListArtistTracks")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.tracks(f.Catalog[artistID]), nil
}

func (f *FakeMusic) GetTrack(_ context.Context, id string) (*services.ExternalTrack, error) {
	f.add("GetTrack")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if t, ok := f.Tracks[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/tracks/"+id)
}

// FakeSetlists is an in-memory [services.SetlistCatalog].
type FakeSetlists struct {
	calls
	mu       sync.Mutex
	Artists  map[string]*services.ExternalArtist
	Setlists map[string]*services.ExternalSetlist
	Venues   map[string]*services.ExternalVenue
	// ByArtist lists setlist IDs per MBID, newest first.
	ByArtist map[string][]string
	Err      error
}

// NewFakeSetlists returns an empty FakeSetlists.
func NewFakeSetlists() *FakeSetlists {
	return &FakeSetlists{
		Artists:  map[string]*services.ExternalArtist{},
		Setlists: map[string]*services.ExternalSetlist{},
		Venues:   map[string]*services.ExternalVenue{},
		ByArtist: map[string][]string{},
	}
}

func (f *FakeSetlists) Name() string { return services.ProviderSetlistFM }

func (f *FakeSetlists) GetArtist(_ context.Context, mbid string) (*services.ExternalArtist, error) {
	f.add("GetArtist")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if a, ok := f.Artists[mbid]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/artist/"+mbid)
}

func (f *FakeSetlists) SearchArtists(_ context.Context, name string) ([]services.ExternalArtist, error) {
	f.add("SearchArtists")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []services.ExternalArtist
	for _, a := range f.Artists {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(name)) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *FakeSetlists) ListArtistSetlists(_ context.Context, mbid string, page int) ([]services.ExternalSetlist, error) {
	f.add("ListArtistSetlists")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if page > 1 {
		return nil, nil
	}
	var out []services.ExternalSetlist
	for _, id := range f.ByArtist[mbid] {
		if sl, ok := f.Setlists[id]; ok {
			out = append(out, *sl)
		}
	}
	return out, nil
}

func (f *FakeSetlists) GetSetlist(_ context.Context, id string) (*services.ExternalSetlist, error) {
	f.add("GetSetlist")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if sl, ok := f.Setlists[id]; ok {
		cp := *sl
		cp.Songs = append([]services.SetlistEntry(nil), sl.Songs...)
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/setlist/"+id)
}

func (f *FakeSetlists) GetVenue(_ context.Context, id string) (*services.ExternalVenue, error) {
	f.add("GetVenue")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if v, ok := f.Venues[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, notFound(f.Name(), "/venue/"+id)
}

// Outage is a transient provider failure for fakes' Err field.
func Outage(provider string) error {
	return &shared.ProviderError{Provider: provider, Endpoint: "/", Status: 503, Body: fmt.Sprintf("%s unavailable", provider)}
}
