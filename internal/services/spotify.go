// Spotify Web API implementation of [MusicCatalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxCatalogAlbums = 50

type followers struct {
	Total int `json:"total"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track. Album tracks omit Album, Popularity and ExternalIDs.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	PreviewURL  string          `json:"preview_url"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres"`
	Images     []SpotifyImage `json:"images"`
	Popularity int            `json:"popularity"`
	Followers  followers      `json:"followers"`
	URI        string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AlbumType   string         `json:"album_type"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	Images      []SpotifyImage `json:"images"`
}

type spotifyPage[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

// SpotifyService implements [MusicCatalog] with client-credentials bearer tokens.
//
// Tokens are cached and refreshed TokenRefreshMargin before they expire.
type SpotifyService struct {
	client *Client
	market string

	mu     sync.Mutex
	newSrc func() oauth2.TokenSource
	tokens oauth2.TokenSource
}

// NewSpotifyService creates a Spotify client from cfg.
func NewSpotifyService(cfg shared.SpotifyConfig, httpClient *http.Client, logger *log.Logger) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	margin := cfg.TokenRefreshMargin

	s := &SpotifyService{market: cfg.Market}
	s.newSrc = func() oauth2.TokenSource {
		return oauth2.ReuseTokenSourceWithExpiry(nil, tokenFetcher{ctx: tokenCtx, cfg: cc}, margin)
	}
	s.tokens = s.newSrc()

	s.client = NewClient(ClientOptions{
		Name:        ProviderSpotify,
		BaseURL:     cfg.BaseURL,
		MinInterval: cfg.MinInterval,
		HTTPClient:  httpClient,
		Logger:      logger,
		Authorize:   s.authorize,
	})
	return s, nil
}

// tokenFetcher always requests a fresh token; caching is left to the reuse source wrapping it.
type tokenFetcher struct {
	ctx context.Context
	cfg *clientcredentials.Config
}

func (f tokenFetcher) Token() (*oauth2.Token, error) {
	return f.cfg.Token(f.ctx)
}

func (s *SpotifyService) authorize(req *http.Request) error {
	s.mu.Lock()
	src := s.tokens
	s.mu.Unlock()

	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTokenRefresh, err)
	}
	tok.SetAuthHeader(req)
	return nil
}

// resetToken drops the cached token so the next call fetches a new one.
func (s *SpotifyService) resetToken() {
	s.mu.Lock()
	s.tokens = s.newSrc()
	s.mu.Unlock()
}

func (s *SpotifyService) Name() string { return ProviderSpotify }

// Client exposes the underlying rate-limited client.
func (s *SpotifyService) Client() *Client { return s.client }

// call retries once with a fresh token when Spotify rejects the cached one.
func (s *SpotifyService) call(ctx context.Context, endpoint string, params url.Values, out any) error {
	err := s.client.Call(ctx, endpoint, params, out)
	var perr *shared.ProviderError
	if errors.As(err, &perr) && perr.Status == http.StatusUnauthorized {
		s.resetToken()
		return s.client.Call(ctx, endpoint, params, out)
	}
	return err
}

// GetArtist implements [MusicCatalog].
func (s *SpotifyService) GetArtist(ctx context.Context, id string) (*ExternalArtist, error) {
	var a SpotifyArtist
	if err := s.call(ctx, "/artists/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	artist := a.toExternal()
	return &artist, nil
}

// SearchArtists implements [MusicCatalog].
func (s *SpotifyService) SearchArtists(ctx context.Context, name string) ([]ExternalArtist, error) {
	params := url.Values{}
	params.Set("q", name)
	params.Set("type", "artist")
	params.Set("limit", "10")

	var response struct {
		Artists spotifyPage[SpotifyArtist] `json:"artists"`
	}
	if err := s.call(ctx, "/search", params, &response); err != nil {
		return nil, err
	}

	artists := make([]ExternalArtist, 0, len(response.Artists.Items))
	for _, a := range response.Artists.Items {
		artists = append(artists, a.toExternal())
	}
	return artists, nil
}

// GetTopTracks implements [MusicCatalog].
func (s *SpotifyService) GetTopTracks(ctx context.Context, artistID string) ([]ExternalTrack, error) {
	params := url.Values{}
	params.Set("market", s.marketOrDefault())

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.call(ctx, "/artists/"+url.PathEscape(artistID)+"/top-tracks", params, &response); err != nil {
		return nil, err
	}

	tracks := make([]ExternalTrack, 0, len(response.Tracks))
	for _, t := range response.Tracks {
		tracks = append(tracks, t.toExternal(t.Album.Name))
	}
	return tracks, nil
}

// ListArtistTracks implements [MusicCatalog]. Tracks repeated across releases keep their first occurrence.
func (s *SpotifyService) ListArtistTracks(ctx context.Context, artistID string) ([]ExternalTrack, error) {
	albums, err := s.artistAlbums(ctx, artistID)
	if err != nil {
		return nil, err
	}

	var tracks []ExternalTrack
	seen := make(map[string]bool)
	for _, album := range albums {
		albumTracks, err := s.albumTracks(ctx, album)
		if err != nil {
			return nil, err
		}
		for _, t := range albumTracks {
			if !slices.Contains(t.ArtistIDs, artistID) {
				continue
			}
			key := shared.NormalizeName(t.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func (s *SpotifyService) artistAlbums(ctx context.Context, artistID string) ([]SpotifyAlbum, error) {
	var albums []SpotifyAlbum
	offset := 0
	for len(albums) < maxCatalogAlbums {
		params := url.Values{}
		params.Set("include_groups", "album,single")
		params.Set("market", s.marketOrDefault())
		params.Set("limit", "50")
		params.Set("offset", strconv.Itoa(offset))

		var page spotifyPage[SpotifyAlbum]
		if err := s.call(ctx, "/artists/"+url.PathEscape(artistID)+"/albums", params, &page); err != nil {
			return nil, err
		}
		albums = append(albums, page.Items...)
		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}
	if len(albums) > maxCatalogAlbums {
		albums = albums[:maxCatalogAlbums]
	}
	return albums, nil
}

func (s *SpotifyService) albumTracks(ctx context.Context, album SpotifyAlbum) ([]ExternalTrack, error) {
	var tracks []ExternalTrack
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", "50")
		params.Set("offset", strconv.Itoa(offset))

		var page spotifyPage[SpotifyTrack]
		if err := s.call(ctx, "/albums/"+url.PathEscape(album.ID)+"/tracks", params, &page); err != nil {
			return nil, err
		}
		for _, t := range page.Items {
			tracks = append(tracks, t.toExternal(album.Name))
		}
		if page.Next == nil || len(page.Items) == 0 {
			return tracks, nil
		}
		offset += len(page.Items)
	}
}

// GetTrack implements [MusicCatalog].
func (s *SpotifyService) GetTrack(ctx context.Context, id string) (*ExternalTrack, error) {
	var t SpotifyTrack
	if err := s.call(ctx, "/tracks/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	track := t.toExternal(t.Album.Name)
	return &track, nil
}

func (s *SpotifyService) marketOrDefault() string {
	if s.market == "" {
		return "US"
	}
	return s.market
}

func (a SpotifyArtist) toExternal() ExternalArtist {
	artist := ExternalArtist{
		Source:     ProviderSpotify,
		Name:       a.Name,
		SpotifyID:  a.ID,
		Genres:     a.Genres,
		Popularity: a.Popularity,
		Followers:  a.Followers.Total,
	}
	if a.ID != "" {
		artist.URL = "https://open.spotify.com/artist/" + a.ID
	}
	for _, img := range a.Images {
		artist.Images = append(artist.Images, models.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return artist
}

func (t SpotifyTrack) toExternal(album string) ExternalTrack {
	track := ExternalTrack{
		ID:         t.ID,
		Name:       t.Name,
		Album:      album,
		DurationMS: t.DurationMS,
		Popularity: t.Popularity,
		PreviewURL: t.PreviewURL,
		ISRC:       strings.ToUpper(t.ExternalIDs.ISRC),
	}
	for _, a := range t.Artists {
		track.ArtistIDs = append(track.ArtistIDs, a.ID)
	}
	return track
}
