package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/setlistsync/internal/shared"
)

type spotifyFake struct {
	tokens    atomic.Int32
	expiresIn int
	reject    atomic.Bool
}

func (f *spotifyFake) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("expected client_credentials grant, got %v", r.Form)
			}
			n := f.tokens.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":%d}`, n, f.expiresIn)
			return
		}

		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.reject.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/v1/artists/a1":
			w.Write([]byte(`{"id":"a1","name":"Phoebe Bridgers","genres":["indie"],"popularity":70,"followers":{"total":100},
				"images":[{"url":"s","width":64,"height":64},{"url":"l","width":640,"height":640}]}`))
		case "/v1/artists/a1/top-tracks":
			if r.URL.Query().Get("market") != "US" {
				t.Errorf("expected market US, got %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"tracks":[{"id":"t1","name":"Motion Sickness","duration_ms":230000,"popularity":80,
				"external_ids":{"isrc":"usabc"},"album":{"name":"Stranger in the Alps"},"artists":[{"id":"a1"}]}]}`))
		case "/v1/artists/a1/albums":
			w.Write([]byte(`{"items":[{"id":"al1","name":"Punisher"},{"id":"al2","name":"Punisher (Deluxe)"}],"next":null}`))
		case "/v1/albums/al1/tracks", "/v1/albums/al2/tracks":
			w.Write([]byte(`{"items":[{"id":"t2","name":"Kyoto","artists":[{"id":"a1"}]},
				{"id":"t3","name":"Guest Feature","artists":[{"id":"other"}]}],"next":null}`))
		case "/v1/search":
			if r.URL.Query().Get("type") != "artist" {
				t.Errorf("expected type=artist, got %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"artists":{"items":[{"id":"a1","name":"Phoebe Bridgers"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newSpotifyTest(t *testing.T, fake *spotifyFake, margin time.Duration) *SpotifyService {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	srv, err := NewSpotifyService(shared.SpotifyConfig{
		ClientID:           "id",
		ClientSecret:       "secret",
		BaseURL:            server.URL + "/v1",
		TokenURL:           server.URL + "/token",
		Market:             "US",
		TokenRefreshMargin: margin,
	}, server.Client(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return srv
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientSecret: "s"}, nil, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "id"}, nil, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Token Caching", func(t *testing.T) {
		t.Run("Reuses Token Until Margin", func(t *testing.T) {
			fake := &spotifyFake{expiresIn: 3600}
			srv := newSpotifyTest(t, fake, time.Minute)

			for range 3 {
				if _, err := srv.GetArtist(context.Background(), "a1"); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
			}
			if fake.tokens.Load() != 1 {
				t.Errorf("expected 1 token request, got %d", fake.tokens.Load())
			}
		})

		t.Run("Refreshes Inside Margin", func(t *testing.T) {
			fake := &spotifyFake{expiresIn: 30}
			srv := newSpotifyTest(t, fake, time.Minute)

			for range 2 {
				if _, err := srv.GetArtist(context.Background(), "a1"); err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
			}
			if fake.tokens.Load() != 2 {
				t.Errorf("expected a new token per call when expiry is inside the margin, got %d", fake.tokens.Load())
			}
		})

		t.Run("Unauthorized Drops Cached Token", func(t *testing.T) {
			fake := &spotifyFake{expiresIn: 3600}
			srv := newSpotifyTest(t, fake, time.Minute)

			if _, err := srv.GetArtist(context.Background(), "a1"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			fake.reject.Store(true)
			if _, err := srv.GetArtist(context.Background(), "a1"); err != nil {
				t.Fatalf("expected retry with a fresh token to succeed, got %v", err)
			}
			if fake.tokens.Load() != 2 {
				t.Errorf("expected 2 token requests, got %d", fake.tokens.Load())
			}
		})
	})

	t.Run("GetArtist", func(t *testing.T) {
		srv := newSpotifyTest(t, &spotifyFake{expiresIn: 3600}, time.Minute)

		artist, err := srv.GetArtist(context.Background(), "a1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if artist.SpotifyID != "a1" || artist.Popularity != 70 || artist.Followers != 100 {
			t.Errorf("unexpected artist %+v", artist)
		}
		if LargestImage(artist.Images) != "l" {
			t.Errorf("expected largest image 'l', got %s", LargestImage(artist.Images))
		}
	})

	t.Run("GetTopTracks", func(t *testing.T) {
		srv := newSpotifyTest(t, &spotifyFake{expiresIn: 3600}, time.Minute)

		tracks, err := srv.GetTopTracks(context.Background(), "a1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("expected 1 track, got %d", len(tracks))
		}
		if tracks[0].ISRC != "USABC" || tracks[0].Album != "Stranger in the Alps" {
			t.Errorf("unexpected track %+v", tracks[0])
		}
	})

	t.Run("ListArtistTracks", func(t *testing.T) {
		srv := newSpotifyTest(t, &spotifyFake{expiresIn: 3600}, time.Minute)

		tracks, err := srv.ListArtistTracks(context.Background(), "a1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 || tracks[0].Name != "Kyoto" || tracks[0].Album != "Punisher" {
			t.Errorf("expected deduplicated [Kyoto] from Punisher, got %+v", tracks)
		}
	})

	t.Run("SearchArtists", func(t *testing.T) {
		srv := newSpotifyTest(t, &spotifyFake{expiresIn: 3600}, time.Minute)

		artists, err := srv.SearchArtists(context.Background(), "Phoebe Bridgers")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(artists) != 1 || artists[0].SpotifyID != "a1" {
			t.Errorf("unexpected artists %+v", artists)
		}
	})

	t.Run("GetTrack Not Found", func(t *testing.T) {
		srv := newSpotifyTest(t, &spotifyFake{expiresIn: 3600}, time.Minute)

		_, err := srv.GetTrack(context.Background(), "missing")
		if !IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}
