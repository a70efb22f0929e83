// Package services implements the provider catalogs ([EventsCatalog], [MusicCatalog], [SetlistCatalog])
// on top of a shared rate-limited [Client].
//
// # Client
//
// Every provider owns one [Client]. A Client serializes its calls with a mutex, spaces them with a
// golang.org/x/time/rate limiter (burst 1) and runs each request through a gobreaker circuit breaker
// so a provider outage fails fast instead of burning the rate budget. Responses are decoded with goccy/go-json.
//
// Default spacing: setlist.fm 1s, Ticketmaster 250ms, Spotify 100ms (see [shared.ProvidersConfig]).
//
// # Spotify
//
// [SpotifyService] uses the client-credentials flow. Tokens are cached by an [oauth2.ReuseTokenSourceWithExpiry]
// source and refreshed token_refresh_margin before expiry; a 401 drops the cache and retries once.
//
// # Ticketmaster
//
// [TicketmasterService] sends the key as the apikey query parameter. Attraction external links carry
// Spotify and MusicBrainz IDs, which the artist handler uses to cross-link catalogs.
//
// # setlist.fm
//
// [SetlistFMService] sends the key in the x-api-key header. Event dates arrive as dd-MM-yyyy and are
// normalized to YYYY-MM-DD; tape entries are dropped from setlists.
//
// # Error Handling
//
// Non-2xx answers become [*shared.ProviderError] carrying provider, endpoint, status and a truncated body.
// 4xx answers other than 429 do not count against the breaker. An open breaker returns a ProviderError
// wrapping [shared.ErrServiceUnavailable].
package services
