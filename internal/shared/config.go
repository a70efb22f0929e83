package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database     DatabaseConfig     `toml:"database"`
	Queue        QueueConfig        `toml:"queue"`
	Server       ServerConfig       `toml:"server"`
	Log          LogConfig          `toml:"log"`
	Providers    ProvidersConfig    `toml:"providers"`
	Sync         SyncConfig         `toml:"sync"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// QueueConfig controls the durable job queue and its workers.
//
// Driver selects where sync_jobs lives: "sqlite" shares the canonical database,
// "postgres" moves the queue onto PostgresDSN so many worker hosts can claim with SKIP LOCKED.
type QueueConfig struct {
	Driver             string        `toml:"driver"`
	PostgresDSN        string        `toml:"postgres_dsn"`
	Workers            int           `toml:"workers"`
	PollInterval       time.Duration `toml:"poll_interval"`
	BatchSize          int           `toml:"batch_size"`
	DefaultPriority    int           `toml:"default_priority"`
	DefaultMaxAttempts int           `toml:"default_max_attempts"`
	RetryBackoff       time.Duration `toml:"retry_backoff"`
	StuckAfter         time.Duration `toml:"stuck_after"`
	ReclaimSchedule    string        `toml:"reclaim_schedule"`
	RefreshSchedule    string        `toml:"refresh_schedule"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// LogConfig contains logger settings. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// ProvidersConfig contains credentials and pacing for the external catalogs.
type ProvidersConfig struct {
	Ticketmaster TicketmasterConfig `toml:"ticketmaster"`
	Spotify      SpotifyConfig      `toml:"spotify"`
	SetlistFM    SetlistFMConfig    `toml:"setlistfm"`
}

// TicketmasterConfig contains Ticketmaster Discovery API credentials.
type TicketmasterConfig struct {
	APIKey      string        `toml:"api_key"`
	BaseURL     string        `toml:"base_url"`
	MinInterval time.Duration `toml:"min_interval"`
}

// SpotifyConfig contains Spotify API client-credentials settings.
type SpotifyConfig struct {
	ClientID           string        `toml:"client_id"`
	ClientSecret       string        `toml:"client_secret"`
	BaseURL            string        `toml:"base_url"`
	TokenURL           string        `toml:"token_url"`
	Market             string        `toml:"market"`
	MinInterval        time.Duration `toml:"min_interval"`
	TokenRefreshMargin time.Duration `toml:"token_refresh_margin"`
}

// SetlistFMConfig contains setlist.fm API credentials.
type SetlistFMConfig struct {
	APIKey      string        `toml:"api_key"`
	BaseURL     string        `toml:"base_url"`
	MinInterval time.Duration `toml:"min_interval"`
}

// SyncConfig tunes the entity sync handlers.
type SyncConfig struct {
	ArtistFreshness       time.Duration    `toml:"artist_freshness"`
	VenueFreshness        time.Duration    `toml:"venue_freshness"`
	ShowFreshness         time.Duration    `toml:"show_freshness"`
	SetlistFreshness      time.Duration    `toml:"setlist_freshness"`
	SongFreshness         time.Duration    `toml:"song_freshness"`
	TopSongs              int              `toml:"top_songs"`
	MaxDiscoveredShows    int              `toml:"max_discovered_shows"`
	MaxDiscoveredSetlists int              `toml:"max_discovered_setlists"`
	CascadeDepth          int              `toml:"cascade_depth"`
	Precedence            PrecedenceConfig `toml:"precedence"`
}

// PrecedenceConfig lists, per merged field, the sources consulted in order.
//
// Valid sources are "music", "events", "setlist" and "stored".
type PrecedenceConfig struct {
	ArtistName    []string `toml:"artist_name"`
	ArtistGenres  []string `toml:"artist_genres"`
	VenueName     []string `toml:"venue_name"`
	VenueLocation []string `toml:"venue_location"`
	VenueGeo      []string `toml:"venue_geo"`
}

// OrchestratorConfig contains defaults for interactive sync batches.
type OrchestratorConfig struct {
	ParallelLimit int  `toml:"parallel_limit"`
	RetryFailed   bool `toml:"retry_failed"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, os.ErrExist)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
