package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./setlistsync.db" {
			t.Errorf("expected database path ./setlistsync.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if config.Queue.RetryBackoff != 5*time.Minute {
			t.Errorf("expected retry backoff 5m, got %v", config.Queue.RetryBackoff)
		}

		if config.Queue.DefaultPriority != 3 || config.Queue.DefaultMaxAttempts != 3 {
			t.Errorf("expected priority/max attempts 3/3, got %d/%d", config.Queue.DefaultPriority, config.Queue.DefaultMaxAttempts)
		}

		if config.Providers.SetlistFM.MinInterval <= config.Providers.Ticketmaster.MinInterval {
			t.Errorf("setlist.fm should be the most tightly spaced provider, got %v", config.Providers.SetlistFM.MinInterval)
		}

		if config.Orchestrator.ParallelLimit != 5 {
			t.Errorf("expected parallel limit 5, got %d", config.Orchestrator.ParallelLimit)
		}

		if got := config.Sync.Precedence.ArtistName; len(got) != 4 || got[0] != "music" {
			t.Errorf("expected artist name precedence to start with music, got %v", got)
		}
	})

	t.Run("DefaultConfig ships without provider credentials", func(t *testing.T) {
		p := DefaultConfig().Providers

		if p.Ticketmaster.APIKey != "" {
			t.Errorf("expected empty ticketmaster api_key, got %q", p.Ticketmaster.APIKey)
		}
		if p.Spotify.ClientID != "" || p.Spotify.ClientSecret != "" {
			t.Errorf("expected empty spotify credentials, got %q/%q", p.Spotify.ClientID, p.Spotify.ClientSecret)
		}
		if p.SetlistFM.APIKey != "" {
			t.Errorf("expected empty setlistfm api_key, got %q", p.SetlistFM.APIKey)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"
max_open_conns = 20
max_idle_conns = 10

[server]
host = "0.0.0.0"
port = 8080

[queue]
retry_backoff = "1m"

[providers.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}

		if config.Providers.Spotify.ClientID != "test_client_id" {
			t.Errorf("expected spotify client_id test_client_id, got %s", config.Providers.Spotify.ClientID)
		}

		if config.Queue.RetryBackoff != time.Minute {
			t.Errorf("expected retry backoff 1m, got %v", config.Queue.RetryBackoff)
		}

		if config.Queue.Workers != 4 {
			t.Errorf("unset values should keep defaults, got workers=%d", config.Queue.Workers)
		}
	})

	t.Run("LoadConfig rejects malformed toml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[queue\nworkers = "), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}
