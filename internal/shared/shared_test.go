package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNormalizeName(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "punctuation stripped", input: "Don't Stop Believin'", want: "dont stop believin"},
		{name: "extra whitespace", input: "  Song   Title  ", want: "song title"},
		{name: "mixed case", input: "SoNg TiTlE", want: "song title"},
		{name: "diacritics folded", input: "Beyoncé Déjà Vu", want: "beyonce deja vu"},
		{name: "symbols only", input: "?!...", want: ""},
		{name: "digits kept", input: "1979 (Remastered)", want: "1979 remastered"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	t.Run("IsPermanent", func(t *testing.T) {
		tc := []struct {
			name string
			err  error
			want bool
		}{
			{name: "not found", err: &NotFoundError{EntityType: "artist", EntityID: "x"}, want: true},
			{name: "wrapped validation", err: fmt.Errorf("enqueue: %w", &ValidationError{Field: "entityType", Message: "bad"}), want: true},
			{name: "provider", err: &ProviderError{Provider: "spotify", Status: 500}, want: false},
			{name: "persistence", err: NewPersistenceError("insert artist", errors.New("disk full")), want: false},
			{name: "dependency", err: &DependencyError{EntityType: "setlist", EntityID: "s", Needs: "artist"}, want: false},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := IsPermanent(tt.err); got != tt.want {
					t.Errorf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
				}
			})
		}
	})

	t.Run("ProviderError unwraps to ErrAPIRequest", func(t *testing.T) {
		err := fmt.Errorf("fetch: %w", &ProviderError{Provider: "setlistfm", Endpoint: "/setlist/1", Status: 404, Body: "nope"})
		if !errors.Is(err, ErrAPIRequest) {
			t.Error("expected ErrAPIRequest in chain")
		}

		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.NotFound() {
			t.Error("expected a 404 ProviderError")
		}
	})

	t.Run("NewPersistenceError nil", func(t *testing.T) {
		if NewPersistenceError("noop", nil) != nil {
			t.Error("expected nil for nil cause")
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tc := map[string]log.Level{
		"debug":   log.DebugLevel,
		" WARN ":  log.WarnLevel,
		"error":   log.ErrorLevel,
		"":        log.InfoLevel,
		"verbose": log.InfoLevel,
	}

	for input, want := range tc {
		if got := ParseLogLevel(input); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewDatabase(t *testing.T) {
	t.Run("memory database uses a single connection", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		ConfigureDatabase(db, 10, 5)
		if got := db.Stats().MaxOpenConnections; got != 1 {
			t.Errorf("expected 1 max open connection, got %d", got)
		}
	})

	t.Run("file database enables foreign keys", func(t *testing.T) {
		db, err := NewDatabase(t.TempDir() + "/test.db")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		var enabled int
		if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
			t.Fatalf("failed to read pragma: %v", err)
		}
		if enabled != 1 {
			t.Error("expected foreign keys to be enabled")
		}
	})
}
