package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/tasks"
	tu "github.com/desertthunder/setlistsync/internal/testing"
	"github.com/goccy/go-json"
)

const (
	killersSpotify = "0C0XlULifJtAgn6ZNCW2eu"
	killersMBID    = "95e1ead9-4d31-4808-a7ac-32c3614c116b"
)

type fixture struct {
	runner   *Runner
	output   *bytes.Buffer
	music    *tu.FakeMusic
	setlists *tu.FakeSetlists
	dir      string
}

// newFixture builds a runner on a temp database with fake providers.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "setlistsync.db")
	config.Log.File = ""

	music := tu.NewFakeMusic()
	music.Artists[killersSpotify] = &services.ExternalArtist{
		Source:    services.ProviderSpotify,
		Name:      "The Killers",
		SpotifyID: killersSpotify,
		Genres:    []string{"alternative rock"},
	}
	setlists := tu.NewFakeSetlists()
	setlists.Artists[killersMBID] = &services.ExternalArtist{
		Source: services.ProviderSetlistFM,
		Name:   "The Killers",
		MBID:   killersMBID,
	}

	output := &bytes.Buffer{}
	logger := shared.NewLogger(&bytes.Buffer{})
	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
		Output: output,
		Providers: &tasks.Providers{
			Events:   tu.NewFakeEvents(),
			Music:    music,
			Setlists: setlists,
		},
	})
	t.Cleanup(func() { runner.Close() })

	return &fixture{runner: runner, output: output, music: music, setlists: setlists, dir: dir}
}

// run executes the CLI with args, the program name prepended.
func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.output.Reset()
	return f.runner.app().Run(context.Background(), append([]string{"setlistsync"}, args...))
}

func (f *fixture) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	if err := f.run(t, args...); err != nil {
		t.Fatalf("setlistsync %s: %v", strings.Join(args, " "), err)
	}
	return f.output.String()
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			providers := &tasks.Providers{Music: tu.NewFakeMusic()}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "custom.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Providers:  providers,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.providers != providers {
				t.Error("expected providers to be set")
			}
			if runner.configPath != "custom.toml" {
				t.Errorf("expected configPath custom.toml, got %q", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected default http client")
			}
		})

		t.Run("providers without credentials stay nil", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(&bytes.Buffer{})})

			p := runner.buildProviders()
			if p.Events != nil || p.Music != nil || p.Setlists != nil {
				t.Errorf("expected no providers without credentials, got %+v", p)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes formatted text", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("Hello, %s!", "World"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "Hello, World!" {
				t.Errorf("expected %q, got %q", "Hello, World!", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			if err := runner.writePlain("test"); err == nil {
				t.Fatal("expected error from failing writer")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "jobs", "sync", "worker", "serve", "setlists"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, name := range want {
			if commands[i].Name != name {
				t.Errorf("expected command %d to be %q, got %q", i, name, commands[i].Name)
			}
		}
	})

	t.Run("parseRefs", func(t *testing.T) {
		tests := []struct {
			name    string
			pairs   []string
			want    map[string]any
			wantErr bool
		}{
			{name: "empty", pairs: nil, want: nil},
			{
				name:  "strings stay strings even when numeric",
				pairs: []string{"ticketmaster_id=12345", "name=The Killers"},
				want:  map[string]any{"ticketmaster_id": "12345", "name": "The Killers"},
			},
			{
				name:  "booleans and depth are typed",
				pairs: []string{"force=true", "depth=2"},
				want:  map[string]any{"force": true, "depth": 2},
			},
			{name: "missing equals", pairs: []string{"force"}, wantErr: true},
			{name: "empty key", pairs: []string{"=x"}, wantErr: true},
			{name: "non-numeric depth", pairs: []string{"depth=deep"}, wantErr: true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := parseRefs(tt.pairs)
				if tt.wantErr {
					if !errors.Is(err, shared.ErrInvalidArgument) {
						t.Fatalf("expected invalid argument error, got %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
				for k, v := range tt.want {
					if got[k] != v {
						t.Errorf("expected %s=%v (%T), got %v (%T)", k, v, v, got[k], got[k])
					}
				}
			})
		}
	})

	t.Run("isUsageError", func(t *testing.T) {
		if !isUsageError(shared.ErrMissingArgument) {
			t.Error("expected missing argument to be a usage error")
		}
		if !isUsageError(&shared.ValidationError{Field: "type", Message: "bad"}) {
			t.Error("expected validation errors to be usage errors")
		}
		if isUsageError(errors.New("disk full")) {
			t.Error("expected other errors not to be usage errors")
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		t.Run("explicit missing file fails", func(t *testing.T) {
			f := newFixture(t)
			err := f.run(t, "--config", filepath.Join(f.dir, "nope.toml"), "jobs", "stats")
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected missing config error, got %v", err)
			}
		})

		t.Run("setup creates the config file", func(t *testing.T) {
			f := newFixture(t)
			t.Chdir(f.dir)
			f.runner.configPath = ""

			out := f.mustRun(t, "setup")
			tu.AssertFileExists(t, filepath.Join(f.dir, "config.toml"))
			if !strings.Contains(out, "setup complete") {
				t.Errorf("expected completion message, got %q", out)
			}
		})
	})

	t.Run("jobs", func(t *testing.T) {
		t.Run("enqueue dedups and lists", func(t *testing.T) {
			f := newFixture(t)

			first := f.mustRun(t, "jobs", "enqueue", "--ref", "spotify_id="+killersSpotify, "artist", killersSpotify)
			second := f.mustRun(t, "jobs", "enqueue", "artist", killersSpotify)
			if first != second {
				t.Errorf("expected the pending job to be reused, got %q then %q", first, second)
			}

			out := f.mustRun(t, "jobs", "list", "--format", "json")
			var jobs []models.SyncJob
			if err := json.Unmarshal([]byte(out), &jobs); err != nil {
				t.Fatalf("failed to decode jobs: %v\n%s", err, out)
			}
			if len(jobs) != 1 || jobs[0].EntityID != killersSpotify || jobs[0].Status != models.JobPending {
				t.Fatalf("expected one pending artist job, got %+v", jobs)
			}
			if jobs[0].Ref(models.RefSpotifyID) != killersSpotify {
				t.Errorf("expected spotify reference, got %v", jobs[0].ReferenceData)
			}

			csv := f.mustRun(t, "jobs", "list", "--format", "csv")
			if lines := strings.Split(strings.TrimSpace(csv), "\n"); len(lines) != 2 {
				t.Errorf("expected header and one row, got %d lines", len(lines))
			}
		})

		t.Run("enqueue rejects unknown types", func(t *testing.T) {
			f := newFixture(t)
			err := f.run(t, "jobs", "enqueue", "album", "x")
			if !isUsageError(err) {
				t.Errorf("expected a usage error, got %v", err)
			}
		})

		t.Run("enqueue requires type and id", func(t *testing.T) {
			f := newFixture(t)
			if err := f.run(t, "jobs", "enqueue", "artist"); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected missing argument, got %v", err)
			}
		})

		t.Run("process runs pending jobs", func(t *testing.T) {
			f := newFixture(t)
			f.mustRun(t, "jobs", "enqueue", "artist", killersSpotify)

			out := f.mustRun(t, "jobs", "process", "--limit", "1", "--json")
			var result struct {
				Processed int `json:"processed"`
				Completed int `json:"completed"`
			}
			if err := json.Unmarshal([]byte(out), &result); err != nil {
				t.Fatalf("failed to decode result: %v\n%s", err, out)
			}
			if result.Processed != 1 || result.Completed != 1 {
				t.Errorf("expected one completed job, got %+v", result)
			}

			stats := f.mustRun(t, "jobs", "stats", "--json")
			var counts models.QueueStats
			if err := json.Unmarshal([]byte(stats), &counts); err != nil {
				t.Fatalf("failed to decode stats: %v", err)
			}
			if counts.Completed != 1 {
				t.Errorf("expected one completed job, got %+v", counts)
			}
		})

		t.Run("process on an empty queue", func(t *testing.T) {
			f := newFixture(t)
			out := f.mustRun(t, "jobs", "process")
			if !strings.Contains(out, "No jobs ready") {
				t.Errorf("expected empty message, got %q", out)
			}
		})

		t.Run("list rejects unknown status", func(t *testing.T) {
			f := newFixture(t)
			if err := f.run(t, "jobs", "list", "--status", "stuck"); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})

		t.Run("show unknown job", func(t *testing.T) {
			f := newFixture(t)
			if err := f.run(t, "jobs", "show", "missing"); !errors.Is(err, shared.ErrJobNotFound) {
				t.Errorf("expected job not found, got %v", err)
			}
		})

		t.Run("reclaim and refresh on an empty database", func(t *testing.T) {
			f := newFixture(t)
			if out := f.mustRun(t, "jobs", "reclaim", "--older-than", "1m"); !strings.Contains(out, "0 jobs") {
				t.Errorf("expected nothing reclaimed, got %q", out)
			}
			if out := f.mustRun(t, "jobs", "refresh"); !strings.Contains(out, "0 artists, 0 shows") {
				t.Errorf("expected nothing refreshed, got %q", out)
			}
		})
	})

	t.Run("sync", func(t *testing.T) {
		t.Run("single artist", func(t *testing.T) {
			f := newFixture(t)

			out := f.mustRun(t, "sync", "--json", "artist", killersSpotify)
			var result tasks.RunResult
			if err := json.Unmarshal([]byte(out), &result); err != nil {
				t.Fatalf("failed to decode result: %v\n%s", err, out)
			}
			if !result.Success || result.CompletedTasks != 1 {
				t.Errorf("expected one completed task, got %+v", result)
			}
		})

		t.Run("task file with a failing entity", func(t *testing.T) {
			f := newFixture(t)
			path := filepath.Join(f.dir, "tasks.json")
			list := `[
				{"type": "artist", "id": "` + killersSpotify + `", "operation": "refresh"},
				{"type": "artist", "id": "nobody", "operation": "create", "referenceData": {"spotify_id": "missing"}}
			]`
			if err := os.WriteFile(path, []byte(list), 0644); err != nil {
				t.Fatalf("failed to write task file: %v", err)
			}

			out := f.mustRun(t, "sync", "--file", path)
			if !strings.Contains(out, "Completed: 1") || !strings.Contains(out, "nobody") {
				t.Errorf("expected one success and the failing id in the summary, got:\n%s", out)
			}
		})

		t.Run("requires type and id", func(t *testing.T) {
			f := newFixture(t)
			if err := f.run(t, "sync", "artist"); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected missing argument, got %v", err)
			}
		})

		t.Run("invalid task file", func(t *testing.T) {
			f := newFixture(t)
			path := filepath.Join(f.dir, "bad.json")
			if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
				t.Fatalf("failed to write task file: %v", err)
			}
			if err := f.run(t, "sync", "--file", path); !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	})

	t.Run("setlists export", func(t *testing.T) {
		t.Run("rejects unknown format", func(t *testing.T) {
			f := newFixture(t)
			if err := f.run(t, "setlists", "export", "-f", "xml", "abc"); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})

		t.Run("missing setlists are reported", func(t *testing.T) {
			f := newFixture(t)
			dir := filepath.Join(f.dir, "export")

			out := f.mustRun(t, "setlists", "export", "-o", dir, "missing-1")
			if !strings.Contains(out, "0/1") || !strings.Contains(out, "Failed") {
				t.Errorf("expected a failed export in the summary, got:\n%s", out)
			}
			tu.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
		})
	})
}
