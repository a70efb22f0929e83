package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlistsync/internal/formatter"
	"github.com/desertthunder/setlistsync/internal/queue"
	"github.com/desertthunder/setlistsync/internal/repositories"
	"github.com/desertthunder/setlistsync/internal/services"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Stores and providers are opened lazily on first use so setup can run before a database exists.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
	providers  *tasks.Providers
	jobStore   queue.Store

	deps *deps
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Providers and Queue replace the config-built ones, for tests.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Providers  *tasks.Providers
	Queue      queue.Store
}

// deps are the opened stores and services shared by every command in one invocation.
type deps struct {
	db           *sql.DB
	pg           *repositories.PostgresJobRepository
	jobs         queue.Store
	stores       tasks.Stores
	artists      *repositories.ArtistRepository
	shows        *repositories.ShowRepository
	ops          *repositories.OperationRepository
	votes        *repositories.VoteRepository
	engine       *tasks.Engine
	orchestrator *tasks.Orchestrator
	processor    *queue.Processor
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		providers:  opts.Providers,
		jobStore:   opts.Queue,
	}
}

// loadConfig replaces the runner's config with the file named by --config when it exists.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path == "" {
		path = r.configPath
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config = cfg
		} else if cmd.IsSet("config") {
			return ctx, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
		r.configPath = path
	}

	if r.config.Log.File != "" {
		r.logger.SetOutput(shared.NewLogWriter(r.config.Log))
	}
	r.logger.SetLevel(shared.ParseLogLevel(r.config.Log.Level))
	if cmd.Bool("verbose") {
		r.logger.SetLevel(log.DebugLevel)
	}
	return ctx, nil
}

// open builds the stores, providers, engine and processor once per invocation.
func (r *Runner) open(ctx context.Context) (*deps, error) {
	if r.deps != nil {
		return r.deps, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	d := &deps{
		db: db,
		stores: tasks.Stores{
			Artists:  repositories.NewArtistRepository(db),
			Venues:   repositories.NewVenueRepository(db),
			Shows:    repositories.NewShowRepository(db),
			Songs:    repositories.NewSongRepository(db),
			Setlists: repositories.NewSetlistRepository(db),
		},
		ops:   repositories.NewOperationRepository(db),
		votes: repositories.NewVoteRepository(db),
	}
	d.artists, d.shows = d.stores.Artists, d.stores.Shows

	if d.jobs, d.pg, err = r.openQueue(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	providers := r.buildProviders()
	d.engine = tasks.NewEngine(d.stores, providers, d.jobs, r.config.Sync, r.logger.With("component", "engine"))
	d.orchestrator = tasks.NewOrchestrator(d.engine, d.ops, r.config.Orchestrator, r.logger)
	d.processor = queue.NewProcessor(d.jobs, d.engine, r.logger.With("component", "queue"))

	r.deps = d
	return d, nil
}

func (r *Runner) openQueue(ctx context.Context, db *sql.DB) (queue.Store, *repositories.PostgresJobRepository, error) {
	if r.jobStore != nil {
		return r.jobStore, nil, nil
	}

	defaults := repositories.JobDefaultsFromConfig(r.config.Queue)
	switch r.config.Queue.Driver {
	case "", "sqlite":
		return repositories.NewJobRepository(db, defaults), nil, nil
	case "postgres":
		if r.config.Queue.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("%w: queue.postgres_dsn is required for the postgres driver", shared.ErrInvalidConfig)
		}
		pg, err := repositories.NewPostgresJobRepository(ctx, r.config.Queue.PostgresDSN, defaults)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown queue driver %q", shared.ErrInvalidConfig, r.config.Queue.Driver)
	}
}

// buildProviders creates a client per configured provider. A provider without credentials stays nil
// and the handlers treat it as unavailable.
func (r *Runner) buildProviders() tasks.Providers {
	if r.providers != nil {
		return *r.providers
	}

	var p tasks.Providers
	cfg := r.config.Providers
	logger := r.logger.With("component", "providers")

	if tm, err := services.NewTicketmasterService(cfg.Ticketmaster, r.httpClient, logger); err == nil {
		p.Events = tm
	} else {
		logger.Warn("ticketmaster disabled", "err", err)
	}
	if sp, err := services.NewSpotifyService(cfg.Spotify, r.httpClient, logger); err == nil {
		p.Music = sp
	} else {
		logger.Warn("spotify disabled", "err", err)
	}
	if fm, err := services.NewSetlistFMService(cfg.SetlistFM, r.httpClient, logger); err == nil {
		p.Setlists = fm
	} else {
		logger.Warn("setlist.fm disabled", "err", err)
	}
	return p
}

// Close releases the stores opened by [Runner.open].
func (r *Runner) Close() error {
	if r.deps == nil {
		return nil
	}
	if r.deps.pg != nil {
		r.deps.pg.Close()
	}
	err := r.deps.db.Close()
	r.deps = nil
	return err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := formatter.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// isUsageError reports whether err came from bad command-line input rather than a failed run.
func isUsageError(err error) bool {
	return errors.Is(err, shared.ErrMissingArgument) || errors.Is(err, shared.ErrInvalidArgument) ||
		errors.Is(err, shared.ErrInvalidInput)
}
