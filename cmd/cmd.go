// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/setlistsync/internal/formatter"
	"github.com/urfave/cli/v3"
)

// app builds the root command. --config and --verbose apply to every subcommand.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "setlistsync",
		Usage:   "Sync artists, venues, shows, setlists and songs from Ticketmaster, Spotify and setlist.fm",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   r.configPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
			},
		},
		Before:   r.loadConfig,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, jobsCommand, syncCommand, workerCommand, serveCommand, setlistsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// setupCommand initializes the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// jobsCommand handles queue operations
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and drive the sync job queue",
		Commands: []*cli.Command{
			{
				Name:      "enqueue",
				Usage:     "Add a sync job for one entity",
				ArgsUsage: "<type> <id>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "priority",
						Usage: "Priority 1-10, lower runs first (default from config)",
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Attempts before the job fails (default from config)",
					},
					&cli.StringSliceFlag{
						Name:  "ref",
						Usage: "Reference data as key=value, e.g. --ref spotify_id=0C0XlULifJtAgn6ZNCW2eu",
					},
				},
				Action: r.JobsEnqueue,
			},
			{
				Name:  "process",
				Usage: "Claim and run up to --limit jobs now",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to process",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.JobsProcess,
			},
			{
				Name:  "list",
				Usage: "List jobs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (pending, processing, retrying, completed, failed)",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Filter by entity type",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to return",
						Value: 50,
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: table, json or csv",
						Value: "table",
					},
				},
				Action: r.JobsList,
			},
			{
				Name:      "show",
				Usage:     "Show one job",
				ArgsUsage: "<job-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.JobsShow,
			},
			{
				Name:  "stats",
				Usage: "Count jobs by status",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.JobsStats,
			},
			{
				Name:  "reclaim",
				Usage: "Return jobs stuck in processing to the retry pool",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Reclaim jobs whose last attempt started before this long ago (default queue.stuck_after)",
					},
				},
				Action: r.JobsReclaim,
			},
			{
				Name:   "refresh",
				Usage:  "Enqueue stale artists and shows missing an artist or venue",
				Action: r.JobsRefresh,
			},
		},
	}
}

// syncCommand runs entities through the orchestrator in-process
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Sync one entity now, or a batch from --file",
		ArgsUsage: "<type> <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "op",
				Usage: "Operation: refresh, create, expand_relations or cascade_sync",
				Value: "refresh",
			},
			&cli.StringSliceFlag{
				Name:  "ref",
				Usage: "Reference data as key=value",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "JSON file holding a list of tasks ({type, id, operation, priority, referenceData})",
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Tasks run concurrently per batch (default orchestrator.parallel_limit)",
			},
			&cli.BoolFlag{
				Name:  "dependency-check",
				Usage: "Run artists and venues before shows, and shows before setlists",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "retry",
				Usage: "Retry each failed task once (defaults to orchestrator.retry_failed)",
			},
			&cli.BoolFlag{
				Name:  "track",
				Usage: "Record operations in sync_operations",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the result as JSON",
			},
		},
		Action: r.Sync,
	}
}

// workerCommand runs queue workers and the scheduler
func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run supervised queue workers and the cron scheduler until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of workers (default queue.workers)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Do not run the reclaim and refresh sweeps",
			},
		},
		Action: r.Worker,
	}
}

// serveCommand runs the HTTP API next to the workers
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API with supervised workers and scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default server.host:server.port)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of workers (default queue.workers, 0 keeps the config value)",
			},
			&cli.BoolFlag{
				Name:  "api-only",
				Usage: "Serve the API without workers or scheduler",
			},
		},
		Action: r.Serve,
	}
}

// setlistsCommand handles setlist exports
func setlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setlists",
		Usage: "Setlist operations",
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Export setlists with their songs",
				ArgsUsage: "<setlist-id>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: " + joinFormats(),
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default setlist_export_{epoch})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent export workers",
						Value: 5,
					},
					&cli.BoolFlag{
						Name:  "images",
						Usage: "Download artist images for markdown exports",
					},
				},
				Action: r.SetlistsExport,
			},
		},
	}
}

func joinFormats() string { return strings.Join(formatter.Formats, ", ") }
