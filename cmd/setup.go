package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the database and runs migrations.
//
// With the postgres queue driver the sync_jobs schema is created there too.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if cfg, err := shared.LoadConfig(configPath); err == nil {
				r.config = cfg
			} else {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path, "queue", r.config.Queue.Driver)

	d, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	stats, err := d.jobs.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	r.writePlain("%s\n", ui.OK("✓ setup complete"))
	r.writePlain("Database: %s\n", r.config.Database.Path)
	r.writePlain("Queue: %s (%d jobs)\n", queueDriver(r.config), stats.Total())
	r.writePlainln("Next steps:")
	r.writePlain("1. Fill in provider credentials in %s\n", configPath)
	r.writePlain("2. Run 'setlistsync sync artist <spotify-id>' to test a sync\n")
	return nil
}

func queueDriver(cfg *shared.Config) string {
	if cfg.Queue.Driver == "" {
		return "sqlite"
	}
	return cfg.Queue.Driver
}
