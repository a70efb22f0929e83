package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/setlistsync/internal/formatter"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/desertthunder/setlistsync/internal/tasks"
	"github.com/desertthunder/setlistsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetlistsExport writes each setlist with its songs to --output in the chosen format.
func (r *Runner) SetlistsExport(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one setlist ID is required", shared.ErrMissingArgument)
	}

	format := cmd.String("format")
	if !slices.Contains(formatter.Formats, format) {
		return fmt.Errorf("%w: unknown format %q (%s)", shared.ErrInvalidArgument, format, joinFormats())
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	opts := tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
	}
	if cmd.Bool("images") {
		opts.ImageClient = r.httpClient
	}

	r.logger.Info("exporting setlists", "count", len(ids), "format", format)
	r.writePlain("Exporting %d setlists as %s...\n\n", len(ids), format)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if update.Phase == tasks.ExportSetlist {
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := d.engine.BulkExport(ctx, progressCh, ids, opts)
	close(progressCh)
	<-done

	if err != nil && result == nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	r.writePlain("Exported: %s\n", ui.OK(fmt.Sprintf("%d/%d", result.SuccessfulExports, result.TotalSetlists)))
	if result.FailedExports > 0 {
		r.writePlain("Failed: %s\n", ui.Err(fmt.Sprint(result.FailedExports)))
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  ✗ %s: %s\n", res.Name, res.Error)
			}
		}
	}
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	return err
}
