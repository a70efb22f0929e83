package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/setlistsync/internal/formatter"
	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/repositories"
)

// BulkExportOpts contains configuration for bulk setlist exports.
type BulkExportOpts struct {
	Format      string       // Export format: json, csv, markdown, txt
	OutputDir   string       // Base output directory (default: setlist_export_{epoch})
	NumWorkers  int          // Concurrent workers (default: 5)
	ImageClient *http.Client // Downloads artist images for markdown exports when set
}

// LoadExport reads a setlist with its songs and the names of its artist, show and venue.
func (e *Engine) LoadExport(ctx context.Context, setlistID string) (*models.SetlistExport, error) {
	s, err := e.stores.Setlists.Get(ctx, setlistID)
	if err != nil {
		return nil, err
	}
	if s.Songs, err = e.stores.Setlists.ListSongs(ctx, s.ID); err != nil {
		return nil, err
	}

	export := &models.SetlistExport{Setlist: *s}
	if s.ArtistID != "" {
		a, err := e.stores.Artists.Get(ctx, s.ArtistID)
		if err != nil && !repositories.IsNotFound(err) {
			return nil, err
		}
		if a != nil {
			export.ArtistName, export.ImageURL = a.Name, a.ImageURL
		}
	}
	if s.ShowID != "" {
		show, err := e.stores.Shows.Get(ctx, s.ShowID)
		if err != nil && !repositories.IsNotFound(err) {
			return nil, err
		}
		if show != nil {
			export.ShowName = show.Name
			if show.VenueID != "" {
				if v, err := e.stores.Venues.Get(ctx, show.VenueID); err == nil {
					export.VenueName, export.City = v.Name, v.City
				}
			}
		}
	}
	return export, nil
}

// BulkExport exports setlists concurrently and writes a manifest summarizing the results.
//
// Setlists are loaded by a single producer and rendered by a pool of workers. A failed setlist is
// recorded in the result without stopping the rest.
func (e *Engine) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, ids []string, opts BulkExportOpts) (*models.BulkExportResult, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("setlist_export_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &models.BulkExportResult{
		TotalSetlists:   len(ids),
		OutputDirectory: opts.OutputDir,
		Results:         make([]models.SetlistExportResult, 0, len(ids)),
	}

	jobs := make(chan *models.SetlistExport, len(ids))
	results := make(chan models.SetlistExportResult, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, id := range ids {
			if ctx.Err() != nil {
				return
			}
			export, err := e.LoadExport(ctx, id)
			if err != nil {
				results <- models.SetlistExportResult{
					SetlistID: id,
					Name:      fmt.Sprintf("Unknown (%s)", id),
					Error:     fmt.Sprintf("failed to load setlist: %v", err),
				}
				continue
			}
			jobs <- export
			sendProgress(prog, exportingUpdate(i+1, len(ids), export.Setlist.Name))
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Success {
			result.SuccessfulExports++
			sendProgress(prog, exportCompletedUpdate(completed, len(ids), res.Name, len(res.Files)))
		} else {
			result.FailedExports++
			sendProgress(prog, exportFailedUpdate(completed, len(ids), res.Name, res.Error))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteBulkExportManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func (e *Engine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan *models.SetlistExport,
	results chan<- models.SetlistExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()
	for export := range jobs {
		if ctx.Err() != nil {
			results <- models.SetlistExportResult{SetlistID: export.Setlist.ID, Name: export.Setlist.Name, Error: ctx.Err().Error()}
			continue
		}
		results <- exportSetlist(export, opts)
	}
}

// exportSetlist writes one setlist in the requested format.
func exportSetlist(export *models.SetlistExport, opts BulkExportOpts) models.SetlistExportResult {
	id := export.Setlist.ID
	result := models.SetlistExportResult{SetlistID: id, Name: export.Setlist.Name, Files: []string{}}

	switch opts.Format {
	case "csv":
		res, err := formatter.WriteCSVExport(export, filepath.Join(opts.OutputDir, id))
		if err != nil {
			result.Error = fmt.Sprintf("CSV export failed: %v", err)
			return result
		}
		result.Files = []string{res.SongsFile, res.MetadataFile}
	case "markdown":
		res, err := formatter.WriteMarkdownExport(export, filepath.Join(opts.OutputDir, id), opts.ImageClient)
		if err != nil {
			result.Error = fmt.Sprintf("markdown export failed: %v", err)
			return result
		}
		result.Files = res.Files
	case "txt":
		path, err := formatter.WriteTextExport(export, filepath.Join(opts.OutputDir, id+"_songs.txt"))
		if err != nil {
			result.Error = fmt.Sprintf("text export failed: %v", err)
			return result
		}
		result.Files = []string{path}
	default:
		path, err := formatter.WriteJSONExport(export, filepath.Join(opts.OutputDir, id+".json"))
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Files = []string{path}
	}
	result.Success = true
	return result
}
