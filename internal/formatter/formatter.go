// package formatter renders setlists and job listings as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/goccy/go-json"
)

// Formats lists the supported export formats.
var Formats = []string{"json", "csv", "markdown", "txt"}

// MarshalJSON encodes v, indented when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// ExportToCSV converts a setlist to CSV with columns: Position, Song, Encore, SongID, Votes
func ExportToCSV(export *models.SetlistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Song", "Encore", "SongID", "Votes"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, song := range export.Setlist.Songs {
		record := []string{
			strconv.Itoa(song.Position),
			song.SongName,
			strconv.FormatBool(song.IsEncore),
			song.SongID,
			strconv.Itoa(song.VoteCount),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a setlist to Markdown with an optional artist image.
//
// Encore songs are listed under their own heading.
func ExportToMarkdown(export *models.SetlistExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	s := export.Setlist

	fmt.Fprintf(&buf, "# %s\n\n", title(export))
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![%s](%s)\n\n", export.ArtistName, imageFilename)
	}

	fmt.Fprintf(&buf, "**Artist**: %s\n", export.ArtistName)
	if export.VenueName != "" {
		venue := export.VenueName
		if export.City != "" {
			venue += ", " + export.City
		}
		fmt.Fprintf(&buf, "**Venue**: %s\n", venue)
	}
	if s.EventDate != "" {
		fmt.Fprintf(&buf, "**Date**: %s\n", s.EventDate)
	}
	if s.TourName != "" {
		fmt.Fprintf(&buf, "**Tour**: %s\n", s.TourName)
	}
	fmt.Fprintf(&buf, "**Kind**: %s\n\n", s.Kind)

	buf.WriteString("## Songs\n\n")
	encore := false
	for _, song := range s.Songs {
		if song.IsEncore && !encore {
			buf.WriteString("\n## Encore\n\n")
			encore = true
		}
		line := fmt.Sprintf("%d. %s", song.Position, song.SongName)
		if s.Kind == models.SetlistPredicted {
			line += fmt.Sprintf(" (%d votes)", song.VoteCount)
		}
		if song.SongID == "" {
			line += " _unmatched_"
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a setlist to plain text
func ExportToText(export *models.SetlistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Setlist: %s\n", title(export))
	fmt.Fprintf(&buf, "Artist: %s\n", export.ArtistName)
	if export.VenueName != "" {
		fmt.Fprintf(&buf, "Venue: %s\n", export.VenueName)
	}
	fmt.Fprintf(&buf, "Songs: %d\n\n", len(export.Setlist.Songs))

	for _, song := range export.Setlist.Songs {
		encore := ""
		if song.IsEncore {
			encore = " [encore]"
		}
		fmt.Fprintf(&buf, "%d. %s%s\n", song.Position, song.SongName, encore)
	}

	return buf.Bytes(), nil
}

func title(export *models.SetlistExport) string {
	switch {
	case export.Setlist.Name != "":
		return export.Setlist.Name
	case export.ShowName != "":
		return export.ShowName
	default:
		return export.ArtistName
	}
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates a JSON representation of setlist metadata (without songs)
func ToMetadataJSON(export *models.SetlistExport) ([]byte, error) {
	meta := *export
	meta.Setlist.Songs = nil
	return MarshalJSON(meta, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	SongsFile    string
	MetadataFile string
}

// WriteCSVExport exports a setlist to CSV with an accompanying metadata JSON file.
//
// Defaults to the setlist ID as the base filename & creates {base}_songs.csv and {base}_metadata.json
func WriteCSVExport(export *models.SetlistExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = export.Setlist.ID
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	songsFile := baseFilepath + "_songs.csv"
	if err := os.WriteFile(songsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{SongsFile: songsFile, MetadataFile: metadataFile}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
	Image     string
	Warning   string
}

// WriteMarkdownExport exports a setlist to Markdown in a dedicated directory.
//
// Directory name defaults to the setlist ID. When client is non-nil and the export has an image URL,
// the artist image is downloaded next to the README; a failed download is reported in Warning.
func WriteMarkdownExport(export *models.SetlistExport, outputDir string, client *http.Client) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = export.Setlist.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var imageFilename string
	if client != nil && export.ImageURL != "" {
		imageData, err := DownloadImage(client, export.ImageURL)
		if err != nil {
			result.Warning = err.Error()
		} else {
			imageFilename = "artist.jpg"
			imagePath := filepath.Join(outputDir, imageFilename)
			if err := os.WriteFile(imagePath, imageData, 0644); err != nil {
				result.Warning = fmt.Sprintf("failed to save artist image: %v", err)
				imageFilename = ""
			} else {
				result.Image = imagePath
				result.Files = append(result.Files, imagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(export, imageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a setlist to plain text.
//
// Defaults to {setlist.ID}_songs.txt as the filename.
func WriteTextExport(export *models.SetlistExport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_songs.txt", export.Setlist.ID)
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport writes the full setlist export as indented JSON.
func WriteJSONExport(export *models.SetlistExport, path string) (string, error) {
	if path == "" {
		path = export.Setlist.ID + ".json"
	}
	data, err := MarshalJSON(export, true)
	if err != nil {
		return "", fmt.Errorf("JSON marshal failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("JSON write failed: %w", err)
	}
	return path, nil
}

// WriteBulkExportManifest writes the summary of a bulk export as JSON.
func WriteBulkExportManifest(result *models.BulkExportResult, path string) error {
	data, err := MarshalJSON(result, true)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// WriteJobsCSV writes a job listing as CSV.
func WriteJobsCSV(w io.Writer, jobs []*models.SyncJob) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"ID", "Type", "EntityID", "Status", "Priority", "Attempts", "MaxAttempts", "LastError", "CreatedAt"}); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = j.LastError.Message
		}
		record := []string{
			j.ID, string(j.EntityType), j.EntityID, string(j.Status),
			strconv.Itoa(j.Priority), strconv.Itoa(j.Attempts), strconv.Itoa(j.MaxAttempts),
			lastErr, j.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
