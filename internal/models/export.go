package models

// SetlistExport is a setlist with the names needed to render it outside the database.
type SetlistExport struct {
	Setlist    Setlist `json:"setlist"`
	ArtistName string  `json:"artistName"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	ShowName   string  `json:"showName,omitempty"`
	VenueName  string  `json:"venueName,omitempty"`
	City       string  `json:"city,omitempty"`
}

// SetlistExportResult is the outcome of exporting one setlist.
type SetlistExportResult struct {
	SetlistID string   `json:"setlistId"`
	Name      string   `json:"name"`
	Success   bool     `json:"success"`
	Files     []string `json:"files,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// BulkExportResult summarizes an export of many setlists.
type BulkExportResult struct {
	TotalSetlists     int                   `json:"totalSetlists"`
	SuccessfulExports int                   `json:"successfulExports"`
	FailedExports     int                   `json:"failedExports"`
	OutputDirectory   string                `json:"outputDirectory"`
	ManifestPath      string                `json:"manifestPath,omitempty"`
	Results           []SetlistExportResult `json:"results"`
}
