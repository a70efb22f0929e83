package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

const artistColumns = `id, name, image_url, genres, popularity, followers, ticketmaster_id, spotify_id, mbid,
	last_synced_at, catalog_synced_at, created_at, updated_at`

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

// ArtistRepository persists [models.Artist] rows.
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// Create inserts a new artist, generating its ID when empty.
func (r *ArtistRepository) Create(ctx context.Context, a *models.Artist) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if a.ID == "" {
		a.ID = shared.GenerateID()
	}
	ts := now()
	a.CreatedAt, a.UpdatedAt = ts, ts

	query := `
		INSERT INTO artists (` + artistColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Name, a.ImageURL, encodeStrings(a.Genres), a.Popularity, a.Followers,
		nullString(a.TicketmasterID), nullString(a.SpotifyID), nullString(a.MBID),
		nullTime(a.LastSyncedAt), nullTime(a.CatalogSyncedAt), ts, ts,
	)
	if err != nil {
		return writeError("insert artist", err)
	}
	return nil
}

// Update writes every mutable field of an existing artist.
func (r *ArtistRepository) Update(ctx context.Context, a *models.Artist) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	a.UpdatedAt = now()

	query := `
		UPDATE artists
		SET name = ?, image_url = ?, genres = ?, popularity = ?, followers = ?,
			ticketmaster_id = ?, spotify_id = ?, mbid = ?, last_synced_at = ?, catalog_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		a.Name, a.ImageURL, encodeStrings(a.Genres), a.Popularity, a.Followers,
		nullString(a.TicketmasterID), nullString(a.SpotifyID), nullString(a.MBID),
		nullTime(a.LastSyncedAt), nullTime(a.CatalogSyncedAt), a.UpdatedAt, a.ID,
	)
	if err != nil {
		return writeError("update artist", err)
	}
	return checkAffected(result, "artist", a.ID)
}

// MarkCatalogSynced stamps catalog_synced_at after the song catalog was imported.
func (r *ArtistRepository) MarkCatalogSynced(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, "UPDATE artists SET catalog_synced_at = ?, updated_at = ? WHERE id = ?", at.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark catalog synced: %w", err)
	}
	return checkAffected(result, "artist", id)
}

// Get retrieves an artist by internal ID
func (r *ArtistRepository) Get(ctx context.Context, id string) (*models.Artist, error) {
	return r.getBy(ctx, "id", id)
}

// GetByTicketmasterID retrieves an artist by Ticketmaster attraction ID
func (r *ArtistRepository) GetByTicketmasterID(ctx context.Context, id string) (*models.Artist, error) {
	return r.getBy(ctx, "ticketmaster_id", id)
}

// GetBySpotifyID retrieves an artist by Spotify artist ID
func (r *ArtistRepository) GetBySpotifyID(ctx context.Context, id string) (*models.Artist, error) {
	return r.getBy(ctx, "spotify_id", id)
}

// GetByMBID retrieves an artist by MusicBrainz ID
func (r *ArtistRepository) GetByMBID(ctx context.Context, mbid string) (*models.Artist, error) {
	return r.getBy(ctx, "mbid", mbid)
}

// FindByName returns the first artist whose name matches case-insensitively.
func (r *ArtistRepository) FindByName(ctx context.Context, name string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE name = ? COLLATE NOCASE ORDER BY created_at LIMIT 1`
	a, err := scanArtist(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, notFound("artist", name)
	}
	return a, err
}

// ListStale returns up to limit artists never synced or last synced before cutoff, oldest first.
func (r *ArtistRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Artist, error) {
	query := `
		SELECT ` + artistColumns + `
		FROM artists
		WHERE last_synced_at IS NULL OR last_synced_at < ?
		ORDER BY last_synced_at IS NOT NULL, last_synced_at ASC
		LIMIT ?
	`
	return r.list(ctx, query, cutoff.UTC(), limit)
}

// List returns artists ordered by name.
func (r *ArtistRepository) List(ctx context.Context, limit int) ([]*models.Artist, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `SELECT `+artistColumns+` FROM artists ORDER BY name LIMIT ?`, limit)
}

func (r *ArtistRepository) getBy(ctx context.Context, column, value string) (*models.Artist, error) {
	if value == "" {
		return nil, notFound("artist", column+"=''")
	}
	query := `SELECT ` + artistColumns + ` FROM artists WHERE ` + column + ` = ?`
	a, err := scanArtist(r.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, notFound("artist", value)
	}
	return a, err
}

func (r *ArtistRepository) list(ctx context.Context, query string, args ...any) ([]*models.Artist, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return artists, nil
}

// scanArtist scans one row into a [models.Artist]. [sql.ErrNoRows] is returned unwrapped.
func scanArtist(s scanner) (*models.Artist, error) {
	var (
		a             models.Artist
		genres        string
		tmID          sql.NullString
		spotifyID     sql.NullString
		mbid          sql.NullString
		lastSynced    sql.NullTime
		catalogSynced sql.NullTime
	)

	err := s.Scan(&a.ID, &a.Name, &a.ImageURL, &genres, &a.Popularity, &a.Followers,
		&tmID, &spotifyID, &mbid, &lastSynced, &catalogSynced, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}

	a.Genres = decodeStrings(genres)
	a.TicketmasterID = tmID.String
	a.SpotifyID = spotifyID.String
	a.MBID = mbid.String
	a.LastSyncedAt = timePtr(lastSynced)
	a.CatalogSyncedAt = timePtr(catalogSynced)
	return &a, nil
}
