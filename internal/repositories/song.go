package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

const songColumns = `id, artist_id, name, album, duration_ms, popularity, preview_url, isrc, spotify_id,
	vote_count, last_synced_at, created_at, updated_at`

// SongRepository persists [models.Song] rows, the canonical catalog used by the matcher.
type SongRepository struct {
	db *sql.DB
}

// NewSongRepository creates a new SongRepository with the given database connection
func NewSongRepository(db *sql.DB) *SongRepository {
	return &SongRepository{db: db}
}

// Create inserts a new song, generating its ID when empty.
func (r *SongRepository) Create(ctx context.Context, s *models.Song) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if s.ID == "" {
		s.ID = shared.GenerateID()
	}
	ts := now()
	s.CreatedAt, s.UpdatedAt = ts, ts

	query := `
		INSERT INTO songs (` + songColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ArtistID, s.Name, s.Album, s.DurationMS, s.Popularity, s.PreviewURL, s.ISRC,
		nullString(s.SpotifyID), s.VoteCount, nullTime(s.LastSyncedAt), ts, ts,
	)
	if err != nil {
		return writeError("insert song", err)
	}
	return nil
}

// Update writes the provider fields of an existing song. vote_count is owned by [VoteRepository].
func (r *SongRepository) Update(ctx context.Context, s *models.Song) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.UpdatedAt = now()

	query := `
		UPDATE songs
		SET artist_id = ?, name = ?, album = ?, duration_ms = ?, popularity = ?, preview_url = ?, isrc = ?,
			spotify_id = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ArtistID, s.Name, s.Album, s.DurationMS, s.Popularity, s.PreviewURL, s.ISRC,
		nullString(s.SpotifyID), nullTime(s.LastSyncedAt), s.UpdatedAt, s.ID,
	)
	if err != nil {
		return writeError("update song", err)
	}
	return checkAffected(result, "song", s.ID)
}

// Get retrieves a song by internal ID
func (r *SongRepository) Get(ctx context.Context, id string) (*models.Song, error) {
	return r.getBy(ctx, "id", id)
}

// GetBySpotifyID retrieves a song by Spotify track ID
func (r *SongRepository) GetBySpotifyID(ctx context.Context, id string) (*models.Song, error) {
	return r.getBy(ctx, "spotify_id", id)
}

// ListByArtist returns the artist's whole catalog ordered by name.
func (r *SongRepository) ListByArtist(ctx context.Context, artistID string) ([]*models.Song, error) {
	return r.list(ctx, `SELECT `+songColumns+` FROM songs WHERE artist_id = ? ORDER BY name`, artistID)
}

// TopByArtist returns the artist's n most popular songs.
func (r *SongRepository) TopByArtist(ctx context.Context, artistID string, n int) ([]*models.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE artist_id = ? ORDER BY popularity DESC, vote_count DESC, name LIMIT ?`
	return r.list(ctx, query, artistID, n)
}

func (r *SongRepository) getBy(ctx context.Context, column, value string) (*models.Song, error) {
	if value == "" {
		return nil, notFound("song", column+"=''")
	}
	s, err := scanSong(r.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE `+column+` = ?`, value))
	if err == sql.ErrNoRows {
		return nil, notFound("song", value)
	}
	return s, err
}

func (r *SongRepository) list(ctx context.Context, query string, args ...any) ([]*models.Song, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var songs []*models.Song
	for rows.Next() {
		s, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return songs, nil
}

func scanSong(sc scanner) (*models.Song, error) {
	var (
		s          models.Song
		spotifyID  sql.NullString
		lastSynced sql.NullTime
	)

	err := sc.Scan(&s.ID, &s.ArtistID, &s.Name, &s.Album, &s.DurationMS, &s.Popularity, &s.PreviewURL, &s.ISRC,
		&spotifyID, &s.VoteCount, &lastSynced, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	s.SpotifyID = spotifyID.String
	s.LastSyncedAt = timePtr(lastSynced)
	return &s, nil
}
