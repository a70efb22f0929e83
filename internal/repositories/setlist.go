package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

const setlistColumns = `id, show_id, artist_id, kind, name, event_date, tour_name, setlistfm_id,
	last_synced_at, created_at, updated_at`

// SetlistRepository persists setlists and their ordered song links.
type SetlistRepository struct {
	db *sql.DB
}

// NewSetlistRepository creates a new SetlistRepository with the given database connection
func NewSetlistRepository(db *sql.DB) *SetlistRepository {
	return &SetlistRepository{db: db}
}

// Create inserts a new setlist, generating its ID when empty. Songs are not written.
func (r *SetlistRepository) Create(ctx context.Context, s *models.Setlist) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if s.ID == "" {
		s.ID = shared.GenerateID()
	}
	ts := now()
	s.CreatedAt, s.UpdatedAt = ts, ts

	query := `
		INSERT INTO setlists (` + setlistColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, nullString(s.ShowID), nullString(s.ArtistID), s.Kind, s.Name, s.EventDate, s.TourName,
		nullString(s.SetlistFMID), nullTime(s.LastSyncedAt), ts, ts,
	)
	if err != nil {
		return writeError("insert setlist", err)
	}
	return nil
}

// Update writes every mutable field of an existing setlist. Songs are not written.
func (r *SetlistRepository) Update(ctx context.Context, s *models.Setlist) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.UpdatedAt = now()

	query := `
		UPDATE setlists
		SET show_id = ?, artist_id = ?, kind = ?, name = ?, event_date = ?, tour_name = ?, setlistfm_id = ?,
			last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		nullString(s.ShowID), nullString(s.ArtistID), s.Kind, s.Name, s.EventDate, s.TourName,
		nullString(s.SetlistFMID), nullTime(s.LastSyncedAt), s.UpdatedAt, s.ID,
	)
	if err != nil {
		return writeError("update setlist", err)
	}
	return checkAffected(result, "setlist", s.ID)
}

// Get retrieves a setlist by internal ID
func (r *SetlistRepository) Get(ctx context.Context, id string) (*models.Setlist, error) {
	return r.getBy(ctx, "id = ?", id)
}

// GetBySetlistFMID retrieves a played setlist by setlist.fm ID
func (r *SetlistRepository) GetBySetlistFMID(ctx context.Context, id string) (*models.Setlist, error) {
	return r.getBy(ctx, "setlistfm_id = ?", id)
}

// GetPredictedForShow retrieves the votable setlist of a show.
func (r *SetlistRepository) GetPredictedForShow(ctx context.Context, showID string) (*models.Setlist, error) {
	return r.getBy(ctx, "show_id = ? AND kind = 'predicted'", showID)
}

// ReplaceSongs deletes every link of the setlist and inserts songs in one transaction.
//
// Positions are renumbered 1..n in slice order.
func (r *SetlistRepository) ReplaceSongs(ctx context.Context, setlistID string, songs []models.SetlistSong) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM setlist_songs WHERE setlist_id = ?", setlistID); err != nil {
		return fmt.Errorf("failed to clear setlist songs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO setlist_songs (id, setlist_id, song_id, position, is_encore, song_name, vote_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for i, song := range songs {
		if _, err := stmt.ExecContext(ctx, shared.GenerateID(), setlistID, nullString(song.SongID), i+1, song.IsEncore, song.SongName, ts); err != nil {
			return writeError("insert setlist song", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit setlist songs: %w", err)
	}
	return nil
}

// ListSongs returns the setlist's links ordered by position.
func (r *SetlistRepository) ListSongs(ctx context.Context, setlistID string) ([]models.SetlistSong, error) {
	query := `
		SELECT id, setlist_id, song_id, position, is_encore, song_name, vote_count, created_at
		FROM setlist_songs
		WHERE setlist_id = ?
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, setlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query setlist songs: %w", err)
	}
	defer rows.Close()

	var songs []models.SetlistSong
	for rows.Next() {
		var (
			s      models.SetlistSong
			songID sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.SetlistID, &songID, &s.Position, &s.IsEncore, &s.SongName, &s.VoteCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setlist song: %w", err)
		}
		s.SongID = songID.String
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return songs, nil
}

func (r *SetlistRepository) getBy(ctx context.Context, where string, arg string) (*models.Setlist, error) {
	if arg == "" {
		return nil, notFound("setlist", "''")
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+setlistColumns+` FROM setlists WHERE `+where, arg)
	s, err := scanSetlist(row)
	if err == sql.ErrNoRows {
		return nil, notFound("setlist", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan setlist: %w", err)
	}
	return s, nil
}

// ListEmptyPredictedByArtist returns predicted setlists of the artist's shows that have no songs yet.
func (r *SetlistRepository) ListEmptyPredictedByArtist(ctx context.Context, artistID string) ([]*models.Setlist, error) {
	query := `
		SELECT ` + setlistColumns + `
		FROM setlists
		WHERE kind = 'predicted'
			AND show_id IN (SELECT id FROM shows WHERE artist_id = ?)
			AND NOT EXISTS (SELECT 1 FROM setlist_songs ss WHERE ss.setlist_id = setlists.id)
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predicted setlists: %w", err)
	}
	defer rows.Close()

	var setlists []*models.Setlist
	for rows.Next() {
		s, err := scanSetlist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setlist: %w", err)
		}
		setlists = append(setlists, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return setlists, nil
}

func scanSetlist(sc scanner) (*models.Setlist, error) {
	var (
		s          models.Setlist
		showID     sql.NullString
		artistID   sql.NullString
		fmID       sql.NullString
		lastSynced sql.NullTime
	)
	err := sc.Scan(&s.ID, &showID, &artistID, &s.Kind, &s.Name, &s.EventDate, &s.TourName, &fmID,
		&lastSynced, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.ShowID = showID.String
	s.ArtistID = artistID.String
	s.SetlistFMID = fmID.String
	s.LastSyncedAt = timePtr(lastSynced)
	return &s, nil
}
