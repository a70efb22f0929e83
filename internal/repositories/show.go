package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

const showColumns = `s.id, s.name, s.date, s.start_time, s.status, s.ticket_url, s.artist_id, s.venue_id,
	s.no_venue, s.ticketmaster_id, s.last_synced_at, s.created_at, s.updated_at`

// ShowRepository persists [models.Show] rows.
type ShowRepository struct {
	db *sql.DB
}

// NewShowRepository creates a new ShowRepository with the given database connection
func NewShowRepository(db *sql.DB) *ShowRepository {
	return &ShowRepository{db: db}
}

// ShowWithVenue pairs a show with its venue name for same-day matching.
type ShowWithVenue struct {
	Show      *models.Show
	VenueName string
}

// Create inserts a new show, generating its ID when empty.
func (r *ShowRepository) Create(ctx context.Context, s *models.Show) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if s.ID == "" {
		s.ID = shared.GenerateID()
	}
	ts := now()
	s.CreatedAt, s.UpdatedAt = ts, ts

	query := `
		INSERT INTO shows (id, name, date, start_time, status, ticket_url, artist_id, venue_id,
			no_venue, ticketmaster_id, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, s.Date, s.StartTime, s.Status, s.TicketURL, nullString(s.ArtistID), nullString(s.VenueID),
		s.NoVenue, nullString(s.TicketmasterID), nullTime(s.LastSyncedAt), ts, ts,
	)
	if err != nil {
		return writeError("insert show", err)
	}
	return nil
}

// Update writes every mutable field of an existing show.
func (r *ShowRepository) Update(ctx context.Context, s *models.Show) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	s.UpdatedAt = now()

	query := `
		UPDATE shows
		SET name = ?, date = ?, start_time = ?, status = ?, ticket_url = ?, artist_id = ?, venue_id = ?,
			no_venue = ?, ticketmaster_id = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Name, s.Date, s.StartTime, s.Status, s.TicketURL, nullString(s.ArtistID), nullString(s.VenueID),
		s.NoVenue, nullString(s.TicketmasterID), nullTime(s.LastSyncedAt), s.UpdatedAt, s.ID,
	)
	if err != nil {
		return writeError("update show", err)
	}
	return checkAffected(result, "show", s.ID)
}

// Get retrieves a show by internal ID
func (r *ShowRepository) Get(ctx context.Context, id string) (*models.Show, error) {
	return r.getBy(ctx, "id", id)
}

// GetByTicketmasterID retrieves a show by Ticketmaster event ID
func (r *ShowRepository) GetByTicketmasterID(ctx context.Context, id string) (*models.Show, error) {
	return r.getBy(ctx, "ticketmaster_id", id)
}

// ListByArtistAndDate returns the artist's shows on date (YYYY-MM-DD) with their venue names.
func (r *ShowRepository) ListByArtistAndDate(ctx context.Context, artistID, date string) ([]ShowWithVenue, error) {
	query := `
		SELECT ` + showColumns + `, COALESCE(v.name, '')
		FROM shows s
		LEFT JOIN venues v ON v.id = s.venue_id
		WHERE s.artist_id = ? AND s.date = ?
		ORDER BY s.created_at
	`
	rows, err := r.db.QueryContext(ctx, query, artistID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query shows: %w", err)
	}
	defer rows.Close()

	var shows []ShowWithVenue
	for rows.Next() {
		var venueName string
		s, err := scanShow(rows, &venueName)
		if err != nil {
			return nil, err
		}
		shows = append(shows, ShowWithVenue{Show: s, VenueName: venueName})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return shows, nil
}

// ListWithoutRelations returns shows still missing an artist link, or a venue link their event provides.
func (r *ShowRepository) ListWithoutRelations(ctx context.Context, limit int) ([]*models.Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows s
		WHERE s.artist_id IS NULL OR (s.venue_id IS NULL AND s.no_venue = 0)
		ORDER BY s.date LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query shows: %w", err)
	}
	defer rows.Close()

	var shows []*models.Show
	for rows.Next() {
		s, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return shows, nil
}

func (r *ShowRepository) getBy(ctx context.Context, column, value string) (*models.Show, error) {
	if value == "" {
		return nil, notFound("show", column+"=''")
	}
	query := `SELECT ` + showColumns + ` FROM shows s WHERE s.` + column + ` = ?`
	s, err := scanShow(r.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, notFound("show", value)
	}
	return s, err
}

func scanShow(sc scanner, extra ...any) (*models.Show, error) {
	var (
		s          models.Show
		artistID   sql.NullString
		venueID    sql.NullString
		tmID       sql.NullString
		lastSynced sql.NullTime
	)

	dest := []any{&s.ID, &s.Name, &s.Date, &s.StartTime, &s.Status, &s.TicketURL, &artistID, &venueID,
		&s.NoVenue, &tmID, &lastSynced, &s.CreatedAt, &s.UpdatedAt}
	err := sc.Scan(append(dest, extra...)...)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan show: %w", err)
	}

	s.ArtistID = artistID.String
	s.VenueID = venueID.String
	s.TicketmasterID = tmID.String
	s.LastSyncedAt = timePtr(lastSynced)
	return &s, nil
}
