package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

const venueColumns = `id, name, address, city, state, country, postal_code, timezone, latitude, longitude,
	ticketmaster_id, setlistfm_id, last_synced_at, created_at, updated_at`

// VenueRepository persists [models.Venue] rows.
type VenueRepository struct {
	db *sql.DB
}

// NewVenueRepository creates a new VenueRepository with the given database connection
func NewVenueRepository(db *sql.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

// Create inserts a new venue, generating its ID when empty.
func (r *VenueRepository) Create(ctx context.Context, v *models.Venue) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if v.ID == "" {
		v.ID = shared.GenerateID()
	}
	ts := now()
	v.CreatedAt, v.UpdatedAt = ts, ts

	query := `
		INSERT INTO venues (` + venueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.Name, v.Address, v.City, v.State, v.Country, v.PostalCode, v.Timezone,
		nullFloat(v.Latitude), nullFloat(v.Longitude),
		nullString(v.TicketmasterID), nullString(v.SetlistFMID), nullTime(v.LastSyncedAt), ts, ts,
	)
	if err != nil {
		return writeError("insert venue", err)
	}
	return nil
}

// Update writes every mutable field of an existing venue.
func (r *VenueRepository) Update(ctx context.Context, v *models.Venue) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	v.UpdatedAt = now()

	query := `
		UPDATE venues
		SET name = ?, address = ?, city = ?, state = ?, country = ?, postal_code = ?, timezone = ?,
			latitude = ?, longitude = ?, ticketmaster_id = ?, setlistfm_id = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		v.Name, v.Address, v.City, v.State, v.Country, v.PostalCode, v.Timezone,
		nullFloat(v.Latitude), nullFloat(v.Longitude),
		nullString(v.TicketmasterID), nullString(v.SetlistFMID), nullTime(v.LastSyncedAt), v.UpdatedAt, v.ID,
	)
	if err != nil {
		return writeError("update venue", err)
	}
	return checkAffected(result, "venue", v.ID)
}

// Get retrieves a venue by internal ID
func (r *VenueRepository) Get(ctx context.Context, id string) (*models.Venue, error) {
	return r.getBy(ctx, "id", id)
}

// GetByTicketmasterID retrieves a venue by Ticketmaster venue ID
func (r *VenueRepository) GetByTicketmasterID(ctx context.Context, id string) (*models.Venue, error) {
	return r.getBy(ctx, "ticketmaster_id", id)
}

// GetBySetlistFMID retrieves a venue by setlist.fm venue ID
func (r *VenueRepository) GetBySetlistFMID(ctx context.Context, id string) (*models.Venue, error) {
	return r.getBy(ctx, "setlistfm_id", id)
}

func (r *VenueRepository) getBy(ctx context.Context, column, value string) (*models.Venue, error) {
	if value == "" {
		return nil, notFound("venue", column+"=''")
	}
	query := `SELECT ` + venueColumns + ` FROM venues WHERE ` + column + ` = ?`
	v, err := scanVenue(r.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, notFound("venue", value)
	}
	return v, err
}

func scanVenue(s scanner) (*models.Venue, error) {
	var (
		v          models.Venue
		lat, lng   sql.NullFloat64
		tmID       sql.NullString
		setlistID  sql.NullString
		lastSynced sql.NullTime
	)

	err := s.Scan(&v.ID, &v.Name, &v.Address, &v.City, &v.State, &v.Country, &v.PostalCode, &v.Timezone,
		&lat, &lng, &tmID, &setlistID, &lastSynced, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan venue: %w", err)
	}

	v.Latitude = floatPtr(lat)
	v.Longitude = floatPtr(lng)
	v.TicketmasterID = tmID.String
	v.SetlistFMID = setlistID.String
	v.LastSyncedAt = timePtr(lastSynced)
	return &v, nil
}
