package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
)

// OperationRepository persists orchestrator [models.OperationRecord] rows.
type OperationRepository struct {
	db *sql.DB
}

// NewOperationRepository creates a new OperationRepository with the given database connection
func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Save inserts the record or updates its status, message and finish time.
func (r *OperationRepository) Save(ctx context.Context, rec *models.OperationRecord) error {
	query := `
		INSERT INTO sync_operations (id, batch_id, entity_type, entity_id, operation, status, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			finished_at = excluded.finished_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.BatchID, rec.EntityType, rec.EntityID, rec.Operation, rec.Status, rec.Message,
		rec.StartedAt.UTC(), nullTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

// ListBatch returns the records of one orchestrator run in start order.
func (r *OperationRepository) ListBatch(ctx context.Context, batchID string) ([]*models.OperationRecord, error) {
	query := `
		SELECT id, batch_id, entity_type, entity_id, operation, status, message, started_at, finished_at
		FROM sync_operations
		WHERE batch_id = ?
		ORDER BY started_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var records []*models.OperationRecord
	for rows.Next() {
		var (
			rec      models.OperationRecord
			finished sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.EntityType, &rec.EntityID, &rec.Operation, &rec.Status,
			&rec.Message, &rec.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		rec.FinishedAt = timePtr(finished)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}
