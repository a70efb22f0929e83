package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

// VoteRepository records votes and keeps the denormalized vote_count columns in step.
type VoteRepository struct {
	db *sql.DB
}

// NewVoteRepository creates a new VoteRepository with the given database connection
func NewVoteRepository(db *sql.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// Record stores one vote by voterKey for the target and increments the target's counter.
//
// The insert is ignored when the voter already voted for the target, in which case the counter is
// untouched and Record returns false. A missing target rolls the vote back.
func (r *VoteRepository) Record(ctx context.Context, kind models.VoteTarget, targetID, voterKey string) (bool, error) {
	table, err := voteTable(kind)
	if err != nil {
		return false, err
	}
	if targetID == "" || voterKey == "" {
		return false, &shared.ValidationError{Field: "vote", Message: "target and voter are required"}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO votes (id, target_kind, target_id, voter_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, shared.GenerateID(), kind, targetID, voterKey, now())
	if err != nil {
		return false, fmt.Errorf("failed to insert vote: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if inserted == 0 {
		return false, nil
	}

	result, err = tx.ExecContext(ctx, "UPDATE "+table+" SET vote_count = vote_count + 1 WHERE id = ?", targetID)
	if err != nil {
		return false, fmt.Errorf("failed to increment vote count: %w", err)
	}
	if err := checkAffected(result, string(kind), targetID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit vote: %w", err)
	}
	return true, nil
}

// Count returns the denormalized vote counter of the target.
func (r *VoteRepository) Count(ctx context.Context, kind models.VoteTarget, targetID string) (int, error) {
	table, err := voteTable(kind)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRowContext(ctx, "SELECT vote_count FROM "+table+" WHERE id = ?", targetID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, notFound(string(kind), targetID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read vote count: %w", err)
	}
	return count, nil
}

func voteTable(kind models.VoteTarget) (string, error) {
	switch kind {
	case models.VoteSong:
		return "songs", nil
	case models.VoteSetlistSong:
		return "setlist_songs", nil
	}
	return "", &shared.ValidationError{Field: "targetKind", Message: fmt.Sprintf("unknown vote target %q", kind)}
}
