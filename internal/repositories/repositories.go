// package repositories provides persistence layer implementations for all model types.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/setlistsync/internal/shared"
	json "github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
)

// nullString maps "" to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime maps a nil time to NULL.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	var values []string
	if raw == "" {
		return values
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

// isUniqueViolation reports whether err came from a SQLite UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isBusy reports SQLite lock contention, which a claim treats as "nothing for me".
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// writeError wraps a failed write, tagging unique violations with [shared.ErrConflict].
func writeError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: failed to %s: %v", shared.ErrConflict, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// checkAffected turns a zero-row update into a not-found error.
func checkAffected(result sql.Result, what, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s", shared.ErrNotFound, what, id)
	}
	return nil
}

func notFound(what, key string) error {
	return fmt.Errorf("%w: %s %s", shared.ErrNotFound, what, key)
}

// IsNotFound reports whether err is a repository miss.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

// IsConflict reports whether err is a unique constraint violation.
func IsConflict(err error) bool {
	return errors.Is(err, shared.ErrConflict)
}

func now() time.Time {
	return time.Now().UTC()
}
