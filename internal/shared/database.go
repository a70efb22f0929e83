package shared

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteParams = "_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

// NewDatabase opens a connection to a SQLite database at the specified path.
// The path can be ":memory:" for an in-memory database.
//
// File databases run in WAL mode with a busy timeout and immediate write transactions so several
// workers can share one file. In-memory databases are pinned to a single connection because each
// connection would otherwise see its own empty database.
func NewDatabase(path string) (*sql.DB, error) {
	dsn := sqliteDSN(path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(path) {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool settings for the database.
// In-memory databases keep their single connection regardless of maxOpenConns.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	if db.Stats().MaxOpenConnections == 1 {
		return
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?" + sqliteParams
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	if isMemory(path) {
		return path + sep + sqliteParams
	}
	return path + sep + sqliteParams + "&_journal_mode=WAL"
}
