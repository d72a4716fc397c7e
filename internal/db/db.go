package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SessionDSN names a private in-memory database that lives as long as its
// single connection.
const SessionDSN = ":memory:"

// Open opens a SQLite database, sets recommended pragmas, and validates connectivity.
// The pool is pinned to one connection so an in-memory database is shared by
// every caller and edits are applied one at a time.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	return db, nil
}
