// Package db is the storage layer for the Automotive Attack Database: the
// canonical schema for attacks and their decomposed steps, migrations,
// maintainer mutations, read-only access to published legacy snapshots, and
// the release/snapshot workflow.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB

	// path the database was opened from. Snapshot publication logs it;
	// VACUUM INTO itself works on the live connection.
	path string
}

// OpenDB opens a database connection without touching the schema. Use this
// for published snapshot files, which must never be modified, and for the
// migrate commands which manage the schema themselves.
func OpenDB(path string) (*DB, error) {
	// The driver defaults foreign key enforcement to off. Step ownership
	// depends on it, and the pragma must apply to every pooled connection.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens a working database and brings its schema up to date by
// applying any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}

	return db, nil
}

// Path returns the filesystem path the database was opened from.
func (db *DB) Path() string {
	return db.path
}

// Ping verifies the file actually answers queries. sql.Open is lazy, so a
// corrupt or non-database file only fails on first use; the openability
// check relies on this.
func (db *DB) Ping() error {
	var one int
	if err := db.QueryRow("SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database did not answer: %w", err)
	}
	return nil
}
