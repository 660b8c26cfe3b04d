package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// DatasetVersion is one published release of the dataset. Rows are written
// at publication time and never changed afterwards; the counts record what
// the release contained so later verification doesn't depend on the
// snapshot file itself.
type DatasetVersion struct {
	ID          int       `json:"id" yaml:"id"`
	Label       string    `json:"label" yaml:"label"`
	AttackCount int       `json:"attack_count" yaml:"attack_count"`
	StepCount   int       `json:"step_count" yaml:"step_count"`
	Notes       string    `json:"notes" yaml:"notes"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
}

// Versions returns the recorded releases, oldest first.
func (db *DB) Versions() ([]DatasetVersion, error) {
	rows, err := db.Query(`
		SELECT id, label, attack_count, step_count, notes, published_at
		FROM dataset_versions
		ORDER BY published_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset versions: %w", err)
	}
	defer rows.Close()

	var versions []DatasetVersion
	for rows.Next() {
		var v DatasetVersion
		var publishedAtUnix int64
		if err := rows.Scan(&v.ID, &v.Label, &v.AttackCount, &v.StepCount, &v.Notes, &publishedAtUnix); err != nil {
			return nil, fmt.Errorf("failed to scan dataset version: %w", err)
		}
		v.PublishedAt = time.Unix(publishedAtUnix, 0)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset versions: %w", err)
	}
	return versions, nil
}

// Version returns the release with the given label.
func (db *DB) Version(label string) (*DatasetVersion, error) {
	var v DatasetVersion
	var publishedAtUnix int64
	err := db.QueryRow(`
		SELECT id, label, attack_count, step_count, notes, published_at
		FROM dataset_versions
		WHERE label = ?
	`, label).Scan(&v.ID, &v.Label, &v.AttackCount, &v.StepCount, &v.Notes, &publishedAtUnix)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset version %q not found", label)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset version: %w", err)
	}
	v.PublishedAt = time.Unix(publishedAtUnix, 0)
	return &v, nil
}

// PublishSnapshot stamps a new release in the working database and writes
// an immutable copy of it to destPath. The stamped dataset_versions row is
// part of the snapshot, so every published file knows its own release. An
// existing file at destPath is never overwritten: snapshots are immutable
// once published, corrections go into the next version.
func (db *DB) PublishSnapshot(label, notes, destPath string) (*DatasetVersion, error) {
	if label == "" {
		return nil, fmt.Errorf("version label must not be empty")
	}
	if _, err := os.Stat(destPath); err == nil {
		return nil, fmt.Errorf("snapshot %s already exists; published snapshots are immutable", destPath)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to check snapshot path: %w", err)
	}

	if dir := filepath.Dir(destPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	attackCount, err := db.AttackCount()
	if err != nil {
		return nil, err
	}
	stepCount, err := db.StepCount()
	if err != nil {
		return nil, err
	}

	result, err := db.Exec(`
		INSERT INTO dataset_versions (label, attack_count, step_count, notes)
		VALUES (?, ?, ?, ?)
	`, label, attackCount, stepCount, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to record dataset version %q: %w", label, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	if _, err := db.Exec("VACUUM INTO ?", destPath); err != nil {
		// Roll the stamp back so a failed publish leaves no trace.
		if _, derr := db.Exec("DELETE FROM dataset_versions WHERE id = ?", id); derr != nil {
			log.Printf("failed to remove version stamp after failed snapshot: %v", derr)
		}
		return nil, fmt.Errorf("failed to write snapshot %s: %w", destPath, err)
	}

	log.Printf("published %s: %d attacks, %d steps -> %s", label, attackCount, stepCount, destPath)
	return db.Version(label)
}
