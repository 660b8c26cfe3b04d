package db

import (
	"fmt"
	"sort"

	"github.com/autosec-data/aad/internal/taxonomy"
)

// CountRow is one bucket of an aggregation: a classification value and the
// number of attacks carrying it.
type CountRow struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// AttacksByYear groups attacks by their normalised four digit year. Raw year
// cells carry citation markers, so grouping happens on the extracted year;
// rows without a recognisable year land in the "unknown" bucket.
func (db *DB) AttacksByYear() ([]CountRow, error) {
	rows, err := db.Query("SELECT year, COUNT(*) FROM attacks GROUP BY year")
	if err != nil {
		return nil, fmt.Errorf("failed to group attacks by year: %w", err)
	}
	defer rows.Close()

	merged := make(map[string]int)
	for rows.Next() {
		var raw string
		var count int
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, fmt.Errorf("failed to scan year bucket: %w", err)
		}
		year := taxonomy.ExtractYear(raw)
		if year == "" {
			year = "unknown"
		}
		merged[year] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating year buckets: %w", err)
	}

	out := make([]CountRow, 0, len(merged))
	for year, count := range merged {
		out = append(out, CountRow{Value: year, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

// TopAttackTypes returns the most frequent attack types, descending. A limit
// of zero returns all of them.
func (db *DB) TopAttackTypes(limit int) ([]CountRow, error) {
	return db.countColumn("attack_type", limit)
}

// ViolatedProperties returns the distribution of violated security
// properties, descending. Compound cells ("Integrity, Availability") are
// counted as published, one bucket per distinct cell, matching how the
// original analysis reported them.
func (db *DB) ViolatedProperties(limit int) ([]CountRow, error) {
	return db.countColumn("violated_property", limit)
}

func (db *DB) countColumn(column string, limit int) ([]CountRow, error) {
	// column names come from the two callers above, never from input
	query := fmt.Sprintf(
		`SELECT %s, COUNT(*) as n FROM attacks WHERE %s != '' GROUP BY %s ORDER BY n DESC, %s ASC`,
		column, column, column, column,
	)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to group attacks by %s: %w", column, err)
	}
	defer rows.Close()

	var out []CountRow
	for rows.Next() {
		var row CountRow
		if err := rows.Scan(&row.Value, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s bucket: %w", column, err)
		}
		row.Value = taxonomy.Normalize(row.Value)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s buckets: %w", column, err)
	}
	return out, nil
}

// StepCountsPerAttack returns, for every attack, how many steps its
// decomposition has. Attacks with no recorded steps count as zero.
func (db *DB) StepCountsPerAttack() ([]float64, error) {
	rows, err := db.Query(`
		SELECT COUNT(s.id)
		FROM attacks a
		LEFT JOIN attack_steps s ON s.attack_id = a.id
		GROUP BY a.id
		ORDER BY a.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count steps per attack: %w", err)
	}
	defer rows.Close()

	var counts []float64
	for rows.Next() {
		var n float64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan step count: %w", err)
		}
		counts = append(counts, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step counts: %w", err)
	}
	return counts, nil
}
