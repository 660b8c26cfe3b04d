package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Attack is one cataloged automotive security attack, classified along the
// axes of the accompanying publication's scheme. Year is kept verbatim as
// published (it may carry citation markers such as "2015 [31]").
type Attack struct {
	ID               int       `json:"id"`
	Name             string    `json:"name"`
	Year             string    `json:"year"`
	AttackClass      string    `json:"attack_class"`
	AttackBase       string    `json:"attack_base"`
	AttackType       string    `json:"attack_type"`
	ViolatedProperty string    `json:"violated_property"`
	Interface        string    `json:"interface"`
	Consequence      string    `json:"consequence"`
	AttackedAsset    string    `json:"attacked_asset"`
	EntryPoint       string    `json:"entry_point"`
	Vulnerability    string    `json:"vulnerability"`
	Motivation       string    `json:"motivation"`
	Description      *string   `json:"description"`
	Reference        *string   `json:"reference"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const attackColumns = `
	id, name, year, attack_class, attack_base, attack_type,
	violated_property, interface, consequence, attacked_asset,
	entry_point, vulnerability, motivation, description, reference,
	created_at, updated_at
`

// AttackFilter narrows ListAttacks. Zero-valued fields are ignored.
type AttackFilter struct {
	Year             string // matched against the normalised four digit year
	AttackType       string
	ViolatedProperty string // substring match; cells hold compound values
	Search           string // substring match on name and description
}

// CreateAttack inserts a new attack and sets its ID.
func (db *DB) CreateAttack(attack *Attack) error {
	if attack.Name == "" {
		return fmt.Errorf("attack name must not be empty")
	}

	query := `
		INSERT INTO attacks (
			name, year, attack_class, attack_base, attack_type,
			violated_property, interface, consequence, attacked_asset,
			entry_point, vulnerability, motivation, description, reference
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.DB.Exec(
		query,
		attack.Name,
		attack.Year,
		attack.AttackClass,
		attack.AttackBase,
		attack.AttackType,
		attack.ViolatedProperty,
		attack.Interface,
		attack.Consequence,
		attack.AttackedAsset,
		attack.EntryPoint,
		attack.Vulnerability,
		attack.Motivation,
		attack.Description,
		attack.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to create attack: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	attack.ID = int(id)
	return nil
}

// GetAttack retrieves an attack by ID.
func (db *DB) GetAttack(id int) (*Attack, error) {
	query := `SELECT ` + attackColumns + ` FROM attacks WHERE id = ?`

	attack, err := scanAttack(db.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attack %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attack: %w", err)
	}
	return attack, nil
}

// ListAttacks retrieves attacks matching the filter, ordered by ID.
func (db *DB) ListAttacks(filter AttackFilter) ([]Attack, error) {
	query := `SELECT ` + attackColumns + ` FROM attacks`

	var conds []string
	var args []interface{}

	if filter.Year != "" {
		conds = append(conds, "year LIKE ?")
		args = append(args, "%"+filter.Year+"%")
	}
	if filter.AttackType != "" {
		conds = append(conds, "attack_type = ?")
		args = append(args, filter.AttackType)
	}
	if filter.ViolatedProperty != "" {
		conds = append(conds, "violated_property LIKE ?")
		args = append(args, "%"+filter.ViolatedProperty+"%")
	}
	if filter.Search != "" {
		conds = append(conds, "(name LIKE ? OR description LIKE ?)")
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attacks: %w", err)
	}
	defer rows.Close()

	var attacks []Attack
	for rows.Next() {
		attack, err := scanAttack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attack: %w", err)
		}
		attacks = append(attacks, *attack)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attacks: %w", err)
	}

	return attacks, nil
}

// UpdateAttack updates an existing attack.
func (db *DB) UpdateAttack(attack *Attack) error {
	if attack.Name == "" {
		return fmt.Errorf("attack name must not be empty")
	}

	query := `
		UPDATE attacks SET
			name = ?,
			year = ?,
			attack_class = ?,
			attack_base = ?,
			attack_type = ?,
			violated_property = ?,
			interface = ?,
			consequence = ?,
			attacked_asset = ?,
			entry_point = ?,
			vulnerability = ?,
			motivation = ?,
			description = ?,
			reference = ?,
			updated_at = strftime('%s','now')
		WHERE id = ?
	`

	result, err := db.DB.Exec(
		query,
		attack.Name,
		attack.Year,
		attack.AttackClass,
		attack.AttackBase,
		attack.AttackType,
		attack.ViolatedProperty,
		attack.Interface,
		attack.Consequence,
		attack.AttackedAsset,
		attack.EntryPoint,
		attack.Vulnerability,
		attack.Motivation,
		attack.Description,
		attack.Reference,
		attack.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update attack: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("attack %d not found", attack.ID)
	}

	return nil
}

// DeleteAttack removes an attack. Its steps go with it (ON DELETE CASCADE).
func (db *DB) DeleteAttack(id int) error {
	result, err := db.DB.Exec(`DELETE FROM attacks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attack: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("attack %d not found", id)
	}

	return nil
}

// AttackCount returns the number of attacks in the database.
func (db *DB) AttackCount() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM attacks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attacks: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAttack(s scanner) (*Attack, error) {
	var attack Attack
	var createdAtUnix, updatedAtUnix int64

	err := s.Scan(
		&attack.ID,
		&attack.Name,
		&attack.Year,
		&attack.AttackClass,
		&attack.AttackBase,
		&attack.AttackType,
		&attack.ViolatedProperty,
		&attack.Interface,
		&attack.Consequence,
		&attack.AttackedAsset,
		&attack.EntryPoint,
		&attack.Vulnerability,
		&attack.Motivation,
		&attack.Description,
		&attack.Reference,
		&createdAtUnix,
		&updatedAtUnix,
	)
	if err != nil {
		return nil, err
	}

	attack.CreatedAt = time.Unix(createdAtUnix, 0)
	attack.UpdatedAt = time.Unix(updatedAtUnix, 0)
	return &attack, nil
}
