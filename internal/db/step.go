package db

import (
	"database/sql"
	"fmt"
	"time"
)

// AttackStep is one decomposed action within a parent attack's execution
// sequence. StepNumber is the position in that sequence, starting at 1 and
// unique within the attack.
type AttackStep struct {
	ID               int       `json:"id"`
	AttackID         int       `json:"attack_id"`
	StepNumber       int       `json:"step_number"`
	AttackType       string    `json:"attack_type"`
	ViolatedProperty string    `json:"violated_property"`
	Interface        string    `json:"interface"`
	AttackedAsset    string    `json:"attacked_asset"`
	EntryPoint       string    `json:"entry_point"`
	Vulnerability    string    `json:"vulnerability"`
	Description      *string   `json:"description"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

const stepColumns = `
	id, attack_id, step_number, attack_type, violated_property,
	interface, attacked_asset, entry_point, vulnerability, description,
	created_at, updated_at
`

// CreateStep inserts a new step for an attack. If StepNumber is zero the
// step is appended after the attack's current last step.
func (db *DB) CreateStep(step *AttackStep) error {
	if step.AttackID == 0 {
		return fmt.Errorf("step must reference an attack")
	}

	if step.StepNumber == 0 {
		var next int
		err := db.QueryRow(
			"SELECT COALESCE(MAX(step_number), 0) + 1 FROM attack_steps WHERE attack_id = ?",
			step.AttackID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to determine next step number: %w", err)
		}
		step.StepNumber = next
	}

	query := `
		INSERT INTO attack_steps (
			attack_id, step_number, attack_type, violated_property,
			interface, attacked_asset, entry_point, vulnerability, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.DB.Exec(
		query,
		step.AttackID,
		step.StepNumber,
		step.AttackType,
		step.ViolatedProperty,
		step.Interface,
		step.AttackedAsset,
		step.EntryPoint,
		step.Vulnerability,
		step.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	step.ID = int(id)
	return nil
}

// GetStep retrieves a step by ID.
func (db *DB) GetStep(id int) (*AttackStep, error) {
	query := `SELECT ` + stepColumns + ` FROM attack_steps WHERE id = ?`

	step, err := scanStep(db.DB.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("step %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// StepsForAttack returns the attack's steps in sequence order.
func (db *DB) StepsForAttack(attackID int) ([]AttackStep, error) {
	query := `SELECT ` + stepColumns + ` FROM attack_steps WHERE attack_id = ? ORDER BY step_number ASC`

	rows, err := db.DB.Query(query, attackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	return collectSteps(rows)
}

// AllSteps returns every step in the database, ordered by attack then
// sequence position.
func (db *DB) AllSteps() ([]AttackStep, error) {
	query := `SELECT ` + stepColumns + ` FROM attack_steps ORDER BY attack_id ASC, step_number ASC`

	rows, err := db.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	return collectSteps(rows)
}

// UpdateStep updates an existing step.
func (db *DB) UpdateStep(step *AttackStep) error {
	query := `
		UPDATE attack_steps SET
			step_number = ?,
			attack_type = ?,
			violated_property = ?,
			interface = ?,
			attacked_asset = ?,
			entry_point = ?,
			vulnerability = ?,
			description = ?,
			updated_at = strftime('%s','now')
		WHERE id = ?
	`

	result, err := db.DB.Exec(
		query,
		step.StepNumber,
		step.AttackType,
		step.ViolatedProperty,
		step.Interface,
		step.AttackedAsset,
		step.EntryPoint,
		step.Vulnerability,
		step.Description,
		step.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("step %d not found", step.ID)
	}

	return nil
}

// DeleteStep removes a step. The remaining sequence keeps its numbers; run
// RenumberSteps to compact it.
func (db *DB) DeleteStep(id int) error {
	result, err := db.DB.Exec(`DELETE FROM attack_steps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("step %d not found", id)
	}

	return nil
}

// RenumberSteps compacts an attack's step sequence to 1..n, preserving the
// current order. Needed after deleting a step out of the middle.
func (db *DB) RenumberSteps(attackID int) error {
	tx, err := db.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		"SELECT id FROM attack_steps WHERE attack_id = ? ORDER BY step_number ASC",
		attackID,
	)
	if err != nil {
		return fmt.Errorf("failed to query steps for renumbering: %w", err)
	}

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan step id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating steps: %w", err)
	}
	rows.Close()

	// Two passes so the UNIQUE(attack_id, step_number) constraint never
	// sees a transient collision.
	for i, id := range ids {
		if _, err := tx.Exec("UPDATE attack_steps SET step_number = ? WHERE id = ?", -(i + 1), id); err != nil {
			return fmt.Errorf("failed to renumber step %d: %w", id, err)
		}
	}
	for i, id := range ids {
		if _, err := tx.Exec("UPDATE attack_steps SET step_number = ? WHERE id = ?", i+1, id); err != nil {
			return fmt.Errorf("failed to renumber step %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// StepCount returns the number of steps in the database.
func (db *DB) StepCount() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM attack_steps").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count steps: %w", err)
	}
	return count, nil
}

func collectSteps(rows *sql.Rows) ([]AttackStep, error) {
	var steps []AttackStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, *step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}
	return steps, nil
}

func scanStep(s scanner) (*AttackStep, error) {
	var step AttackStep
	var createdAtUnix, updatedAtUnix int64

	err := s.Scan(
		&step.ID,
		&step.AttackID,
		&step.StepNumber,
		&step.AttackType,
		&step.ViolatedProperty,
		&step.Interface,
		&step.AttackedAsset,
		&step.EntryPoint,
		&step.Vulnerability,
		&step.Description,
		&createdAtUnix,
		&updatedAtUnix,
	)
	if err != nil {
		return nil, err
	}

	step.CreatedAt = time.Unix(createdAtUnix, 0)
	step.UpdatedAt = time.Unix(updatedAtUnix, 0)
	return &step, nil
}
