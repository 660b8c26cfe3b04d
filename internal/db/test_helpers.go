package db

import (
	"path/filepath"
	"testing"
)

// Helper for creating pointer values
func strPtr(s string) *string {
	return &s
}

// setupTestDB creates a migrated working database in a per-test temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestAttack inserts an attack with a representative classification.
func createTestAttack(t *testing.T, db *DB, name string) *Attack {
	t.Helper()

	attack := &Attack{
		Name:             name,
		Year:             "2015 [31]",
		AttackClass:      "Direct",
		AttackType:       "Message Injection",
		ViolatedProperty: "Integrity",
		Interface:        "Physical Access",
		AttackedAsset:    "CAN Bus",
		EntryPoint:       "OBD-II Port",
		Vulnerability:    "Missing message authentication",
		Description:      strPtr("Injected forged CAN frames via the diagnostic port"),
		Reference:        strPtr("https://example.org/paper"),
	}
	if err := db.CreateAttack(attack); err != nil {
		t.Fatalf("CreateAttack failed: %v", err)
	}
	return attack
}

// createTestStep appends a step to the given attack.
func createTestStep(t *testing.T, db *DB, attackID int, description string) *AttackStep {
	t.Helper()

	step := &AttackStep{
		AttackID:         attackID,
		AttackType:       "Message Injection",
		ViolatedProperty: "Integrity",
		Interface:        "Physical Access",
		Description:      strPtr(description),
	}
	if err := db.CreateStep(step); err != nil {
		t.Fatalf("CreateStep failed: %v", err)
	}
	return step
}
