package db

import (
	"strings"
	"testing"
)

// TestCreateAttack_Success tests successful attack creation
func TestCreateAttack_Success(t *testing.T) {
	db := setupTestDB(t)

	attack := createTestAttack(t, db, "CAN injection via OBD-II")

	if attack.ID == 0 {
		t.Error("Expected attack ID to be set after creation")
	}

	retrieved, err := db.GetAttack(attack.ID)
	if err != nil {
		t.Fatalf("GetAttack failed: %v", err)
	}

	if retrieved.Name != attack.Name {
		t.Errorf("Name = %q, want %q", retrieved.Name, attack.Name)
	}
	if retrieved.ViolatedProperty != "Integrity" {
		t.Errorf("ViolatedProperty = %q, want Integrity", retrieved.ViolatedProperty)
	}
	if retrieved.Description == nil || *retrieved.Description != *attack.Description {
		t.Errorf("Description not round-tripped: %v", retrieved.Description)
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt timestamp to be set")
	}
	if retrieved.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt timestamp to be set")
	}
}

// TestCreateAttack_EmptyName tests that a name is required
func TestCreateAttack_EmptyName(t *testing.T) {
	db := setupTestDB(t)

	err := db.CreateAttack(&Attack{Year: "2015"})
	if err == nil {
		t.Fatal("expected error for attack without name")
	}
}

// TestGetAttack_NotFound tests retrieval of a missing attack
func TestGetAttack_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetAttack(9999)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

// TestListAttacks_Filters tests the filtered listing
func TestListAttacks_Filters(t *testing.T) {
	db := setupTestDB(t)

	a1 := createTestAttack(t, db, "CAN injection via OBD-II")

	a2 := &Attack{
		Name:             "Key fob relay attack",
		Year:             "2017",
		AttackType:       "Relay Attack",
		ViolatedProperty: "Authenticity",
		Interface:        "Short-Range Wireless",
	}
	if err := db.CreateAttack(a2); err != nil {
		t.Fatalf("CreateAttack failed: %v", err)
	}

	all, err := db.ListAttacks(AttackFilter{})
	if err != nil {
		t.Fatalf("ListAttacks failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 attacks, got %d", len(all))
	}

	byYear, err := db.ListAttacks(AttackFilter{Year: "2015"})
	if err != nil {
		t.Fatalf("ListAttacks by year failed: %v", err)
	}
	if len(byYear) != 1 || byYear[0].ID != a1.ID {
		t.Errorf("year filter returned %v", byYear)
	}

	byType, err := db.ListAttacks(AttackFilter{AttackType: "Relay Attack"})
	if err != nil {
		t.Fatalf("ListAttacks by type failed: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != a2.ID {
		t.Errorf("type filter returned %v", byType)
	}

	bySearch, err := db.ListAttacks(AttackFilter{Search: "fob"})
	if err != nil {
		t.Fatalf("ListAttacks by search failed: %v", err)
	}
	if len(bySearch) != 1 || bySearch[0].ID != a2.ID {
		t.Errorf("search filter returned %v", bySearch)
	}

	none, err := db.ListAttacks(AttackFilter{Year: "1999"})
	if err != nil {
		t.Fatalf("ListAttacks failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no matches, got %d", len(none))
	}
}

// TestUpdateAttack tests updating an attack
func TestUpdateAttack(t *testing.T) {
	db := setupTestDB(t)

	attack := createTestAttack(t, db, "Original name")

	attack.Name = "Corrected name"
	attack.ViolatedProperty = "Integrity, Availability"
	if err := db.UpdateAttack(attack); err != nil {
		t.Fatalf("UpdateAttack failed: %v", err)
	}

	retrieved, err := db.GetAttack(attack.ID)
	if err != nil {
		t.Fatalf("GetAttack failed: %v", err)
	}
	if retrieved.Name != "Corrected name" {
		t.Errorf("Name = %q after update", retrieved.Name)
	}
	if retrieved.ViolatedProperty != "Integrity, Availability" {
		t.Errorf("ViolatedProperty = %q after update", retrieved.ViolatedProperty)
	}
}

// TestUpdateAttack_NotFound tests updating a missing attack
func TestUpdateAttack_NotFound(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpdateAttack(&Attack{ID: 42, Name: "ghost"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

// TestDeleteAttack_CascadesToSteps tests that steps go with their attack
func TestDeleteAttack_CascadesToSteps(t *testing.T) {
	db := setupTestDB(t)

	attack := createTestAttack(t, db, "Attack with steps")
	createTestStep(t, db, attack.ID, "gain access")
	createTestStep(t, db, attack.ID, "inject frames")

	if err := db.DeleteAttack(attack.ID); err != nil {
		t.Fatalf("DeleteAttack failed: %v", err)
	}

	count, err := db.StepCount()
	if err != nil {
		t.Fatalf("StepCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected steps to cascade on delete, %d remain", count)
	}
}

// TestAttackCount tests the attack counter
func TestAttackCount(t *testing.T) {
	db := setupTestDB(t)

	for i := 0; i < 3; i++ {
		createTestAttack(t, db, "Attack")
	}

	count, err := db.AttackCount()
	if err != nil {
		t.Fatalf("AttackCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("AttackCount = %d, want 3", count)
	}
}
