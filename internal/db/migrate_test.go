package db

import (
	"path/filepath"
	"testing"
)

// TestNewDB_MigratesToLatest tests that NewDB applies all migrations
func TestNewDB_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	status, err := db.GetMigrationStatus()
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}

	if !status.TableExists {
		t.Error("expected schema_migrations table to exist")
	}
	if status.Dirty {
		t.Error("expected clean migration state")
	}
	if status.CurrentVersion != status.LatestVersion {
		t.Errorf("version = %d, latest = %d", status.CurrentVersion, status.LatestVersion)
	}

	// All schema tables present.
	tables, err := db.Tables()
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	want := map[string]bool{"attacks": false, "attack_steps": false, "dataset_versions": false}
	for _, name := range tables {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected table %s after migration", name)
		}
	}
}

// TestMigrateDownUp tests rollback and re-apply
func TestMigrateDownUp(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("expected clean state after rollback")
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if version != latest-1 {
		t.Errorf("version after down = %d, want %d", version, latest-1)
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, _, err = db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("version after up = %d, want %d", version, latest)
	}
}

// TestMigrateTo tests moving to an explicit version in both directions
func TestMigrateTo(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateTo(1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", version, dirty)
	}

	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if err := db.MigrateTo(latest); err != nil {
		t.Fatalf("MigrateTo(%d) failed: %v", latest, err)
	}
	version, _, err = db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("version = %d, want %d", version, latest)
	}
}

// TestMigrateUp_NoChange tests that a second up is a no-op
func TestMigrateUp_NoChange(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp on current database failed: %v", err)
	}
}

// TestLatestMigrationVersion tests embedded migration discovery
func TestLatestMigrationVersion(t *testing.T) {
	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if latest < 2 {
		t.Errorf("latest migration version = %d, want at least 2", latest)
	}
}

// TestBaselineAtVersion tests baselining an unmigrated database
func TestBaselineAtVersion(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if err := db.BaselineAtVersion(1); err != nil {
		t.Fatalf("BaselineAtVersion failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version = %d dirty = %v after baseline", version, dirty)
	}

	// A second baseline must be refused.
	if err := db.BaselineAtVersion(2); err == nil {
		t.Fatal("expected error for repeated baseline")
	}
}
