package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autosec-data/aad/internal/db"
)

func setupExporter(t *testing.T) (*db.DB, *Exporter, string) {
	t.Helper()

	dir := t.TempDir()
	database, err := db.NewDB(filepath.Join(dir, "export_test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	exportDir := filepath.Join(dir, "exports")
	e := New(database, exportDir)
	e.now = func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	}
	return database, e, exportDir
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	return records
}

func TestCSVExportsTables(t *testing.T) {
	database, e, exportDir := setupExporter(t)

	attack := &db.Attack{Name: "CAN injection", Year: "2015 [31]", AttackType: "Message injection"}
	if err := database.CreateAttack(attack); err != nil {
		t.Fatalf("failed to create attack: %v", err)
	}
	desc := "Connect to the\nOBD-II port"
	step := &db.AttackStep{AttackID: attack.ID, Description: &desc}
	if err := database.CreateStep(step); err != nil {
		t.Fatalf("failed to create step: %v", err)
	}

	summary, err := e.CSV([]string{"attacks", "attack_steps"})
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	if summary.RunID == "" {
		t.Error("expected a run ID")
	}
	if len(summary.Files) != 2 {
		t.Fatalf("Files = %+v, want 2 entries", summary.Files)
	}

	wantAttacks := filepath.Join(exportDir, "AAD_attacks_20240315_103000.csv")
	if summary.Files[0].Path != wantAttacks {
		t.Errorf("attacks path = %s, want %s", summary.Files[0].Path, wantAttacks)
	}
	if summary.Files[0].Rows != 1 {
		t.Errorf("attacks rows = %d, want 1", summary.Files[0].Rows)
	}

	records := readCSV(t, wantAttacks)
	if len(records) != 2 {
		t.Fatalf("expected header plus one record, got %d rows", len(records))
	}
	if records[0][1] != "name" {
		t.Errorf("header = %v", records[0])
	}

	steps := readCSV(t, summary.Files[1].Path)
	for _, record := range steps[1:] {
		for _, cell := range record {
			if strings.ContainsAny(cell, "\r\n") {
				t.Errorf("cell still carries a line break: %q", cell)
			}
		}
	}
	if !strings.Contains(strings.Join(steps[1], ","), "Connect to the OBD-II port") {
		t.Errorf("step description not flattened as expected: %v", steps[1])
	}
}

func TestCSVDefaultsToAllTables(t *testing.T) {
	database, e, _ := setupExporter(t)
	if err := database.CreateAttack(&db.Attack{Name: "A"}); err != nil {
		t.Fatalf("failed to create attack: %v", err)
	}

	summary, err := e.CSV(nil)
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	tables := make(map[string]bool)
	for _, f := range summary.Files {
		tables[f.Table] = true
	}
	for _, want := range []string{"attacks", "attack_steps", "dataset_versions"} {
		if !tables[want] {
			t.Errorf("expected table %s in export, got %+v", want, summary.Files)
		}
	}
}

func TestCSVWritesSummary(t *testing.T) {
	database, e, exportDir := setupExporter(t)
	if err := database.CreateAttack(&db.Attack{Name: "A"}); err != nil {
		t.Fatalf("failed to create attack: %v", err)
	}

	if _, err := e.CSV([]string{"attacks"}); err != nil {
		t.Fatalf("CSV failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(exportDir, "AAD_export_20240315_103000.yaml"))
	if err != nil {
		t.Fatalf("failed to read summary: %v", err)
	}

	var summary Summary
	if err := yaml.Unmarshal(data, &summary); err != nil {
		t.Fatalf("failed to parse summary: %v", err)
	}
	if summary.RunID == "" || len(summary.Files) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCSVSanitisesLegacyTableNames(t *testing.T) {
	database, e, _ := setupExporter(t)

	if _, err := database.Exec(`CREATE TABLE "Automotive Security Attacks" ("Attack" TEXT)`); err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO "Automotive Security Attacks" VALUES ('Relay attack')`); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}

	summary, err := e.CSV([]string{"Automotive Security Attacks"})
	if err != nil {
		t.Fatalf("CSV failed: %v", err)
	}
	base := filepath.Base(summary.Files[0].Path)
	if base != "AAD_Automotive_Security_Attacks_20240315_103000.csv" {
		t.Errorf("filename = %s", base)
	}
}

func TestCSVRejectsUnknownTable(t *testing.T) {
	_, e, _ := setupExporter(t)
	if _, err := e.CSV([]string{"no_such_table"}); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestDatasetYAML(t *testing.T) {
	database, e, exportDir := setupExporter(t)

	attacks := []db.Attack{
		{Name: "A", Year: "2015 [31]", AttackType: "Message injection", ViolatedProperty: "Integrity"},
		{Name: "B", Year: "2017", AttackType: "Relay attack", ViolatedProperty: "Authenticity"},
	}
	for i := range attacks {
		if err := database.CreateAttack(&attacks[i]); err != nil {
			t.Fatalf("failed to create attack: %v", err)
		}
	}

	path, err := e.DatasetYAML()
	if err != nil {
		t.Fatalf("DatasetYAML failed: %v", err)
	}
	if filepath.Dir(path) != exportDir {
		t.Errorf("summary written to %s, want %s", path, exportDir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read summary: %v", err)
	}

	var summary DatasetSummary
	if err := yaml.Unmarshal(data, &summary); err != nil {
		t.Fatalf("failed to parse summary: %v", err)
	}
	if summary.Attacks != 2 || summary.Steps != 0 {
		t.Errorf("counts = %d/%d, want 2/0", summary.Attacks, summary.Steps)
	}
	if len(summary.ByYear) != 2 {
		t.Errorf("ByYear = %+v", summary.ByYear)
	}
}
