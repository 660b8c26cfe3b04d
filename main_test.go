package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

// runCommand executes the CLI against a temp working database and returns
// its combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AAD_DB_PATH", filepath.Join(dir, "working.db"))
	t.Setenv("AAD_SNAPSHOTS_DIR", filepath.Join(dir, "snapshots"))
	t.Setenv("AAD_EXPORTS_DIR", filepath.Join(dir, "exports"))
	t.Setenv("AAD_LOGS_DIR", filepath.Join(dir, "logs"))
	return dir
}

func TestVersionCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "aad") {
		t.Errorf("output = %q", out)
	}
}

func TestAttackAddAndQuery(t *testing.T) {
	setupWorkspace(t)

	out, err := runCommand(t, "attack", "add",
		"--name", "CAN bus injection",
		"--year", "2015 [31]",
		"--type", "Message injection",
		"--property", "Integrity",
	)
	if err != nil {
		t.Fatalf("attack add failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "created attack 1") {
		t.Errorf("output = %q", out)
	}

	out, err = runCommand(t, "query", "attacks", "--year", "2015")
	if err != nil {
		t.Fatalf("query attacks failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "CAN bus injection") {
		t.Errorf("output = %q", out)
	}

	out, err = runCommand(t, "query", "attacks", "--year", "1999")
	if err != nil {
		t.Fatalf("query attacks failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "CAN bus injection") {
		t.Errorf("filter should exclude the attack, output = %q", out)
	}
}

func TestStepAddAndQuery(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "Key fob relay"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}
	for _, desc := range []string{"Capture the fob signal", "Relay it to the car"} {
		if _, err := runCommand(t, "step", "add", "1", "--description", desc); err != nil {
			t.Fatalf("step add failed: %v", err)
		}
	}

	out, err := runCommand(t, "query", "steps", "1")
	if err != nil {
		t.Fatalf("query steps failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1. Capture the fob signal") || !strings.Contains(out, "2. Relay it to the car") {
		t.Errorf("output = %q", out)
	}
}

func TestVerifyCommand(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}

	out, err := runCommand(t, "verify", "--attacks", "1", "--steps", "0")
	if err != nil {
		t.Fatalf("verify failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok") {
		t.Errorf("output = %q", out)
	}

	if _, err := runCommand(t, "verify", "--attacks", "361", "--steps", "621"); err == nil {
		t.Error("expected verification failure for wrong counts")
	}
}

func TestReleasePublishAndList(t *testing.T) {
	dir := setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}

	out, err := runCommand(t, "release", "publish", "V9.9", "--notes", "test release")
	if err != nil {
		t.Fatalf("release publish failed: %v\n%s", err, out)
	}
	snapshot := filepath.Join(dir, "snapshots", "AAD_V9.9.db")
	if !strings.Contains(out, snapshot) {
		t.Errorf("output = %q, want path %s", out, snapshot)
	}

	// Publishing the same label again must not overwrite the snapshot.
	if _, err := runCommand(t, "release", "publish", "V9.9"); err == nil {
		t.Error("expected second publish of the same label to fail")
	}

	out, err = runCommand(t, "release", "list")
	if err != nil {
		t.Fatalf("release list failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "V9.9") {
		t.Errorf("output = %q", out)
	}

	// The published file verifies against its own stamp.
	out, err = runCommand(t, "verify", snapshot)
	if err != nil {
		t.Fatalf("verify snapshot failed: %v\n%s", err, out)
	}
}

func TestReleasePublishRejectsEscapingPath(t *testing.T) {
	dir := setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}
	out, err := runCommand(t, "release", "publish", "V1.0",
		"--out", filepath.Join(dir, "snapshots", "..", "escape.db"))
	if err == nil {
		t.Fatalf("expected path escape rejection, got %s", out)
	}
}

func TestExportCommand(t *testing.T) {
	dir := setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}

	out, err := runCommand(t, "export", "attacks")
	if err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "attacks: 1 rows") {
		t.Errorf("output = %q", out)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "exports", "AAD_attacks_*.csv"))
	if err != nil || len(matches) != 1 {
		t.Errorf("expected one export file, got %v (%v)", matches, err)
	}
}

func TestInspectCommand(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}

	out, err := runCommand(t, "inspect")
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "canonical schema") || !strings.Contains(out, "attacks: 1 rows") {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateStatusCommand(t *testing.T) {
	setupWorkspace(t)

	// First touch creates and migrates the schema.
	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}

	out, err := runCommand(t, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "dirty=false") {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateToCommand(t *testing.T) {
	setupWorkspace(t)

	if _, err := runCommand(t, "attack", "add", "--name", "A"); err != nil {
		t.Fatalf("attack add failed: %v", err)
	}

	if _, err := runCommand(t, "migrate", "to", "1"); err != nil {
		t.Fatalf("migrate to failed: %v", err)
	}
	out, err := runCommand(t, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "version 1 of") {
		t.Errorf("output = %q", out)
	}
}
