package report

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autosec-data/aad/internal/db"
)

func TestComputeStepStats(t *testing.T) {
	counts := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	s := ComputeStepStats(counts)
	if s.Attacks != 8 {
		t.Errorf("Attacks = %d, want 8", s.Attacks)
	}
	if s.Mean != 5 {
		t.Errorf("Mean = %v, want 5", s.Mean)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("Min/Max = %v/%v, want 2/9", s.Min, s.Max)
	}
	if s.Median != 4 {
		t.Errorf("Median = %v, want 4", s.Median)
	}
	if s.P90 != 9 {
		t.Errorf("P90 = %v, want 9", s.P90)
	}
	if math.Abs(s.StdDev-2.138) > 0.01 {
		t.Errorf("StdDev = %v, want about 2.138", s.StdDev)
	}
}

func TestComputeStepStatsEmpty(t *testing.T) {
	s := ComputeStepStats(nil)
	if s != (StepStats{}) {
		t.Errorf("expected zero stats for empty input, got %+v", s)
	}
}

func TestComputeStepStatsSingleValue(t *testing.T) {
	s := ComputeStepStats([]float64{3})
	if s.Mean != 3 || s.StdDev != 0 {
		t.Errorf("stats = %+v, want mean 3 and no deviation", s)
	}
}

func setupReporter(t *testing.T) *Reporter {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "report_test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	attacks := []db.Attack{
		{Name: "CAN injection", Year: "2015 [31]", AttackType: "Message injection", ViolatedProperty: "Integrity"},
		{Name: "Key fob relay", Year: "2017", AttackType: "Relay attack", ViolatedProperty: "Authenticity"},
		{Name: "Telematics exploit", Year: "2015", AttackType: "Message injection", ViolatedProperty: "Integrity, Privacy"},
	}
	for i := range attacks {
		if err := database.CreateAttack(&attacks[i]); err != nil {
			t.Fatalf("failed to create attack: %v", err)
		}
	}
	desc := "step"
	for i := 0; i < 2; i++ {
		step := &db.AttackStep{AttackID: attacks[0].ID, Description: &desc}
		if err := database.CreateStep(step); err != nil {
			t.Fatalf("failed to create step: %v", err)
		}
	}
	return New(database)
}

func TestReporterStepStats(t *testing.T) {
	r := setupReporter(t)

	s, err := r.StepStats()
	if err != nil {
		t.Fatalf("StepStats failed: %v", err)
	}
	if s.Attacks != 3 {
		t.Errorf("Attacks = %d, want 3", s.Attacks)
	}
	if s.Max != 2 || s.Min != 0 {
		t.Errorf("Min/Max = %v/%v, want 0/2", s.Min, s.Max)
	}
}

func TestReporterRender(t *testing.T) {
	r := setupReporter(t)

	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	html := buf.String()
	for _, want := range []string{"Attacks by year", "Top attack types", "Violated security properties", "2015"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReporterRenderFile(t *testing.T) {
	r := setupReporter(t)

	path := filepath.Join(t.TempDir(), "report.html")
	if err := r.RenderFile(path); err != nil {
		t.Fatalf("RenderFile failed: %v", err)
	}

	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected rendered output")
	}
}
