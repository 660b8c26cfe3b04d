// Package verify runs the dataset integrity checks: row counts against the
// published release manifest, referential integrity of the step ownership,
// step sequence ordering, and file openability for both database snapshots
// and the classification spreadsheets.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/autosec-data/aad/internal/db"
	"github.com/autosec-data/aad/internal/ods"
	"github.com/autosec-data/aad/internal/taxonomy"
)

// Counts is the expected size of a published release.
type Counts struct {
	Attacks int
	Steps   int
}

// PublishedCounts records the sizes of the known published releases. V3.0
// corrected errors and inconsistencies in V2.0 without changing the counts.
var PublishedCounts = map[string]Counts{
	"V2.0": {Attacks: 361, Steps: 621},
	"V3.0": {Attacks: 361, Steps: 621},
}

// SpreadsheetCounts records the row counts of the published .ods files: the
// classification sheet and its step-splitted companion.
var SpreadsheetCounts = map[string]int{
	"classification": 162,
	"splitted":       412,
}

// Check is one named verification result.
type Check struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	Detail string `json:"detail" yaml:"detail"`
}

// Report collects the checks run against one file.
type Report struct {
	Target   string   `json:"target" yaml:"target"`
	Checks   []Check  `json:"checks" yaml:"checks"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Passed reports whether every check passed. Warnings don't fail a report.
func (r *Report) Passed() bool {
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func (r *Report) add(name string, passed bool, format string, args ...interface{}) {
	r.Checks = append(r.Checks, Check{
		Name:   name,
		Passed: passed,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (r *Report) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Database verifies a snapshot or working database. expect carries the
// release's published counts; pass nil to fall back on the version stamp the
// file itself carries (canonical snapshots only).
func Database(path string, expect *Counts) *Report {
	report := &Report{Target: path}

	database, err := db.OpenDB(path)
	if err != nil {
		report.add("openable", false, "%v", err)
		return report
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		report.add("openable", false, "%v", err)
		return report
	}
	report.add("openable", true, "file opens and answers queries")

	dataset, err := database.LoadDataset()
	if err != nil {
		report.add("schema", false, "%v", err)
		return report
	}
	report.add("schema", true, "recognised attack schema")

	checkCounts(report, database, dataset, expect)
	checkReferentialIntegrity(report, dataset)
	checkStepOrdering(report, dataset)
	checkVocabulary(report, dataset)

	return report
}

func checkCounts(report *Report, database *db.DB, dataset *db.Dataset, expect *Counts) {
	if expect == nil {
		// A canonical snapshot carries its own stamp; verify against the
		// newest one.
		kind, err := database.DetectSchema()
		if err == nil && kind == db.SchemaCanonical {
			versions, err := database.Versions()
			if err == nil && len(versions) > 0 {
				latest := versions[len(versions)-1]
				expect = &Counts{Attacks: latest.AttackCount, Steps: latest.StepCount}
				report.warn("no expected counts given, using version stamp %s", latest.Label)
			}
		}
	}

	if expect == nil {
		report.warn("no expected counts available, row count check skipped")
		return
	}

	report.add("attack-count", len(dataset.Attacks) == expect.Attacks,
		"%d attacks, expected %d", len(dataset.Attacks), expect.Attacks)
	report.add("step-count", len(dataset.Steps) == expect.Steps,
		"%d steps, expected %d", len(dataset.Steps), expect.Steps)
}

func checkReferentialIntegrity(report *Report, dataset *db.Dataset) {
	known := make(map[int]bool, len(dataset.Attacks))
	for _, a := range dataset.Attacks {
		known[a.ID] = true
	}

	var orphans []int
	for _, s := range dataset.Steps {
		if !known[s.AttackID] {
			orphans = append(orphans, s.AttackID)
		}
	}

	if len(orphans) == 0 {
		report.add("referential-integrity", true,
			"every step resolves to an existing attack")
		return
	}
	report.add("referential-integrity", false,
		"%d steps reference missing attacks (%s)", len(orphans), formatIDs(orphans))
}

func checkStepOrdering(report *Report, dataset *db.Dataset) {
	var broken []int
	for attackID, steps := range dataset.StepsByAttack() {
		for i, s := range steps {
			if s.StepNumber != i+1 {
				broken = append(broken, attackID)
				break
			}
		}
	}

	if len(broken) == 0 {
		report.add("step-ordering", true,
			"every attack's steps form an unbroken 1..n sequence")
		return
	}
	sort.Ints(broken)
	report.add("step-ordering", false,
		"%d attacks have gaps or duplicates in their step sequence (%s)",
		len(broken), formatIDs(broken))
}

// checkVocabulary flags classification values outside the publication's
// vocabulary, across the violated property, interface and class axes. These
// are warnings, not failures: the published data carries occasional free-text
// variants and V3.0 exists precisely to correct them.
func checkVocabulary(report *Report, dataset *db.Dataset) {
	properties := make(map[string]int)
	interfaces := make(map[string]int)
	classes := make(map[string]int)
	for _, a := range dataset.Attacks {
		if v := taxonomy.Normalize(a.ViolatedProperty); v != "" && !taxonomy.IsKnownProperty(v) {
			properties[v]++
		}
		if v := taxonomy.Normalize(a.Interface); v != "" && !taxonomy.IsKnownInterface(v) {
			interfaces[v]++
		}
		if v := taxonomy.Normalize(a.AttackClass); v != "" && !taxonomy.IsKnownClass(v) {
			classes[v]++
		}
	}
	for value, count := range properties {
		report.warn("violated property %q outside the known vocabulary (%d attacks)", value, count)
	}
	for value, count := range interfaces {
		report.warn("interface %q outside the known vocabulary (%d attacks)", value, count)
	}
	for value, count := range classes {
		report.warn("attack class %q outside the known vocabulary (%d attacks)", value, count)
	}
}

// Spreadsheet verifies a published .ods file: it must parse, and when an
// expected row count is given (non-zero) the first sheet's data rows must
// match it.
func Spreadsheet(path string, expectRows int) *Report {
	report := &Report{Target: path}

	doc, err := ods.Open(path)
	if err != nil {
		report.add("openable", false, "%v", err)
		return report
	}
	if len(doc.Sheets) == 0 {
		report.add("openable", false, "spreadsheet has no sheets")
		return report
	}
	report.add("openable", true, "spreadsheet parses, %d sheet(s)", len(doc.Sheets))

	if expectRows > 0 {
		got := doc.Sheets[0].DataRowCount()
		report.add("row-count", got == expectRows,
			"%d data rows in sheet %q, expected %d", got, doc.Sheets[0].Name, expectRows)
	}

	return report
}

func formatIDs(ids []int) string {
	const maxShown = 5
	var parts []string
	for i, id := range ids {
		if i == maxShown {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}
