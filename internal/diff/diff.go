// Package diff compares two dataset versions and reports what was added,
// removed, and modified between them. It backs the release review step: a
// new snapshot is diffed against the previous published version before it
// goes out.
package diff

import (
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/autosec-data/aad/internal/db"
)

// AttackChange describes one attack whose content differs between versions.
type AttackChange struct {
	ID     int    `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Detail string `json:"detail" yaml:"detail"`
}

// StepChange records a per-attack step count that moved between versions.
type StepChange struct {
	AttackID int `json:"attack_id" yaml:"attack_id"`
	Before   int `json:"before" yaml:"before"`
	After    int `json:"after" yaml:"after"`
}

// Result is the outcome of comparing an old and a new dataset.
type Result struct {
	Added       []db.Attack    `json:"added" yaml:"added"`
	Removed     []db.Attack    `json:"removed" yaml:"removed"`
	Modified    []AttackChange `json:"modified" yaml:"modified"`
	StepChanges []StepChange   `json:"step_changes" yaml:"step_changes"`

	OldAttacks int `json:"old_attacks" yaml:"old_attacks"`
	NewAttacks int `json:"new_attacks" yaml:"new_attacks"`
	OldSteps   int `json:"old_steps" yaml:"old_steps"`
	NewSteps   int `json:"new_steps" yaml:"new_steps"`
}

// Unchanged reports whether the two versions carry identical content.
func (r *Result) Unchanged() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 &&
		len(r.Modified) == 0 && len(r.StepChanges) == 0
}

// Regressions applies the review heuristics and returns human readable
// findings. Corrections between versions are expected to touch content, not
// shrink the catalog, so a batch of removals at or above the threshold is
// flagged for manual review.
func (r *Result) Regressions(deletionThreshold int) []string {
	var findings []string
	if deletionThreshold > 0 && len(r.Removed) >= deletionThreshold {
		findings = append(findings, fmt.Sprintf(
			"%d attacks removed (threshold %d), possible accidental data loss",
			len(r.Removed), deletionThreshold))
	}
	if r.NewSteps < r.OldSteps {
		findings = append(findings, fmt.Sprintf(
			"total step count shrank from %d to %d", r.OldSteps, r.NewSteps))
	}
	for _, sc := range r.StepChanges {
		if sc.After == 0 && sc.Before > 0 {
			findings = append(findings, fmt.Sprintf(
				"attack %d lost all %d of its steps", sc.AttackID, sc.Before))
		}
	}
	return findings
}

// attackContentOpts ignores the bookkeeping columns so that a re-imported
// row with fresh timestamps does not read as modified.
var attackContentOpts = cmp.Options{
	cmpopts.IgnoreFields(db.Attack{}, "CreatedAt", "UpdatedAt"),
}

// Datasets compares two in-memory datasets. Attacks are matched by ID, which
// the import and publish paths preserve across versions.
func Datasets(old, new *db.Dataset) *Result {
	result := &Result{
		OldAttacks: len(old.Attacks),
		NewAttacks: len(new.Attacks),
		OldSteps:   len(old.Steps),
		NewSteps:   len(new.Steps),
	}

	oldByID := attacksByID(old.Attacks)
	newByID := attacksByID(new.Attacks)

	for _, a := range new.Attacks {
		if _, ok := oldByID[a.ID]; !ok {
			result.Added = append(result.Added, a)
		}
	}
	for _, a := range old.Attacks {
		before, after := a, newByID[a.ID]
		if after == nil {
			result.Removed = append(result.Removed, a)
			continue
		}
		if d := cmp.Diff(before, *after, attackContentOpts); d != "" {
			result.Modified = append(result.Modified, AttackChange{
				ID:     a.ID,
				Name:   a.Name,
				Detail: d,
			})
		}
	}

	result.StepChanges = stepChanges(old, new)

	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].ID < result.Added[j].ID })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].ID < result.Removed[j].ID })
	sort.Slice(result.Modified, func(i, j int) bool { return result.Modified[i].ID < result.Modified[j].ID })

	return result
}

// Files loads and compares two snapshot files, legacy or canonical.
func Files(oldPath, newPath string) (*Result, error) {
	old, err := loadFile(oldPath)
	if err != nil {
		return nil, err
	}
	new, err := loadFile(newPath)
	if err != nil {
		return nil, err
	}
	return Datasets(old, new), nil
}

func loadFile(path string) (*db.Dataset, error) {
	database, err := db.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer database.Close()
	dataset, err := database.LoadDataset()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return dataset, nil
}

func attacksByID(attacks []db.Attack) map[int]*db.Attack {
	byID := make(map[int]*db.Attack, len(attacks))
	for i := range attacks {
		byID[attacks[i].ID] = &attacks[i]
	}
	return byID
}

func stepChanges(old, new *db.Dataset) []StepChange {
	oldCounts := stepCounts(old)
	newCounts := stepCounts(new)

	seen := make(map[int]bool)
	var changes []StepChange
	for id, before := range oldCounts {
		seen[id] = true
		if after := newCounts[id]; after != before {
			changes = append(changes, StepChange{AttackID: id, Before: before, After: after})
		}
	}
	for id, after := range newCounts {
		if !seen[id] && after > 0 {
			changes = append(changes, StepChange{AttackID: id, Before: 0, After: after})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].AttackID < changes[j].AttackID })
	return changes
}

func stepCounts(d *db.Dataset) map[int]int {
	counts := make(map[int]int)
	for _, s := range d.Steps {
		counts[s.AttackID]++
	}
	return counts
}
