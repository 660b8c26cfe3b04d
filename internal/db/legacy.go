package db

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/autosec-data/aad/internal/taxonomy"
)

// Published AAD snapshots (V2.0, V3.0) carry the spreadsheet-derived schema:
// display-name tables and columns such as "Automotive Security Attacks" and
// "Violated Security Property". This file detects that layout and reads it
// into the canonical types, so verification, diffing, and conversion work on
// any published file without knowing which release it came from.

// SchemaKind says which layout a database file carries.
type SchemaKind int

const (
	SchemaUnknown SchemaKind = iota
	SchemaCanonical
	SchemaLegacy
)

func (k SchemaKind) String() string {
	switch k {
	case SchemaCanonical:
		return "canonical"
	case SchemaLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// LegacyLayout names the tables of a legacy snapshot. StepTable is empty
// when the snapshot has no step decomposition table.
type LegacyLayout struct {
	AttackTable string
	StepTable   string
}

// DetectSchema classifies the database layout.
func (db *DB) DetectSchema() (SchemaKind, error) {
	names, err := db.Tables()
	if err != nil {
		return SchemaUnknown, err
	}

	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	if set["attacks"] && set["attack_steps"] {
		return SchemaCanonical, nil
	}

	layout, err := db.DetectLegacyLayout()
	if err != nil {
		return SchemaUnknown, err
	}
	if layout != nil {
		return SchemaLegacy, nil
	}
	return SchemaUnknown, nil
}

// DetectLegacyLayout finds the attack and step tables of a legacy snapshot.
// Returns nil (no error) when the file doesn't look like one. The attack
// table is recognised by its classification columns; the step table by a
// parent-attack reference column or a "splitted"/"step" table name.
func (db *DB) DetectLegacyLayout() (*LegacyLayout, error) {
	tables, err := db.Inspect()
	if err != nil {
		return nil, err
	}

	layout := &LegacyLayout{}
	for _, t := range tables {
		lower := strings.ToLower(t.Name)
		if t.Name == "schema_migrations" || lower == "attacks" || lower == "attack_steps" {
			continue
		}

		cols := normalizedColumnSet(t.Columns)
		isClassified := cols["attack type"] || cols["violated security property"] || cols["attack class"]
		hasParentRef := cols["attack id"] || cols["id of attack"] || cols["attack no."] || cols["attack no"]
		isStepNamed := strings.Contains(lower, "splitted") || strings.Contains(lower, "step")

		switch {
		case isClassified && (hasParentRef || isStepNamed):
			if layout.StepTable == "" {
				layout.StepTable = t.Name
			}
		case isClassified:
			if layout.AttackTable == "" {
				layout.AttackTable = t.Name
			}
		}
	}

	if layout.AttackTable == "" {
		return nil, nil
	}
	return layout, nil
}

func normalizedColumnSet(cols []ColumnInfo) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[normalizeHeader(c.Name)] = true
	}
	return set
}

func normalizeHeader(name string) string {
	return strings.ToLower(taxonomy.Normalize(name))
}

// setLegacyAttackField assigns a legacy cell, identified by its normalised
// column name, to the matching Attack field. Unrecognised columns are
// ignored; the published files vary slightly in wording between releases.
func setLegacyAttackField(a *Attack, header, v string) {
	switch header {
	case "attack", "attack name", "name", "title":
		a.Name = v
	case "year":
		a.Year = v
	case "attack class":
		a.AttackClass = v
	case "attack base":
		a.AttackBase = v
	case "attack type":
		a.AttackType = v
	case "violated security property", "violated property":
		a.ViolatedProperty = v
	case "interface":
		a.Interface = v
	case "consequence", "consequences":
		a.Consequence = v
	case "attacked asset", "asset":
		a.AttackedAsset = v
	case "entry point":
		a.EntryPoint = v
	case "vulnerability", "exploited vulnerability":
		a.Vulnerability = v
	case "motivation", "attack motivation":
		a.Motivation = v
	case "description":
		a.Description = &v
	case "reference", "source":
		a.Reference = &v
	}
}

// setLegacyStepField is the AttackStep counterpart of setLegacyAttackField.
func setLegacyStepField(s *AttackStep, header, v string) {
	switch header {
	case "attack type":
		s.AttackType = v
	case "violated security property", "violated property":
		s.ViolatedProperty = v
	case "interface":
		s.Interface = v
	case "attacked asset", "asset":
		s.AttackedAsset = v
	case "entry point":
		s.EntryPoint = v
	case "vulnerability", "exploited vulnerability":
		s.Vulnerability = v
	case "description", "step description":
		s.Description = &v
	}
}

// AttackFromCells builds an Attack from a spreadsheet header row and one
// data row, using the same column-name mapping as the legacy snapshots.
func AttackFromCells(header, cells []string) Attack {
	var attack Attack
	for i, col := range header {
		if i >= len(cells) {
			break
		}
		key := normalizeHeader(col)
		value := strings.TrimSpace(cells[i])
		if key == "id" {
			if id, err := strconv.Atoi(value); err == nil && id > 0 {
				attack.ID = id
			}
			continue
		}
		setLegacyAttackField(&attack, key, value)
	}
	return attack
}

// stepFromCells is the AttackStep counterpart of AttackFromCells. The second
// return value is the parent attack's name when the sheet references attacks
// by name instead of by number.
func stepFromCells(header, cells []string) (AttackStep, string) {
	var step AttackStep
	var attackName string
	for i, col := range header {
		if i >= len(cells) {
			break
		}
		key := normalizeHeader(col)
		value := strings.TrimSpace(cells[i])
		switch key {
		case "attack id", "id of attack", "attack no.", "attack no":
			step.AttackID, _ = strconv.Atoi(value)
		case "attack", "attack name", "name":
			attackName = value
		case "step", "step number", "no.", "no":
			step.StepNumber, _ = strconv.Atoi(value)
		default:
			setLegacyStepField(&step, key, value)
		}
	}
	return step, attackName
}

// DatasetFromSheets builds a dataset from the two published spreadsheet
// tables: the classification sheet and its step-splitted companion. Attacks
// without an ID column are numbered by position; steps that reference their
// attack by name are resolved against the classification sheet.
func DatasetFromSheets(attackHeader []string, attackRows [][]string, stepHeader []string, stepRows [][]string) *Dataset {
	d := &Dataset{}
	nameToID := make(map[string]int)

	for i, row := range attackRows {
		attack := AttackFromCells(attackHeader, row)
		if attack.Name == "" {
			continue
		}
		if attack.ID == 0 {
			attack.ID = i + 1
		}
		nameToID[normalizeHeader(attack.Name)] = attack.ID
		d.Attacks = append(d.Attacks, attack)
	}

	for _, row := range stepRows {
		step, attackName := stepFromCells(stepHeader, row)
		if step.AttackID == 0 && attackName != "" {
			step.AttackID = nameToID[normalizeHeader(attackName)]
		}
		if step.AttackID == 0 {
			continue
		}
		d.Steps = append(d.Steps, step)
	}
	numberUnsequencedSteps(d.Steps)
	return d
}

// LegacyAttacks reads the attack rows of a legacy snapshot. Row identity
// comes from an ID column when present, otherwise from rowid.
func (db *DB) LegacyAttacks(layout *LegacyLayout) ([]Attack, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT rowid, * FROM %q ORDER BY rowid`, layout.AttackTable))
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy attacks: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy columns: %w", err)
	}

	var attacks []Attack
	for rows.Next() {
		values, err := scanStrings(rows, len(cols))
		if err != nil {
			return nil, err
		}

		var attack Attack
		for i, col := range cols {
			header := normalizeHeader(col)
			value := values[i]
			switch {
			case i == 0: // rowid
				attack.ID, _ = strconv.Atoi(value)
			case header == "id":
				if id, err := strconv.Atoi(value); err == nil && id > 0 {
					attack.ID = id
				}
			default:
				setLegacyAttackField(&attack, header, value)
			}
		}
		attacks = append(attacks, attack)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legacy attacks: %w", err)
	}
	return attacks, nil
}

// LegacySteps reads the step rows of a legacy snapshot. Steps with no
// explicit step number column are numbered by their order within the attack.
func (db *DB) LegacySteps(layout *LegacyLayout) ([]AttackStep, error) {
	if layout.StepTable == "" {
		return nil, nil
	}

	rows, err := db.Query(fmt.Sprintf(`SELECT rowid, * FROM %q ORDER BY rowid`, layout.StepTable))
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy steps: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy step columns: %w", err)
	}

	var steps []AttackStep
	for rows.Next() {
		values, err := scanStrings(rows, len(cols))
		if err != nil {
			return nil, err
		}

		var step AttackStep
		for i, col := range cols {
			header := normalizeHeader(col)
			value := values[i]
			switch {
			case i == 0: // rowid
				step.ID, _ = strconv.Atoi(value)
			case header == "id":
				if id, err := strconv.Atoi(value); err == nil && id > 0 {
					step.ID = id
				}
			case header == "attack id" || header == "id of attack" || header == "attack no." || header == "attack no":
				step.AttackID, _ = strconv.Atoi(value)
			case header == "step" || header == "step number" || header == "no." || header == "no":
				step.StepNumber, _ = strconv.Atoi(value)
			default:
				setLegacyStepField(&step, header, value)
			}
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating legacy steps: %w", err)
	}

	numberUnsequencedSteps(steps)
	return steps, nil
}

// numberUnsequencedSteps assigns 1..n within each attack to steps that came
// without a step number, preserving file order.
func numberUnsequencedSteps(steps []AttackStep) {
	next := make(map[int]int)
	for i := range steps {
		next[steps[i].AttackID]++
		if steps[i].StepNumber == 0 {
			steps[i].StepNumber = next[steps[i].AttackID]
		} else {
			next[steps[i].AttackID] = steps[i].StepNumber
		}
	}
}

func scanStrings(rows *sql.Rows, n int) ([]string, error) {
	raw := make([]sql.NullString, n)
	ptrs := make([]interface{}, n)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan legacy row: %w", err)
	}
	values := make([]string, n)
	for i, v := range raw {
		if v.Valid {
			values[i] = v.String
		}
	}
	return values, nil
}

// Dataset is an in-memory view of one snapshot, canonical or legacy, used by
// verification and cross-version diffing.
type Dataset struct {
	Attacks []Attack
	Steps   []AttackStep
}

// StepsByAttack groups the dataset's steps by parent attack, ordered by
// step number.
func (d *Dataset) StepsByAttack() map[int][]AttackStep {
	grouped := make(map[int][]AttackStep)
	for _, s := range d.Steps {
		grouped[s.AttackID] = append(grouped[s.AttackID], s)
	}
	for id := range grouped {
		steps := grouped[id]
		sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	}
	return grouped
}

// LoadDataset reads a snapshot regardless of which schema it carries.
func (db *DB) LoadDataset() (*Dataset, error) {
	kind, err := db.DetectSchema()
	if err != nil {
		return nil, err
	}

	switch kind {
	case SchemaCanonical:
		attacks, err := db.ListAttacks(AttackFilter{})
		if err != nil {
			return nil, err
		}
		steps, err := db.AllSteps()
		if err != nil {
			return nil, err
		}
		return &Dataset{Attacks: attacks, Steps: steps}, nil

	case SchemaLegacy:
		layout, err := db.DetectLegacyLayout()
		if err != nil {
			return nil, err
		}
		attacks, err := db.LegacyAttacks(layout)
		if err != nil {
			return nil, err
		}
		steps, err := db.LegacySteps(layout)
		if err != nil {
			return nil, err
		}
		return &Dataset{Attacks: attacks, Steps: steps}, nil

	default:
		return nil, fmt.Errorf("database %s has no recognisable attack schema", db.path)
	}
}

// ImportLegacy copies a legacy snapshot's rows into this canonical working
// database. Attack identity is preserved so cross-version diffs stay
// meaningful. The destination must be empty.
func (db *DB) ImportLegacy(src *DB) (attackCount, stepCount int, err error) {
	layout, err := src.DetectLegacyLayout()
	if err != nil {
		return 0, 0, err
	}
	if layout == nil {
		return 0, 0, fmt.Errorf("source database %s is not a legacy snapshot", src.path)
	}

	attacks, err := src.LegacyAttacks(layout)
	if err != nil {
		return 0, 0, err
	}
	steps, err := src.LegacySteps(layout)
	if err != nil {
		return 0, 0, err
	}

	return db.ImportDataset(&Dataset{Attacks: attacks, Steps: steps})
}

// ImportDataset inserts a whole dataset into this canonical working database,
// keeping the attacks' IDs. The destination must be empty.
func (db *DB) ImportDataset(d *Dataset) (attackCount, stepCount int, err error) {
	existing, err := db.AttackCount()
	if err != nil {
		return 0, 0, err
	}
	if existing > 0 {
		return 0, 0, fmt.Errorf("destination database already contains %d attacks", existing)
	}

	attacks, steps := d.Attacks, d.Steps

	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range attacks {
		_, err := tx.Exec(`
			INSERT INTO attacks (
				id, name, year, attack_class, attack_base, attack_type,
				violated_property, interface, consequence, attacked_asset,
				entry_point, vulnerability, motivation, description, reference
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.Year, a.AttackClass, a.AttackBase, a.AttackType,
			a.ViolatedProperty, a.Interface, a.Consequence, a.AttackedAsset,
			a.EntryPoint, a.Vulnerability, a.Motivation, a.Description, a.Reference,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to import attack %d: %w", a.ID, err)
		}
	}

	for _, s := range steps {
		_, err := tx.Exec(`
			INSERT INTO attack_steps (
				attack_id, step_number, attack_type, violated_property,
				interface, attacked_asset, entry_point, vulnerability, description
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.AttackID, s.StepNumber, s.AttackType, s.ViolatedProperty,
			s.Interface, s.AttackedAsset, s.EntryPoint, s.Vulnerability, s.Description,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to import step %d of attack %d: %w", s.StepNumber, s.AttackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return len(attacks), len(steps), nil
}
