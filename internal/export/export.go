// Package export writes dataset tables out as CSV files, one file per table,
// with a YAML summary describing the export run.
package export

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/autosec-data/aad/internal/db"
)

// FileSummary describes one exported CSV file.
type FileSummary struct {
	Table string `yaml:"table"`
	Path  string `yaml:"path"`
	Rows  int    `yaml:"rows"`
}

// Summary describes one export run. It is written next to the CSV files so a
// batch of exports can be traced back to the run that produced it.
type Summary struct {
	RunID      string        `yaml:"run_id"`
	Database   string        `yaml:"database"`
	ExportedAt time.Time     `yaml:"exported_at"`
	Files      []FileSummary `yaml:"files"`
}

// Exporter writes tables from one database into a directory.
type Exporter struct {
	db  *db.DB
	dir string
	now func() time.Time
}

func New(database *db.DB, dir string) *Exporter {
	return &Exporter{db: database, dir: dir, now: time.Now}
}

// CSV exports the named tables. With no tables given it exports every user
// table in the database, which covers both canonical and legacy layouts.
func (e *Exporter) CSV(tables []string) (*Summary, error) {
	if len(tables) == 0 {
		all, err := e.db.Tables()
		if err != nil {
			return nil, err
		}
		tables = all
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("database has no tables to export")
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	now := e.now()
	summary := &Summary{
		RunID:      uuid.New().String(),
		Database:   e.db.Path(),
		ExportedAt: now,
	}
	stamp := now.Format("20060102_150405")

	for _, table := range tables {
		path := filepath.Join(e.dir, fmt.Sprintf("AAD_%s_%s.csv", safeName(table), stamp))
		rows, err := e.exportTable(table, path)
		if err != nil {
			return nil, fmt.Errorf("failed to export table %s: %w", table, err)
		}
		summary.Files = append(summary.Files, FileSummary{Table: table, Path: path, Rows: rows})
	}

	if err := e.writeSummary(summary, stamp); err != nil {
		return nil, err
	}
	return summary, nil
}

func (e *Exporter) exportTable(table, path string) (int, error) {
	rows, err := e.db.Query(fmt.Sprintf(`SELECT * FROM %s`, quoteIdent(table)))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return 0, err
	}

	count := 0
	values := make([]sql.NullString, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	record := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return 0, err
		}
		for i, v := range values {
			record[i] = cleanCell(v.String)
		}
		if err := w.Write(record); err != nil {
			return 0, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return count, f.Close()
}

// DatasetSummary is the YAML description of the dataset's content: release
// history, totals, and the distributions over the main classification axes.
type DatasetSummary struct {
	RunID              string              `yaml:"run_id"`
	Database           string              `yaml:"database"`
	GeneratedAt        time.Time           `yaml:"generated_at"`
	Versions           []db.DatasetVersion `yaml:"versions"`
	Attacks            int                 `yaml:"attacks"`
	Steps              int                 `yaml:"steps"`
	ByYear             []db.CountRow       `yaml:"by_year"`
	TopAttackTypes     []db.CountRow       `yaml:"top_attack_types"`
	ViolatedProperties []db.CountRow       `yaml:"violated_properties"`
}

// DatasetYAML writes the dataset summary into the export directory and
// returns its path.
func (e *Exporter) DatasetYAML() (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	now := e.now()
	summary := DatasetSummary{
		RunID:       uuid.New().String(),
		Database:    e.db.Path(),
		GeneratedAt: now,
	}

	var err error
	if summary.Versions, err = e.db.Versions(); err != nil {
		return "", err
	}
	if summary.Attacks, err = e.db.AttackCount(); err != nil {
		return "", err
	}
	if summary.Steps, err = e.db.StepCount(); err != nil {
		return "", err
	}
	if summary.ByYear, err = e.db.AttacksByYear(); err != nil {
		return "", err
	}
	if summary.TopAttackTypes, err = e.db.TopAttackTypes(10); err != nil {
		return "", err
	}
	if summary.ViolatedProperties, err = e.db.ViolatedProperties(10); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(&summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dataset summary: %w", err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("AAD_summary_%s.yaml", now.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write dataset summary: %w", err)
	}
	return path, nil
}

func (e *Exporter) writeSummary(summary *Summary, stamp string) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal export summary: %w", err)
	}
	path := filepath.Join(e.dir, fmt.Sprintf("AAD_export_%s.yaml", stamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export summary: %w", err)
	}
	return nil
}

// cleanCell flattens embedded line breaks so each record stays on one line.
// The published spreadsheets carry multi-line step descriptions.
func cleanCell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}

// safeName keeps legacy table names like "Automotive Security Attacks"
// filesystem friendly.
func safeName(table string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, table)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
