package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autosec-data/aad/internal/db"
	"github.com/autosec-data/aad/internal/diff"
	"github.com/autosec-data/aad/internal/export"
	"github.com/autosec-data/aad/internal/ods"
	"github.com/autosec-data/aad/internal/report"
	"github.com/autosec-data/aad/internal/security"
	"github.com/autosec-data/aad/internal/verify"
)

func (c *cli) verifyCmd() *cobra.Command {
	var (
		release string
		attacks int
		steps   int
		rows    int
	)

	cmd := &cobra.Command{
		Use:   "verify [file...]",
		Short: "Run the integrity checks against snapshot or spreadsheet files",
		Long: "verify checks each file: databases for row counts, referential\n" +
			"integrity, step ordering and openability; spreadsheets for parseability\n" +
			"and row counts. With no files the working database is checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			expect, err := expectedCounts(release, attacks, steps)
			if err != nil {
				return err
			}

			files := args
			if len(files) == 0 {
				files = []string{c.cfg.DatabasePath}
			}

			failed := 0
			for _, file := range files {
				var rep *verify.Report
				if strings.EqualFold(filepath.Ext(file), ".ods") {
					rep = verify.Spreadsheet(file, spreadsheetRows(file, rows, release))
				} else {
					rep = verify.Database(file, expect)
				}
				printReport(cmd, rep)
				if !rep.Passed() {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(files))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&release, "release", "", "check counts against a published release label (e.g. V2.0)")
	cmd.Flags().IntVar(&attacks, "attacks", 0, "expected attack count")
	cmd.Flags().IntVar(&steps, "steps", 0, "expected step count")
	cmd.Flags().IntVar(&rows, "rows", 0, "expected data row count for spreadsheet files")
	return cmd
}

func expectedCounts(release string, attacks, steps int) (*verify.Counts, error) {
	if release != "" {
		counts, ok := verify.PublishedCounts[release]
		if !ok {
			return nil, fmt.Errorf("unknown release %q", release)
		}
		return &counts, nil
	}
	if attacks > 0 || steps > 0 {
		return &verify.Counts{Attacks: attacks, Steps: steps}, nil
	}
	return nil, nil
}

// spreadsheetRows picks the expected row count for an .ods file. An explicit
// --rows wins; with --release the published spreadsheet sizes apply, keyed on
// whether the file is the step-splitted sheet or the classification sheet.
func spreadsheetRows(file string, rows int, release string) int {
	if rows > 0 || release == "" {
		return rows
	}
	if strings.Contains(strings.ToLower(filepath.Base(file)), "splitted") {
		return verify.SpreadsheetCounts["splitted"]
	}
	return verify.SpreadsheetCounts["classification"]
}

func printReport(cmd *cobra.Command, rep *verify.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", rep.Target)
	for _, check := range rep.Checks {
		mark := "ok  "
		if !check.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "  %s %-22s %s\n", mark, check.Name, check.Detail)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(out, "  warn %s\n", w)
	}
}

func (c *cli) diffCmd() *cobra.Command {
	var (
		threshold int
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two snapshot files and flag suspicious changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold == 0 {
				threshold = c.cfg.DeletionThreshold
			}

			result, err := diff.Files(args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "attacks: %d -> %d, steps: %d -> %d\n",
				result.OldAttacks, result.NewAttacks, result.OldSteps, result.NewSteps)

			for _, a := range result.Added {
				fmt.Fprintf(out, "+ attack %d: %s\n", a.ID, a.Name)
			}
			for _, a := range result.Removed {
				fmt.Fprintf(out, "- attack %d: %s\n", a.ID, a.Name)
			}
			for _, m := range result.Modified {
				fmt.Fprintf(out, "~ attack %d: %s\n%s", m.ID, m.Name, indent(m.Detail))
			}
			for _, sc := range result.StepChanges {
				fmt.Fprintf(out, "~ steps of attack %d: %d -> %d\n", sc.AttackID, sc.Before, sc.After)
			}
			if result.Unchanged() {
				fmt.Fprintln(out, "no changes")
			}

			findings := result.Regressions(threshold)
			for _, f := range findings {
				fmt.Fprintf(out, "REVIEW: %s\n", f)
			}
			if strict && len(findings) > 0 {
				return fmt.Errorf("%d findings need review", len(findings))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&threshold, "threshold", 0, "attacks removed before the diff is flagged (default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the diff has review findings")
	return cmd
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n") + "\n"
}

func (c *cli) exportCmd() *cobra.Command {
	var (
		dir     string
		summary bool
	)

	cmd := &cobra.Command{
		Use:   "export [table...]",
		Short: "Export tables as CSV files with a YAML run summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = c.cfg.ExportsDir
			}

			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			exporter := export.New(database, dir)
			out := cmd.OutOrStdout()

			if summary {
				path, err := exporter.DatasetYAML()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "dataset summary -> %s\n", path)
				return nil
			}

			run, err := exporter.CSV(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "export run %s\n", run.RunID)
			for _, f := range run.Files {
				fmt.Fprintf(out, "  %s: %d rows -> %s\n", f.Table, f.Rows, f.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&summary, "summary", false, "write the YAML dataset summary instead of CSV tables")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the HTML summary report",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			if out == "" {
				if err := os.MkdirAll(c.cfg.ExportsDir, 0o755); err != nil {
					return fmt.Errorf("failed to create exports directory: %w", err)
				}
				stamp := time.Now().Format("20060102_150405")
				out = filepath.Join(c.cfg.ExportsDir, "AAD_report_"+stamp+".html")
			}

			r := report.New(database)
			if err := r.RenderFile(out); err != nil {
				return err
			}

			stats, err := r.StepStats()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "report written to %s\n", out)
			fmt.Fprintf(w, "%d attacks, %.2f steps on average (max %.0f)\n",
				stats.Attacks, stats.Mean, stats.Max)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output HTML file (default: exports directory)")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the working database schema",
	}

	migrate.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withWorking(func(database *db.DB) error {
					return database.MigrateUp()
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back one migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withWorking(func(database *db.DB) error {
					return database.MigrateDown()
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withWorking(func(database *db.DB) error {
					status, err := database.GetMigrationStatus()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d of %d, dirty=%v\n",
						status.CurrentVersion, status.LatestVersion, status.Dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "to <version>",
			Short: "Migrate up or down to a specific schema version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return c.withWorking(func(database *db.DB) error {
					return database.MigrateTo(uint(v))
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the schema version after a failed migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return c.withWorking(func(database *db.DB) error {
					return database.MigrateForce(v)
				})
			},
		},
		&cobra.Command{
			Use:   "baseline <version>",
			Short: "Mark an existing database as already migrated to a version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return c.withWorking(func(database *db.DB) error {
					return database.BaselineAtVersion(uint(v))
				})
			},
		},
	)
	return migrate
}

// withWorking runs fn against the working database without auto-migrating,
// so the migrate subcommands control the schema explicitly.
func (c *cli) withWorking(fn func(*db.DB) error) error {
	database, err := db.OpenDB(c.cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(database)
}

func (c *cli) releaseCmd() *cobra.Command {
	release := &cobra.Command{
		Use:   "release",
		Short: "Publish and list dataset versions",
	}
	release.AddCommand(c.releasePublishCmd(), c.releaseListCmd())
	return release
}

func (c *cli) releasePublishCmd() *cobra.Command {
	var (
		notes string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "publish <label>",
		Short: "Publish the working database as an immutable snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := args[0]

			if err := os.MkdirAll(c.cfg.SnapshotsDir, 0o755); err != nil {
				return fmt.Errorf("failed to create snapshots directory: %w", err)
			}
			if out == "" {
				out = filepath.Join(c.cfg.SnapshotsDir, "AAD_"+security.SafeLabel(label)+".db")
			}
			if err := security.EnsureWithinDir(out, c.cfg.SnapshotsDir); err != nil {
				return err
			}

			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			stamp, err := database.PublishSnapshot(label, notes, out)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %s: %d attacks, %d steps -> %s\n",
				stamp.Label, stamp.AttackCount, stamp.StepCount, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "release notes stored with the version stamp")
	cmd.Flags().StringVar(&out, "out", "", "snapshot file path (default: snapshots directory)")
	return cmd
}

func (c *cli) releaseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the published dataset versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			versions, err := database.Versions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, v := range versions {
				fmt.Fprintf(out, "%s\t%d attacks\t%d steps\t%s\n",
					v.Label, v.AttackCount, v.StepCount, v.PublishedAt.Format(time.RFC3339))
			}
			if len(versions) == 0 {
				fmt.Fprintln(out, "no published versions")
			}
			return nil
		},
	}
}

func (c *cli) convertCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "convert <source>",
		Short: "Convert a legacy snapshot or spreadsheet into a canonical database",
		Long: "convert reads a published legacy .db snapshot or the .ods spreadsheet\n" +
			"pair and writes a fresh database in the canonical schema. Attack\n" +
			"identity is preserved so diffs across the conversion stay meaningful.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			if out == "" {
				base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
				out = base + "_canonical.db"
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("destination %s already exists", out)
			}

			dest, err := db.NewDB(out)
			if err != nil {
				return err
			}
			defer dest.Close()

			var attacks, steps int
			if strings.EqualFold(filepath.Ext(src), ".ods") {
				attacks, steps, err = convertSpreadsheet(src, dest)
			} else {
				attacks, steps, err = convertDatabase(src, dest)
			}
			if err != nil {
				os.Remove(out)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "converted %s: %d attacks, %d steps -> %s\n",
				src, attacks, steps, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "destination database path")
	return cmd
}

func convertDatabase(src string, dest *db.DB) (int, int, error) {
	source, err := openRead(src)
	if err != nil {
		return 0, 0, err
	}
	defer source.Close()
	return dest.ImportLegacy(source)
}

func convertSpreadsheet(src string, dest *db.DB) (int, int, error) {
	doc, err := ods.Open(src)
	if err != nil {
		return 0, 0, err
	}

	attackSheet, stepSheet := pickSheets(doc)
	if attackSheet == nil {
		return 0, 0, fmt.Errorf("spreadsheet %s has no data sheets", src)
	}

	var stepHeader []string
	var stepRows [][]string
	if stepSheet != nil {
		stepHeader = stepSheet.Header()
		stepRows = stepSheet.Rows[1:]
	}

	dataset := db.DatasetFromSheets(attackSheet.Header(), attackSheet.Rows[1:], stepHeader, stepRows)
	return dest.ImportDataset(dataset)
}

// pickSheets finds the classification sheet and its step-splitted companion.
// The published files name the step sheet with a "splitted" suffix; failing
// that the second sheet is taken.
func pickSheets(doc *ods.Document) (attacks, steps *ods.Sheet) {
	for i := range doc.Sheets {
		sheet := &doc.Sheets[i]
		if len(sheet.Rows) < 2 {
			continue
		}
		name := strings.ToLower(sheet.Name)
		if strings.Contains(name, "splitted") || strings.Contains(name, "step") {
			if steps == nil {
				steps = sheet
			}
			continue
		}
		if attacks == nil {
			attacks = sheet
		} else if steps == nil {
			steps = sheet
		}
	}
	return attacks, steps
}
