// Command aad maintains the Automotive Attack Database: it inspects and
// verifies published snapshot files, queries and edits the working database,
// diffs versions, exports CSV, renders reports, and publishes new snapshots.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/autosec-data/aad/internal/config"
	"github.com/autosec-data/aad/internal/db"
	"github.com/autosec-data/aad/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries the effective configuration and the flag values shared by all
// subcommands.
type cli struct {
	configPath string
	dbPath     string
	logToFile  bool

	cfg     *config.Config
	logFile *os.File
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "aad",
		Short: "Automotive Attack Database maintenance tool",
		Long: "aad maintains the Automotive Attack Database: a catalog of automotive\n" +
			"security attacks and their step decompositions, published as immutable\n" +
			"SQLite snapshots.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.teardown()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a JSON config file")
	root.PersistentFlags().StringVar(&c.dbPath, "db", "", "working database path (overrides config)")
	root.PersistentFlags().BoolVar(&c.logToFile, "log-file", false, "also write log output to a timestamped file under the logs directory")

	root.AddCommand(
		c.inspectCmd(),
		c.verifyCmd(),
		c.diffCmd(),
		c.queryCmd(),
		c.attackCmd(),
		c.stepCmd(),
		c.exportCmd(),
		c.reportCmd(),
		c.migrateCmd(),
		c.releaseCmd(),
		c.convertCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DatabasePath = c.dbPath
	}
	c.cfg = cfg

	if c.logToFile {
		if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		name := filepath.Join(cfg.LogsDir, "aad_"+time.Now().Format("20060102_150405")+".log")
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		c.logFile = f
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return nil
}

func (c *cli) teardown() {
	if c.logFile != nil {
		log.SetOutput(os.Stderr)
		c.logFile.Close()
		c.logFile = nil
	}
}

// openWorking opens the working database, creating and migrating it on first
// use.
func (c *cli) openWorking() (*db.DB, error) {
	return db.NewDB(c.cfg.DatabasePath)
}

// openRead opens an existing file without touching its schema. Published
// snapshots must never be migrated in place.
func openRead(path string) (*db.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return db.OpenDB(path)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
