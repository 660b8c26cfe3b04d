package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autosec-data/aad/internal/db"
	"github.com/autosec-data/aad/internal/report"
)

// inspectCmd prints the table layout and row counts of a database file,
// working or published.
func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show the tables, columns and row counts of a database file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.DatabasePath
			if len(args) == 1 {
				path = args[0]
			}

			database, err := openRead(path)
			if err != nil {
				return err
			}
			defer database.Close()

			kind, err := database.DetectSchema()
			if err != nil {
				return err
			}
			tables, err := database.Inspect()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s schema)\n", path, kind)
			for _, t := range tables {
				fmt.Fprintf(out, "\n%s: %d rows\n", t.Name, t.RowCount)
				for _, col := range t.Columns {
					fmt.Fprintf(out, "  %s %s\n", col.Name, col.Type)
				}
			}
			return nil
		},
	}
}

func (c *cli) queryCmd() *cobra.Command {
	query := &cobra.Command{
		Use:   "query",
		Short: "Read-only queries over the working database",
	}
	query.AddCommand(
		c.queryAttacksCmd(),
		c.queryStepsCmd(),
		c.queryYearsCmd(),
		c.queryTypesCmd(),
		c.queryPropertiesCmd(),
		c.queryStatsCmd(),
	)
	return query
}

func (c *cli) queryAttacksCmd() *cobra.Command {
	var filter db.AttackFilter
	cmd := &cobra.Command{
		Use:   "attacks",
		Short: "List attacks, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			attacks, err := database.ListAttacks(filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tYEAR\tTYPE\tNAME")
			for _, a := range attacks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Year, a.AttackType, a.Name)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Year, "year", "", "filter by publication year")
	cmd.Flags().StringVar(&filter.AttackType, "type", "", "filter by attack type")
	cmd.Flags().StringVar(&filter.ViolatedProperty, "property", "", "filter by violated security property")
	cmd.Flags().StringVar(&filter.Search, "search", "", "substring match on name and description")
	return cmd
}

func (c *cli) queryStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <attack-id>",
		Short: "List the steps of one attack in sequence order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid attack id %q", args[0])
			}

			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			attack, err := database.GetAttack(id)
			if err != nil {
				return err
			}
			steps, err := database.StepsForAttack(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", attack.Name, attack.Year)
			for _, s := range steps {
				desc := ""
				if s.Description != nil {
					desc = *s.Description
				}
				fmt.Fprintf(out, "  %d. %s\n", s.StepNumber, desc)
			}
			return nil
		},
	}
}

func (c *cli) queryYearsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "Count attacks per publication year",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			rows, err := database.AttacksByYear()
			if err != nil {
				return err
			}
			return printCounts(cmd, rows)
		},
	}
}

func (c *cli) queryTypesCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "types",
		Short: "Count attacks per attack type",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			rows, err := database.TopAttackTypes(top)
			if err != nil {
				return err
			}
			return printCounts(cmd, rows)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of entries to show")
	return cmd
}

func (c *cli) queryPropertiesCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Count attacks per violated security property",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			rows, err := database.ViolatedProperties(top)
			if err != nil {
				return err
			}
			return printCounts(cmd, rows)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of entries to show")
	return cmd
}

func (c *cli) queryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the step counts per attack",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			stats, err := report.New(database).StepStats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "attacks:  %d\n", stats.Attacks)
			fmt.Fprintf(out, "mean:     %.2f\n", stats.Mean)
			fmt.Fprintf(out, "std dev:  %.2f\n", stats.StdDev)
			fmt.Fprintf(out, "median:   %.0f\n", stats.Median)
			fmt.Fprintf(out, "p90:      %.0f\n", stats.P90)
			fmt.Fprintf(out, "min/max:  %.0f/%.0f\n", stats.Min, stats.Max)
			return nil
		},
	}
}

func printCounts(cmd *cobra.Command, rows []db.CountRow) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d\n", row.Value, row.Count)
	}
	return w.Flush()
}
