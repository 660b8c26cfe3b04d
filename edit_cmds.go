package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/autosec-data/aad/internal/db"
)

// The attack and step commands mutate the working database only. Published
// snapshot files stay untouched; corrections flow into the next release.

func (c *cli) attackCmd() *cobra.Command {
	attack := &cobra.Command{
		Use:   "attack",
		Short: "Maintain attack entries in the working database",
	}
	attack.AddCommand(
		c.attackAddCmd(),
		c.attackEditCmd(),
		c.attackRemoveCmd(),
	)
	return attack
}

// attackFlags binds the classification axes to flags shared by add and edit.
func attackFlags(cmd *cobra.Command, a *db.Attack, description, reference *string) {
	f := cmd.Flags()
	f.StringVar(&a.Name, "name", "", "attack name")
	f.StringVar(&a.Year, "year", "", "publication year, kept verbatim")
	f.StringVar(&a.AttackClass, "class", "", "attack class")
	f.StringVar(&a.AttackBase, "base", "", "attack base")
	f.StringVar(&a.AttackType, "type", "", "attack type")
	f.StringVar(&a.ViolatedProperty, "property", "", "violated security property")
	f.StringVar(&a.Interface, "interface", "", "attacked interface")
	f.StringVar(&a.Consequence, "consequence", "", "consequence")
	f.StringVar(&a.AttackedAsset, "asset", "", "attacked asset")
	f.StringVar(&a.EntryPoint, "entry-point", "", "entry point")
	f.StringVar(&a.Vulnerability, "vulnerability", "", "exploited vulnerability")
	f.StringVar(&a.Motivation, "motivation", "", "attack motivation")
	f.StringVar(description, "description", "", "free-text description")
	f.StringVar(reference, "reference", "", "literature reference")
}

func (c *cli) attackAddCmd() *cobra.Command {
	var attack db.Attack
	var description, reference string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new attack",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			if description != "" {
				attack.Description = &description
			}
			if reference != "" {
				attack.Reference = &reference
			}
			if err := database.CreateAttack(&attack); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created attack %d: %s\n", attack.ID, attack.Name)
			return nil
		},
	}
	attackFlags(cmd, &attack, &description, &reference)
	return cmd
}

func (c *cli) attackEditCmd() *cobra.Command {
	var updates db.Attack
	var description, reference string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update fields of an existing attack",
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

			// Only flags the maintainer actually set overwrite fields.
			applyAttackUpdates(cmd, attack, &updates, description, reference)

			if err := database.UpdateAttack(attack); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated attack %d\n", attack.ID)
			return nil
		},
	}
	attackFlags(cmd, &updates, &description, &reference)
	return cmd
}

func applyAttackUpdates(cmd *cobra.Command, attack, updates *db.Attack, description, reference string) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }

	if set("name") {
		attack.Name = updates.Name
	}
	if set("year") {
		attack.Year = updates.Year
	}
	if set("class") {
		attack.AttackClass = updates.AttackClass
	}
	if set("base") {
		attack.AttackBase = updates.AttackBase
	}
	if set("type") {
		attack.AttackType = updates.AttackType
	}
	if set("property") {
		attack.ViolatedProperty = updates.ViolatedProperty
	}
	if set("interface") {
		attack.Interface = updates.Interface
	}
	if set("consequence") {
		attack.Consequence = updates.Consequence
	}
	if set("asset") {
		attack.AttackedAsset = updates.AttackedAsset
	}
	if set("entry-point") {
		attack.EntryPoint = updates.EntryPoint
	}
	if set("vulnerability") {
		attack.Vulnerability = updates.Vulnerability
	}
	if set("motivation") {
		attack.Motivation = updates.Motivation
	}
	if set("description") {
		attack.Description = &description
	}
	if set("reference") {
		attack.Reference = &reference
	}
}

func (c *cli) attackRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an attack and its steps",
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

			if err := database.DeleteAttack(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted attack %d\n", id)
			return nil
		},
	}
}

func (c *cli) stepCmd() *cobra.Command {
	step := &cobra.Command{
		Use:   "step",
		Short: "Maintain attack steps in the working database",
	}
	step.AddCommand(
		c.stepAddCmd(),
		c.stepRemoveCmd(),
		c.stepRenumberCmd(),
	)
	return step
}

func (c *cli) stepAddCmd() *cobra.Command {
	var step db.AttackStep
	var description string

	cmd := &cobra.Command{
		Use:   "add <attack-id>",
		Short: "Append a step to an attack's sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attackID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid attack id %q", args[0])
			}

			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			step.AttackID = attackID
			if description != "" {
				step.Description = &description
			}
			if err := database.CreateStep(&step); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created step %d of attack %d\n", step.StepNumber, attackID)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&step.StepNumber, "number", 0, "explicit step number (default: append)")
	f.StringVar(&step.AttackType, "type", "", "attack type of this step")
	f.StringVar(&step.ViolatedProperty, "property", "", "violated security property")
	f.StringVar(&step.Interface, "interface", "", "attacked interface")
	f.StringVar(&step.AttackedAsset, "asset", "", "attacked asset")
	f.StringVar(&step.EntryPoint, "entry-point", "", "entry point")
	f.StringVar(&step.Vulnerability, "vulnerability", "", "exploited vulnerability")
	f.StringVar(&description, "description", "", "step description")
	return cmd
}

func (c *cli) stepRemoveCmd() *cobra.Command {
	var renumber bool
	cmd := &cobra.Command{
		Use:   "rm <step-id>",
		Short: "Delete a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step id %q", args[0])
			}

			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			step, err := database.GetStep(id)
			if err != nil {
				return err
			}
			if err := database.DeleteStep(id); err != nil {
				return err
			}
			if renumber {
				if err := database.RenumberSteps(step.AttackID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted step %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&renumber, "renumber", true, "close the gap in the attack's step sequence")
	return cmd
}

func (c *cli) stepRenumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renumber <attack-id>",
		Short: "Rewrite an attack's step numbers to an unbroken 1..n sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attackID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid attack id %q", args[0])
			}

			database, err := c.openWorking()
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.RenumberSteps(attackID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renumbered steps of attack %d\n", attackID)
			return nil
		},
	}
}
