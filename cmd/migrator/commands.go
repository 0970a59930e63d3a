package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, func(ctx context.Context, env *runEnv) error {
				result, err := env.manager.Migrate(ctx)
				if result != nil {
					printMigrateResult(a.stdout, result, err != nil)
				}
				return err
			})
		},
	}
}

func (a *app) newInfoCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			return a.execute(cmd, func(ctx context.Context, env *runEnv) error {
				report, err := env.manager.Info(ctx)
				if err != nil {
					return err
				}
				return printInfo(a.stdout, report, format)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "Output format: table or json")
	return cmd
}

func (a *app) newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Verify applied migrations against the files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, func(ctx context.Context, env *runEnv) error {
				report, err := env.manager.Validate(ctx)
				if report != nil {
					printValidationReport(a.stdout, report)
				}
				return err
			})
		},
	}
}

func (a *app) newRepairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Remove failed runs and realign checksums with the files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, func(ctx context.Context, env *runEnv) error {
				result, err := env.manager.Repair(ctx)
				if err != nil {
					return err
				}
				printRepairResult(a.stdout, result)
				return nil
			})
		},
	}
}

func (a *app) newBaselineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "baseline",
		Short: "Mark an existing schema as being at the baseline version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, func(ctx context.Context, env *runEnv) error {
				entry, err := env.manager.Baseline(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Schema baselined at version %s (%s)\n", entry.Version, entry.Description)
				return nil
			})
		},
	}
}
