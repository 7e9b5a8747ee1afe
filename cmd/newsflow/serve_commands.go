package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RealZimboGuy/newsflow/internal/definitions"
	"github.com/RealZimboGuy/newsflow/internal/repository"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				return app.Serve(cmd.Context())
			})
		},
	}
}

func newRunOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Run one scheduler pass in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				if err := app.Scheduler.Register(cmd.Context()); err != nil {
					return err
				}
				repaired, err := app.Scheduler.RepairStuck(cmd.Context())
				if err != nil {
					return err
				}
				ran, err := app.Scheduler.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ran %d job(s), repaired %d\n", ran, repaired)
				return nil
			})
		},
	}
}

func newMigrateCommand(_ *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := repository.TargetFromSettings()
			if err != nil {
				return err
			}
			if err := repository.Migrate(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %s is up to date\n", target.Dialect)
			return nil
		},
	}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import workflows and plugin configurations from a TOML catalogue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := definitions.Load(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d configuration(s), %d workflow(s)\n",
					args[0], len(c.Configurations), len(c.Workflows))
				return nil
			}
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				sum, err := app.Importer.Import(cmd.Context(), c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d configuration(s), %d workflow(s)\n", sum.Configurations, sum.Workflows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without writing anything")
	return cmd
}
