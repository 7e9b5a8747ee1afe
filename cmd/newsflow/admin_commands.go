package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RealZimboGuy/newsflow/internal/config"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
)

func newLocksCommand(ctx *commandContext) *cobra.Command {
	locksCmd := &cobra.Command{
		Use:   "locks",
		Short: "Manage news item checkouts",
	}

	var username string
	var all bool
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Release locks held by one user or by everybody",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (username != "") {
				return errors.New("pass exactly one of --user or --all")
			}
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				var (
					n   int64
					err error
				)
				if all {
					n, err = app.Locks.RevokeAllLocks(cmd.Context())
				} else {
					var u *domain.UserAccount
					if u, err = app.Users.FindByUsername(cmd.Context(), username); err != nil {
						return fmt.Errorf("user %q: %w", username, err)
					}
					n, err = app.Locks.RevokeLocks(cmd.Context(), u)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d lock(s)\n", n)
				return nil
			})
		},
	}
	revoke.Flags().StringVar(&username, "user", "", "Release this user's locks")
	revoke.Flags().BoolVar(&all, "all", false, "Release every lock")
	locksCmd.AddCommand(revoke)
	return locksCmd
}

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	var (
		username, password, fullName string
		roles                        []string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				u := &domain.UserAccount{Username: username, FullName: fullName, Roles: roles}
				id, err := app.Users.Save(cmd.Context(), u, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%d)\n", username, id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&username, "username", "", "Login name")
	add.Flags().StringVar(&password, "password", "", "Password")
	add.Flags().StringVar(&fullName, "full-name", "", "Display name")
	add.Flags().StringArrayVar(&roles, "role", nil, "Role to grant (repeatable)")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("password")

	list := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				users, err := app.Users.FindAll(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{
						strconv.FormatInt(u.ID, 10),
						u.Username,
						u.FullName,
						strings.Join(u.Roles, ", "),
						yesNo(!u.Enabled.Valid || u.Enabled.Bool),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Username", "Name", "Roles", "Enabled"}, rows,
					[]columnAlignment{alignRight}))
				return nil
			})
		},
	}

	usersCmd.AddCommand(add, list)
	return usersCmd
}

func newWorkflowsCommand(ctx *commandContext) *cobra.Command {
	workflowsCmd := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect workflow definitions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				flows, err := app.Workflows.FindAll(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(flows))
				for _, wf := range flows {
					rows = append(rows, []string{strconv.FormatInt(wf.ID, 10), wf.Name, strconv.Itoa(len(wf.States)), strconv.Itoa(len(wf.Steps)), wf.Description})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "States", "Steps", "Description"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight}))
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Show a workflow's states and its mermaid flow chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				wf, err := app.Workflows.FindByName(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("workflow %q: %w", args[0], err)
				}
				rows := make([][]string, 0, len(wf.States))
				for _, s := range wf.States {
					marker := ""
					switch s.ID {
					case wf.StartStateID:
						marker = "start"
					case wf.EndStateID:
						marker = "end"
					case wf.TrashStateID:
						marker = "trash"
					}
					rows = append(rows, []string{s.Name, s.ActorRole, string(s.Permission), yesNo(s.TreatAsSubmitted), marker})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable([]string{"State", "Role", "Permission", "Submitted", ""}, rows, nil))
				fmt.Fprintln(out, wf.FlowChart)
				return nil
			})
		},
	}

	workflowsCmd.AddCommand(list, show)
	return workflowsCmd
}

func newPluginsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the registered plugin actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				descs := app.Registry.List()
				rows := make([][]string, 0, len(descs))
				for _, d := range descs {
					rows = append(rows, []string{d.ID, string(d.Capability), d.Description})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Action", "Capability", "Description"}, rows, nil))
				return nil
			})
		},
	}
}

func newExecutorsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "executors",
		Short: "List registered schedulers, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				execs, err := app.Executors.FindByLastActive(cmd.Context(), limit)
				if err != nil {
					return err
				}
				now := app.Clock.Now()
				stuckAfter := config.GetSystemSettingDuration(config.SCHEDULER_STUCK_AFTER)
				rows := make([][]string, 0, len(execs))
				for _, e := range execs {
					rows = append(rows, []string{
						strconv.FormatInt(e.ID, 10),
						e.Name,
						e.Started.Format(time.RFC3339),
						e.Idle(now).Truncate(time.Second).String(),
						yesNo(e.Stale(now, stuckAfter)),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Started", "Idle", "Stale"}, rows,
					[]columnAlignment{alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum executors to list")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
