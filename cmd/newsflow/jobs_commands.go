package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RealZimboGuy/newsflow/pkg/newsflow"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/domain"
	"github.com/RealZimboGuy/newsflow/pkg/newsflow/models"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage the job queue",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsScheduleCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCompletedCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job queue items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter models.JobStatus
			if status != "" {
				s, ok := models.ParseJobStatus(strings.ToUpper(status))
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter = s
			}
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				jobs, err := app.Jobs.FindByStatus(cmd.Context(), filter, limit)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Target", "Status", "Execution time", "Retries", "Last error"},
					jobRows(jobs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list items in this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of items")
	return cmd
}

func jobRows(jobs []domain.JobQueueItem) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(j.ID, 10),
			j.Name,
			fmt.Sprintf("%s:%d", j.TypeClass, j.TypeClassID),
			string(j.Status),
			j.ExecutionTime.Format(time.RFC3339),
			strconv.Itoa(j.RetryCount),
			truncate(j.LastError.String, 60),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a job with its parameters and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("job id %q: %w", args[0], err)
			}
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				job, err := app.Jobs.FindByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				events, err := app.JobEvents.FindAllByJobID(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable([]string{"ID", "Name", "Target", "Status", "Execution time", "Retries", "Last error"},
					jobRows([]domain.JobQueueItem{*job}), nil))
				if len(job.Parameters) > 0 {
					rows := make([][]string, 0, len(job.Parameters))
					for _, p := range job.Parameters {
						rows = append(rows, []string{p.Name, p.Value})
					}
					fmt.Fprint(out, renderTable([]string{"Parameter", "Value"}, rows, nil))
				}
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{e.DateTime.Format(time.RFC3339), e.Type, e.Text})
				}
				fmt.Fprint(out, renderTable([]string{"Time", "Event", "Text"}, rows, nil))
				return nil
			})
		},
	}
}

func newJobsScheduleCommand(ctx *commandContext) *cobra.Command {
	var (
		configName string
		action     string
		typeClass  string
		targetID   int64
		in         time.Duration
		params     []string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Put a plugin action on the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseParams(params)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				req := models.ScheduleJobRequest{
					TypeClass:    typeClass,
					TypeClassID:  targetID,
					PluginAction: action,
					Parameters:   pairs,
				}
				if in > 0 {
					req.ExecutionTime = app.Clock.Now().Add(in)
				}
				if configName != "" {
					cfg, err := app.Configs.FindByName(cmd.Context(), configName)
					if err != nil {
						return fmt.Errorf("configuration %q: %w", configName, err)
					}
					req.PluginConfigurationID = cfg.ID
				}
				job, err := app.Scheduler.Schedule(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled job %d (%s) for %s\n", job.ID, job.Name, job.ExecutionTime.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&configName, "config-name", "", "Plugin configuration to run")
	cmd.Flags().StringVar(&action, "action", "", "Plugin action to run with no configuration")
	cmd.Flags().StringVar(&typeClass, "type", models.TypeClassNewsItem, "Target type class")
	cmd.Flags().Int64Var(&targetID, "id", 0, "Target id")
	cmd.Flags().DurationVar(&in, "in", 0, "Delay before the job matures")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Job parameter as key=value (repeatable)")
	cmd.MarkFlagsOneRequired("config-name", "action")
	return cmd
}

// parseParams turns key=value flags into ordered properties.
func parseParams(raw []string) ([]models.Property, error) {
	out := make([]models.Property, 0, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", kv)
		}
		out = append(out, models.Property{Key: strings.TrimSpace(k), Value: v})
	}
	return out, nil
}

func newJobsRemoveCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-completed",
		Short: "Delete every COMPLETED job with its parameters and events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(app *newsflow.App) error {
				n, err := app.Scheduler.RemoveCompleted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", n)
				return nil
			})
		},
	}
}
