package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelsight/internal/api"
	"reelsight/internal/pipeline"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var query api.HistoryQuery
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entries, err := client.History(cmd.Context(), query)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Owner", "Status", "Stage", "Progress", "Started", "Ended"},
					historyRows(entries),
					5,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query.Owner, "owner", "", "Only show jobs of this owner")
	cmd.Flags().StringVar(&query.Status, "status", "", "Only show jobs with this status")
	cmd.Flags().IntVarP(&query.Limit, "limit", "n", 20, "Maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func historyRows(entries []api.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		stageName := e.CurrentStage
		if e.FailedStage != "" {
			stageName = e.FailedStage
		}
		rows = append(rows, []string{
			e.ID,
			valueOrDash(e.Owner),
			e.Status,
			valueOrDash(pipeline.Label(stageName)),
			strconv.Itoa(e.Progress) + "%",
			valueOrDash(e.StartedAt),
			valueOrDash(e.EndedAt),
		})
	}
	return rows
}

func newUsageCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show stored results for an owner against the quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner = strings.TrimSpace(owner)
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}
			return ctx.withClient(func(client *api.Client) error {
				usage, err := client.Usage(cmd.Context(), owner)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, usage)
				}
				limit := "unlimited"
				if usage.Limit > 0 {
					limit = strconv.Itoa(usage.Limit)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d stored results (limit %s)\n", usage.Owner, usage.Results, limit)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner to report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
