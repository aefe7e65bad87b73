package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reelsight/internal/api"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSubmitCommand(ctx),
		newStatusCommand(ctx),
		newWatchCommand(ctx),
		newCancelCommand(ctx),
		newResumeCommand(ctx),
		newResultCommand(ctx),
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var watch bool

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a video and start an analysis job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), args[0], owner)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", resp.JobID)
				if !watch {
					return nil
				}
				return watchJob(cmd, client, resp.JobID, false)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner the result is counted against")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job finishes")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				j, err := client.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, j)
				}
				out := cmd.OutOrStdout()
				renderJob(out, j, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream job progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				return watchJob(cmd, client, args[0], asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each event as a JSON line")
	return cmd
}

// watchJob follows the event stream and reports a failed or cancelled job
// as an error so scripts see a non-zero exit.
func watchJob(cmd *cobra.Command, client *api.Client, id string, asJSON bool) error {
	out := cmd.OutOrStdout()
	var last api.Event
	err := client.Watch(cmd.Context(), id, func(evt api.Event) error {
		last = evt
		if asJSON {
			data, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		}
		renderEvent(out, evt)
		return nil
	})
	if err != nil {
		return err
	}
	switch last.Job.Status {
	case "failed":
		return fmt.Errorf("job %s failed: %s", id, last.Job.Error)
	case "cancelled":
		return fmt.Errorf("job %s was cancelled", id)
	}
	return nil
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				j, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s at %d%%\n", j.ID, j.Progress)
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	var from string
	var watch bool

	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Start a new job from a stage of a finished job",
		Long: "Resume re-runs a finished job from the given stage using the stored\n" +
			"output of the stage before it. Without --from a failed job resumes at\n" +
			"the stage that failed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Resume(cmd.Context(), args[0], strings.TrimSpace(from))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed job %s as %s\n", args[0], resp.JobID)
				if !watch {
					return nil
				}
				return watchJob(cmd, client, resp.JobID, false)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Stage to resume from (extraction, inference, enhance, report)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow progress until the job finishes")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "result <id>",
		Short: "Print the result document of a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				doc, err := client.Result(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := json.Indent(&buf, doc, "", "  "); err != nil {
					return fmt.Errorf("format result: %w", err)
				}
				buf.WriteByte('\n')
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			})
		},
	}
}
