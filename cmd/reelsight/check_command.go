package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelsight/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipLLM bool
	var skipDaemon bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify dependencies and daemon reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, "Dependencies")
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{SkipLLM: skipLLM})
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			if !skipDaemon {
				fmt.Fprintln(out, "Daemon")
				client, err := ctx.client()
				if err == nil {
					health, herr := client.Health(cmd.Context())
					err = herr
					if herr == nil {
						kind := statusOK
						if !health.Ready {
							kind = statusWarn
						}
						fmt.Fprintln(out, renderStatusLine("API", kind,
							fmt.Sprintf("%s (%d running, %d jobs)", ctx.address(), health.Running, health.Jobs), colorize))
						for _, st := range health.Stages {
							stKind := statusOK
							if !st.Ready {
								stKind = statusWarn
							}
							fmt.Fprintln(out, renderStatusLine("Stage "+st.Name, stKind, st.Detail, colorize))
						}
					}
				}
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("API", statusWarn, "unreachable: "+err.Error(), colorize))
				}
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d dependency check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipLLM, "skip-llm", false, "Skip the LLM reachability probe")
	cmd.Flags().BoolVar(&skipDaemon, "skip-daemon", false, "Skip the daemon health probe")
	return cmd
}
