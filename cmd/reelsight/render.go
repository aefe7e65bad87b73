package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"reelsight/internal/api"
	"reelsight/internal/pipeline"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const statusLabelWidth = 20

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + line + ansiReset
		}
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

// jobStatusKind maps a job or stage status onto a display colour.
func jobStatusKind(status string) statusKind {
	switch status {
	case "completed":
		return statusOK
	case "failed":
		return statusError
	case "cancelled", "skipped":
		return statusWarn
	default:
		return statusInfo
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderJob(out io.Writer, j api.Job, colorize bool) {
	fmt.Fprintf(out, "Job %s\n", j.ID)
	stageLabel := pipeline.Label(j.CurrentStage)
	if stageLabel == "" {
		stageLabel = "-"
	}
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(j.Status), j.Status, colorize))
	fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, stageLabel, colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%%", j.Progress), colorize))
	if j.Owner != "" {
		fmt.Fprintln(out, renderStatusLine("Owner", statusInfo, j.Owner, colorize))
	}
	if j.Input.Filename != "" {
		fmt.Fprintln(out, renderStatusLine("Media", statusInfo, j.Input.Filename, colorize))
	}
	if j.ResumedFrom != "" {
		fmt.Fprintln(out, renderStatusLine("Resumed from", statusInfo, j.ResumedFrom, colorize))
	}
	if j.Error != "" {
		msg := j.Error
		if j.ErrorCode != "" {
			msg = fmt.Sprintf("%s (%s)", msg, j.ErrorCode)
		}
		fmt.Fprintln(out, renderStatusLine("Error", statusError, msg, colorize))
	}

	rows := make([][]string, 0, len(j.Stages))
	for _, st := range j.Stages {
		rows = append(rows, []string{
			pipeline.Label(st.Name),
			st.Status,
			fmt.Sprintf("%.0f%%", st.Progress),
			st.Message,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Stage", "Status", "Progress", "Message"}, rows, 3))
	}
}

func renderEvent(out io.Writer, evt api.Event) {
	stageLabel := pipeline.Label(evt.Job.CurrentStage)
	if stageLabel == "" {
		stageLabel = "-"
	}
	line := fmt.Sprintf("[%d] %-10s %-12s %3d%%", evt.Seq, evt.Job.Status, stageLabel, evt.Job.Progress)
	if d := evt.Detail; d != nil {
		switch {
		case d.Error != "":
			line += fmt.Sprintf("  %s: %s", pipeline.Label(d.Stage), d.Error)
		case d.ResultKey != "":
			line += "  result ready"
		}
	}
	fmt.Fprintln(out, strings.TrimRight(line, " "))
}
