package api

import (
	"time"

	"reelsight/internal/events"
	"reelsight/internal/history"
	"reelsight/internal/job"
	"reelsight/internal/workflow"
)

// FromSnapshot converts a job snapshot into its API representation.
func FromSnapshot(snap job.Snapshot) Job {
	out := Job{
		ID:           snap.ID,
		Owner:        snap.Owner,
		Status:       string(snap.Status),
		CurrentStage: snap.CurrentStage,
		Progress:     snap.Progress,
		StartedAt:    formatTime(snap.StartedAt),
		EndedAt:      formatTimePtr(snap.EndedAt),
		Error:        snap.Error,
		ErrorCode:    snap.ErrorCode,
		FailedStage:  snap.FailedStage,
		ResultKey:    snap.ResultKey,
		ResumedFrom:  snap.ResumedFrom,
		Input: JobInput{
			Filename:    snap.Input.Filename,
			ContentType: snap.Input.ContentType,
			SizeBytes:   snap.Input.SizeBytes,
		},
		Stages: make([]JobStage, len(snap.Stages)),
	}
	for i, rec := range snap.Stages {
		out.Stages[i] = JobStage{
			Name:      rec.Name,
			Status:    string(rec.Status),
			Progress:  rec.Progress,
			Message:   rec.Message,
			StartedAt: formatTimePtr(rec.StartedAt),
			EndedAt:   formatTimePtr(rec.EndedAt),
		}
	}
	return out
}

// FromEvent converts a broadcaster event.
func FromEvent(evt events.Event) Event {
	out := Event{
		Seq:       evt.Seq,
		Timestamp: formatTime(evt.Timestamp),
		JobID:     evt.JobID,
		Type:      string(evt.Type),
		Job:       FromSnapshot(evt.Snapshot),
	}
	if evt.Detail != nil {
		out.Detail = &EventDetail{
			ResultKey: evt.Detail.ResultKey,
			Stage:     evt.Detail.Stage,
			ErrorCode: evt.Detail.ErrorCode,
			Error:     evt.Detail.Error,
		}
	}
	return out
}

// FromHistory converts history entries.
func FromHistory(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:           e.ID,
			Owner:        e.Owner,
			Status:       e.Status,
			CurrentStage: e.CurrentStage,
			FailedStage:  e.FailedStage,
			Error:        e.Error,
			ErrorCode:    e.ErrorCode,
			ResultKey:    e.ResultKey,
			Progress:     e.Progress,
			Filename:     e.Filename,
			StartedAt:    formatTime(e.StartedAt),
			EndedAt:      formatTimePtr(e.EndedAt),
			ResumedFrom:  e.ResumedFrom,
		})
	}
	return out
}

// FromHealth converts the manager health summary.
func FromHealth(h workflow.Health) HealthResponse {
	out := HealthResponse{
		Ready:   h.Ready,
		Running: h.Running,
		Jobs:    h.Jobs,
		Stages:  make([]StageHealth, 0, len(h.Stages)),
	}
	for _, s := range h.Stages {
		out.Stages = append(out.Stages, StageHealth{Name: s.Name, Ready: s.Ready, Detail: s.Detail})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
