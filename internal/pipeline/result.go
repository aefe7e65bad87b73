package pipeline

import (
	"encoding/json"
	"time"

	"reelsight/internal/job"
	"reelsight/internal/stage"
)

// Result is the document written to results/<jobId>.json.
type Result struct {
	JobID       string          `json:"jobId"`
	Owner       string          `json:"owner,omitempty"`
	ResumedFrom string          `json:"resumedFrom,omitempty"`
	Input       job.Input       `json:"input"`
	Report      json.RawMessage `json:"report"`
	Stages      []StageOutput   `json:"stages"`
	Stats       Stats           `json:"stats"`
}

// StageOutput is one stage's persisted output.
type StageOutput struct {
	Name   string          `json:"name"`
	Output json.RawMessage `json:"output"`
}

// Stats summarizes the run.
type Stats struct {
	ElapsedMs   int64     `json:"elapsedMs"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Units       UnitStats `json:"units"`
}

// UnitStats are the fan-out totals.
type UnitStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// unitStatsFrom prefers a live UnitCounter and falls back to the stored JSON,
// which is all a resumed job has for stages it skipped.
func unitStatsFrom(live any, raw json.RawMessage) (UnitStats, bool) {
	if counter, ok := live.(stage.UnitCounter); ok {
		total, succeeded, failed := counter.UnitCounts()
		return UnitStats{Total: total, Succeeded: succeeded, Failed: failed}, true
	}
	var probe struct {
		Total     *int `json:"total"`
		Succeeded *int `json:"succeeded"`
		Failed    *int `json:"failed"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &probe) != nil || probe.Total == nil {
		return UnitStats{}, false
	}
	stats := UnitStats{Total: *probe.Total}
	if probe.Succeeded != nil {
		stats.Succeeded = *probe.Succeeded
	}
	if probe.Failed != nil {
		stats.Failed = *probe.Failed
	}
	return stats, true
}
