package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job snapshot in a transport-friendly format.
type Job struct {
	ID           string     `json:"id"`
	Owner        string     `json:"owner,omitempty"`
	Status       string     `json:"status"`
	CurrentStage string     `json:"currentStage"`
	Progress     int        `json:"progress"`
	StartedAt    string     `json:"startedAt"`
	EndedAt      string     `json:"endedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	FailedStage  string     `json:"failedStage,omitempty"`
	ResultKey    string     `json:"resultKey,omitempty"`
	ResumedFrom  string     `json:"resumedFrom,omitempty"`
	Input        JobInput   `json:"input"`
	Stages       []JobStage `json:"stages"`
}

// JobInput is the uploaded media of a job.
type JobInput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// JobStage captures the progress of one stage.
type JobStage struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message,omitempty"`
	StartedAt string  `json:"startedAt,omitempty"`
	EndedAt   string  `json:"endedAt,omitempty"`
}

// Terminal reports whether the job reached a final status.
func (j Job) Terminal() bool {
	switch j.Status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Event is one entry of a job event stream.
type Event struct {
	Seq       int64        `json:"seq"`
	Timestamp string       `json:"timestamp"`
	JobID     string       `json:"jobId"`
	Type      string       `json:"type"`
	Job       Job          `json:"job"`
	Detail    *EventDetail `json:"detail,omitempty"`
}

// EventDetail carries terminal event context.
type EventDetail struct {
	ResultKey string `json:"resultKey,omitempty"`
	Stage     string `json:"stage,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the stream. A replayed snapshot
// of a finished job counts as well.
func (e Event) Terminal() bool {
	switch e.Type {
	case "completed", "failed", "cancelled":
		return true
	case "snapshot":
		return e.Job.Terminal()
	}
	return false
}

// SubmitResponse is returned when a job is accepted.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// ResumeRequest is the body of a resume call.
type ResumeRequest struct {
	FromStage string `json:"fromStage,omitempty"`
}

// HistoryEntry is one recorded job.
type HistoryEntry struct {
	ID           string `json:"id"`
	Owner        string `json:"owner,omitempty"`
	Status       string `json:"status"`
	CurrentStage string `json:"currentStage,omitempty"`
	FailedStage  string `json:"failedStage,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ResultKey    string `json:"resultKey,omitempty"`
	Progress     int    `json:"progress"`
	Filename     string `json:"filename,omitempty"`
	StartedAt    string `json:"startedAt"`
	EndedAt      string `json:"endedAt,omitempty"`
	ResumedFrom  string `json:"resumedFrom,omitempty"`
}

// HistoryQuery filters a history listing.
type HistoryQuery struct {
	Owner  string
	Status string
	Limit  int
}

// HistoryResponse wraps a history listing.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// UsageResponse reports stored results against the owner quota. A zero Limit
// means unlimited.
type UsageResponse struct {
	Owner   string `json:"owner"`
	Results int    `json:"results"`
	Limit   int    `json:"limit"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse aggregates daemon readiness.
type HealthResponse struct {
	Ready   bool          `json:"ready"`
	Running int           `json:"running"`
	Jobs    int           `json:"jobs"`
	Stages  []StageHealth `json:"stages"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Result is the stored result document, passed through undecoded.
type Result = json.RawMessage
