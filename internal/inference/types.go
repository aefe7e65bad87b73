package inference

import (
	"context"
	"errors"
)

// ErrNoFindings is returned when analysis produced nothing to report on.
var ErrNoFindings = errors.New("no findings produced")

// Frame is one extracted image handed to the provider.
type Frame struct {
	Index       int
	Timestamp   float64
	ContentType string
	Data        []byte
}

// Finding is the structured observation for one frame.
type Finding struct {
	Index       int      `json:"index"`
	Timestamp   float64  `json:"timestamp"`
	Description string   `json:"description"`
	Labels      []string `json:"labels,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
}

// Metadata describes the media the findings came from.
type Metadata struct {
	Source     string  `json:"source"`
	Filename   string  `json:"filename"`
	Duration   float64 `json:"duration"`
	FrameCount int     `json:"frameCount"`
}

// Analysis is the output of the inference and enhance stages.
type Analysis struct {
	Metadata Metadata  `json:"metadata"`
	Findings []Finding `json:"findings"`
	Skipped  int       `json:"skipped"`
	Enhanced bool      `json:"enhanced"`
}

// Section is one titled block of a report.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Report is the synthesized document.
type Report struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Sections []Section `json:"sections"`
	Tags     []string  `json:"tags,omitempty"`
}

// Provider turns frames and findings into structured text.
type Provider interface {
	AnalyzeFrame(ctx context.Context, frame Frame) (Finding, error)
	Enhance(ctx context.Context, findings []Finding) ([]Finding, error)
	Synthesize(ctx context.Context, findings []Finding, meta Metadata) (Report, error)
}

// HealthChecker is implemented by providers that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
