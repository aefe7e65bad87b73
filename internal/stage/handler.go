package stage

import "context"

// ReportFunc receives stage-local progress. Percent is 0-100 within the stage.
type ReportFunc func(percent float64, message string)

// Handler describes the contract the pipeline machine needs from each stage.
// Execute receives the previous stage's output (or the job input for the
// first stage) and returns the value handed to the next stage.
type Handler interface {
	Name() string
	Execute(ctx context.Context, input any, report ReportFunc) (any, error)
	HealthCheck(context.Context) Health
}

// InputDecoder is implemented by handlers that can rebuild their input from
// the stored JSON artifact of the preceding stage. Resume depends on it.
type InputDecoder interface {
	DecodeInput(raw []byte) (any, error)
}

// UnitCounter is implemented by stage outputs that fan out into work units.
type UnitCounter interface {
	UnitCounts() (total, succeeded, failed int)
}

// Health is the readiness report of one stage. Detail explains a stage that
// is not Ready.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports name as ready.
func Healthy(name string) Health { return Health{Name: name, Ready: true} }

// Unhealthy reports name as not ready for the given reason.
func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
