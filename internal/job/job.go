package job

import (
	"sync"
	"time"

	"reelsight/internal/progress"
)

// Input describes the uploaded media a job analyzes.
type Input struct {
	Filename    string `json:"filename"`
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// StageRecord is the progress of one stage within a job.
type StageRecord struct {
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	Progress  float64     `json:"progress"`
	Message   string      `json:"message,omitempty"`
	StartedAt *time.Time  `json:"startedAt,omitempty"`
	EndedAt   *time.Time  `json:"endedAt,omitempty"`
}

// Params are the creation arguments for a job.
type Params struct {
	ID          string
	Owner       string
	Workspace   string
	ResumedFrom string
	Input       Input
	Stages      []string
	Now         time.Time
}

// Job is one pipeline execution.
type Job struct {
	mu sync.Mutex

	id          string
	owner       string
	workspace   string
	resumedFrom string
	input       Input

	status       Status
	currentStage string
	progress     int
	startedAt    time.Time
	endedAt      *time.Time
	errMessage   string
	errCode      string
	failedStage  string
	resultKey    string
	stages       []StageRecord
}

// New creates a pending job with one pending record per stage, in order.
func New(p Params) *Job {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	workspace := p.Workspace
	if workspace == "" {
		workspace = p.ID
	}
	stages := make([]StageRecord, len(p.Stages))
	for i, name := range p.Stages {
		stages[i] = StageRecord{Name: name, Status: StagePending}
	}
	return &Job{
		id:           p.ID,
		owner:        p.Owner,
		workspace:    workspace,
		resumedFrom:  p.ResumedFrom,
		input:        p.Input,
		status:       StatusPending,
		currentStage: StageInitialization,
		startedAt:    now.UTC(),
		stages:       stages,
	}
}

func (j *Job) ID() string        { return j.id }
func (j *Job) Owner() string     { return j.owner }
func (j *Job) Workspace() string { return j.workspace }
func (j *Job) Input() Input      { return j.input }

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// StartedAt is the creation time of the job.
func (j *Job) StartedAt() time.Time {
	return j.startedAt
}

// StageNames returns the pipeline order.
func (j *Job) StageNames() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	names := make([]string, len(j.stages))
	for i, st := range j.stages {
		names[i] = st.Name
	}
	return names
}

// ProgressStages returns the stored stage percentages for aggregation.
func (j *Job) ProgressStages() []progress.Stage {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]progress.Stage, len(j.stages))
	for i, st := range j.stages {
		out[i] = progress.Stage{Name: st.Name, Percent: st.Progress}
	}
	return out
}

// Progress returns the aggregated percentage.
func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// SkipCompleted marks every stage before name as completed at 100. It is used
// when a resumed job starts part way through the pipeline.
func (j *Job) SkipCompleted(name string, aggregate int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return
	}
	for i := range j.stages {
		if j.stages[i].Name == name {
			break
		}
		j.stages[i].Status = StageCompleted
		j.stages[i].Progress = 100
	}
	j.progress = aggregate
}

// StartStage moves the job to processing and the named stage to processing.
// It reports false when the job is already terminal.
func (j *Job) StartStage(name string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	if j.status == StatusPending {
		j.status = StatusProcessing
	}
	rec := j.record(name)
	if rec == nil {
		return false
	}
	t := now.UTC()
	rec.Status = StageProcessing
	rec.StartedAt = &t
	rec.EndedAt = nil
	rec.Progress = 0
	rec.Message = ""
	j.currentStage = name
	return true
}

// UpdateStage stores a stage percentage and the aggregated job percentage.
// Updates after a terminal transition are dropped and reported as false.
func (j *Job) UpdateStage(name string, pct float64, message string, aggregate int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	rec := j.record(name)
	if rec == nil {
		return false
	}
	rec.Progress = progress.Clamp(pct)
	if message != "" {
		rec.Message = message
	}
	if aggregate > j.progress {
		j.progress = aggregate
	}
	return true
}

// CompleteStage marks the named stage completed at 100.
func (j *Job) CompleteStage(name string, aggregate int, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.IsTerminal() {
		return false
	}
	rec := j.record(name)
	if rec == nil {
		return false
	}
	t := now.UTC()
	rec.Status = StageCompleted
	rec.Progress = 100
	rec.EndedAt = &t
	if aggregate > j.progress {
		j.progress = aggregate
	}
	return true
}

// Fail moves the job to failed. When stage is set, that stage record is marked
// failed too. It reports false if the job was already terminal, which is how
// errors from cancelled jobs are kept from being re-reported.
func (j *Job) Fail(stage, code, message string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.status, StatusFailed) {
		return false
	}
	t := now.UTC()
	j.status = StatusFailed
	j.endedAt = &t
	j.errMessage = message
	j.errCode = code
	j.failedStage = stage
	if stage != "" {
		j.currentStage = stage
		if rec := j.record(stage); rec != nil {
			rec.Status = StageFailed
			rec.EndedAt = &t
			if message != "" {
				rec.Message = message
			}
		}
	}
	return true
}

// Complete moves the job to completed at 100 with the given result key. It is
// accepted from processing and from cancelled.
func (j *Job) Complete(resultKey string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.status, StatusCompleted) {
		return false
	}
	if j.status == StatusCancelled {
		// The last stage finished after cancel; its record never reached
		// CompleteStage because the job was terminal.
		for i := range j.stages {
			if j.stages[i].Status == StageProcessing {
				t := now.UTC()
				j.stages[i].Status = StageCompleted
				j.stages[i].Progress = 100
				j.stages[i].EndedAt = &t
			}
		}
	}
	t := now.UTC()
	j.status = StatusCompleted
	j.endedAt = &t
	j.progress = 100
	j.currentStage = StageDone
	j.resultKey = resultKey
	return true
}

// Cancel moves a non-terminal job to cancelled. It reports false when the job
// was already terminal.
func (j *Job) Cancel(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.status, StatusCancelled) {
		return false
	}
	t := now.UTC()
	j.status = StatusCancelled
	j.endedAt = &t
	return true
}

func (j *Job) record(name string) *StageRecord {
	for i := range j.stages {
		if j.stages[i].Name == name {
			return &j.stages[i]
		}
	}
	return nil
}
