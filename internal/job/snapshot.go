package job

import "time"

// Snapshot is an immutable copy of a job. Marshalling the snapshot of an
// unchanged job yields identical bytes.
type Snapshot struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner,omitempty"`
	Status       Status        `json:"status"`
	CurrentStage string        `json:"currentStage"`
	Progress     int           `json:"progress"`
	StartedAt    time.Time     `json:"startedAt"`
	EndedAt      *time.Time    `json:"endedAt,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorCode    string        `json:"errorCode,omitempty"`
	FailedStage  string        `json:"failedStage,omitempty"`
	ResultKey    string        `json:"resultKey,omitempty"`
	ResumedFrom  string        `json:"resumedFrom,omitempty"`
	Input        Input         `json:"input"`
	Stages       []StageRecord `json:"stages"`
}

// IsTerminal reports whether the snapshot captured a final state.
func (s Snapshot) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Stage returns the record for name.
func (s Snapshot) Stage(name string) (StageRecord, bool) {
	for _, rec := range s.Stages {
		if rec.Name == name {
			return rec, true
		}
	}
	return StageRecord{}, false
}

// Snapshot copies the job state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	stages := make([]StageRecord, len(j.stages))
	for i, rec := range j.stages {
		rec.StartedAt = copyTime(rec.StartedAt)
		rec.EndedAt = copyTime(rec.EndedAt)
		stages[i] = rec
	}
	return Snapshot{
		ID:           j.id,
		Owner:        j.owner,
		Status:       j.status,
		CurrentStage: j.currentStage,
		Progress:     j.progress,
		StartedAt:    j.startedAt,
		EndedAt:      copyTime(j.endedAt),
		Error:        j.errMessage,
		ErrorCode:    j.errCode,
		FailedStage:  j.failedStage,
		ResultKey:    j.resultKey,
		ResumedFrom:  j.resumedFrom,
		Input:        j.input,
		Stages:       stages,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
