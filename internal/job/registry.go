package job

import (
	"errors"
	"sort"
	"sync"
)

// ErrDuplicate is returned when a job id is registered twice.
var ErrDuplicate = errors.New("job: duplicate id")

// Registry is the explicit set of live jobs.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Add registers j.
func (r *Registry) Add(j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID()]; ok {
		return ErrDuplicate
	}
	r.jobs[j.ID()] = j
	return nil
}

// Get returns the job for id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// List returns all jobs ordered by start time, oldest first.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt().Equal(out[b].StartedAt()) {
			return out[a].ID() < out[b].ID()
		}
		return out[a].StartedAt().Before(out[b].StartedAt())
	})
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
