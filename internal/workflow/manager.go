package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelsight/internal/config"
	"reelsight/internal/events"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/notifications"
	"reelsight/internal/pipeline"
	"reelsight/internal/storage"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("workflow: job not found")
	// ErrTerminal is returned when cancelling a job that already finished.
	ErrTerminal = errors.New("workflow: job already terminal")
	// ErrActive is returned when resuming a job that is still running.
	ErrActive = errors.New("workflow: job still running")
	// ErrInvalidInput is returned when a submission has no uploaded media.
	ErrInvalidInput = errors.New("workflow: invalid input")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("workflow: manager stopped")
)

// HistoryRecorder persists terminal job snapshots.
type HistoryRecorder interface {
	Record(ctx context.Context, snap job.Snapshot) error
}

// Input is a job submission. ID may be preset when the caller stored the
// upload under the job id before submitting.
type Input struct {
	ID    string
	Owner string
	Media job.Input
}

// ResumeRequest starts a new job from a stage of an existing one. An empty
// FromStage resumes a failed job at its failed stage.
type ResumeRequest struct {
	JobID     string
	FromStage string
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Machine     *pipeline.Machine
	Registry    *job.Registry
	Broadcaster *events.Broadcaster
	Store       storage.Store
	History     HistoryRecorder
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Manager supervises job goroutines.
type Manager struct {
	machine  *pipeline.Machine
	registry *job.Registry
	bus      *events.Broadcaster
	store    storage.Store
	history  HistoryRecorder
	notifier notifications.Service
	logger   *slog.Logger

	cleanupDelay time.Duration
	now          func() time.Time
	newID        func() string

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	running  map[string]runningJob
	timers   map[string]*time.Timer
	wg       sync.WaitGroup
	cleanups sync.WaitGroup
}

type runningJob struct {
	job    *job.Job
	cancel context.CancelFunc
}

// NewManager constructs a manager. History and Notifier are optional.
func NewManager(cfg *config.Config, deps Dependencies) (*Manager, error) {
	if deps.Machine == nil {
		return nil, errors.New("workflow: pipeline machine required")
	}
	if deps.Store == nil {
		return nil, errors.New("workflow: store required")
	}
	registry := deps.Registry
	if registry == nil {
		registry = job.NewRegistry()
	}
	bus := deps.Broadcaster
	if bus == nil {
		bus = events.NewBroadcaster()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	var delay time.Duration
	if cfg != nil {
		delay = cfg.CleanupDelay()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		machine:      deps.Machine,
		registry:     registry,
		bus:          bus,
		store:        deps.Store,
		history:      deps.History,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(deps.Logger, "workflow-manager"),
		cleanupDelay: delay,
		now:          time.Now,
		newID:        uuid.NewString,
		baseCtx:      ctx,
		baseCancel:   cancel,
		running:      make(map[string]runningJob),
		timers:       make(map[string]*time.Timer),
	}, nil
}

// Broadcaster returns the event bus jobs publish to.
func (m *Manager) Broadcaster() *events.Broadcaster { return m.bus }

// Submit registers a pending job and starts it in the background.
func (m *Manager) Submit(ctx context.Context, in Input) (string, error) {
	if strings.TrimSpace(in.Media.Key) == "" {
		return "", fmt.Errorf("%w: uploaded media key required", ErrInvalidInput)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = m.newID()
	}
	j := job.New(job.Params{
		ID:     id,
		Owner:  strings.TrimSpace(in.Owner),
		Input:  in.Media,
		Stages: m.machine.StageNames(),
		Now:    m.now(),
	})
	if err := m.start(ctx, j, ""); err != nil {
		return "", err
	}
	logging.WithContext(ctx, m.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, id),
		logging.String("filename", in.Media.Filename),
		logging.Int64("size_bytes", in.Media.SizeBytes),
	)
	return id, nil
}

// Resume creates a job that shares the source job's workspace and starts at
// req.FromStage.
func (m *Manager) Resume(ctx context.Context, req ResumeRequest) (string, error) {
	src, ok := m.registry.Get(strings.TrimSpace(req.JobID))
	if !ok {
		return "", ErrNotFound
	}
	snap := src.Snapshot()
	if !snap.IsTerminal() {
		return "", ErrActive
	}
	from := strings.TrimSpace(req.FromStage)
	if from == "" {
		from = snap.FailedStage
	}
	if from == "" {
		return "", fmt.Errorf("%w: resume stage required", ErrInvalidInput)
	}
	if err := m.machine.CheckResumable(ctx, src.Workspace(), from); err != nil {
		return "", err
	}

	m.stopCleanup(src.Workspace())
	j := job.New(job.Params{
		ID:          m.newID(),
		Owner:       src.Owner(),
		Workspace:   src.Workspace(),
		ResumedFrom: src.ID(),
		Input:       src.Input(),
		Stages:      m.machine.StageNames(),
		Now:         m.now(),
	})
	if err := m.start(ctx, j, from); err != nil {
		return "", err
	}
	logging.WithContext(ctx, m.logger).Info("job resumed",
		logging.String(logging.FieldEventType, "job_resumed"),
		logging.String(logging.FieldJobID, j.ID()),
		logging.String("resumed_from", src.ID()),
		logging.String(logging.FieldStage, from),
	)
	return j.ID(), nil
}

// Status returns the current snapshot of id.
func (m *Manager) Status(id string) (job.Snapshot, error) {
	j, ok := m.registry.Get(id)
	if !ok {
		return job.Snapshot{}, ErrNotFound
	}
	return j.Snapshot(), nil
}

// List returns snapshots of every live job, oldest first.
func (m *Manager) List() []job.Snapshot {
	jobs := m.registry.List()
	out := make([]job.Snapshot, len(jobs))
	for i, j := range jobs {
		out[i] = j.Snapshot()
	}
	return out
}

// Subscribe attaches to the event stream of id.
func (m *Manager) Subscribe(id string) (*events.Subscription, error) {
	if _, ok := m.registry.Get(id); !ok {
		return nil, ErrNotFound
	}
	return m.bus.Subscribe(id), nil
}

// Unsubscribe detaches sub.
func (m *Manager) Unsubscribe(sub *events.Subscription) {
	m.bus.Unsubscribe(sub)
}
