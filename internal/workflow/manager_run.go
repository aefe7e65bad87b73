package workflow

import (
	"context"
	"fmt"
	"runtime/debug"

	"reelsight/internal/events"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/notifications"
	"reelsight/internal/services"
)

func (m *Manager) start(ctx context.Context, j *job.Job, from string) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if err := m.registry.Add(j); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("register job %s: %w", j.ID(), err)
	}
	jobCtx, cancel := context.WithCancel(m.baseCtx)
	if reqID, ok := services.RequestIDFromContext(ctx); ok {
		jobCtx = services.WithRequestID(jobCtx, reqID)
	}
	m.running[j.ID()] = runningJob{job: j, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()

	m.bus.Publish(j.ID(), events.TypeSnapshot, j.Snapshot(), nil)
	go m.run(jobCtx, cancel, j, from)
	return nil
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, j *job.Job, from string) {
	defer m.wg.Done()
	defer cancel()
	defer m.finish(j)
	defer func() {
		if r := recover(); r != nil {
			m.recoverPanic(ctx, j, r)
		}
	}()
	if err := m.machine.Run(ctx, j, from); err != nil {
		logging.WithContext(services.WithJobID(ctx, j.ID()), m.logger).Debug("pipeline run ended",
			logging.String("status", string(j.Status())),
			logging.Error(err),
		)
	}
}

func (m *Manager) recoverPanic(ctx context.Context, j *job.Job, r any) {
	snap := j.Snapshot()
	stageName := snap.CurrentStage
	err := services.Wrap(services.ErrDefect, stageName, "run", "Pipeline panicked", fmt.Errorf("%v", r))
	details := services.Details(err)
	if j.Fail(stageName, details.Code, details.Message, m.now()) {
		m.bus.Publish(j.ID(), events.TypeFailed, j.Snapshot(), &events.Detail{
			Stage:     stageName,
			ErrorCode: details.Code,
			Error:     details.Message,
		})
	}
	logging.ErrorWithContext(logging.WithContext(services.WithJobID(ctx, j.ID()), m.logger),
		"job goroutine panicked", "job_panic",
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorHint, "report this failure with the daemon log"),
		logging.Alert("job_panic"),
		logging.Any("panic", r),
		logging.String("stack", string(debug.Stack())),
	)
}

// finish runs once the job goroutine returns.
func (m *Manager) finish(j *job.Job) {
	snap := j.Snapshot()
	if !snap.IsTerminal() {
		// Run always leaves the job terminal; anything else is a defect.
		err := services.Wrap(services.ErrDefect, snap.CurrentStage, "run", "Pipeline returned without a terminal state", nil)
		details := services.Details(err)
		if j.Fail(snap.CurrentStage, details.Code, details.Message, m.now()) {
			m.bus.Publish(j.ID(), events.TypeFailed, j.Snapshot(), &events.Detail{
				Stage:     snap.CurrentStage,
				ErrorCode: details.Code,
				Error:     details.Message,
			})
		}
	}
	m.terminal(j)

	m.mu.Lock()
	delete(m.running, j.ID())
	m.mu.Unlock()
}

// terminal applies the side effects of a terminal transition. It may run
// twice for a job that was cancelled and then completed.
func (m *Manager) terminal(j *job.Job) {
	snap := j.Snapshot()
	ctx := services.WithJobID(context.Background(), snap.ID)
	logger := logging.WithContext(ctx, m.logger)

	if m.history != nil {
		if err := m.history.Record(ctx, snap); err != nil {
			logging.WarnWithContext(logger, "job history not recorded", "history_record_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the history database under the data directory"),
				logging.String(logging.FieldImpact, "the job is missing from history listings"),
			)
		}
	}

	m.notify(ctx, snap)

	switch snap.Status {
	case job.StatusCompleted, job.StatusCancelled:
		m.scheduleCleanup(j.Workspace())
	}
}

func (m *Manager) notify(ctx context.Context, snap job.Snapshot) {
	info := notifications.Job{
		ID:          snap.ID,
		Filename:    snap.Input.Filename,
		Owner:       snap.Owner,
		FailedStage: snap.FailedStage,
		Error:       snap.Error,
		ResultKey:   snap.ResultKey,
	}
	if snap.EndedAt != nil {
		info.Elapsed = snap.EndedAt.Sub(snap.StartedAt)
	}
	var err error
	switch snap.Status {
	case job.StatusCompleted:
		err = m.notifier.NotifyJobCompleted(ctx, info)
	case job.StatusFailed:
		err = m.notifier.NotifyJobFailed(ctx, info)
	default:
		return
	}
	if err != nil {
		logging.WithContext(ctx, m.logger).Debug("job notification failed",
			logging.String("status", string(snap.Status)),
			logging.Error(err),
		)
	}
}
