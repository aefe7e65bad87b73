package workflow

import (
	"context"

	"reelsight/internal/events"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/services"
)

// Cancel marks id cancelled and cancels its context. A handler that ignores
// cancellation may still complete the job afterwards.
func (m *Manager) Cancel(ctx context.Context, id string) (job.Snapshot, error) {
	j, ok := m.registry.Get(id)
	if !ok {
		return job.Snapshot{}, ErrNotFound
	}
	if !j.Cancel(m.now()) {
		return j.Snapshot(), ErrTerminal
	}
	snap := j.Snapshot()
	m.bus.Publish(id, events.TypeCancelled, snap, nil)

	m.mu.Lock()
	running, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		running.cancel()
	}

	logging.WithContext(services.WithJobID(ctx, id), m.logger).Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String(logging.FieldStage, snap.CurrentStage),
		logging.Int(logging.FieldProgressPercent, snap.Progress),
	)
	m.terminal(j)
	return snap, nil
}

// Stop cancels every running job, waits for the goroutines to return, and
// drops pending cleanups. Submit and Resume fail with ErrStopped afterwards.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if j, ok := m.registry.Get(id); ok && j.Cancel(m.now()) {
			m.bus.Publish(id, events.TypeCancelled, j.Snapshot(), nil)
		}
	}
	m.baseCancel()
	m.wg.Wait()

	m.mu.Lock()
	for workspace, timer := range m.timers {
		if timer.Stop() {
			m.cleanups.Done()
		}
		delete(m.timers, workspace)
	}
	m.mu.Unlock()
	m.cleanups.Wait()

	if len(ids) > 0 {
		m.logger.Info("workflow manager stopped",
			logging.String(logging.FieldEventType, "manager_stopped"),
			logging.Int("cancelled_jobs", len(ids)),
		)
	}
}
