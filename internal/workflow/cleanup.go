package workflow

import (
	"context"
	"time"

	"reelsight/internal/logging"
	"reelsight/internal/storage"
)

const cleanupTimeout = time.Minute

// scheduleCleanup removes the workspace after the cleanup delay, replacing
// any cleanup already pending for it.
func (m *Manager) scheduleCleanup(workspace string) {
	if workspace == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if prev, ok := m.timers[workspace]; ok && prev.Stop() {
		m.cleanups.Done()
	}
	m.cleanups.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(m.cleanupDelay, func() {
		defer m.cleanups.Done()
		m.mu.Lock()
		if m.timers[workspace] == timer {
			delete(m.timers, workspace)
		}
		m.mu.Unlock()
		m.cleanupWorkspace(workspace)
	})
	m.timers[workspace] = timer
}

func (m *Manager) stopCleanup(workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.timers[workspace]; ok {
		if timer.Stop() {
			m.cleanups.Done()
		}
		delete(m.timers, workspace)
	}
}

func (m *Manager) workspaceBusy(workspace string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, running := range m.running {
		if running.job.Workspace() == workspace && !running.job.Status().IsTerminal() {
			return true
		}
	}
	return false
}

func (m *Manager) cleanupWorkspace(workspace string) {
	logger := m.logger.With(logging.String("workspace", workspace))
	if m.workspaceBusy(workspace) {
		logger.Debug("workspace cleanup skipped; job still running")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	removed, err := storage.DeletePrefix(ctx, m.store, storage.WorkspacePrefix(workspace))
	if err != nil {
		logging.WarnWithContext(logger, "workspace cleanup failed", "cleanup_failed",
			logging.Error(err),
			logging.Int("removed", removed),
			logging.String(logging.FieldErrorHint, "remove the workspace directory under the data directory by hand"),
			logging.String(logging.FieldImpact, "transient artifacts keep using disk space"),
		)
		return
	}
	logger.Debug("workspace cleaned up", logging.Int("removed", removed))
}
