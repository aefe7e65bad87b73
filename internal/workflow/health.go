package workflow

import (
	"context"

	"reelsight/internal/stage"
)

// Health summarizes manager readiness.
type Health struct {
	Ready   bool
	Running int
	Jobs    int
	Stages  []stage.Health
}

// Health runs every handler health check.
func (m *Manager) Health(ctx context.Context) Health {
	handlers := m.machine.Handlers()
	h := Health{Ready: true, Jobs: m.registry.Len(), Stages: make([]stage.Health, 0, len(handlers))}
	for _, handler := range handlers {
		sh := handler.HealthCheck(ctx)
		if sh.Name == "" {
			sh.Name = handler.Name()
		}
		if !sh.Ready {
			h.Ready = false
		}
		h.Stages = append(h.Stages, sh)
	}
	m.mu.Lock()
	h.Running = len(m.running)
	if m.stopped {
		h.Ready = false
	}
	m.mu.Unlock()
	return h
}
