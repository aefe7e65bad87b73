package daemonrun

import (
	"fmt"
	"log/slog"

	"reelsight/internal/config"
	"reelsight/internal/daemon"
	"reelsight/internal/events"
	"reelsight/internal/extraction"
	"reelsight/internal/history"
	"reelsight/internal/inference"
	"reelsight/internal/job"
	"reelsight/internal/notifications"
	"reelsight/internal/pipeline"
	"reelsight/internal/storage"
	"reelsight/internal/workflow"
)

// Runtime holds the wired services of one daemon process.
type Runtime struct {
	Store   *storage.LocalFS
	History *history.Store
	Manager *workflow.Manager
	Daemon  *daemon.Daemon
}

// Build wires storage, history, the pipeline stages, the workflow manager,
// and the daemon without starting anything.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := storage.NewLocalFS(cfg.StorageRoot())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	bus := events.NewBroadcaster()
	machine, err := pipeline.NewMachine(Stages(cfg, store, inference.NewLLMProviderFromConfig(cfg), logger), store, bus, pipeline.Options{
		Weights:      cfg.StageWeights(),
		StageTimeout: cfg.StageTimeout(),
	}, logger)
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	manager, err := workflow.NewManager(cfg, workflow.Dependencies{
		Machine:     machine,
		Registry:    job.NewRegistry(),
		Broadcaster: bus,
		Store:       store,
		History:     hist,
		Notifier:    notifications.NewService(cfg),
		Logger:      logger,
	})
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("build workflow manager: %w", err)
	}

	d, err := daemon.New(cfg, daemon.Dependencies{
		Manager: manager,
		Store:   store,
		History: hist,
		Logger:  logger,
	})
	if err != nil {
		manager.Stop()
		_ = hist.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &Runtime{Store: store, History: hist, Manager: manager, Daemon: d}, nil
}

// Stages returns the pipeline handlers in execution order.
func Stages(cfg *config.Config, store *storage.LocalFS, provider inference.Provider, logger *slog.Logger) []pipeline.Handler {
	return []pipeline.Handler{
		extraction.NewFFmpegStage(cfg, store, logger),
		inference.NewAnalyzeStage(store, provider, logger),
		inference.NewEnhanceStage(provider, logger),
		inference.NewReportStage(provider, logger),
	}
}

// Close stops the manager and closes the history database.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.Manager.Stop()
	return r.History.Close()
}
