package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelsight/internal/config"
	"reelsight/internal/events"
	"reelsight/internal/job"
	"reelsight/internal/logging"
	"reelsight/internal/pipeline"
	"reelsight/internal/stage"
	"reelsight/internal/storage"
	"reelsight/internal/testsupport"
	"reelsight/internal/workflow"
)

type gatedStage struct {
	name string
	gate chan struct{}
}

func (s *gatedStage) Name() string { return s.name }

func (s *gatedStage) Execute(ctx context.Context, _ any, report stage.ReportFunc) (any, error) {
	report(50, "working")
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	report(100, "done")
	return map[string]string{"stage": s.name}, nil
}

func (s *gatedStage) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

type fixture struct {
	cfg     *config.Config
	daemon  *Daemon
	manager *workflow.Manager
	store   *storage.LocalFS
	gate    chan struct{}
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store, err := storage.NewLocalFS(cfg.StorageRoot())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	gate := make(chan struct{})
	bus := events.NewBroadcaster()
	handlers := []pipeline.Handler{&gatedStage{name: "extraction", gate: gate}, &gatedStage{name: "report"}}
	machine, err := pipeline.NewMachine(handlers, store, bus, pipeline.Options{Weights: cfg.StageWeights()}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	manager, err := workflow.NewManager(cfg, workflow.Dependencies{
		Machine:     machine,
		Registry:    job.NewRegistry(),
		Broadcaster: bus,
		Store:       store,
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	d, err := New(cfg, Dependencies{Manager: manager, Store: store, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	t.Cleanup(manager.Stop)
	return &fixture{cfg: cfg, daemon: d, manager: manager, store: store, gate: gate}
}

func (f *fixture) release() {
	select {
	case <-f.gate:
	default:
		close(f.gate)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(cfg, Dependencies{}); err == nil {
		t.Fatal("expected error without manager and store")
	}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	status := f.daemon.Status(ctx)
	if !status.Running || status.Address == "" || status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !status.Workflow.Ready {
		t.Fatalf("expected workflow ready: %+v", status.Workflow)
	}

	resp, err := http.Get("http://" + status.Address + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running || f.daemon.Address() != "" {
		t.Fatal("expected daemon stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	f := newFixture(t)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	other, err := New(f.cfg, Dependencies{Manager: f.manager, Store: f.store, Logger: logging.NewNop()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestDaemonWithoutBindServesHandlerOnly(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.APIBind = ""
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if addr := f.daemon.Address(); addr != "" {
		t.Fatalf("expected no listener, got %s", addr)
	}

	rec := httptest.NewRecorder()
	f.daemon.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
